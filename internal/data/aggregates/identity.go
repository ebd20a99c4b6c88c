package aggregates

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/yungbote/chatmemory-backend/internal/data/repos"
	types "github.com/yungbote/chatmemory-backend/internal/domain"
	domainagg "github.com/yungbote/chatmemory-backend/internal/domain/aggregates"
	"github.com/yungbote/chatmemory-backend/internal/pkg/dbctx"
	"github.com/yungbote/chatmemory-backend/internal/pkg/pointers"
)

type IdentityAggregateDeps struct {
	Base BaseDeps

	Users repos.UserRepo
}

type identityAggregate struct {
	deps IdentityAggregateDeps
}

func NewIdentityAggregate(deps IdentityAggregateDeps) domainagg.IdentityAggregate {
	deps.Base = deps.Base.withDefaults()
	return &identityAggregate{deps: deps}
}

func (a *identityAggregate) Contract() domainagg.Contract {
	return domainagg.IdentityAggregateContract
}

func (a *identityAggregate) ResolveUser(ctx context.Context, in domainagg.ResolveUserInput) (domainagg.ResolveUserResult, error) {
	const op = "Chat.Identity.ResolveUser"
	var out domainagg.ResolveUserResult
	id := in.Identifier.Normalize()
	if err := id.Validate(); err != nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, err.Error(), nil)
	}
	if a.deps.Users == nil {
		return out, domainagg.NewError(domainagg.CodeInternal, op, "identity aggregate repos not configured", nil)
	}
	displayName := strings.TrimSpace(in.DisplayName)
	email := types.NormalizeEmail(in.Email)
	if id.Kind == types.KindEmail {
		email = id.Value
	}
	log := a.deps.Base.Log.With("aggregate", "IdentityAggregate")

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		u, err := a.deps.Users.GetByIdentifier(dbc, id)
		if err != nil {
			return err
		}
		if u == nil && email != "" {
			if u, err = a.deps.Users.GetByEmail(dbc, email); err != nil {
				return err
			}
		}
		if u == nil {
			created, err := a.create(dbc, id, displayName, email)
			if err != nil {
				return err
			}
			out = created
			return nil
		}

		updates := map[string]interface{}{}
		if displayName != "" && displayName != u.FullName {
			updates["full_name"] = displayName
		}
		if email != "" && u.IdentifierValue(types.KindEmail) != email {
			owner, err := a.deps.Users.GetByEmail(dbc, email)
			if err != nil {
				return err
			}
			if owner != nil && owner.ID != u.ID {
				out.EmailConflict = true
				log.Warn("email already owned by another user, skipping merge",
					"user_id", u.ID.String(),
					"owner_user_id", owner.ID.String(),
				)
			} else {
				updates["email"] = email
			}
		}
		// Found through the email fallback: the primary column is free.
		if u.IdentifierValue(id.Kind) == "" {
			updates[id.Column()] = id.Value
		}
		if len(updates) == 0 {
			out.User = u
			return nil
		}
		if err := a.deps.Users.UpdateFields(dbc, u.ID, updates); err != nil {
			return err
		}
		fresh, err := a.deps.Users.GetByID(dbc, u.ID)
		if err != nil {
			return err
		}
		out.User = fresh
		out.Updated = true
		return nil
	})
	return out, err
}

func (a *identityAggregate) create(dbc dbctx.Context, id types.Identifier, displayName, email string) (domainagg.ResolveUserResult, error) {
	var out domainagg.ResolveUserResult
	if displayName == "" {
		displayName = types.DefaultDisplayName
	}
	row := &types.User{
		ID:       uuid.New(),
		FullName: displayName,
	}
	switch id.Kind {
	case types.KindPhone:
		row.PhoneNumber = pointers.String(id.Value)
	case types.KindOpaque:
		row.ExternalID = pointers.String(id.Value)
	}
	if email == "" {
		// A placeholder already taken by someone else is dropped rather than
		// blocking the insert.
		placeholder := types.PlaceholderEmail(id.Value)
		owner, err := a.deps.Users.GetByEmail(dbc, placeholder)
		if err != nil {
			return out, err
		}
		if owner == nil {
			email = placeholder
		}
	}
	row.Email = pointers.NonEmpty(email)

	created, err := a.deps.Users.CreateIfAbsent(dbc, row)
	if err != nil {
		return out, err
	}
	if created {
		out.User = row
		out.Created = true
		return out, nil
	}
	// Lost a race with a concurrent first contact.
	winner, err := a.deps.Users.GetByIdentifier(dbc, id)
	if err != nil {
		return out, err
	}
	if winner == nil {
		return out, ConflictError("identity insert skipped but no row found for " + string(id.Kind))
	}
	out.User = winner
	return out, nil
}
