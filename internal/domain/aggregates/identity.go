package aggregates

import (
	"context"

	types "github.com/yungbote/chatmemory-backend/internal/domain"
)

var IdentityAggregateContract = Contract{
	Name:             "Chat.IdentityAggregate",
	WriteTxOwnership: WriteTxOwnedByAggregate,
	ReadPolicy:       ReadPolicyInvariantScoped,
	Notes:            "Owns identifier uniqueness and non-destructive profile merge for chat users.",
}

// IdentityAggregate maps tagged identifiers to durable users.
type IdentityAggregate interface {
	Aggregate

	// ResolveUser finds or creates the user for an identifier and merges the
	// supplied profile fields. Blank fields never erase stored values.
	ResolveUser(ctx context.Context, in ResolveUserInput) (ResolveUserResult, error)
}

type ResolveUserInput struct {
	Identifier  types.Identifier
	DisplayName string
	Email       string
}

type ResolveUserResult struct {
	User    *types.User
	Created bool
	Updated bool
	// EmailConflict is set when the supplied email belongs to another user
	// and was left out of the merge.
	EmailConflict bool
}
