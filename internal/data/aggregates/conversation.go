package aggregates

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/yungbote/chatmemory-backend/internal/data/repos"
	types "github.com/yungbote/chatmemory-backend/internal/domain"
	domainagg "github.com/yungbote/chatmemory-backend/internal/domain/aggregates"
	"github.com/yungbote/chatmemory-backend/internal/pkg/dbctx"
	"github.com/yungbote/chatmemory-backend/internal/pkg/textutil"
	"gorm.io/datatypes"
)

const maxCompactionErrorLen = 500

type ConversationAggregateDeps struct {
	Base BaseDeps

	Users         repos.UserRepo
	Conversations repos.ConversationRepo
	Messages      repos.MessageRepo
}

type conversationAggregate struct {
	deps ConversationAggregateDeps
}

func NewConversationAggregate(deps ConversationAggregateDeps) domainagg.ConversationAggregate {
	deps.Base = deps.Base.withDefaults()
	return &conversationAggregate{deps: deps}
}

func (a *conversationAggregate) Contract() domainagg.Contract {
	return domainagg.ConversationAggregateContract
}

func (a *conversationAggregate) LocateOrCreate(ctx context.Context, in domainagg.LocateInput) (domainagg.LocateResult, error) {
	const op = "Chat.Conversation.LocateOrCreate"
	var out domainagg.LocateResult
	if in.UserID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing user_id", nil)
	}
	channel := normalizeChannel(in.Channel)
	if channel == "" {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing channel", nil)
	}
	if a.deps.Users == nil || a.deps.Conversations == nil {
		return out, domainagg.NewError(domainagg.CodeInternal, op, "conversation aggregate repos not configured", nil)
	}
	at := a.deps.Base.now(in.At)

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		if _, err := a.deps.Users.LockByID(dbc, in.UserID); err != nil {
			return err
		}
		existing, err := a.deps.Conversations.GetLatestForUser(dbc, in.UserID, channel)
		if err != nil {
			return err
		}
		if existing != nil {
			out.Conversation = existing
			return nil
		}
		created, err := a.deps.Conversations.Create(dbc, []*types.Conversation{{
			ID:            uuid.New(),
			UserID:        in.UserID,
			Channel:       channel,
			LastMessageAt: at,
			Metadata:      datatypes.JSON([]byte("{}")),
			CreatedAt:     at,
			UpdatedAt:     at,
		}})
		if err != nil {
			return err
		}
		out.Conversation = created[0]
		out.Created = true
		return nil
	})
	return out, err
}

func (a *conversationAggregate) AppendMessage(ctx context.Context, in domainagg.AppendMessageInput) (domainagg.AppendMessageResult, error) {
	const op = "Chat.Conversation.AppendMessage"
	var out domainagg.AppendMessageResult
	if in.ConversationID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing conversation_id", nil)
	}
	sender := strings.ToLower(strings.TrimSpace(in.Sender))
	if !types.ValidSender(sender) {
		return out, domainagg.NewError(domainagg.CodeValidation, op, fmt.Sprintf("invalid sender %q", in.Sender), nil)
	}
	if in.ReplyToSeq < 0 || (in.ReplyToSeq > 0 && sender != types.SenderAgent) {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "reply_to_seq is only valid on agent messages", nil)
	}
	if strings.TrimSpace(in.Content) == "" && len(in.Metadata) == 0 {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "empty message", nil)
	}
	if a.deps.Conversations == nil || a.deps.Messages == nil {
		return out, domainagg.NewError(domainagg.CodeInternal, op, "conversation aggregate repos not configured", nil)
	}
	meta := []byte("{}")
	if len(in.Metadata) > 0 {
		b, err := json.Marshal(in.Metadata)
		if err != nil {
			return out, domainagg.NewError(domainagg.CodeValidation, op, "metadata not serializable", err)
		}
		meta = b
	}
	key := strings.TrimSpace(in.IdempotencyKey)
	now := a.deps.Base.now(in.At)

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		conv, err := a.deps.Conversations.LockByID(dbc, in.ConversationID)
		if err != nil {
			return err
		}
		// Deduped under the row lock so concurrent redeliveries see each other.
		if key != "" {
			existing, err := a.deps.Messages.GetByIdempotencyKey(dbc, conv.ID, key)
			if err != nil {
				return err
			}
			if existing != nil {
				out.Message = existing
				out.Duplicate = true
				return nil
			}
		}

		seq := conv.NextSeq + 1
		if err := RequireMonotonic(conv.NextSeq, seq); err != nil {
			return err
		}
		if in.ReplyToSeq >= seq {
			return ValidationError(fmt.Sprintf("reply_to_seq %d is not an earlier turn", in.ReplyToSeq))
		}
		createdAt := now
		if createdAt.Before(conv.LastMessageAt) {
			createdAt = conv.LastMessageAt
		}

		rows, err := a.deps.Messages.Create(dbc, []*types.Message{{
			ID:             uuid.New(),
			ConversationID: conv.ID,
			Seq:            seq,
			ReplyToSeq:     in.ReplyToSeq,
			Sender:         sender,
			Content:        in.Content,
			Metadata:       datatypes.JSON(meta),
			IdempotencyKey: key,
			CreatedAt:      createdAt,
		}})
		if err != nil {
			return err
		}
		if err := a.deps.Conversations.UpdateFields(dbc, conv.ID, map[string]interface{}{
			"next_seq":        seq,
			"last_message_at": createdAt,
		}); err != nil {
			return err
		}
		out.Message = rows[0]
		return nil
	})
	return out, err
}

func (a *conversationAggregate) ApplySummary(ctx context.Context, in domainagg.ApplySummaryInput) (domainagg.ApplySummaryResult, error) {
	const op = "Chat.Conversation.ApplySummary"
	var out domainagg.ApplySummaryResult
	if in.ConversationID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing conversation_id", nil)
	}
	summary := strings.TrimSpace(in.Summary)
	if summary == "" {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "empty summary", nil)
	}
	if in.ThroughSeq <= 0 {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "through_seq must be > 0", nil)
	}
	if a.deps.Conversations == nil {
		return out, domainagg.NewError(domainagg.CodeInternal, op, "conversation aggregate repos not configured", nil)
	}
	at := a.deps.Base.now(in.At)

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		ok, err := a.deps.Base.CASGuard.AdvanceWatermark(dbc, types.Conversation{}.TableName(), in.ConversationID, "summarized_seq", in.ThroughSeq, map[string]any{
			"summary":                 summary,
			"summary_updated_at":      at,
			"compaction_failures":     0,
			"compaction_error":        "",
			"compaction_attempted_at": at,
			"updated_at":              at,
		})
		if err != nil {
			return err
		}
		conv, err := a.deps.Conversations.GetByID(dbc, in.ConversationID)
		if err != nil {
			return err
		}
		if conv == nil {
			return domainagg.NewError(domainagg.CodeNotFound, op, fmt.Sprintf("conversation not found: %s", in.ConversationID), nil)
		}
		out.Applied = ok
		out.SummarizedSeq = conv.SummarizedSeq
		return nil
	})
	return out, err
}

func (a *conversationAggregate) RecordCompactionFailure(ctx context.Context, in domainagg.RecordCompactionFailureInput) (domainagg.RecordCompactionFailureResult, error) {
	const op = "Chat.Conversation.RecordCompactionFailure"
	var out domainagg.RecordCompactionFailureResult
	if in.ConversationID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing conversation_id", nil)
	}
	if a.deps.Conversations == nil {
		return out, domainagg.NewError(domainagg.CodeInternal, op, "conversation aggregate repos not configured", nil)
	}
	cause := textutil.Truncate(strings.TrimSpace(in.Cause), maxCompactionErrorLen)
	at := a.deps.Base.now(in.At)

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		conv, err := a.deps.Conversations.LockByID(dbc, in.ConversationID)
		if err != nil {
			return err
		}
		failures := conv.CompactionFailures + 1
		if err := a.deps.Conversations.UpdateFields(dbc, conv.ID, map[string]interface{}{
			"compaction_failures":     failures,
			"compaction_attempted_at": at,
			"compaction_error":        cause,
		}); err != nil {
			return err
		}
		out.Failures = failures
		return nil
	})
	return out, err
}

func normalizeChannel(ch string) string {
	return strings.ToLower(strings.TrimSpace(ch))
}
