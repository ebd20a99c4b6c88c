package aggregates

import (
	"context"
	"time"

	"github.com/google/uuid"
	types "github.com/yungbote/chatmemory-backend/internal/domain"
)

var ConversationAggregateContract = Contract{
	Name:             "Chat.ConversationAggregate",
	WriteTxOwnership: WriteTxOwnedByAggregate,
	ReadPolicy:       ReadPolicyInvariantScoped,
	Notes:            "Owns conversation selection, per-conversation message sequencing and the summary watermark.",
}

// ConversationAggregate owns the write invariants of a conversation.
//
// Write method failures return *aggregates.Error with codes:
// CodeValidation, CodeNotFound, CodeConflict, CodeRetryable, CodeInternal.
type ConversationAggregate interface {
	Aggregate

	// LocateOrCreate returns the most recently active conversation of a user on
	// a channel, creating an empty one when none exists. The user row is locked
	// so concurrent first contacts agree on one conversation.
	LocateOrCreate(ctx context.Context, in LocateInput) (LocateResult, error)

	// AppendMessage allocates the next seq under the conversation row lock and
	// inserts the message. A repeated idempotency key returns the stored row.
	AppendMessage(ctx context.Context, in AppendMessageInput) (AppendMessageResult, error)

	// ApplySummary replaces the summary only when ThroughSeq advances the
	// watermark. Stale results are reported as not applied.
	ApplySummary(ctx context.Context, in ApplySummaryInput) (ApplySummaryResult, error)

	RecordCompactionFailure(ctx context.Context, in RecordCompactionFailureInput) (RecordCompactionFailureResult, error)
}

type LocateInput struct {
	UserID  uuid.UUID
	Channel string
	At      time.Time
}

type LocateResult struct {
	Conversation *types.Conversation
	Created      bool
}

type AppendMessageInput struct {
	ConversationID uuid.UUID
	Sender         string
	Content        string
	IdempotencyKey string
	// ReplyToSeq links an agent message to the user turn it answers.
	ReplyToSeq int64
	Metadata   map[string]any
	At         time.Time
}

type AppendMessageResult struct {
	Message   *types.Message
	Duplicate bool
}

type ApplySummaryInput struct {
	ConversationID uuid.UUID
	Summary        string
	ThroughSeq     int64
	At             time.Time
}

type ApplySummaryResult struct {
	Applied       bool
	SummarizedSeq int64
}

type RecordCompactionFailureInput struct {
	ConversationID uuid.UUID
	Cause          string
	At             time.Time
}

type RecordCompactionFailureResult struct {
	Failures int
}
