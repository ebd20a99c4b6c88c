package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/chatmemory-backend/internal/observability"
	"github.com/yungbote/chatmemory-backend/internal/platform/ctxutil"
	"github.com/yungbote/chatmemory-backend/internal/platform/logger"
)

// Sources of a compaction task, recorded on each run.
const (
	SourceInline   = "inline"
	SourceQueue    = "queue"
	SourceTemporal = "temporal"
	SourceSweep    = "sweep"
	SourceManual   = "manual"
)

type CompactionTask struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	Source         string    `json:"source"`
	RequestedAt    time.Time `json:"requested_at"`
}

// Dispatcher hands a due compaction to whatever runs it. Dispatch is called
// after the turn has committed and must not surface compaction failures.
type Dispatcher interface {
	Dispatch(ctx context.Context, task CompactionTask) error
	Mode() string
}

// Locker guards one compaction across processes.
type Locker interface {
	// Acquire returns acquired=false when another holder owns key.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, acquired bool, err error)
}

type NoopLocker struct{}

func (NoopLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	return func(context.Context) error { return nil }, true, nil
}

// InlineDispatcher runs the compaction synchronously on the caller's
// goroutine, detached from the request deadline.
type InlineDispatcher struct {
	svc Service
	log *logger.Logger
}

func NewInlineDispatcher(svc Service, log *logger.Logger) *InlineDispatcher {
	return &InlineDispatcher{svc: svc, log: log.With("dispatcher", "inline")}
}

func (d *InlineDispatcher) Mode() string { return SourceInline }

func (d *InlineDispatcher) Dispatch(ctx context.Context, task CompactionTask) error {
	if task.Source == "" {
		task.Source = SourceInline
	}
	observability.Current().IncCompactionDispatch(d.Mode(), "accepted")
	res, err := d.svc.Compact(ctxutil.Detach(ctx), task)
	if err != nil {
		d.log.Warn("inline compaction failed",
			"conversation_id", task.ConversationID.String(),
			"status", res.Status,
			"error", err,
		)
	}
	return nil
}
