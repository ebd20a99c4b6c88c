package memory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	types "github.com/yungbote/chatmemory-backend/internal/domain"
	domainagg "github.com/yungbote/chatmemory-backend/internal/domain/aggregates"
	"github.com/yungbote/chatmemory-backend/internal/observability"
	"github.com/yungbote/chatmemory-backend/internal/pkg/dbctx"
	"github.com/yungbote/chatmemory-backend/internal/pkg/textutil"
	"github.com/yungbote/chatmemory-backend/internal/platform/ctxutil"
)

// DefaultCompactionLockTTL is the floor for the cross-process compaction lock.
const DefaultCompactionLockTTL = 10 * time.Minute

// LockTTLFor returns a lock TTL that outlives one summarizing LLM call taking
// its full callBudget, plus a minute for the surrounding reads and writes.
func LockTTLFor(callBudget time.Duration) time.Duration {
	ttl := callBudget + time.Minute
	if ttl < DefaultCompactionLockTTL {
		return DefaultCompactionLockTTL
	}
	return ttl
}

var ErrEmptySummary = errors.New("llm returned an empty summary")

const maxRunErrorLen = 500

type CompactionResult struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	Status         string    `json:"status"`
	FromSeq        int64     `json:"from_seq"`
	ThroughSeq     int64     `json:"through_seq"`
	// SummarizedSeq is the watermark after the run.
	SummarizedSeq int64         `json:"summarized_seq"`
	Summary       string        `json:"summary,omitempty"`
	Duration      time.Duration `json:"duration"`
	// Shared is set when the result came from a fold already in flight.
	Shared bool `json:"shared,omitempty"`
}

func (s *service) MaybeCompact(ctx context.Context, conversationID uuid.UUID) (bool, error) {
	const op = "Chat.Memory.MaybeCompact"
	if conversationID == uuid.Nil {
		return false, domainagg.Validation(op, "missing conversation_id")
	}
	conv, err := s.repos.Conversations.GetByID(dbctx.Context{Ctx: ctx}, conversationID)
	if err != nil {
		return false, err
	}
	if conv == nil {
		return false, domainagg.NotFound(op, "conversation %s", conversationID)
	}
	if !s.policy.Due(conv) {
		return false, nil
	}
	d := s.currentDispatcher()
	task := CompactionTask{ConversationID: conv.ID, Source: d.Mode(), RequestedAt: s.now().UTC()}
	if err := d.Dispatch(ctx, task); err != nil {
		observability.Current().IncCompactionDispatch(d.Mode(), "error")
		s.log.Warn("compaction dispatch failed",
			"conversation_id", conv.ID.String(),
			"mode", d.Mode(),
			"error", err,
		)
		return false, nil
	}
	return true, nil
}

// Compact folds the newest window into the rolling summary. Concurrent calls
// for one conversation share a single fold.
func (s *service) Compact(ctx context.Context, task CompactionTask) (CompactionResult, error) {
	if task.ConversationID == uuid.Nil {
		return CompactionResult{}, domainagg.Validation("Chat.Memory.Compact", "missing conversation_id")
	}
	if task.Source == "" {
		task.Source = SourceManual
	}
	v, err, shared := s.flights.Do(task.ConversationID.String(), func() (interface{}, error) {
		return s.compact(ctx, task)
	})
	res, _ := v.(CompactionResult)
	res.Shared = shared
	return res, err
}

func (s *service) compact(ctx context.Context, task CompactionTask) (res CompactionResult, err error) {
	const op = "Chat.Memory.Compact"
	start := time.Now()
	res = CompactionResult{ConversationID: task.ConversationID}
	log := s.log.With("conversation_id", task.ConversationID.String(), "source", task.Source)

	ctx, span := observability.StartSpan(ctx, "memory.compact",
		attribute.String("chat.conversation_id", task.ConversationID.String()),
		attribute.String("compaction.source", task.Source),
	)
	defer func() {
		res.Duration = time.Since(start)
		span.SetAttributes(attribute.String("compaction.status", res.Status))
		observability.EndSpan(span, err)
		observability.Current().ObserveCompaction(task.Source, res.Status, res.Duration)
		if res.Status != types.CompactionStatusSkipped {
			s.recordRun(ctx, task, res, err)
		}
	}()

	release, acquired, lockErr := s.locker.Acquire(ctx, "compaction:"+task.ConversationID.String(), s.lockTTL)
	if lockErr != nil {
		// The watermark CAS still keeps the write monotonic.
		log.Warn("compaction lock unavailable, continuing unlocked", "error", lockErr)
	} else if !acquired {
		res.Status = types.CompactionStatusSkipped
		return res, nil
	} else {
		defer func() {
			if rerr := release(ctxutil.Detach(ctx)); rerr != nil {
				log.Warn("compaction lock release failed", "error", rerr)
			}
		}()
	}

	dbc := dbctx.Context{Ctx: ctx}
	conv, err := s.repos.Conversations.GetByID(dbc, task.ConversationID)
	if err != nil {
		res.Status = types.CompactionStatusFailed
		return res, err
	}
	if conv == nil {
		res.Status = types.CompactionStatusFailed
		return res, domainagg.NotFound(op, "conversation %s", task.ConversationID)
	}
	res.SummarizedSeq = conv.SummarizedSeq
	if conv.Backlog() == 0 {
		res.Status = types.CompactionStatusSkipped
		return res, nil
	}

	window, err := s.repos.Messages.ListRecent(dbc, conv.ID, s.policy.Window)
	if err != nil {
		res.Status = types.CompactionStatusFailed
		return res, err
	}
	if len(window) == 0 {
		res.Status = types.CompactionStatusSkipped
		return res, nil
	}
	res.FromSeq = window[0].Seq
	res.ThroughSeq = window[len(window)-1].Seq

	summary, llmErr := s.llm.Complete(ctx, SummaryPrompt(conv.Summary, window))
	summary = strings.TrimSpace(summary)
	if llmErr == nil && summary == "" {
		llmErr = ErrEmptySummary
	}
	if llmErr != nil {
		res.Status = types.CompactionStatusFailed
		failures := conv.CompactionFailures + 1
		if rec, ferr := s.conversations.RecordCompactionFailure(ctxutil.Detach(ctx), domainagg.RecordCompactionFailureInput{
			ConversationID: conv.ID,
			Cause:          llmErr.Error(),
			At:             s.now(),
		}); ferr != nil {
			log.Error("recording compaction failure failed", "error", ferr)
		} else {
			failures = rec.Failures
		}
		log.Warn("summary generation failed, keeping previous summary",
			"failures", failures,
			"through_seq", res.ThroughSeq,
			"error", llmErr,
		)
		return res, domainagg.NewError(domainagg.CodeRetryable, op, "summary generation failed", llmErr)
	}

	applied, err := s.conversations.ApplySummary(ctx, domainagg.ApplySummaryInput{
		ConversationID: conv.ID,
		Summary:        summary,
		ThroughSeq:     res.ThroughSeq,
		At:             s.now(),
	})
	if err != nil {
		res.Status = types.CompactionStatusFailed
		return res, err
	}
	res.SummarizedSeq = applied.SummarizedSeq
	if !applied.Applied {
		res.Status = types.CompactionStatusStale
		log.Info("stale summary discarded", "through_seq", res.ThroughSeq, "summarized_seq", applied.SummarizedSeq)
		return res, nil
	}
	res.Status = types.CompactionStatusApplied
	res.Summary = summary
	log.Info("summary updated", "from_seq", res.FromSeq, "through_seq", res.ThroughSeq)
	return res, nil
}

func (s *service) recordRun(ctx context.Context, task CompactionTask, res CompactionResult, runErr error) {
	if s.repos.CompactionRuns == nil {
		return
	}
	row := &types.CompactionRun{
		ConversationID: task.ConversationID,
		Status:         res.Status,
		Source:         task.Source,
		FromSeq:        res.FromSeq,
		ThroughSeq:     res.ThroughSeq,
		Provider:       s.provider,
		DurationMS:     res.Duration.Milliseconds(),
		CreatedAt:      s.now().UTC(),
	}
	if runErr != nil {
		row.Error = textutil.Truncate(runErr.Error(), maxRunErrorLen)
	}
	if _, err := s.repos.CompactionRuns.Create(dbctx.Context{Ctx: ctxutil.Detach(ctx)}, []*types.CompactionRun{row}); err != nil {
		s.log.Warn("recording compaction run failed", "conversation_id", task.ConversationID.String(), "error", err)
	}
}
