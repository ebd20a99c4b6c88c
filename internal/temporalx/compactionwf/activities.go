package compactionwf

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	domainagg "github.com/yungbote/chatmemory-backend/internal/domain/aggregates"
	"github.com/yungbote/chatmemory-backend/internal/platform/logger"
	"github.com/yungbote/chatmemory-backend/internal/services/memory"
)

type Activities struct {
	Log    *logger.Logger
	Memory memory.Service
}

func (a *Activities) Compact(ctx context.Context, in Input) (Result, error) {
	var out Result
	if a == nil || a.Memory == nil {
		return out, fmt.Errorf("compactionwf: activity not configured")
	}
	id, err := uuid.Parse(in.ConversationID)
	if err != nil || id == uuid.Nil {
		return out, temporal.NewNonRetryableApplicationError("invalid conversation_id", ErrTypeNonRetryable, err)
	}
	source := in.Source
	if source == "" {
		source = memory.SourceTemporal
	}

	res, err := a.Memory.Compact(ctx, memory.CompactionTask{
		ConversationID: id,
		Source:         source,
		RequestedAt:    activity.GetInfo(ctx).StartedTime,
	})
	out = Result{Status: res.Status, ThroughSeq: res.ThroughSeq, SummarizedSeq: res.SummarizedSeq}
	if err == nil {
		return out, nil
	}
	switch domainagg.CodeOf(err) {
	case domainagg.CodeValidation, domainagg.CodeNotFound:
		return out, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeNonRetryable, err)
	}
	if a.Log != nil {
		a.Log.Warn("compaction attempt failed",
			"conversation_id", in.ConversationID,
			"attempt", activity.GetInfo(ctx).Attempt,
			"error", err,
		)
	}
	return out, err
}
