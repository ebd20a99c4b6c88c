package compactionwf

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/chatmemory-backend/internal/observability"
	"github.com/yungbote/chatmemory-backend/internal/platform/logger"
	"github.com/yungbote/chatmemory-backend/internal/services/memory"
)

// Dispatcher starts one workflow per conversation. A request that arrives
// while the conversation's workflow is open joins it instead of starting a
// second fold.
type Dispatcher struct {
	log       *logger.Logger
	tc        temporalsdkclient.Client
	taskQueue string
}

func NewDispatcher(log *logger.Logger, tc temporalsdkclient.Client, taskQueue string) (*Dispatcher, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	if taskQueue == "" {
		return nil, fmt.Errorf("temporal task queue required")
	}
	return &Dispatcher{log: log.With("dispatcher", "temporal"), tc: tc, taskQueue: taskQueue}, nil
}

func (d *Dispatcher) Mode() string { return memory.SourceTemporal }

func (d *Dispatcher) Dispatch(ctx context.Context, task memory.CompactionTask) error {
	if task.ConversationID == uuid.Nil {
		return fmt.Errorf("compaction task: missing conversation_id")
	}
	if task.Source == "" {
		task.Source = memory.SourceTemporal
	}
	id := task.ConversationID.String()
	run, err := d.tc.ExecuteWorkflow(ctx, temporalsdkclient.StartWorkflowOptions{
		ID:                       WorkflowID(id),
		TaskQueue:                d.taskQueue,
		WorkflowIDConflictPolicy: enumspb.WORKFLOW_ID_CONFLICT_POLICY_USE_EXISTING,
		WorkflowIDReusePolicy:    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
	}, WorkflowName, Input{ConversationID: id, Source: task.Source})
	if err != nil {
		observability.Current().IncCompactionDispatch(d.Mode(), "error")
		return fmt.Errorf("start compaction workflow: %w", err)
	}
	observability.Current().IncCompactionDispatch(d.Mode(), "accepted")
	d.log.Debug("compaction workflow started", "workflow_id", run.GetID(), "run_id", run.GetRunID())
	return nil
}
