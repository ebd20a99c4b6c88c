package compactionwf

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	domainagg "github.com/yungbote/chatmemory-backend/internal/domain/aggregates"
	"github.com/yungbote/chatmemory-backend/internal/services/memory"
)

// fakeMemory answers Compact from a scripted list of errors.
type fakeMemory struct {
	memory.Service

	errs  []error
	calls int
	tasks []memory.CompactionTask
}

func (f *fakeMemory) Compact(ctx context.Context, task memory.CompactionTask) (memory.CompactionResult, error) {
	f.calls++
	f.tasks = append(f.tasks, task)
	if len(f.errs) >= f.calls && f.errs[f.calls-1] != nil {
		return memory.CompactionResult{Status: "failed"}, f.errs[f.calls-1]
	}
	return memory.CompactionResult{Status: "applied", ThroughSeq: 12, SummarizedSeq: 12}, nil
}

func newEnv(t *testing.T, mem *fakeMemory) *testsuite.TestWorkflowEnvironment {
	t.Helper()
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	acts := &Activities{Memory: mem}
	env.RegisterActivityWithOptions(acts.Compact, activity.RegisterOptions{Name: ActivityCompact})
	return env
}

func TestWorkflowApplies(t *testing.T) {
	mem := &fakeMemory{}
	env := newEnv(t, mem)
	id := uuid.NewString()
	env.ExecuteWorkflow(Workflow, Input{ConversationID: id, Source: memory.SourceTemporal})
	if !env.IsWorkflowCompleted() {
		t.Fatalf("workflow not completed")
	}
	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("workflow error: %v", err)
	}
	var out Result
	if err := env.GetWorkflowResult(&out); err != nil {
		t.Fatalf("GetWorkflowResult: %v", err)
	}
	if out.Status != "applied" || out.SummarizedSeq != 12 {
		t.Fatalf("result: %+v", out)
	}
	if mem.tasks[0].ConversationID.String() != id || mem.tasks[0].Source != memory.SourceTemporal {
		t.Fatalf("task: %+v", mem.tasks[0])
	}
}

func TestWorkflowRetriesTransientFailures(t *testing.T) {
	transient := domainagg.NewError(domainagg.CodeRetryable, "Chat.Memory.Compact", "summary generation failed", errors.New("llm 503"))
	mem := &fakeMemory{errs: []error{transient, transient}}
	env := newEnv(t, mem)
	env.ExecuteWorkflow(Workflow, Input{ConversationID: uuid.NewString()})
	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("workflow error: %v", err)
	}
	if mem.calls != 3 {
		t.Fatalf("attempts: want=3 got=%d", mem.calls)
	}
}

func TestWorkflowGivesUpAfterMaxAttempts(t *testing.T) {
	transient := errors.New("llm down")
	mem := &fakeMemory{errs: []error{transient, transient, transient, transient}}
	env := newEnv(t, mem)
	env.ExecuteWorkflow(Workflow, Input{ConversationID: uuid.NewString()})
	if err := env.GetWorkflowError(); err == nil {
		t.Fatalf("expected workflow failure")
	}
	if mem.calls != maxAttempts {
		t.Fatalf("attempts: want=%d got=%d", maxAttempts, mem.calls)
	}
}

func TestWorkflowDoesNotRetryMissingConversation(t *testing.T) {
	mem := &fakeMemory{errs: []error{domainagg.NotFound("Chat.Memory.Compact", "conversation gone")}}
	env := newEnv(t, mem)
	env.ExecuteWorkflow(Workflow, Input{ConversationID: uuid.NewString()})
	err := env.GetWorkflowError()
	var appErr *temporal.ApplicationError
	if !errors.As(err, &appErr) || appErr.Type() != ErrTypeNonRetryable {
		t.Fatalf("want non-retryable application error, got %v", err)
	}
	if mem.calls != 1 {
		t.Fatalf("attempts: want=1 got=%d", mem.calls)
	}
}

func TestWorkflowRejectsBadInput(t *testing.T) {
	mem := &fakeMemory{}
	env := newEnv(t, mem)
	env.ExecuteWorkflow(Workflow, Input{ConversationID: "not-a-uuid"})
	if err := env.GetWorkflowError(); err == nil {
		t.Fatalf("expected failure for invalid id")
	}
	if mem.calls != 0 {
		t.Fatalf("memory should not be called: %d", mem.calls)
	}
}
