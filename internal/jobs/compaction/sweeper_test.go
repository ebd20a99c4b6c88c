package compaction

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	dataagg "github.com/yungbote/chatmemory-backend/internal/data/aggregates"
	"github.com/yungbote/chatmemory-backend/internal/data/repos"
	repotest "github.com/yungbote/chatmemory-backend/internal/data/repos/testutil"
	types "github.com/yungbote/chatmemory-backend/internal/domain"
	"github.com/yungbote/chatmemory-backend/internal/pkg/dbctx"
	"github.com/yungbote/chatmemory-backend/internal/platform/llm/llmtest"
	"github.com/yungbote/chatmemory-backend/internal/services/memory"
)

// parkedDispatcher accepts tasks and never runs them, like a crashed worker.
type parkedDispatcher struct{ tasks []memory.CompactionTask }

func (p *parkedDispatcher) Mode() string { return "parked" }
func (p *parkedDispatcher) Dispatch(ctx context.Context, task memory.CompactionTask) error {
	p.tasks = append(p.tasks, task)
	return nil
}

type sweepFixture struct {
	repos repos.Set
	llm   *llmtest.Stub
	svc   memory.Service
	sw    *Sweeper
}

func newSweepFixture(t *testing.T) *sweepFixture {
	t.Helper()
	db := repotest.DB(t)
	log := repotest.Logger(t)
	set := repos.NewSet(db, log)
	base := dataagg.BaseDeps{DB: db, Log: log}
	stub := &llmtest.Stub{Reply: "folded"}
	svc, err := memory.New(memory.Deps{
		Log:      log,
		Repos:    set,
		Identity: dataagg.NewIdentityAggregate(dataagg.IdentityAggregateDeps{Base: base, Users: set.Users}),
		Conversations: dataagg.NewConversationAggregate(dataagg.ConversationAggregateDeps{
			Base: base, Users: set.Users, Conversations: set.Conversations, Messages: set.Messages,
		}),
		LLM:        stub,
		Provider:   "stub",
		Policy:     memory.DefaultPolicy(),
		Dispatcher: &parkedDispatcher{},
	})
	if err != nil {
		t.Fatalf("memory.New: %v", err)
	}
	sw, err := NewSweeper(log, svc, set.Conversations, 10)
	if err != nil {
		t.Fatalf("NewSweeper: %v", err)
	}
	return &sweepFixture{repos: set, llm: stub, svc: svc, sw: sw}
}

func (f *sweepFixture) seed(t *testing.T, guest string, n int) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	u, err := f.svc.Resolve(ctx, memory.ResolveInput{Identifier: types.OpaqueIdentifier(guest)})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	conv, err := f.svc.Locate(ctx, u.ID, types.ChannelWeb)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	for i := 1; i <= n; i++ {
		sender := types.SenderUser
		if i%2 == 0 {
			sender = types.SenderAgent
		}
		if _, err := f.svc.Append(ctx, memory.AppendInput{
			ConversationID: conv.ID,
			Sender:         sender,
			Content:        fmt.Sprintf("turn %d", i),
		}); err != nil {
			t.Fatalf("Append: %v", err)
		}
		if _, err := f.svc.MaybeCompact(ctx, conv.ID); err != nil {
			t.Fatalf("MaybeCompact: %v", err)
		}
	}
	return conv.ID
}

func (f *sweepFixture) conversation(t *testing.T, id uuid.UUID) *types.Conversation {
	t.Helper()
	conv, err := f.repos.Conversations.GetByID(dbctx.Context{Ctx: context.Background()}, id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	return conv
}

func TestSweepFoldsMissedDispatches(t *testing.T) {
	f := newSweepFixture(t)
	behind := f.seed(t, "guest-behind", 12)
	short := f.seed(t, "guest-short", 6)

	res, err := f.sw.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if res.Scanned != 1 || res.Applied != 1 {
		t.Fatalf("sweep: %+v", res)
	}
	if conv := f.conversation(t, behind); conv.SummarizedSeq != 12 || conv.Summary != "folded" {
		t.Fatalf("behind: summary=%q through %d", conv.Summary, conv.SummarizedSeq)
	}
	if conv := f.conversation(t, short); conv.SummarizedSeq != 0 {
		t.Fatalf("short conversation was folded through %d", conv.SummarizedSeq)
	}

	runs, err := f.repos.CompactionRuns.ListByConversation(dbctx.Context{Ctx: context.Background()}, behind, 10)
	if err != nil {
		t.Fatalf("ListByConversation: %v", err)
	}
	if len(runs) != 1 || runs[0].Source != memory.SourceSweep {
		t.Fatalf("runs: %+v", runs)
	}

	res, err = f.sw.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce again: %v", err)
	}
	if res.Scanned != 0 {
		t.Fatalf("second sweep should find nothing: %+v", res)
	}
}

func TestSweepBacksOffAfterFailure(t *testing.T) {
	f := newSweepFixture(t)
	id := f.seed(t, "guest-flaky", 12)
	f.llm.Err = errors.New("llm down")

	res, err := f.sw.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if res.Failed != 1 {
		t.Fatalf("sweep: %+v", res)
	}
	if conv := f.conversation(t, id); conv.CompactionFailures != 1 {
		t.Fatalf("failures: want=1 got=%d", conv.CompactionFailures)
	}

	res, err = f.sw.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce deferred: %v", err)
	}
	if res.Applied != 0 || res.Failed != 0 || f.llm.CallCount() != 1 {
		t.Fatalf("backoff not honoured: %+v calls=%d", res, f.llm.CallCount())
	}

	f.llm.Err = nil
	f.sw.now = func() time.Time { return time.Now().Add(time.Hour) }
	res, err = f.sw.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce retry: %v", err)
	}
	if res.Applied != 1 {
		t.Fatalf("retry: %+v", res)
	}
	if conv := f.conversation(t, id); conv.CompactionFailures != 0 || conv.SummarizedSeq != 12 {
		t.Fatalf("after retry: failures=%d through=%d", conv.CompactionFailures, conv.SummarizedSeq)
	}
}

func (f *sweepFixture) backOff(t *testing.T, id uuid.UUID, failures int, ago time.Duration) {
	t.Helper()
	if err := f.repos.Conversations.UpdateFields(dbctx.Context{Ctx: context.Background()}, id, map[string]interface{}{
		"compaction_failures":     failures,
		"compaction_attempted_at": time.Now().Add(-ago).UTC(),
	}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
}

func TestSweepBackedOffConversationsDoNotStarveFreshOnes(t *testing.T) {
	cases := []struct {
		name     string
		failures int
		ago      time.Duration
	}{
		// Inside the base backoff: filtered out by the query.
		{name: "recent failure", failures: 1, ago: time.Second},
		// Past the base backoff but inside its own: listed, then deferred.
		{name: "repeated failures", failures: 3, ago: time.Minute},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newSweepFixture(t)
			flaky := f.seed(t, "guest-flaky", 12)
			fresh := f.seed(t, "guest-fresh", 12)
			f.backOff(t, flaky, tc.failures, tc.ago)

			sw, err := NewSweeper(repotest.Logger(t), f.svc, f.repos.Conversations, 1)
			if err != nil {
				t.Fatalf("NewSweeper: %v", err)
			}
			res, err := sw.RunOnce(context.Background())
			if err != nil {
				t.Fatalf("RunOnce: %v", err)
			}
			if res.Applied != 1 {
				t.Fatalf("sweep: %+v", res)
			}
			if conv := f.conversation(t, fresh); conv.SummarizedSeq != 12 {
				t.Fatalf("fresh conversation starved: through %d", conv.SummarizedSeq)
			}
			if conv := f.conversation(t, flaky); conv.SummarizedSeq != 0 {
				t.Fatalf("backed-off conversation folded early: through %d", conv.SummarizedSeq)
			}
		})
	}
}

func TestSweepPagesPastDeferredConversations(t *testing.T) {
	f := newSweepFixture(t)
	waiting := f.seed(t, "guest-waiting", 12)
	ready := f.seed(t, "guest-ready", 12)
	f.backOff(t, waiting, 2, 40*time.Second)
	f.backOff(t, ready, 2, 5*time.Minute)

	sw, err := NewSweeper(repotest.Logger(t), f.svc, f.repos.Conversations, 1)
	if err != nil {
		t.Fatalf("NewSweeper: %v", err)
	}
	res, err := sw.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if res.Applied != 1 {
		t.Fatalf("sweep: %+v", res)
	}
	if conv := f.conversation(t, ready); conv.SummarizedSeq != 12 || conv.CompactionFailures != 0 {
		t.Fatalf("ready: failures=%d through=%d", conv.CompactionFailures, conv.SummarizedSeq)
	}
	if conv := f.conversation(t, waiting); conv.SummarizedSeq != 0 {
		t.Fatalf("waiting conversation folded inside its backoff: through %d", conv.SummarizedSeq)
	}
}

func TestSweeperRejectsBadSpec(t *testing.T) {
	f := newSweepFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := f.sw.Start(ctx, "not a cron spec"); err == nil {
		t.Fatalf("expected spec error")
	}
	if err := f.sw.Start(ctx, "@every 1h"); err != nil {
		t.Fatalf("Start: %v", err)
	}
}
