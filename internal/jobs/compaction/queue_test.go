package compaction

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/chatmemory-backend/internal/platform/logger"
	"github.com/yungbote/chatmemory-backend/internal/services/memory"
)

// blockingService runs Compact until release is closed.
type blockingService struct {
	memory.Service

	release chan struct{}
	started chan uuid.UUID
	calls   atomic.Int32

	mu      sync.Mutex
	active  map[uuid.UUID]int
	overlap bool
}

func newBlockingService() *blockingService {
	return &blockingService{
		release: make(chan struct{}),
		started: make(chan uuid.UUID, 16),
		active:  map[uuid.UUID]int{},
	}
}

func (b *blockingService) Compact(ctx context.Context, task memory.CompactionTask) (memory.CompactionResult, error) {
	b.calls.Add(1)
	b.mu.Lock()
	b.active[task.ConversationID]++
	if b.active[task.ConversationID] > 1 {
		b.overlap = true
	}
	b.mu.Unlock()
	b.started <- task.ConversationID
	<-b.release
	b.mu.Lock()
	b.active[task.ConversationID]--
	b.mu.Unlock()
	return memory.CompactionResult{ConversationID: task.ConversationID, Status: "applied"}, nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestQueueCoalescesPerConversation(t *testing.T) {
	svc := newBlockingService()
	q := NewQueueDispatcher(logger.Nop(), svc, 4, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	id := uuid.New()
	if err := q.Dispatch(ctx, memory.CompactionTask{ConversationID: id}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	<-svc.started
	// Arrivals during the run collapse into one follow-up.
	for i := 0; i < 5; i++ {
		if err := q.Dispatch(ctx, memory.CompactionTask{ConversationID: id}); err != nil {
			t.Fatalf("Dispatch %d: %v", i, err)
		}
	}
	close(svc.release)
	waitFor(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return len(q.state) == 0
	})
	if got := svc.calls.Load(); got != 2 {
		t.Fatalf("compact calls: want=2 got=%d", got)
	}
	if svc.overlap {
		t.Fatalf("one conversation was folded by two workers at once")
	}
}

func TestQueueRunsConversationsInParallel(t *testing.T) {
	svc := newBlockingService()
	q := NewQueueDispatcher(logger.Nop(), svc, 2, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	a, b := uuid.New(), uuid.New()
	_ = q.Dispatch(ctx, memory.CompactionTask{ConversationID: a})
	_ = q.Dispatch(ctx, memory.CompactionTask{ConversationID: b})
	seen := map[uuid.UUID]bool{<-svc.started: true, <-svc.started: true}
	if !seen[a] || !seen[b] {
		t.Fatalf("both conversations should be running: %v", seen)
	}
	close(svc.release)
}

func TestQueueRejectsWhenFull(t *testing.T) {
	svc := newBlockingService()
	// Not started: nothing drains the buffer.
	q := NewQueueDispatcher(logger.Nop(), svc, 1, 1)
	ctx := context.Background()
	if err := q.Dispatch(ctx, memory.CompactionTask{ConversationID: uuid.New()}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	id := uuid.New()
	if err := q.Dispatch(ctx, memory.CompactionTask{ConversationID: id}); err != ErrQueueFull {
		t.Fatalf("want ErrQueueFull, got %v", err)
	}
	q.mu.Lock()
	_, tracked := q.state[id]
	q.mu.Unlock()
	if tracked {
		t.Fatalf("rejected task left state behind")
	}
	if err := q.Dispatch(ctx, memory.CompactionTask{}); err == nil {
		t.Fatalf("expected missing id error")
	}
}
