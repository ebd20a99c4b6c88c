// Package compaction runs rolling-summary folds off the request path: a
// bounded in-process queue and a cron sweeper that retries what was missed.
package compaction

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/yungbote/chatmemory-backend/internal/observability"
	"github.com/yungbote/chatmemory-backend/internal/platform/logger"
	"github.com/yungbote/chatmemory-backend/internal/services/memory"
)

var ErrQueueFull = errors.New("compaction queue full")

// Per-conversation state; absent means idle.
const (
	stateRunning uint8 = 1
	stateQueued  uint8 = 2 // running, and another fold is pending
)

// QueueDispatcher runs compactions on a fixed worker pool. A conversation is
// never folded by two workers at once; requests that arrive while one runs
// collapse into a single follow-up run.
type QueueDispatcher struct {
	log     *logger.Logger
	svc     memory.Service
	workers int

	tasks chan memory.CompactionTask

	mu    sync.Mutex
	state map[uuid.UUID]uint8

	wg      sync.WaitGroup
	started bool
}

func NewQueueDispatcher(log *logger.Logger, svc memory.Service, workers, capacity int) *QueueDispatcher {
	if workers <= 0 {
		workers = 2
	}
	if capacity <= 0 {
		capacity = 256
	}
	return &QueueDispatcher{
		log:     log.With("component", "CompactionQueue"),
		svc:     svc,
		workers: workers,
		tasks:   make(chan memory.CompactionTask, capacity),
		state:   map[uuid.UUID]uint8{},
	}
}

func (q *QueueDispatcher) Mode() string { return memory.SourceQueue }

// Start launches the workers. They drain until ctx is cancelled.
func (q *QueueDispatcher) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func(id int) {
			defer q.wg.Done()
			q.work(ctx, id)
		}(i)
	}
	q.log.Info("compaction workers started", "workers", q.workers, "capacity", cap(q.tasks))
}

// Wait blocks until every worker has exited.
func (q *QueueDispatcher) Wait() { q.wg.Wait() }

func (q *QueueDispatcher) Dispatch(ctx context.Context, task memory.CompactionTask) error {
	if task.ConversationID == uuid.Nil {
		return fmt.Errorf("compaction task: missing conversation_id")
	}
	if task.Source == "" {
		task.Source = memory.SourceQueue
	}

	q.mu.Lock()
	switch q.state[task.ConversationID] {
	case stateRunning:
		q.state[task.ConversationID] = stateQueued
		q.mu.Unlock()
		observability.Current().IncCompactionDispatch(q.Mode(), "coalesced")
		return nil
	case stateQueued:
		q.mu.Unlock()
		observability.Current().IncCompactionDispatch(q.Mode(), "coalesced")
		return nil
	}
	q.state[task.ConversationID] = stateRunning
	q.mu.Unlock()

	select {
	case q.tasks <- task:
		observability.Current().IncCompactionDispatch(q.Mode(), "accepted")
		return nil
	default:
		q.mu.Lock()
		delete(q.state, task.ConversationID)
		q.mu.Unlock()
		observability.Current().IncCompactionDispatch(q.Mode(), "rejected")
		return ErrQueueFull
	}
}

func (q *QueueDispatcher) work(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-q.tasks:
			q.runUntilIdle(ctx, id, task)
		}
	}
}

// runUntilIdle folds once, then again for as long as new requests were
// coalesced during the previous run.
func (q *QueueDispatcher) runUntilIdle(ctx context.Context, id int, task memory.CompactionTask) {
	for {
		q.runOne(ctx, id, task)

		q.mu.Lock()
		if q.state[task.ConversationID] == stateQueued && ctx.Err() == nil {
			q.state[task.ConversationID] = stateRunning
			q.mu.Unlock()
			continue
		}
		delete(q.state, task.ConversationID)
		q.mu.Unlock()
		return
	}
}

func (q *QueueDispatcher) runOne(ctx context.Context, id int, task memory.CompactionTask) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("compaction panic",
				"worker", id,
				"conversation_id", task.ConversationID.String(),
				"panic", r,
			)
		}
	}()
	res, err := q.svc.Compact(ctx, task)
	if err != nil {
		q.log.Warn("queued compaction failed",
			"worker", id,
			"conversation_id", task.ConversationID.String(),
			"status", res.Status,
			"error", err,
		)
		return
	}
	q.log.Debug("queued compaction done",
		"worker", id,
		"conversation_id", task.ConversationID.String(),
		"status", res.Status,
		"through_seq", res.ThroughSeq,
	)
}
