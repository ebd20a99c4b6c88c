package memory

import (
	"time"

	types "github.com/yungbote/chatmemory-backend/internal/domain"
	"github.com/yungbote/chatmemory-backend/internal/pkg/httpx"
)

// Policy decides when a conversation summary is refreshed.
type Policy struct {
	// Threshold is the message count that must be exceeded before the first fold.
	Threshold int
	// Window is how many of the newest messages each fold reads.
	Window int
	// ReArmBacklog is the unsummarized backlog that makes a fold due again.
	ReArmBacklog int
	// HistoryLimit is the recent-turn window handed to the agent.
	HistoryLimit int

	BackoffBase time.Duration
	BackoffMax  time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		Threshold:    10,
		Window:       5,
		ReArmBacklog: 4,
		HistoryLimit: 10,
		BackoffBase:  30 * time.Second,
		BackoffMax:   30 * time.Minute,
	}
}

// Normalize fills zero fields from DefaultPolicy and keeps the re-arm
// backlog below the window so consecutive folds overlap.
func (p Policy) Normalize() Policy {
	d := DefaultPolicy()
	if p.Threshold <= 0 {
		p.Threshold = d.Threshold
	}
	if p.Window <= 0 {
		p.Window = d.Window
	}
	if p.ReArmBacklog <= 0 || p.ReArmBacklog >= p.Window {
		p.ReArmBacklog = p.Window - 1
	}
	if p.ReArmBacklog <= 0 {
		p.ReArmBacklog = 1
	}
	if p.HistoryLimit <= 0 {
		p.HistoryLimit = d.HistoryLimit
	}
	if p.BackoffBase <= 0 {
		p.BackoffBase = d.BackoffBase
	}
	if p.BackoffMax < p.BackoffBase {
		p.BackoffMax = d.BackoffMax
		if p.BackoffMax < p.BackoffBase {
			p.BackoffMax = p.BackoffBase
		}
	}
	return p
}

// Due reports whether conv needs a fold. The message count is next_seq since
// seqs are dense from 1.
func (p Policy) Due(conv *types.Conversation) bool {
	if conv == nil {
		return false
	}
	return conv.NextSeq > int64(p.Threshold) && conv.Backlog() >= int64(p.ReArmBacklog)
}

// RetryAfter is the wait before a conversation with failures is retried by
// the sweeper.
func (p Policy) RetryAfter(failures int) time.Duration {
	if failures <= 0 {
		return 0
	}
	return httpx.Backoff(p.BackoffBase, p.BackoffMax, failures)
}

// RetryReady reports whether the backoff after the last failed attempt has elapsed.
func (p Policy) RetryReady(conv *types.Conversation, now time.Time) bool {
	if conv == nil {
		return false
	}
	if conv.CompactionFailures == 0 || conv.CompactionAttemptedAt == nil {
		return true
	}
	return !now.Before(conv.CompactionAttemptedAt.Add(p.RetryAfter(conv.CompactionFailures)))
}
