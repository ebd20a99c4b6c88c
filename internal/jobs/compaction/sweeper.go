package compaction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/yungbote/chatmemory-backend/internal/data/repos"
	types "github.com/yungbote/chatmemory-backend/internal/domain"
	"github.com/yungbote/chatmemory-backend/internal/pkg/dbctx"
	"github.com/yungbote/chatmemory-backend/internal/platform/logger"
	"github.com/yungbote/chatmemory-backend/internal/services/memory"
)

const DefaultSweepSpec = "@every 1m"

type SweepResult struct {
	Scanned  int `json:"scanned"`
	Deferred int `json:"deferred"`
	Applied  int `json:"applied"`
	Failed   int `json:"failed"`
	Other    int `json:"other"`
}

// Sweeper periodically folds conversations that are still behind: missed
// dispatches, crashed workers, and failures whose backoff has elapsed.
type Sweeper struct {
	log   *logger.Logger
	svc   memory.Service
	convs repos.ConversationRepo
	batch int
	now   func() time.Time

	cron *cron.Cron
}

func NewSweeper(log *logger.Logger, svc memory.Service, convs repos.ConversationRepo, batch int) (*Sweeper, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if svc == nil || convs == nil {
		return nil, fmt.Errorf("memory service and conversation repo required")
	}
	if batch <= 0 {
		batch = 50
	}
	return &Sweeper{
		log:   log.With("component", "CompactionSweeper"),
		svc:   svc,
		convs: convs,
		batch: batch,
		now:   time.Now,
	}, nil
}

// Start schedules RunOnce on spec (standard cron or @every) until ctx ends.
func (s *Sweeper) Start(ctx context.Context, spec string) error {
	if strings.TrimSpace(spec) == "" {
		spec = DefaultSweepSpec
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(spec, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			s.log.Warn("compaction sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("compaction sweep spec %q: %w", spec, err)
	}
	s.cron = c
	c.Start()
	s.log.Info("compaction sweeper started", "spec", spec)
	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return nil
}

// maxSweepPages bounds how far one sweep pages past deferred conversations.
const maxSweepPages = 5

func (s *Sweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	var out SweepResult
	p := s.svc.Policy()
	now := s.now()
	ready, err := s.collect(ctx, p, now, &out)
	if err != nil {
		return out, err
	}
	for _, conv := range ready {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		res, err := s.svc.Compact(ctx, memory.CompactionTask{
			ConversationID: conv.ID,
			Source:         memory.SourceSweep,
			RequestedAt:    now.UTC(),
		})
		switch {
		case err != nil:
			out.Failed++
		case res.Status == types.CompactionStatusApplied:
			out.Applied++
		default:
			out.Other++
		}
	}
	if out.Scanned > 0 {
		s.log.Info("compaction sweep",
			"scanned", out.Scanned,
			"deferred", out.Deferred,
			"applied", out.Applied,
			"failed", out.Failed,
		)
	}
	return out, nil
}

// collect pages through due conversations until batch of them are past their
// backoff. Pages are read before any compaction so offsets stay stable.
func (s *Sweeper) collect(ctx context.Context, p memory.Policy, now time.Time, out *SweepResult) ([]*types.Conversation, error) {
	ready := make([]*types.Conversation, 0, s.batch)
	for page := 0; page < maxSweepPages && len(ready) < s.batch; page++ {
		rows, err := s.convs.ListCompactionDue(dbctx.Context{Ctx: ctx}, repos.CompactionDueQuery{
			MinTotal:    int64(p.Threshold),
			MinBacklog:  int64(p.ReArmBacklog),
			RetryCutoff: now.Add(-p.BackoffBase),
			Limit:       s.batch,
			Offset:      page * s.batch,
		})
		if err != nil {
			return nil, err
		}
		for _, conv := range rows {
			out.Scanned++
			if !p.RetryReady(conv, now) {
				out.Deferred++
				continue
			}
			if len(ready) < s.batch {
				ready = append(ready, conv)
			}
		}
		if len(rows) < s.batch {
			break
		}
	}
	return ready, nil
}
