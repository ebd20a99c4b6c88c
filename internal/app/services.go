package app

import (
	"fmt"

	"github.com/yungbote/chatmemory-backend/internal/jobs/compaction"
	"github.com/yungbote/chatmemory-backend/internal/platform/logger"
	"github.com/yungbote/chatmemory-backend/internal/services"
	"github.com/yungbote/chatmemory-backend/internal/services/agents"
	"github.com/yungbote/chatmemory-backend/internal/services/memory"
	"github.com/yungbote/chatmemory-backend/internal/temporalx/compactionwf"
)

type Services struct {
	Memory memory.Service
	Agents agents.Router
	Chat   services.ChatService

	// Queue is set only for COMPACTION_DISPATCH=queue.
	Queue   *compaction.QueueDispatcher
	Sweeper *compaction.Sweeper
}

func wireServices(log *logger.Logger, cfg Config, r Repos, c Clients) (Services, error) {
	log.Info("Wiring services...")
	var out Services

	deps := memory.Deps{
		Log:           log,
		Repos:         r.Set,
		Identity:      r.IdentityAggregate,
		Conversations: r.ConversationAggregate,
		LLM:           c.LLM,
		Provider:      c.LLMProvider,
		Policy:        cfg.Policy,
		LockTTL:       memory.LockTTLFor(c.LLMBudget),
	}
	if c.Locker != nil {
		deps.Locker = c.Locker
	}
	mem, err := memory.New(deps)
	if err != nil {
		return out, fmt.Errorf("init memory service: %w", err)
	}
	out.Memory = mem

	switch cfg.CompactionDispatch {
	case DispatchInline, "":
	case DispatchQueue:
		out.Queue = compaction.NewQueueDispatcher(log, mem, cfg.CompactionWorkers, cfg.CompactionQueueSize)
		memory.SetDispatcher(mem, out.Queue)
	case DispatchTemporal:
		d, err := compactionwf.NewDispatcher(log, c.Temporal, cfg.Temporal.TaskQueue)
		if err != nil {
			return out, fmt.Errorf("init temporal compaction dispatcher: %w", err)
		}
		memory.SetDispatcher(mem, d)
	default:
		return out, fmt.Errorf("unknown COMPACTION_DISPATCH %q", cfg.CompactionDispatch)
	}
	log.Info("compaction dispatch configured", "mode", cfg.CompactionDispatch)

	sweeper, err := compaction.NewSweeper(log, mem, r.Conversations, cfg.CompactionSweepBatch)
	if err != nil {
		return out, fmt.Errorf("init compaction sweeper: %w", err)
	}
	out.Sweeper = sweeper

	personas, err := agents.LoadPersonas(cfg.AgentPersonasPath)
	if err != nil {
		return out, fmt.Errorf("load agent personas: %w", err)
	}
	router, err := agents.NewRouter(log, c.LLM, personas)
	if err != nil {
		return out, fmt.Errorf("init agent router: %w", err)
	}
	out.Agents = router

	chat, err := services.NewChatService(log, mem, router)
	if err != nil {
		return out, fmt.Errorf("init chat service: %w", err)
	}
	out.Chat = chat
	return out, nil
}
