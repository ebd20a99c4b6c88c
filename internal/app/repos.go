package app

import (
	"gorm.io/gorm"

	dataagg "github.com/yungbote/chatmemory-backend/internal/data/aggregates"
	"github.com/yungbote/chatmemory-backend/internal/data/repos"
	domainagg "github.com/yungbote/chatmemory-backend/internal/domain/aggregates"
	"github.com/yungbote/chatmemory-backend/internal/observability"
	"github.com/yungbote/chatmemory-backend/internal/platform/logger"
)

type Repos struct {
	repos.Set

	IdentityAggregate     domainagg.IdentityAggregate
	ConversationAggregate domainagg.ConversationAggregate
}

func wireRepos(db *gorm.DB, log *logger.Logger, metrics *observability.Metrics) Repos {
	log.Info("Wiring repos...")
	set := repos.NewSet(db, log)
	base := dataagg.BaseDeps{DB: db, Log: log, Hooks: dataagg.NewObservabilityHooks(metrics)}
	return Repos{
		Set:               set,
		IdentityAggregate: dataagg.NewIdentityAggregate(dataagg.IdentityAggregateDeps{Base: base, Users: set.Users}),
		ConversationAggregate: dataagg.NewConversationAggregate(dataagg.ConversationAggregateDeps{
			Base:          base,
			Users:         set.Users,
			Conversations: set.Conversations,
			Messages:      set.Messages,
		}),
	}
}
