package repos

import (
	"github.com/yungbote/chatmemory-backend/internal/data/repos/chat"
	"github.com/yungbote/chatmemory-backend/internal/data/repos/jobs"
	"github.com/yungbote/chatmemory-backend/internal/data/repos/user"
	"github.com/yungbote/chatmemory-backend/internal/platform/logger"
	"gorm.io/gorm"
)

type UserRepo = user.UserRepo

type ConversationRepo = chat.ConversationRepo
type MessageRepo = chat.MessageRepo
type CompactionDueQuery = chat.CompactionDueQuery

type CompactionRunRepo = jobs.CompactionRunRepo

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo { return user.NewUserRepo(db, baseLog) }

func NewConversationRepo(db *gorm.DB, baseLog *logger.Logger) ConversationRepo {
	return chat.NewConversationRepo(db, baseLog)
}
func NewMessageRepo(db *gorm.DB, baseLog *logger.Logger) MessageRepo {
	return chat.NewMessageRepo(db, baseLog)
}

func NewCompactionRunRepo(db *gorm.DB, baseLog *logger.Logger) CompactionRunRepo {
	return jobs.NewCompactionRunRepo(db, baseLog)
}

// Set bundles every repo over one *gorm.DB.
type Set struct {
	Users          UserRepo
	Conversations  ConversationRepo
	Messages       MessageRepo
	CompactionRuns CompactionRunRepo
}

func NewSet(db *gorm.DB, baseLog *logger.Logger) Set {
	return Set{
		Users:          NewUserRepo(db, baseLog),
		Conversations:  NewConversationRepo(db, baseLog),
		Messages:       NewMessageRepo(db, baseLog),
		CompactionRuns: NewCompactionRunRepo(db, baseLog),
	}
}
