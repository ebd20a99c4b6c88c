package db

import (
	"fmt"

	types "github.com/yungbote/chatmemory-backend/internal/domain"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(types.Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return EnsureChatIndexes(db)
}

// EnsureChatIndexes adds indexes gorm tags cannot express. Both postgres and
// sqlite accept expression indexes with a WHERE clause.
func EnsureChatIndexes(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_chat_conversation_backlog
		ON chat_conversation ((next_seq - summarized_seq))
		WHERE next_seq > summarized_seq;
	`).Error; err != nil {
		return fmt.Errorf("create idx_chat_conversation_backlog: %w", err)
	}
	return nil
}
