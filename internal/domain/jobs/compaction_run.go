package jobs

import (
	"time"

	"github.com/google/uuid"
)

const (
	CompactionStatusApplied = "applied"
	CompactionStatusStale   = "stale"
	CompactionStatusFailed  = "failed"
	CompactionStatusSkipped = "skipped"
)

// CompactionRun records one attempt to refresh a conversation summary.
type CompactionRun struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID uuid.UUID `gorm:"type:uuid;not null;index:idx_compaction_run_conversation,priority:1" json:"conversation_id"`

	Status string `gorm:"column:status;not null;index" json:"status"`
	Source string `gorm:"column:source;not null;default:''" json:"source"`

	FromSeq    int64 `gorm:"column:from_seq;not null;default:0" json:"from_seq"`
	ThroughSeq int64 `gorm:"column:through_seq;not null;default:0" json:"through_seq"`

	Provider   string `gorm:"column:provider;not null;default:''" json:"provider,omitempty"`
	DurationMS int64  `gorm:"column:duration_ms;not null;default:0" json:"duration_ms"`
	Error      string `gorm:"column:error;type:text;not null;default:''" json:"error,omitempty"`

	CreatedAt time.Time `gorm:"not null;index:idx_compaction_run_conversation,priority:2" json:"created_at"`
}

func (CompactionRun) TableName() string { return "chat_compaction_run" }
