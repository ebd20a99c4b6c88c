package chat

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	ChannelWeb      = "web"
	ChannelWhatsApp = "whatsapp"
)

// Conversation scopes the message exchange of one user on one channel.
// Summary is owned by the compactor; everything else by the message log.
type Conversation struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index:idx_chat_conversation_user_channel,priority:1" json:"user_id"`

	Channel string `gorm:"column:channel;not null;default:'whatsapp';index:idx_chat_conversation_user_channel,priority:2" json:"channel"`

	Summary          string     `gorm:"column:summary;type:text;not null;default:''" json:"summary"`
	SummarizedSeq    int64      `gorm:"column:summarized_seq;not null;default:0" json:"summarized_seq"`
	SummaryUpdatedAt *time.Time `gorm:"column:summary_updated_at" json:"summary_updated_at,omitempty"`

	// Per-conversation sequencing, allocated under a row lock.
	NextSeq       int64     `gorm:"column:next_seq;not null;default:0" json:"next_seq"`
	LastMessageAt time.Time `gorm:"column:last_message_at;not null;index:idx_chat_conversation_user_channel,priority:3" json:"last_message_at"`

	CompactionFailures    int        `gorm:"column:compaction_failures;not null;default:0" json:"compaction_failures"`
	CompactionAttemptedAt *time.Time `gorm:"column:compaction_attempted_at;index" json:"compaction_attempted_at,omitempty"`
	CompactionError       string     `gorm:"column:compaction_error;type:text;not null;default:''" json:"compaction_error,omitempty"`

	Metadata datatypes.JSON `gorm:"column:metadata;not null;default:'{}'" json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Conversation) TableName() string { return "chat_conversation" }

// Backlog is the number of messages appended after the newest message
// folded into the summary.
func (c *Conversation) Backlog() int64 {
	if c == nil {
		return 0
	}
	if b := c.NextSeq - c.SummarizedSeq; b > 0 {
		return b
	}
	return 0
}
