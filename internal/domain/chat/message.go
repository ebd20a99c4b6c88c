package chat

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	SenderUser  = "user"
	SenderAgent = "agent"
)

// Message is one immutable turn. Seq is unique within a conversation and
// orders turns by (timestamp, insertion).
type Message struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID uuid.UUID `gorm:"type:uuid;not null;index:idx_chat_message_conversation_seq,unique,priority:1;index:idx_chat_message_idempotency,unique,priority:1,where:idempotency_key <> '';index:idx_chat_message_reply_to,priority:1" json:"conversation_id"`

	Seq int64 `gorm:"column:seq;not null;index:idx_chat_message_conversation_seq,unique,priority:2" json:"seq"`

	// ReplyToSeq is the user turn an agent message answers; 0 otherwise.
	ReplyToSeq int64 `gorm:"column:reply_to_seq;not null;default:0;index:idx_chat_message_reply_to,priority:2" json:"reply_to_seq,omitempty"`

	Sender  string `gorm:"column:sender;not null" json:"sender"`
	Content string `gorm:"column:content;type:text;not null;default:''" json:"content"`

	Metadata datatypes.JSON `gorm:"column:metadata;not null;default:'{}'" json:"metadata,omitempty"`

	// Client-provided key (webhook message sid, Idempotency-Key header) that
	// dedupes redelivered inbound messages.
	IdempotencyKey string `gorm:"column:idempotency_key;type:text;not null;default:'';index:idx_chat_message_idempotency,unique,priority:2" json:"idempotency_key,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (Message) TableName() string { return "chat_message" }

func ValidSender(s string) bool {
	return s == SenderUser || s == SenderAgent
}
