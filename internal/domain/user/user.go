package user

import (
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/chatmemory-backend/internal/pkg/pointers"
)

const DefaultDisplayName = "Guest"

// User is a durable identity. At least one of PhoneNumber, Email, ExternalID
// is set; each is globally unique when present.
type User struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	FullName    string  `gorm:"column:full_name;not null;default:''" json:"full_name"`
	PhoneNumber *string `gorm:"column:phone_number;uniqueIndex:idx_chat_user_phone" json:"phone_number,omitempty"`
	Email       *string `gorm:"column:email;uniqueIndex:idx_chat_user_email" json:"email,omitempty"`
	ExternalID  *string `gorm:"column:external_id;uniqueIndex:idx_chat_user_external" json:"external_id,omitempty"`

	// Consent for channels that require an explicit opt-in before the bot may
	// message first.
	BotOptIn bool `gorm:"column:bot_opt_in;not null;default:false" json:"bot_opt_in"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (User) TableName() string { return "chat_user" }

// IdentifierValue returns the stored value for kind, or "".
func (u *User) IdentifierValue(kind IdentifierKind) string {
	if u == nil {
		return ""
	}
	var p *string
	switch kind {
	case KindPhone:
		p = u.PhoneNumber
	case KindEmail:
		p = u.Email
	case KindOpaque:
		p = u.ExternalID
	}
	return pointers.Value(p)
}
