package domain

import (
	"github.com/yungbote/chatmemory-backend/internal/domain/chat"
	"github.com/yungbote/chatmemory-backend/internal/domain/jobs"
	"github.com/yungbote/chatmemory-backend/internal/domain/user"
)

const (
	ChannelWeb      = chat.ChannelWeb
	ChannelWhatsApp = chat.ChannelWhatsApp

	SenderUser  = chat.SenderUser
	SenderAgent = chat.SenderAgent

	KindPhone  = user.KindPhone
	KindEmail  = user.KindEmail
	KindOpaque = user.KindOpaque

	CompactionStatusApplied = jobs.CompactionStatusApplied
	CompactionStatusStale   = jobs.CompactionStatusStale
	CompactionStatusFailed  = jobs.CompactionStatusFailed
	CompactionStatusSkipped = jobs.CompactionStatusSkipped
)

type (
	User           = user.User
	Identifier     = user.Identifier
	IdentifierKind = user.IdentifierKind

	Conversation = chat.Conversation
	Message      = chat.Message

	CompactionRun = jobs.CompactionRun
)

// Models lists every persisted model in migration order.
func Models() []interface{} {
	return []interface{}{
		&User{},
		&Conversation{},
		&Message{},
		&CompactionRun{},
	}
}

const DefaultDisplayName = user.DefaultDisplayName

var (
	PhoneIdentifier  = user.Phone
	EmailIdentifier  = user.Email
	OpaqueIdentifier = user.Opaque
	ParseKind        = user.ParseKind
	NormalizeEmail   = user.NormalizeEmail
	PlaceholderEmail = user.PlaceholderEmail
	ValidSender      = chat.ValidSender
)
