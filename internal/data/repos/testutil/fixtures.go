package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	types "github.com/yungbote/chatmemory-backend/internal/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func SeedUser(tb testing.TB, ctx context.Context, tx *gorm.DB, id types.Identifier) *types.User {
	tb.Helper()
	id = id.Normalize()
	now := time.Now().UTC()
	u := &types.User{
		ID:        uuid.New(),
		FullName:  types.DefaultDisplayName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	v := id.Value
	switch id.Kind {
	case types.KindPhone:
		u.PhoneNumber = &v
	case types.KindEmail:
		u.Email = &v
	default:
		u.ExternalID = &v
	}
	if err := tx.WithContext(ctx).Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

func SeedConversation(tb testing.TB, ctx context.Context, tx *gorm.DB, userID uuid.UUID, channel string, lastMessageAt time.Time) *types.Conversation {
	tb.Helper()
	now := time.Now().UTC()
	if lastMessageAt.IsZero() {
		lastMessageAt = now
	}
	c := &types.Conversation{
		ID:            uuid.New(),
		UserID:        userID,
		Channel:       channel,
		LastMessageAt: lastMessageAt.UTC(),
		Metadata:      datatypes.JSON([]byte("{}")),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed conversation: %v", err)
	}
	return c
}

// SeedMessages appends n alternating user/agent messages directly, bypassing
// the aggregate, and advances the conversation counters.
func SeedMessages(tb testing.TB, ctx context.Context, tx *gorm.DB, conv *types.Conversation, n int) []*types.Message {
	tb.Helper()
	out := make([]*types.Message, 0, n)
	at := conv.LastMessageAt
	for i := 0; i < n; i++ {
		conv.NextSeq++
		at = at.Add(time.Millisecond)
		sender, replyTo := types.SenderUser, int64(0)
		if i%2 == 1 {
			sender, replyTo = types.SenderAgent, conv.NextSeq-1
		}
		m := &types.Message{
			ID:             uuid.New(),
			ConversationID: conv.ID,
			Seq:            conv.NextSeq,
			ReplyToSeq:     replyTo,
			Sender:         sender,
			Content:        fmt.Sprintf("message %d", conv.NextSeq),
			Metadata:       datatypes.JSON([]byte("{}")),
			CreatedAt:      at,
		}
		if err := tx.WithContext(ctx).Create(m).Error; err != nil {
			tb.Fatalf("seed message: %v", err)
		}
		out = append(out, m)
	}
	conv.LastMessageAt = at
	if err := tx.WithContext(ctx).
		Model(&types.Conversation{}).
		Where("id = ?", conv.ID).
		Updates(map[string]interface{}{"next_seq": conv.NextSeq, "last_message_at": at}).Error; err != nil {
		tb.Fatalf("seed counters: %v", err)
	}
	return out
}
