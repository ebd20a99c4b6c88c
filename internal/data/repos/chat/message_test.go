package chat

import (
	"context"
	"testing"
	"time"

	"github.com/yungbote/chatmemory-backend/internal/data/repos/testutil"
	types "github.com/yungbote/chatmemory-backend/internal/domain"
	"github.com/yungbote/chatmemory-backend/internal/pkg/dbctx"
)

func TestMessageRepoListRecent(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewMessageRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx}

	u := testutil.SeedUser(t, ctx, db, types.PhoneIdentifier("+15550002222"))
	conv := testutil.SeedConversation(t, ctx, db, u.ID, types.ChannelWhatsApp, time.Time{})

	empty, err := repo.ListRecent(dbc, conv.ID, 10)
	if err != nil {
		t.Fatalf("ListRecent empty: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("ListRecent empty: expected empty slice, got %v", empty)
	}

	testutil.SeedMessages(t, ctx, db, conv, 12)

	recent, err := repo.ListRecent(dbc, conv.ID, 10)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(recent) != 10 {
		t.Fatalf("ListRecent: want=10 got=%d", len(recent))
	}
	for i, m := range recent {
		if want := int64(i + 3); m.Seq != want {
			t.Fatalf("ListRecent[%d]: seq want=%d got=%d", i, want, m.Seq)
		}
	}

	n, err := repo.Count(dbc, conv.ID)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 12 {
		t.Fatalf("Count: want=12 got=%d", n)
	}

	since, err := repo.ListSinceSeq(dbc, conv.ID, 9, 0)
	if err != nil {
		t.Fatalf("ListSinceSeq: %v", err)
	}
	if len(since) != 3 || since[0].Seq != 10 {
		t.Fatalf("ListSinceSeq: unexpected %+v", since)
	}

	reply, err := repo.GetReplyTo(dbc, conv.ID, 11)
	if err != nil {
		t.Fatalf("GetReplyTo: %v", err)
	}
	if reply == nil || reply.Seq != 12 || reply.Sender != types.SenderAgent {
		t.Fatalf("GetReplyTo: unexpected %+v", reply)
	}
}

func TestMessageRepoIdempotencyKeyUnique(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewMessageRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx}

	u := testutil.SeedUser(t, ctx, db, types.OpaqueIdentifier("guest-9"))
	conv := testutil.SeedConversation(t, ctx, db, u.ID, types.ChannelWeb, time.Time{})

	now := time.Now().UTC()
	if _, err := repo.Create(dbc, []*types.Message{
		{ConversationID: conv.ID, Seq: 1, Sender: types.SenderUser, Content: "hi", IdempotencyKey: "SM1", CreatedAt: now},
		{ConversationID: conv.ID, Seq: 2, Sender: types.SenderAgent, Content: "hello", CreatedAt: now},
		{ConversationID: conv.ID, Seq: 3, Sender: types.SenderAgent, Content: "again", CreatedAt: now},
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.GetByIdempotencyKey(dbc, conv.ID, "SM1")
	if err != nil {
		t.Fatalf("GetByIdempotencyKey: %v", err)
	}
	if got == nil || got.Seq != 1 {
		t.Fatalf("GetByIdempotencyKey: unexpected %+v", got)
	}

	_, err = repo.Create(dbc, []*types.Message{
		{ConversationID: conv.ID, Seq: 4, Sender: types.SenderUser, Content: "hi", IdempotencyKey: "SM1", CreatedAt: now},
	})
	if err == nil {
		t.Fatalf("Create duplicate key: expected unique violation")
	}
}

func TestMessageRepoGetReplyToMatchesTurn(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewMessageRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx}

	u := testutil.SeedUser(t, ctx, db, types.PhoneIdentifier("+15550003333"))
	conv := testutil.SeedConversation(t, ctx, db, u.ID, types.ChannelWhatsApp, time.Time{})

	// Turn 1 never got an answer; turn 2 did.
	now := time.Now().UTC()
	if _, err := repo.Create(dbc, []*types.Message{
		{ConversationID: conv.ID, Seq: 1, Sender: types.SenderUser, Content: "where is my order?", IdempotencyKey: "SM_A", CreatedAt: now},
		{ConversationID: conv.ID, Seq: 2, Sender: types.SenderUser, Content: "do you have blue dresses?", IdempotencyKey: "SM_B", CreatedAt: now},
		{ConversationID: conv.ID, Seq: 3, ReplyToSeq: 2, Sender: types.SenderAgent, Content: "yes, three styles", CreatedAt: now},
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	unanswered, err := repo.GetReplyTo(dbc, conv.ID, 1)
	if err != nil {
		t.Fatalf("GetReplyTo(1): %v", err)
	}
	if unanswered != nil {
		t.Fatalf("GetReplyTo(1): got the reply to another turn: %+v", unanswered)
	}
	answered, err := repo.GetReplyTo(dbc, conv.ID, 2)
	if err != nil {
		t.Fatalf("GetReplyTo(2): %v", err)
	}
	if answered == nil || answered.Seq != 3 {
		t.Fatalf("GetReplyTo(2): unexpected %+v", answered)
	}
}
