package chat

import (
	"context"
	"testing"
	"time"

	"github.com/yungbote/chatmemory-backend/internal/data/repos/testutil"
	types "github.com/yungbote/chatmemory-backend/internal/domain"
	"github.com/yungbote/chatmemory-backend/internal/pkg/dbctx"
)

func TestConversationRepoLatestForUser(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewConversationRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx}

	u := testutil.SeedUser(t, ctx, db, types.OpaqueIdentifier("guest-7"))

	none, err := repo.GetLatestForUser(dbc, u.ID, types.ChannelWeb)
	if err != nil {
		t.Fatalf("GetLatestForUser empty: %v", err)
	}
	if none != nil {
		t.Fatalf("GetLatestForUser empty: expected nil")
	}

	base := time.Now().UTC().Add(-time.Hour)
	older := testutil.SeedConversation(t, ctx, db, u.ID, types.ChannelWeb, base)
	newer := testutil.SeedConversation(t, ctx, db, u.ID, types.ChannelWeb, base.Add(10*time.Minute))
	testutil.SeedConversation(t, ctx, db, u.ID, types.ChannelWhatsApp, base.Add(20*time.Minute))

	got, err := repo.GetLatestForUser(dbc, u.ID, types.ChannelWeb)
	if err != nil {
		t.Fatalf("GetLatestForUser: %v", err)
	}
	if got == nil || got.ID != newer.ID {
		t.Fatalf("GetLatestForUser: want=%s got=%+v (older=%s)", newer.ID, got, older.ID)
	}

	all, err := repo.ListByUser(dbc, u.ID, 10)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(all) != 3 || all[0].Channel != types.ChannelWhatsApp {
		t.Fatalf("ListByUser: unexpected %+v", all)
	}
}

func TestConversationRepoListCompactionDue(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewConversationRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx}

	u := testutil.SeedUser(t, ctx, db, types.OpaqueIdentifier("guest-8"))
	small := testutil.SeedConversation(t, ctx, db, u.ID, types.ChannelWeb, time.Time{})
	testutil.SeedMessages(t, ctx, db, small, 6)
	big := testutil.SeedConversation(t, ctx, db, u.ID, types.ChannelWhatsApp, time.Time{})
	testutil.SeedMessages(t, ctx, db, big, 12)

	due, err := repo.ListCompactionDue(dbc, CompactionDueQuery{MinTotal: 10, MinBacklog: 4})
	if err != nil {
		t.Fatalf("ListCompactionDue: %v", err)
	}
	if len(due) != 1 || due[0].ID != big.ID {
		t.Fatalf("ListCompactionDue: unexpected %+v", due)
	}

	if err := repo.UpdateFields(dbc, big.ID, map[string]interface{}{"summarized_seq": 12}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	due, err = repo.ListCompactionDue(dbc, CompactionDueQuery{MinTotal: 10, MinBacklog: 4})
	if err != nil {
		t.Fatalf("ListCompactionDue after summary: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("ListCompactionDue after summary: expected none, got %d", len(due))
	}
}

func TestConversationRepoListCompactionDueSkipsBackedOff(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewConversationRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx}
	now := time.Now().UTC()

	u := testutil.SeedUser(t, ctx, db, types.OpaqueIdentifier("guest-9"))
	failing := testutil.SeedConversation(t, ctx, db, u.ID, types.ChannelWeb, now.Add(-time.Hour))
	testutil.SeedMessages(t, ctx, db, failing, 12)
	healthy := testutil.SeedConversation(t, ctx, db, u.ID, types.ChannelWhatsApp, now)
	testutil.SeedMessages(t, ctx, db, healthy, 12)
	if err := repo.UpdateFields(dbc, failing.ID, map[string]interface{}{
		"compaction_failures":     2,
		"compaction_attempted_at": now.Add(-time.Minute),
	}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}

	cases := []struct {
		name string
		q    CompactionDueQuery
		want []*types.Conversation
	}{
		{name: "healthy first", q: CompactionDueQuery{MinTotal: 10, MinBacklog: 4}, want: []*types.Conversation{healthy, failing}},
		{name: "one per page", q: CompactionDueQuery{MinTotal: 10, MinBacklog: 4, Limit: 1, Offset: 1}, want: []*types.Conversation{failing}},
		{name: "cutoff before attempt", q: CompactionDueQuery{MinTotal: 10, MinBacklog: 4, RetryCutoff: now.Add(-2 * time.Minute)}, want: []*types.Conversation{healthy}},
		{name: "cutoff after attempt", q: CompactionDueQuery{MinTotal: 10, MinBacklog: 4, RetryCutoff: now}, want: []*types.Conversation{healthy, failing}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			due, err := repo.ListCompactionDue(dbc, tc.q)
			if err != nil {
				t.Fatalf("ListCompactionDue: %v", err)
			}
			if len(due) != len(tc.want) {
				t.Fatalf("want %d conversations, got %d", len(tc.want), len(due))
			}
			for i := range due {
				if due[i].ID != tc.want[i].ID {
					t.Fatalf("position %d: want %s got %s", i, tc.want[i].ID, due[i].ID)
				}
			}
		})
	}
}
