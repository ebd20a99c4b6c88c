package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/yungbote/chatmemory-backend/internal/data/repos/testutil"
	types "github.com/yungbote/chatmemory-backend/internal/domain"
	"github.com/yungbote/chatmemory-backend/internal/pkg/dbctx"
)

func TestCompactionRunRepo(t *testing.T) {
	db := testutil.DB(t)
	repo := NewCompactionRunRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}

	convID := uuid.New()
	base := time.Now().UTC()
	if _, err := repo.Create(dbc, []*types.CompactionRun{
		{ConversationID: convID, Status: types.CompactionStatusFailed, ThroughSeq: 12, Error: "timeout", CreatedAt: base},
		{ConversationID: convID, Status: types.CompactionStatusApplied, ThroughSeq: 12, CreatedAt: base.Add(time.Second)},
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	runs, err := repo.ListByConversation(dbc, convID, 0)
	if err != nil {
		t.Fatalf("ListByConversation: %v", err)
	}
	if len(runs) != 2 || runs[0].Status != types.CompactionStatusApplied {
		t.Fatalf("ListByConversation: unexpected %+v", runs)
	}

	n, err := repo.CountByStatus(dbc, convID, types.CompactionStatusFailed)
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if n != 1 {
		t.Fatalf("CountByStatus: want=1 got=%d", n)
	}
}
