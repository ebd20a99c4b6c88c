package aggregates

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/yungbote/chatmemory-backend/internal/pkg/dbctx"
)

func TestRequireCASSuccess(t *testing.T) {
	if err := RequireCASSuccess(true, "ok"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := RequireCASSuccess(false, "stale"); err == nil {
		t.Fatalf("expected conflict error")
	}
}

func TestRequireMonotonic(t *testing.T) {
	if err := RequireMonotonic(4, 5); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := RequireMonotonic(4, 4); err == nil {
		t.Fatalf("expected invariant error")
	}
}

func TestAdvanceWatermarkValidation(t *testing.T) {
	g := NewCASGuard(nil)
	dbc := dbctx.Context{Ctx: context.Background()}
	if _, err := g.AdvanceWatermark(dbc, "chat_conversation", uuid.New(), "summarized_seq", 3, nil); err == nil {
		t.Fatalf("expected error without db")
	}
}
