package apierr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	domainagg "github.com/yungbote/chatmemory-backend/internal/domain/aggregates"
)

func TestFrom(t *testing.T) {
	explicit := New(http.StatusBadGateway, "agent_unavailable", errors.New("llm down"))
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", domainagg.Validation("op", "bad"), http.StatusBadRequest, "validation"},
		{"not found", domainagg.NotFound("op", "gone"), http.StatusNotFound, "not_found"},
		{"conflict", domainagg.NewError(domainagg.CodeConflict, "op", "dup", nil), http.StatusConflict, "conflict"},
		{"retryable", domainagg.NewError(domainagg.CodeRetryable, "op", "busy", nil), http.StatusServiceUnavailable, "retryable"},
		{"wrapped explicit", fmt.Errorf("ctx: %w", explicit), http.StatusBadGateway, "agent_unavailable"},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
		{"foreign", errors.New("disk on fire"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		got := From(tc.err)
		if got.Status != tc.status || got.Code != tc.code {
			t.Fatalf("%s: want=%d/%s got=%d/%s", tc.name, tc.status, tc.code, got.Status, got.Code)
		}
	}
	if From(nil) != nil {
		t.Fatalf("From(nil) should be nil")
	}
	if From(errors.New("x")).Public() {
		t.Fatalf("500s must not be public")
	}
}
