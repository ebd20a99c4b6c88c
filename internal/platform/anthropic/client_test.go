package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/yungbote/chatmemory-backend/internal/platform/llm"
	"github.com/yungbote/chatmemory-backend/internal/platform/logger"
)

func TestToParamsFoldsAndOpensWithUser(t *testing.T) {
	got := toParams([]llm.Message{
		llm.Assistant("welcome back"),
		llm.User("hi"),
		llm.User("any blue dresses?"),
		llm.Assistant(""),
	})
	if len(got) != 3 {
		t.Fatalf("params: want=3 got=%d", len(got))
	}
	if got[0].Role != "user" || got[1].Role != "assistant" || got[2].Role != "user" {
		t.Fatalf("roles: %s %s %s", got[0].Role, got[1].Role, got[2].Role)
	}
}

func TestCompleteAgainstFakeServer(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path: got %s", r.URL.Path)
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-haiku-latest",
			"content":[{"type":"text","text":" User likes blue. "}],
			"stop_reason":"end_turn","usage":{"input_tokens":20,"output_tokens":4}}`)
	}))
	defer srv.Close()

	c, err := NewClient(logger.Nop(), Config{APIKey: "k", BaseURL: srv.URL, MaxRetries: 0})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	out, err := c.Complete(context.Background(), []llm.Message{llm.System("summarize"), llm.User("I like blue")})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "User likes blue." {
		t.Fatalf("Complete: got %q", out)
	}
	if body["model"] != DefaultModel {
		t.Fatalf("model: got %v", body["model"])
	}
	sys, ok := body["system"].([]any)
	if !ok || len(sys) != 1 {
		t.Fatalf("system: got %v", body["system"])
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(logger.Nop(), Config{}); err == nil {
		t.Fatalf("expected missing key error")
	}
}

func TestConfigCallBudget(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		want time.Duration
	}{
		{name: "defaults", cfg: Config{Timeout: 60 * time.Second, MaxRetries: 2}, want: 5 * time.Minute},
		{name: "no retries", cfg: Config{Timeout: 30 * time.Second}, want: 30 * time.Second},
		{name: "negative retries", cfg: Config{Timeout: 30 * time.Second, MaxRetries: -1}, want: 30 * time.Second},
		{name: "sdk timeout", cfg: Config{}, want: 10 * time.Minute},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.cfg.CallBudget(); got != tc.want {
				t.Fatalf("CallBudget() = %s, want %s", got, tc.want)
			}
		})
	}
}
