package aggregates

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/chatmemory-backend/internal/observability"
)

func TestOperationLabel(t *testing.T) {
	cases := map[string]string{
		"Chat.Conversation.AppendMessage":  "conversation.append_message",
		"Chat.Conversation.LocateOrCreate": "conversation.locate_or_create",
		"Chat.Identity.ResolveUser":        "identity.resolve_user",
		"aggregate.write":                  "aggregate.write",
		"  ":                               "unknown",
	}
	for in, want := range cases {
		if got := operationLabel(in); got != want {
			t.Fatalf("operationLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestObservabilityHooksExportLabels(t *testing.T) {
	m := observability.New()
	h := NewObservabilityHooks(m)
	h.ObserveOperation("Chat.Conversation.AppendMessage", "success", 3*time.Millisecond)
	h.IncRetry("Chat.Conversation.AppendMessage")
	h.IncConflict("Chat.Identity.ResolveUser")

	var buf bytes.Buffer
	if err := m.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`chatmem_aggregate_operations_total{operation="conversation.append_message",status="success"} 1.000000`,
		`chatmem_aggregate_retries_total{operation="conversation.append_message"} 1.000000`,
		`chatmem_aggregate_conflicts_total{operation="identity.resolve_user"} 1.000000`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestObservabilityHooksWithoutRegistry(t *testing.T) {
	if _, ok := NewObservabilityHooks(nil).(noopHooks); !ok {
		t.Fatalf("nil registry should give noop hooks")
	}
}
