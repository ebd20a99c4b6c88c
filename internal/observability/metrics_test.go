package observability

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveAPI("GET", "/x", "200", time.Millisecond)
	m.ObserveCompaction("inline", "failed", time.Millisecond)
	m.IncCompactionDispatch("queue", "coalesced")
	if got := m.CompactionRuns("inline", "failed"); got != 0 {
		t.Fatalf("nil registry: got %f", got)
	}
	if err := m.WritePrometheus(&bytes.Buffer{}); err != nil {
		t.Fatalf("WritePrometheus nil: %v", err)
	}
}

func TestMetricsWritePrometheus(t *testing.T) {
	m := New()
	m.ObserveCompaction("sweep", "applied", 20*time.Millisecond)
	m.ObserveCompaction("sweep", "applied", 30*time.Millisecond)
	m.ObserveAggregateOperation("Chat.Conversation.AppendMessage", "success", time.Millisecond)

	if got := m.CompactionRuns("sweep", "applied"); got != 2 {
		t.Fatalf("CompactionRuns: want=2 got=%f", got)
	}

	var buf bytes.Buffer
	if err := m.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`chatmem_compaction_runs_total{source="sweep",status="applied"} 2.000000`,
		`chatmem_compaction_duration_seconds_count{status="applied"} 2`,
		`chatmem_aggregate_operations_total{operation="Chat.Conversation.AppendMessage",status="success"} 1.000000`,
		"# TYPE chatmem_redis_up gauge",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output:\n%s", want, out)
		}
	}
}

func TestLabelString(t *testing.T) {
	got := labelString([]string{"a", "b"}, []string{"x\"y"})
	if got != `{a="x\"y",b="unknown"}` {
		t.Fatalf("labelString: %s", got)
	}
	if withLe(got, "0.5") != `{a="x\"y",b="unknown",le="0.5"}` {
		t.Fatalf("withLe: %s", withLe(got, "0.5"))
	}
}
