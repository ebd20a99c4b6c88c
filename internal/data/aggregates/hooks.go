package aggregates

import (
	"strings"
	"time"
	"unicode"

	"github.com/yungbote/chatmemory-backend/internal/observability"
)

// Hooks receives one signal per aggregate write. Names are the aggregate op
// strings, e.g. "Chat.Conversation.AppendMessage".
type Hooks interface {
	ObserveOperation(name, status string, dur time.Duration)
	IncConflict(name string)
	IncRetry(name string)
}

type noopHooks struct{}

func (noopHooks) ObserveOperation(string, string, time.Duration) {}
func (noopHooks) IncConflict(string)                             {}
func (noopHooks) IncRetry(string)                                {}

type metricsHooks struct {
	metrics *observability.Metrics
}

// NewObservabilityHooks reports aggregate writes to the metrics registry
// under short snake_case operation labels.
func NewObservabilityHooks(metrics *observability.Metrics) Hooks {
	if metrics == nil {
		return noopHooks{}
	}
	return metricsHooks{metrics: metrics}
}

func (h metricsHooks) ObserveOperation(name, status string, dur time.Duration) {
	h.metrics.ObserveAggregateOperation(operationLabel(name), strings.TrimSpace(status), dur)
}

func (h metricsHooks) IncConflict(name string) {
	h.metrics.IncAggregateConflict(operationLabel(name))
}

func (h metricsHooks) IncRetry(name string) {
	h.metrics.IncAggregateRetry(operationLabel(name))
}

// operationLabel maps "Chat.Conversation.AppendMessage" to
// "conversation.append_message".
func operationLabel(op string) string {
	op = strings.TrimPrefix(strings.TrimSpace(op), "Chat.")
	if op == "" {
		return "unknown"
	}
	parts := strings.Split(op, ".")
	for i, p := range parts {
		parts[i] = snakeCase(p)
	}
	return strings.Join(parts, ".")
}

func snakeCase(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
