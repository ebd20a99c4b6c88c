// Package llm is the provider-neutral chat completion contract used by the
// compactor and the agent router.
package llm

import (
	"context"
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func System(content string) Message    { return Message{Role: RoleSystem, Content: content} }
func User(content string) Message      { return Message{Role: RoleUser, Content: content} }
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// Client completes a chat transcript. Implementations return the assistant
// text with surrounding whitespace trimmed.
type Client interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Func adapts a plain function to Client.
type Func func(ctx context.Context, messages []Message) (string, error)

func (f Func) Complete(ctx context.Context, messages []Message) (string, error) {
	return f(ctx, messages)
}

// SplitSystem joins all system messages into one block and returns the rest
// in order. Providers with a dedicated system field use it.
func SplitSystem(messages []Message) (string, []Message) {
	var sys []string
	rest := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			if s := strings.TrimSpace(m.Content); s != "" {
				sys = append(sys, s)
			}
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(sys, "\n\n"), rest
}

// EstimateTokens is a rough 4-chars-per-token count for metrics when a
// provider does not report usage.
func EstimateTokens(messages ...Message) int {
	n := 0
	for _, m := range messages {
		r := len([]rune(strings.TrimSpace(m.Content)))
		n += (r + 3) / 4
	}
	return n
}
