// Package llmtest provides a deterministic llm.Client for tests.
package llmtest

import (
	"context"
	"strings"
	"sync"

	"github.com/yungbote/chatmemory-backend/internal/platform/llm"
)

// Stub records every call. Respond, when set, decides the reply; otherwise
// Reply and Err are returned as-is.
type Stub struct {
	mu sync.Mutex

	Reply   string
	Err     error
	Respond func(messages []llm.Message) (string, error)

	calls [][]llm.Message
}

var _ llm.Client = (*Stub)(nil)

func (s *Stub) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cp := make([]llm.Message, len(messages))
	copy(cp, messages)

	s.mu.Lock()
	s.calls = append(s.calls, cp)
	respond, reply, err := s.Respond, s.Reply, s.Err
	s.mu.Unlock()

	if respond != nil {
		out, rerr := respond(cp)
		return strings.TrimSpace(out), rerr
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

func (s *Stub) Calls() [][]llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]llm.Message, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *Stub) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// LastUserContent returns the final user message of the most recent call.
func (s *Stub) LastUserContent() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.calls) == 0 {
		return ""
	}
	msgs := s.calls[len(s.calls)-1]
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == llm.RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}

// Echo returns a Respond func that replies with the last user message
// prefixed by prefix.
func Echo(prefix string) func([]llm.Message) (string, error) {
	return func(messages []llm.Message) (string, error) {
		for i := len(messages) - 1; i >= 0; i-- {
			if messages[i].Role == llm.RoleUser {
				return prefix + messages[i].Content, nil
			}
		}
		return prefix, nil
	}
}
