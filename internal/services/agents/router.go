// Package agents routes a user turn to a persona and asks the LLM for the
// reply, with the conversation memory prepended.
package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/chatmemory-backend/internal/observability"
	"github.com/yungbote/chatmemory-backend/internal/platform/llm"
	"github.com/yungbote/chatmemory-backend/internal/platform/logger"
	"github.com/yungbote/chatmemory-backend/internal/services/memory"
)

type Request struct {
	Context  *memory.Context
	Input    string
	MediaURL string
}

type Reply struct {
	Agent string
	Text  string
}

type Router interface {
	Reply(ctx context.Context, req Request) (Reply, error)
}

type router struct {
	log      *logger.Logger
	llm      llm.Client
	personas *PersonaTable
}

func NewRouter(log *logger.Logger, client llm.Client, personas *PersonaTable) (Router, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if client == nil {
		return nil, fmt.Errorf("llm client required")
	}
	if personas == nil {
		var err error
		if personas, err = LoadPersonas(""); err != nil {
			return nil, err
		}
	}
	return &router{
		log:      log.With("service", "AgentRouter"),
		llm:      client,
		personas: personas,
	}, nil
}

func (r *router) Reply(ctx context.Context, req Request) (out Reply, err error) {
	input := strings.TrimSpace(req.Input)
	if req.MediaURL != "" {
		if input == "" {
			input = "[shared an image: " + req.MediaURL + "]"
		} else {
			input += " [image: " + req.MediaURL + "]"
		}
	}
	if input == "" {
		return out, fmt.Errorf("agents: empty input")
	}
	persona := r.personas.Match(req.Input)
	out.Agent = persona.Name

	ctx, span := observability.StartSpan(ctx, "agents.reply", attribute.String("agent", persona.Name))
	defer func() { observability.EndSpan(span, err) }()

	start := time.Now()
	text, err := r.llm.Complete(ctx, req.Context.Messages(persona.Prompt, input))
	if err != nil {
		r.log.Warn("agent reply failed", "agent", persona.Name, "error", err)
		return out, fmt.Errorf("agent %s: %w", persona.Name, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return out, fmt.Errorf("agent %s: empty reply", persona.Name)
	}
	r.log.Debug("agent replied", "agent", persona.Name, "duration", time.Since(start).String())
	out.Text = text
	return out, nil
}
