package memory

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	types "github.com/yungbote/chatmemory-backend/internal/domain"
	domainagg "github.com/yungbote/chatmemory-backend/internal/domain/aggregates"
	"github.com/yungbote/chatmemory-backend/internal/observability"
	"github.com/yungbote/chatmemory-backend/internal/pkg/dbctx"
	"github.com/yungbote/chatmemory-backend/internal/platform/llm"
)

// Context is the memory handed to an agent for one turn.
type Context struct {
	ConversationID uuid.UUID
	UserID         uuid.UUID
	Channel        string
	Summary        string
	// History holds the newest turns, oldest first.
	History []*types.Message
}

// BuildContext re-reads the conversation on every call; nothing is cached.
func (s *service) BuildContext(ctx context.Context, userID uuid.UUID, channel string) (*Context, error) {
	ctx, span := observability.StartSpan(ctx, "memory.build_context", attribute.String("chat.channel", channel))
	out, err := s.buildContext(ctx, userID, channel)
	observability.EndSpan(span, err)
	return out, err
}

func (s *service) buildContext(ctx context.Context, userID uuid.UUID, channel string) (*Context, error) {
	conv, err := s.Locate(ctx, userID, channel)
	if err != nil {
		return nil, err
	}
	return s.contextFor(ctx, conv)
}

func (s *service) contextFor(ctx context.Context, conv *types.Conversation) (*Context, error) {
	history, err := s.repos.Messages.ListRecent(dbctx.Context{Ctx: ctx}, conv.ID, s.policy.HistoryLimit)
	if err != nil {
		return nil, err
	}
	return &Context{
		ConversationID: conv.ID,
		UserID:         conv.UserID,
		Channel:        conv.Channel,
		Summary:        strings.TrimSpace(conv.Summary),
		History:        history,
	}, nil
}

func (s *service) FindContext(ctx context.Context, userID uuid.UUID, channel string) (*Context, error) {
	const op = "Memory.FindContext"
	channel = strings.ToLower(strings.TrimSpace(channel))
	if userID == uuid.Nil || channel == "" {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "missing user or channel", nil)
	}
	conv, err := s.repos.Conversations.GetLatestForUser(dbctx.Context{Ctx: ctx}, userID, channel)
	if err != nil {
		return nil, domainagg.Wrap(domainagg.CodeInternal, op, err)
	}
	if conv == nil {
		return nil, domainagg.NotFound(op, "no %s conversation for user %s", channel, userID)
	}
	return s.contextFor(ctx, conv)
}

// Messages renders the prompt for one agent call: system instructions, the
// summary block when present, the replayed history, then the new input.
func (c *Context) Messages(system, input string) []llm.Message {
	if c == nil {
		c = &Context{}
	}
	out := make([]llm.Message, 0, len(c.History)+3)
	if s := strings.TrimSpace(system); s != "" {
		out = append(out, llm.System(s))
	}
	if c.Summary != "" {
		out = append(out, llm.System("Summary of the earlier conversation with this customer:\n"+c.Summary))
	}
	for _, m := range c.History {
		content := renderContent(m)
		if content == "" {
			continue
		}
		if m.Sender == types.SenderAgent {
			out = append(out, llm.Assistant(content))
		} else {
			out = append(out, llm.User(content))
		}
	}
	return append(out, llm.User(input))
}

// Empty reports whether there is nothing to remember yet.
func (c *Context) Empty() bool {
	return c == nil || (c.Summary == "" && len(c.History) == 0)
}
