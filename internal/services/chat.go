package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	types "github.com/yungbote/chatmemory-backend/internal/domain"
	domainagg "github.com/yungbote/chatmemory-backend/internal/domain/aggregates"
	"github.com/yungbote/chatmemory-backend/internal/observability"
	"github.com/yungbote/chatmemory-backend/internal/platform/ctxutil"
	"github.com/yungbote/chatmemory-backend/internal/platform/logger"
	"github.com/yungbote/chatmemory-backend/internal/services/agents"
	"github.com/yungbote/chatmemory-backend/internal/services/memory"
)

// ErrAgentUnavailable marks an inbound turn whose user message was stored
// but whose agent reply could not be produced.
var ErrAgentUnavailable = errors.New("agent unavailable")

const metadataAgent = "agent"

type InboundMessage struct {
	Channel     string
	Identifier  types.Identifier
	DisplayName string
	Email       string
	Text        string
	MediaURL    string
	// IdempotencyKey is the provider message id (Twilio MessageSid); redelivery
	// of the same key never produces a second reply.
	IdempotencyKey string
}

type InboundResult struct {
	UserID         uuid.UUID
	ConversationID uuid.UUID
	UserSeq        int64
	Agent          string
	Reply          string
	Duplicate      bool
	Compacted      bool
}

type ChatService interface {
	HandleInbound(ctx context.Context, in InboundMessage) (InboundResult, error)
	Context(ctx context.Context, id types.Identifier, channel string) (*memory.Context, error)
}

type chatService struct {
	log    *logger.Logger
	memory memory.Service
	agents agents.Router
}

func NewChatService(baseLog *logger.Logger, mem memory.Service, router agents.Router) (ChatService, error) {
	if baseLog == nil {
		return nil, fmt.Errorf("logger required")
	}
	if mem == nil || router == nil {
		return nil, fmt.Errorf("memory service and agent router required")
	}
	return &chatService{
		log:    baseLog.With("service", "ChatService"),
		memory: mem,
		agents: router,
	}, nil
}

func (s *chatService) HandleInbound(ctx context.Context, in InboundMessage) (out InboundResult, err error) {
	const op = "Chat.HandleInbound"
	channel := strings.ToLower(strings.TrimSpace(in.Channel))
	text := strings.TrimSpace(in.Text)
	mediaURL := strings.TrimSpace(in.MediaURL)
	if channel == "" {
		return out, domainagg.Validation(op, "missing channel")
	}
	if text == "" && mediaURL == "" {
		return out, domainagg.Validation(op, "empty message")
	}

	ctx, span := observability.StartSpan(ctx, "chat.handle_inbound", attribute.String("channel", channel))
	outcome := "replied"
	defer func() {
		if err != nil && outcome == "replied" {
			outcome = "error"
		}
		observability.Current().IncInbound(channel, outcome)
		observability.EndSpan(span, err)
	}()

	user, err := s.memory.Resolve(ctx, memory.ResolveInput{
		Identifier:  in.Identifier,
		DisplayName: in.DisplayName,
		Email:       in.Email,
	})
	if err != nil {
		return out, err
	}
	out.UserID = user.ID

	// Read before the user turn lands so the new input is not replayed twice.
	mc, err := s.memory.BuildContext(ctx, user.ID, channel)
	if err != nil {
		return out, err
	}
	out.ConversationID = mc.ConversationID

	meta := map[string]any{}
	if mediaURL != "" {
		meta[memory.MetadataMediaURL] = mediaURL
	}
	userTurn, err := s.memory.Append(ctx, memory.AppendInput{
		ConversationID: mc.ConversationID,
		Sender:         types.SenderUser,
		Content:        text,
		IdempotencyKey: in.IdempotencyKey,
		Metadata:       meta,
	})
	if err != nil {
		return out, err
	}
	out.UserSeq = userTurn.Message.Seq

	if userTurn.Duplicate {
		outcome = "duplicate"
		out.Duplicate = true
		prior, err := s.memory.ReplyTo(ctx, userTurn.Message)
		if err != nil {
			return out, err
		}
		if prior != nil {
			out.Reply = prior.Content
			out.Agent = agentOf(prior)
		}
		s.log.Info("duplicate inbound message",
			"conversation_id", mc.ConversationID.String(),
			"seq", userTurn.Message.Seq,
			"answered", prior != nil,
		)
		return out, nil
	}

	reply, err := s.agents.Reply(ctx, agents.Request{Context: mc, Input: text, MediaURL: mediaURL})
	if err != nil {
		outcome = "agent_error"
		s.log.Warn("agent reply failed; user turn kept",
			"conversation_id", mc.ConversationID.String(),
			"seq", userTurn.Message.Seq,
			"error", err,
		)
		return out, fmt.Errorf("%w: %v", ErrAgentUnavailable, err)
	}
	out.Agent = reply.Agent
	out.Reply = reply.Text

	if _, err := s.memory.Append(ctx, memory.AppendInput{
		ConversationID: mc.ConversationID,
		Sender:         types.SenderAgent,
		Content:        reply.Text,
		ReplyToSeq:     userTurn.Message.Seq,
		Metadata:       map[string]any{metadataAgent: reply.Agent},
	}); err != nil {
		return out, err
	}

	// Both turns are committed; compaction never fails the request.
	compacted, cerr := s.memory.MaybeCompact(ctxutil.Detach(ctx), mc.ConversationID)
	if cerr != nil {
		s.log.Warn("compaction trigger failed", "conversation_id", mc.ConversationID.String(), "error", cerr)
	}
	out.Compacted = compacted
	return out, nil
}

func (s *chatService) Context(ctx context.Context, id types.Identifier, channel string) (*memory.Context, error) {
	user, err := s.memory.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.memory.FindContext(ctx, user.ID, channel)
}

func agentOf(m *types.Message) string {
	if m == nil || len(m.Metadata) == 0 {
		return ""
	}
	var meta map[string]any
	if err := json.Unmarshal(m.Metadata, &meta); err != nil {
		return ""
	}
	name, _ := meta[metadataAgent].(string)
	return name
}
