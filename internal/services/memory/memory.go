// Package memory is the bounded conversational memory: identity resolution,
// conversation location, the append-only message log, rolling-summary
// compaction and prompt context assembly.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/yungbote/chatmemory-backend/internal/data/repos"
	types "github.com/yungbote/chatmemory-backend/internal/domain"
	domainagg "github.com/yungbote/chatmemory-backend/internal/domain/aggregates"
	"github.com/yungbote/chatmemory-backend/internal/pkg/dbctx"
	"github.com/yungbote/chatmemory-backend/internal/platform/llm"
	"github.com/yungbote/chatmemory-backend/internal/platform/logger"
)

const MetadataMediaURL = "media_url"

type Service interface {
	Resolve(ctx context.Context, in ResolveInput) (*types.User, error)
	Locate(ctx context.Context, userID uuid.UUID, channel string) (*types.Conversation, error)
	Append(ctx context.Context, in AppendInput) (AppendResult, error)
	Recent(ctx context.Context, conversationID uuid.UUID, limit int) ([]*types.Message, error)
	Count(ctx context.Context, conversationID uuid.UUID) (int64, error)
	// ReplyTo returns the agent message that answered a user turn, or nil.
	ReplyTo(ctx context.Context, userTurn *types.Message) (*types.Message, error)

	BuildContext(ctx context.Context, userID uuid.UUID, channel string) (*Context, error)
	// Lookup and FindContext are the read-only variants of Resolve and
	// BuildContext. Missing rows yield a CodeNotFound error.
	Lookup(ctx context.Context, id types.Identifier) (*types.User, error)
	FindContext(ctx context.Context, userID uuid.UUID, channel string) (*Context, error)

	MaybeCompact(ctx context.Context, conversationID uuid.UUID) (bool, error)
	Compact(ctx context.Context, task CompactionTask) (CompactionResult, error)

	Policy() Policy
}

type ResolveInput struct {
	Identifier  types.Identifier
	DisplayName string
	Email       string
}

type AppendInput struct {
	ConversationID uuid.UUID
	Sender         string
	Content        string
	IdempotencyKey string
	ReplyToSeq     int64
	Metadata       map[string]any
}

type AppendResult struct {
	Message   *types.Message
	Duplicate bool
}

type Deps struct {
	Log *logger.Logger

	Repos         repos.Set
	Identity      domainagg.IdentityAggregate
	Conversations domainagg.ConversationAggregate

	LLM llm.Client
	// Provider labels compaction runs with the summarizing LLM.
	Provider   string
	Policy     Policy
	Dispatcher Dispatcher
	Locker     Locker
	// LockTTL bounds how long Locker holds a compaction; zero means
	// DefaultCompactionLockTTL.
	LockTTL time.Duration
	Now     func() time.Time
}

type service struct {
	log *logger.Logger

	repos         repos.Set
	identity      domainagg.IdentityAggregate
	conversations domainagg.ConversationAggregate

	llm      llm.Client
	provider string
	policy   Policy
	locker   Locker
	lockTTL  time.Duration
	now      func() time.Time

	flights singleflight.Group

	dispatchMu sync.RWMutex
	dispatcher Dispatcher
}

func New(deps Deps) (Service, error) {
	if deps.Log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if deps.Identity == nil || deps.Conversations == nil {
		return nil, fmt.Errorf("memory aggregates required")
	}
	if deps.Repos.Users == nil || deps.Repos.Conversations == nil || deps.Repos.Messages == nil {
		return nil, fmt.Errorf("memory repos required")
	}
	if deps.LLM == nil {
		return nil, fmt.Errorf("llm client required")
	}
	s := &service{
		log:           deps.Log.With("service", "MemoryService"),
		repos:         deps.Repos,
		identity:      deps.Identity,
		conversations: deps.Conversations,
		llm:           deps.LLM,
		provider:      strings.TrimSpace(deps.Provider),
		policy:        deps.Policy.Normalize(),
		locker:        deps.Locker,
		lockTTL:       deps.LockTTL,
		now:           deps.Now,
		dispatcher:    deps.Dispatcher,
	}
	if s.locker == nil {
		s.locker = NoopLocker{}
	}
	if s.lockTTL <= 0 {
		s.lockTTL = DefaultCompactionLockTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.dispatcher == nil {
		s.dispatcher = NewInlineDispatcher(s, deps.Log)
	}
	return s, nil
}

// SetDispatcher swaps the compaction dispatcher. Dispatchers that run tasks
// through the service itself are built after it.
func SetDispatcher(svc Service, d Dispatcher) {
	s, ok := svc.(*service)
	if !ok || d == nil {
		return
	}
	s.dispatchMu.Lock()
	s.dispatcher = d
	s.dispatchMu.Unlock()
}

func (s *service) Policy() Policy { return s.policy }

func (s *service) Resolve(ctx context.Context, in ResolveInput) (*types.User, error) {
	res, err := s.identity.ResolveUser(ctx, domainagg.ResolveUserInput{
		Identifier:  in.Identifier,
		DisplayName: in.DisplayName,
		Email:       in.Email,
	})
	if err != nil {
		return nil, err
	}
	if res.Created {
		s.log.Info("user created", "user_id", res.User.ID.String(), "kind", string(in.Identifier.Kind))
	}
	return res.User, nil
}

func (s *service) Lookup(ctx context.Context, id types.Identifier) (*types.User, error) {
	const op = "Memory.Lookup"
	id = id.Normalize()
	if err := id.Validate(); err != nil {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, err.Error(), nil)
	}
	u, err := s.repos.Users.GetByIdentifier(dbctx.Context{Ctx: ctx}, id)
	if err != nil {
		return nil, domainagg.Wrap(domainagg.CodeInternal, op, err)
	}
	if u == nil {
		return nil, domainagg.NotFound(op, "no user for %s identifier", id.Kind)
	}
	return u, nil
}

func (s *service) Locate(ctx context.Context, userID uuid.UUID, channel string) (*types.Conversation, error) {
	res, err := s.conversations.LocateOrCreate(ctx, domainagg.LocateInput{UserID: userID, Channel: channel})
	if err != nil {
		return nil, err
	}
	if res.Created {
		s.log.Info("conversation created",
			"user_id", userID.String(),
			"conversation_id", res.Conversation.ID.String(),
			"channel", res.Conversation.Channel,
		)
	}
	return res.Conversation, nil
}

func (s *service) Append(ctx context.Context, in AppendInput) (AppendResult, error) {
	res, err := s.conversations.AppendMessage(ctx, domainagg.AppendMessageInput{
		ConversationID: in.ConversationID,
		Sender:         in.Sender,
		Content:        in.Content,
		IdempotencyKey: in.IdempotencyKey,
		ReplyToSeq:     in.ReplyToSeq,
		Metadata:       in.Metadata,
		At:             s.now(),
	})
	if err != nil {
		return AppendResult{}, err
	}
	return AppendResult{Message: res.Message, Duplicate: res.Duplicate}, nil
}

func (s *service) Recent(ctx context.Context, conversationID uuid.UUID, limit int) ([]*types.Message, error) {
	if conversationID == uuid.Nil {
		return nil, domainagg.Validation("Chat.Memory.Recent", "missing conversation_id")
	}
	if limit <= 0 {
		limit = s.policy.HistoryLimit
	}
	return s.repos.Messages.ListRecent(dbctx.Context{Ctx: ctx}, conversationID, limit)
}

func (s *service) Count(ctx context.Context, conversationID uuid.UUID) (int64, error) {
	if conversationID == uuid.Nil {
		return 0, domainagg.Validation("Chat.Memory.Count", "missing conversation_id")
	}
	return s.repos.Messages.Count(dbctx.Context{Ctx: ctx}, conversationID)
}

func (s *service) ReplyTo(ctx context.Context, userTurn *types.Message) (*types.Message, error) {
	if userTurn == nil {
		return nil, nil
	}
	return s.repos.Messages.GetReplyTo(dbctx.Context{Ctx: ctx}, userTurn.ConversationID, userTurn.Seq)
}

func (s *service) currentDispatcher() Dispatcher {
	s.dispatchMu.RLock()
	defer s.dispatchMu.RUnlock()
	return s.dispatcher
}

func mediaURL(m *types.Message) string {
	if m == nil || len(m.Metadata) == 0 {
		return ""
	}
	var meta map[string]any
	if err := json.Unmarshal(m.Metadata, &meta); err != nil {
		return ""
	}
	url, _ := meta[MetadataMediaURL].(string)
	return strings.TrimSpace(url)
}
