package chat

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/chatmemory-backend/internal/domain"
	"github.com/yungbote/chatmemory-backend/internal/pkg/dbctx"
	"github.com/yungbote/chatmemory-backend/internal/platform/logger"
)

// CompactionDueQuery selects conversations whose summary is behind.
type CompactionDueQuery struct {
	// MinTotal is exclusive: only conversations with more messages qualify.
	MinTotal   int64
	MinBacklog int64
	// RetryCutoff skips conversations whose last failed attempt is newer;
	// zero disables the filter.
	RetryCutoff time.Time
	Limit       int
	Offset      int
}

type ConversationRepo interface {
	Create(dbc dbctx.Context, rows []*types.Conversation) ([]*types.Conversation, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Conversation, error)
	// GetLatestForUser returns the most recently active conversation, or nil.
	GetLatestForUser(dbc dbctx.Context, userID uuid.UUID, channel string) (*types.Conversation, error)
	ListByUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.Conversation, error)
	ListCompactionDue(dbc dbctx.Context, q CompactionDueQuery) ([]*types.Conversation, error)
	LockByID(dbc dbctx.Context, id uuid.UUID) (*types.Conversation, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type conversationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConversationRepo(db *gorm.DB, log *logger.Logger) ConversationRepo {
	return &conversationRepo{db: db, log: log.With("repo", "ConversationRepo")}
}

func (r *conversationRepo) Create(dbc dbctx.Context, rows []*types.Conversation) ([]*types.Conversation, error) {
	if len(rows) == 0 {
		return []*types.Conversation{}, nil
	}
	now := time.Now().UTC()
	for _, row := range rows {
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
		if row.CreatedAt.IsZero() {
			row.CreatedAt = now
		}
		if row.UpdatedAt.IsZero() {
			row.UpdatedAt = row.CreatedAt
		}
		if row.LastMessageAt.IsZero() {
			row.LastMessageAt = row.CreatedAt
		}
		if len(row.Metadata) == 0 {
			row.Metadata = []byte("{}")
		}
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if err := txx.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *conversationRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Conversation, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out types.Conversation
	if err := txx.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Take(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func (r *conversationRepo) GetLatestForUser(dbc dbctx.Context, userID uuid.UUID, channel string) (*types.Conversation, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("missing user_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	q := txx.WithContext(dbc.Ctx).
		Model(&types.Conversation{}).
		Where("user_id = ?", userID)
	if channel = strings.TrimSpace(channel); channel != "" {
		q = q.Where("channel = ?", channel)
	}
	var out []*types.Conversation
	if err := q.
		Order("last_message_at DESC").
		Order("created_at DESC").
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *conversationRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.Conversation, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("missing user_id")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.Conversation
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.Conversation{}).
		Where("user_id = ?", userID).
		Order("last_message_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListCompactionDue relies on seq being dense from 1, so next_seq is the
// message count.
func (r *conversationRepo) ListCompactionDue(dbc dbctx.Context, q CompactionDueQuery) ([]*types.Conversation, error) {
	if q.Limit <= 0 || q.Limit > 500 {
		q.Limit = 100
	}
	if q.MinBacklog < 1 {
		q.MinBacklog = 1
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	query := txx.WithContext(dbc.Ctx).
		Model(&types.Conversation{}).
		Where("next_seq > ? AND next_seq - summarized_seq >= ?", q.MinTotal, q.MinBacklog)
	if !q.RetryCutoff.IsZero() {
		query = query.Where("(compaction_failures = 0 OR compaction_attempted_at IS NULL OR compaction_attempted_at <= ?)", q.RetryCutoff.UTC())
	}
	// Healthy conversations first so failing ones cannot fill every batch.
	var out []*types.Conversation
	if err := query.
		Order("compaction_failures ASC").
		Order("last_message_at ASC").
		Order("id ASC").
		Offset(q.Offset).
		Limit(q.Limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *conversationRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*types.Conversation, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing id")
	}
	if dbc.Tx == nil {
		return nil, fmt.Errorf("LockByID required dbc.Tx")
	}
	var out types.Conversation
	if err := dbc.Tx.WithContext(dbc.Ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *conversationRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["updated_at"] = time.Now().UTC()
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Model(&types.Conversation{}).
		Where("id = ?", id).
		Updates(updates).Error
}
