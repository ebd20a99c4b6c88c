package jobs

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/chatmemory-backend/internal/domain"
	"github.com/yungbote/chatmemory-backend/internal/pkg/dbctx"
	"github.com/yungbote/chatmemory-backend/internal/platform/logger"
)

type CompactionRunRepo interface {
	Create(dbc dbctx.Context, runs []*types.CompactionRun) ([]*types.CompactionRun, error)
	ListByConversation(dbc dbctx.Context, conversationID uuid.UUID, limit int) ([]*types.CompactionRun, error)
	CountByStatus(dbc dbctx.Context, conversationID uuid.UUID, status string) (int64, error)
}

type compactionRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCompactionRunRepo(db *gorm.DB, baseLog *logger.Logger) CompactionRunRepo {
	return &compactionRunRepo{
		db:  db,
		log: baseLog.With("repo", "CompactionRunRepo"),
	}
}

func (r *compactionRunRepo) Create(dbc dbctx.Context, runs []*types.CompactionRun) ([]*types.CompactionRun, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(runs) == 0 {
		return []*types.CompactionRun{}, nil
	}
	now := time.Now().UTC()
	for _, run := range runs {
		if run.ID == uuid.Nil {
			run.ID = uuid.New()
		}
		if run.CreatedAt.IsZero() {
			run.CreatedAt = now
		}
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// ListByConversation returns the newest runs first.
func (r *compactionRunRepo) ListByConversation(dbc dbctx.Context, conversationID uuid.UUID, limit int) ([]*types.CompactionRun, error) {
	if conversationID == uuid.Nil {
		return nil, fmt.Errorf("missing conversation_id")
	}
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	out := []*types.CompactionRun{}
	if err := transaction.WithContext(dbc.Ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *compactionRunRepo) CountByStatus(dbc dbctx.Context, conversationID uuid.UUID, status string) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.CompactionRun{}).
		Where("conversation_id = ? AND status = ?", conversationID, status).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
