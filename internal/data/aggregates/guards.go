package aggregates

import (
	"strings"

	"github.com/google/uuid"
	"github.com/yungbote/chatmemory-backend/internal/pkg/dbctx"
	"gorm.io/gorm"
)

// CASGuard holds compare-and-set helpers for aggregate writes.
type CASGuard struct {
	db *gorm.DB
}

func NewCASGuard(db *gorm.DB) CASGuard {
	return CASGuard{db: db}
}

func (g CASGuard) baseDB(dbc dbctx.Context) (*gorm.DB, error) {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx), nil
	}
	if g.db != nil {
		return g.db.WithContext(dbc.Ctx), nil
	}
	return nil, ValidationError("missing db transaction context")
}

// AdvanceWatermark applies updates only while the row's column is below next.
// It reports whether the row moved forward.
func (g CASGuard) AdvanceWatermark(dbc dbctx.Context, table string, id uuid.UUID, column string, next int64, updates map[string]any) (bool, error) {
	db, err := g.baseDB(dbc)
	if err != nil {
		return false, err
	}
	table = strings.TrimSpace(table)
	column = strings.TrimSpace(column)
	if table == "" || column == "" || id == uuid.Nil {
		return false, ValidationError("table, column and id are required for AdvanceWatermark")
	}
	if next <= 0 {
		return false, ValidationError("watermark must be > 0")
	}
	if updates == nil {
		updates = map[string]any{}
	}
	updates[column] = next
	res := db.Table(table).
		Where("id = ? AND "+column+" < ?", id, next).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RequireCASSuccess converts a failed compare-and-set into a typed conflict error.
func RequireCASSuccess(ok bool, message string) error {
	if ok {
		return nil
	}
	return ConflictError(strings.TrimSpace(message))
}

// RequireMonotonic rejects a seq that does not follow current.
func RequireMonotonic(current, next int64) error {
	if next != current+1 {
		return InvariantError("seq must advance by one")
	}
	return nil
}
