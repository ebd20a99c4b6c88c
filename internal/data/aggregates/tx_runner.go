package aggregates

import (
	"context"
	"errors"
	"time"

	domainagg "github.com/yungbote/chatmemory-backend/internal/domain/aggregates"
	"github.com/yungbote/chatmemory-backend/internal/pkg/dbctx"
	"gorm.io/gorm"
)

const (
	defaultTxAttempts = 3
	defaultTxBackoff  = 20 * time.Millisecond
)

// TxRunner is the transaction boundary shared by aggregate writes.
type TxRunner interface {
	InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error
}

type gormTxRunner struct {
	db       *gorm.DB
	attempts int
	backoff  time.Duration
}

func NewGormTxRunner(db *gorm.DB) TxRunner {
	return &gormTxRunner{db: db, attempts: defaultTxAttempts, backoff: defaultTxBackoff}
}

// InTx runs fn in one transaction. A serialization failure, deadlock or busy
// sqlite file aborts the whole transaction, so fn is re-run from the top with
// a fresh tx; fn must only mutate state through dbc.
func (r *gormTxRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	if fn == nil {
		return nil
	}
	if r == nil || r.db == nil {
		return domainagg.NewError(domainagg.CodeInternal, "aggregate.tx", "transaction runner has nil db", nil)
	}
	attempts := r.attempts
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 1; ; attempt++ {
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(dbctx.Context{Ctx: ctx, Tx: tx})
		})
		if err == nil || attempt >= attempts || !transientTxError(err) {
			return err
		}
		wait := time.NewTimer(time.Duration(attempt) * r.backoff)
		select {
		case <-ctx.Done():
			wait.Stop()
			return err
		case <-wait.C:
		}
	}
}

// transientTxError reports failures the database resolves by itself once the
// competing transaction finishes. Cancellation is never transient here.
func transientTxError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return domainagg.IsCode(MapError("aggregate.tx", err), domainagg.CodeRetryable)
}
