package testutil

import (
	"context"
	"sync"

	"github.com/yungbote/chatmemory-backend/internal/data/aggregates"
	"github.com/yungbote/chatmemory-backend/internal/pkg/dbctx"
)

// InjectedTxRunner drives aggregate writes without a database. Bodies run
// with a nil Tx, so it suits validation and error-path tests only.
type InjectedTxRunner struct {
	mu sync.Mutex

	// FailBegin is returned before the body runs. FailCommit is returned
	// after a successful body and counts as a rollback.
	FailBegin  error
	FailCommit error

	BeginCalls    int
	CommitCalls   int
	RollbackCalls int
}

var _ aggregates.TxRunner = (*InjectedTxRunner)(nil)

func (r *InjectedTxRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	r.mu.Lock()
	r.BeginCalls++
	failBegin, failCommit := r.FailBegin, r.FailCommit
	r.mu.Unlock()

	if failBegin != nil {
		return failBegin
	}
	var err error
	if fn != nil {
		err = fn(dbctx.Of(ctx))
	}
	if err == nil {
		err = failCommit
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.RollbackCalls++
		return err
	}
	r.CommitCalls++
	return nil
}
