package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/yungbote/chatmemory-backend/internal/pkg/dbctx"
)

func TestInjectedTxRunner(t *testing.T) {
	bodyErr := errors.New("seq taken")
	commitErr := errors.New("commit failed")
	beginErr := errors.New("database is busy")

	cases := []struct {
		name                     string
		runner                   *InjectedTxRunner
		body                     error
		want                     error
		ran                      bool
		begin, commit, rollback int
	}{
		{name: "commit", runner: &InjectedTxRunner{}, ran: true, begin: 1, commit: 1},
		{name: "body error", runner: &InjectedTxRunner{}, body: bodyErr, want: bodyErr, ran: true, begin: 1, rollback: 1},
		{name: "commit error", runner: &InjectedTxRunner{FailCommit: commitErr}, want: commitErr, ran: true, begin: 1, rollback: 1},
		{name: "begin error", runner: &InjectedTxRunner{FailBegin: beginErr}, want: beginErr, begin: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ran := false
			err := tc.runner.InTx(context.Background(), func(dbc dbctx.Context) error {
				ran = true
				if dbc.Tx != nil {
					t.Fatalf("injected runner should not open a tx")
				}
				return tc.body
			})
			if !errors.Is(err, tc.want) || (tc.want == nil && err != nil) {
				t.Fatalf("err: want %v got %v", tc.want, err)
			}
			if ran != tc.ran {
				t.Fatalf("body ran=%v want %v", ran, tc.ran)
			}
			r := tc.runner
			if r.BeginCalls != tc.begin || r.CommitCalls != tc.commit || r.RollbackCalls != tc.rollback {
				t.Fatalf("counters begin=%d commit=%d rollback=%d", r.BeginCalls, r.CommitCalls, r.RollbackCalls)
			}
		})
	}
}
