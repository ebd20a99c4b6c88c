package main

import (
	"context"
	"fmt"
	"os"

	"github.com/yungbote/chatmemory-backend/internal/app"
	"github.com/yungbote/chatmemory-backend/internal/platform/shutdown"
)

// The worker runs compaction workflows dispatched by servers configured with
// COMPACTION_DISPATCH=temporal.
func main() {
	a, err := app.New(app.RoleWorker)
	if err != nil {
		fmt.Printf("failed to initialize worker: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx, stop := shutdown.NotifyContext(context.Background())
	defer stop()

	if err := a.Start(ctx); err != nil {
		a.Log.Error("worker start failed", "error", err)
		a.Close()
		os.Exit(1)
	}
	a.Log.Info("worker running")
	<-ctx.Done()
	a.Log.Info("worker stopping")
}
