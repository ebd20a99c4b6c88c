package main

import (
	"context"
	"fmt"
	"os"

	"github.com/yungbote/chatmemory-backend/internal/app"
	"github.com/yungbote/chatmemory-backend/internal/platform/shutdown"
)

func main() {
	a, err := app.New(app.RoleServer)
	if err != nil {
		fmt.Printf("failed to initialize app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx, stop := shutdown.NotifyContext(context.Background())
	defer stop()

	if err := a.Start(ctx); err != nil {
		a.Log.Error("background start failed", "error", err)
		a.Close()
		os.Exit(1)
	}
	if err := a.Run(ctx); err != nil {
		a.Log.Error("server exited", "error", err)
		a.Close()
		os.Exit(1)
	}
}
