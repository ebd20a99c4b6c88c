// Command memctl inspects and maintains conversation memory: resolving
// identities, printing the context an agent would see and forcing summary
// compaction.
package main

import (
	"fmt"
	"os"

	"github.com/yungbote/chatmemory-backend/internal/app"
)

func main() {
	root := newRootCmd(func() (*app.App, error) { return app.New(app.RoleCLI) }, os.Stdout)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
