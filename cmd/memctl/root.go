package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/yungbote/chatmemory-backend/internal/app"
	types "github.com/yungbote/chatmemory-backend/internal/domain"
)

type cli struct {
	open func() (*app.App, error)
	out  io.Writer
	app  *app.App

	kind    string
	value   string
	channel string
}

func newRootCmd(open func() (*app.App, error), out io.Writer) *cobra.Command {
	c := &cli{open: open, out: out}
	root := &cobra.Command{
		Use:           "memctl",
		Short:         "Inspect and maintain conversation memory",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.app != nil {
				c.app.Close()
			}
		},
	}
	root.SetOut(out)
	root.AddCommand(
		c.resolveCmd(),
		c.contextCmd(),
		c.compactCmd(),
		c.sweepCmd(),
		c.runsCmd(),
	)
	return root
}

func (c *cli) identityFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&c.kind, "kind", "opaque", "identifier kind: phone, email or opaque")
	cmd.Flags().StringVar(&c.value, "id", "", "identifier value")
	_ = cmd.MarkFlagRequired("id")
}

func (c *cli) identifier() (types.Identifier, error) {
	kind, err := types.ParseKind(c.kind)
	if err != nil {
		return types.Identifier{}, err
	}
	id := types.Identifier{Kind: kind, Value: c.value}.Normalize()
	if err := id.Validate(); err != nil {
		return types.Identifier{}, err
	}
	return id, nil
}

func (c *cli) boot() (*app.App, error) {
	if c.app != nil {
		return c.app, nil
	}
	a, err := c.open()
	if err != nil {
		return nil, fmt.Errorf("open app: %w", err)
	}
	c.app = a
	return a, nil
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
