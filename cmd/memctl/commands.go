package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	types "github.com/yungbote/chatmemory-backend/internal/domain"
	"github.com/yungbote/chatmemory-backend/internal/pkg/dbctx"
	"github.com/yungbote/chatmemory-backend/internal/services/memory"
)

func (c *cli) resolveCmd() *cobra.Command {
	var name, email string
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Find or create the user behind an identifier",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := c.identifier()
			if err != nil {
				return err
			}
			a, err := c.boot()
			if err != nil {
				return err
			}
			u, err := a.Services.Memory.Resolve(cmd.Context(), memory.ResolveInput{Identifier: id, DisplayName: name, Email: email})
			if err != nil {
				return err
			}
			return c.printJSON(u)
		},
	}
	c.identityFlags(cmd)
	cmd.Flags().StringVar(&name, "name", "", "display name to record")
	cmd.Flags().StringVar(&email, "email", "", "email to merge into the user")
	return cmd
}

func (c *cli) contextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Print the summary and recent turns an agent would receive",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := c.identifier()
			if err != nil {
				return err
			}
			a, err := c.boot()
			if err != nil {
				return err
			}
			mc, err := a.Services.Chat.Context(cmd.Context(), id, c.channel)
			if err != nil {
				return err
			}
			c.writeContext(mc)
			return nil
		},
	}
	c.identityFlags(cmd)
	cmd.Flags().StringVar(&c.channel, "channel", types.ChannelWeb, "conversation channel")
	return cmd
}

func (c *cli) writeContext(mc *memory.Context) {
	fmt.Fprintf(c.out, "conversation %s (%s)\n", mc.ConversationID, mc.Channel)
	if mc.Summary != "" {
		fmt.Fprintf(c.out, "\nsummary:\n  %s\n", strings.ReplaceAll(mc.Summary, "\n", "\n  "))
	}
	fmt.Fprintf(c.out, "\nhistory (%d):\n", len(mc.History))
	for _, m := range mc.History {
		fmt.Fprintf(c.out, "  #%-4d %-5s %s  %s\n", m.Seq, m.Sender, m.CreatedAt.Format(time.RFC3339), m.Content)
	}
}

func (c *cli) compactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compact <conversation-id>",
		Short: "Fold the newest turns into the conversation summary now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			convID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("conversation id: %w", err)
			}
			a, err := c.boot()
			if err != nil {
				return err
			}
			res, err := a.Services.Memory.Compact(cmd.Context(), memory.CompactionTask{
				ConversationID: convID,
				Source:         memory.SourceManual,
				RequestedAt:    time.Now().UTC(),
			})
			if err != nil {
				return err
			}
			return c.printJSON(res)
		},
	}
}

func (c *cli) sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one pass of the compaction sweeper",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.boot()
			if err != nil {
				return err
			}
			res, err := a.Services.Sweeper.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			return c.printJSON(res)
		},
	}
}

func (c *cli) runsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs <conversation-id>",
		Short: "List recent compaction runs for a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			convID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("conversation id: %w", err)
			}
			a, err := c.boot()
			if err != nil {
				return err
			}
			runs, err := a.Repos.CompactionRuns.ListByConversation(dbctx.Context{Ctx: cmd.Context()}, convID, limit)
			if err != nil {
				return err
			}
			for _, r := range runs {
				fmt.Fprintf(c.out, "%s  %-8s %-8s seq %d..%d  %dms  %s\n",
					r.CreatedAt.Format(time.RFC3339), r.Status, r.Source, r.FromSeq, r.ThroughSeq, r.DurationMS, r.Error)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	return cmd
}
