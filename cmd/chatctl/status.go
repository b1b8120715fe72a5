package main

import (
	"fmt"
	"time"

	"github.com/matheus3301/chatsync/internal/api"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status and open conversations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect()
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		ctx, cancel := requestContext()
		defer cancel()
		resp, err := c.Conversation.GetStatus(ctx, &api.GetStatusRequest{})
		if err != nil {
			return err
		}
		if jsonFlag {
			outputJSON(resp)
			return nil
		}

		fmt.Printf("Profile:      %s\n", resp.Profile)
		fmt.Printf("Backend:      %s\n", resp.Backend)
		fmt.Printf("Connectivity: %s\n", resp.Connectivity)
		fmt.Printf("Uptime:       %s\n", (time.Duration(resp.UptimeMs) * time.Millisecond).Round(time.Second))
		fmt.Printf("Watchers:     %d\n", resp.Watchers)
		if len(resp.Conversations) == 0 {
			fmt.Println("No open conversations.")
			return nil
		}
		fmt.Println()
		for _, s := range resp.Conversations {
			sub := ""
			if s.Subscribed {
				sub = " live"
			}
			fmt.Printf("%-24s %-8s %-6s %4d messages%s\n", s.ID, s.Connectivity, valueOrDefault(s.Source, "-"), s.MessageCount, sub)
		}
		return nil
	},
}

func valueOrDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
