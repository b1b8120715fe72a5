package main

import (
	"fmt"

	"github.com/matheus3301/chatsync/internal/api"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(connectivityCmd)
}

var connectivityCmd = &cobra.Command{
	Use:       "connectivity <online|offline>",
	Short:     "Feed a connectivity reading to the daemon",
	Long:      "Feed a connectivity reading to the daemon. With probing enabled the next probe may override it.",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"online", "offline"},
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect()
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		ctx, cancel := requestContext()
		defer cancel()
		resp, err := c.Conversation.SetConnectivity(ctx, &api.SetConnectivityRequest{State: args[0]})
		if err != nil {
			return err
		}
		if jsonFlag {
			outputJSON(resp)
			return nil
		}
		if resp.Changed {
			fmt.Printf("Connectivity now %s\n", resp.State)
		} else {
			fmt.Printf("Connectivity unchanged (%s)\n", resp.State)
		}
		return nil
	},
}
