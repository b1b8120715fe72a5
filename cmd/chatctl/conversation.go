package main

import (
	"fmt"
	"time"

	"github.com/matheus3301/chatsync/internal/api"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(openCmd, closeCmd, showCmd)
}

var openCmd = &cobra.Command{
	Use:   "open <conversation>",
	Short: "Open a conversation view in the daemon",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect()
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		ctx, cancel := requestContext()
		defer cancel()
		resp, err := c.Conversation.OpenConversation(ctx, &api.OpenConversationRequest{ConversationID: args[0]})
		if err != nil {
			return err
		}
		if jsonFlag {
			outputJSON(resp)
			return nil
		}
		fmt.Printf("Opened %s (%s)\n", resp.Conversation.ID, resp.Conversation.Connectivity)
		return nil
	},
}

var closeCmd = &cobra.Command{
	Use:   "close <conversation>",
	Short: "Close a conversation view",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect()
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		ctx, cancel := requestContext()
		defer cancel()
		if _, err := c.Conversation.CloseConversation(ctx, &api.CloseConversationRequest{ConversationID: args[0]}); err != nil {
			return err
		}
		fmt.Printf("Closed %s\n", args[0])
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <conversation>",
	Short: "Print the displayed message list of an open conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect()
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		ctx, cancel := requestContext()
		defer cancel()
		resp, err := c.Conversation.GetConversation(ctx, &api.GetConversationRequest{ConversationID: args[0]})
		if err != nil {
			return err
		}
		if jsonFlag {
			outputJSON(resp)
			return nil
		}
		conv := resp.Conversation
		fmt.Printf("%s  connectivity=%s source=%s\n", conv.ID, conv.Connectivity, valueOrDefault(conv.Source, "-"))
		printMessages(conv.Messages)
		return nil
	},
}

// printMessages prints oldest first so the newest line ends up at the
// bottom of the terminal.
func printMessages(msgs []api.Message) {
	if len(msgs) == 0 {
		fmt.Println("  (no messages)")
		return
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		fmt.Println("  " + formatMessage(msgs[i]))
	}
}

func formatMessage(m api.Message) string {
	who := valueOrDefault(m.AuthorName, m.AuthorID)
	body := m.Text
	if a := m.Attachment; a != nil {
		switch a.Kind {
		case "image":
			body += fmt.Sprintf(" [image %s]", a.URL)
		case "location":
			body += fmt.Sprintf(" [location %.5f,%.5f]", a.Latitude, a.Longitude)
		}
	}
	return fmt.Sprintf("%s  %-12s %s", m.CreatedAt.Local().Format(time.DateTime), who, body)
}
