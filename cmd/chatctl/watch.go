package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/matheus3301/chatsync/internal/api"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

func init() {
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch [conversation]",
	Short: "Stream republished lists, warnings and send results until interrupted",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect()
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		req := &api.WatchConversationRequest{}
		if len(args) == 1 {
			req.ConversationID = args[0]
		}
		stream, err := c.Conversation.WatchConversation(ctx, req)
		if err != nil {
			return err
		}
		for {
			evt, err := stream.Recv()
			if errors.Is(err, io.EOF) || grpcstatus.Code(err) == codes.Canceled {
				return nil
			}
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(evt)
				continue
			}
			printEvent(evt)
		}
	},
}

func printEvent(evt *api.WatchEvent) {
	at := time.UnixMilli(evt.OccurredAtUnixMs).Local().Format(time.TimeOnly)
	switch evt.Kind {
	case bus.KindConversationUpdated:
		fmt.Printf("%s %s updated from %s (%s), %d messages\n", at, evt.ConversationID, evt.Source, evt.Connectivity, len(evt.Messages))
		printMessages(evt.Messages)
	case bus.KindConversationWarning:
		fmt.Printf("%s %s warning %s: %s\n", at, evt.ConversationID, evt.WarningKind, evt.Error)
	case bus.KindConnectivityChanged:
		fmt.Printf("%s connectivity %s\n", at, evt.Connectivity)
	case bus.KindMessagePending:
		fmt.Printf("%s %s sending %s\n", at, evt.ConversationID, evt.ClientMsgID)
		printMessages(evt.Messages)
	case bus.KindMessageSendAck:
		fmt.Printf("%s %s sent %s as %s\n", at, evt.ConversationID, evt.ClientMsgID, evt.ServerMsgID)
	case bus.KindMessageSendFailed, bus.KindMessageRejected:
		fmt.Printf("%s %s %s %s: %s\n", at, evt.ConversationID, evt.Kind, evt.ClientMsgID, evt.Error)
	default:
		fmt.Printf("%s %s %s\n", at, evt.Kind, evt.ConversationID)
	}
}
