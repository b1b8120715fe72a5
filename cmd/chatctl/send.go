package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/matheus3301/chatsync/internal/api"
	"github.com/spf13/cobra"
)

var (
	sendAuthor   string
	sendName     string
	sendImage    string
	sendLat      float64
	sendLng      float64
	sendClientID string
)

func init() {
	sendCmd.Flags().StringVar(&sendAuthor, "author", "", "author id (default $USER)")
	sendCmd.Flags().StringVar(&sendName, "name", "", "author display name")
	sendCmd.Flags().StringVar(&sendImage, "image", "", "attach an image URL")
	sendCmd.Flags().Float64Var(&sendLat, "lat", 0, "attach a location: latitude")
	sendCmd.Flags().Float64Var(&sendLng, "lng", 0, "attach a location: longitude")
	sendCmd.Flags().StringVar(&sendClientID, "client-id", "", "client message id (default random)")
	sendCmd.MarkFlagsRequiredTogether("lat", "lng")
	sendCmd.MarkFlagsMutuallyExclusive("image", "lat")
	rootCmd.AddCommand(sendCmd)
}

var sendCmd = &cobra.Command{
	Use:   "send <conversation> [text...]",
	Short: "Send a message; refused unless the daemon is online",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := &api.SendMessageRequest{
			ConversationID: args[0],
			ClientMsgID:    sendClientID,
			AuthorID:       sendAuthor,
			AuthorName:     sendName,
			Text:           strings.Join(args[1:], " "),
		}
		if req.AuthorID == "" {
			req.AuthorID = os.Getenv("USER")
		}
		if req.ClientMsgID == "" {
			req.ClientMsgID = uuid.NewString()
		}
		switch {
		case sendImage != "":
			req.Attachment = &api.Attachment{Kind: "image", URL: sendImage}
		case cmd.Flags().Changed("lat"):
			req.Attachment = &api.Attachment{Kind: "location", Latitude: sendLat, Longitude: sendLng}
		}
		if req.Text == "" && req.Attachment == nil {
			return errors.New("nothing to send: give text, --image or --lat/--lng")
		}

		c, err := connect()
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		ctx, cancel := requestContext()
		defer cancel()
		resp, err := c.Conversation.SendMessage(ctx, req)
		if err != nil {
			return err
		}
		if jsonFlag {
			outputJSON(resp)
			return nil
		}
		fmt.Printf("Sent %s as %s\n", resp.ClientMsgID, resp.Message.ID)
		return nil
	},
}
