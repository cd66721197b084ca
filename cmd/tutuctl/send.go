package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/matheus3301/tutu/internal/tui/client"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(sendImageCmd)
}

var sendCmd = &cobra.Command{
	Use:   "send <conversation-id> <text...>",
	Short: "Send a text message",
	Long:  "Send a text message. It goes out live when the daemon has joined the conversation (see open), otherwise it is kept locally.",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args[1:], " ")
		return withClient(func(ctx context.Context, c *client.Client) error {
			delivery, err := c.SendText(ctx, args[0], text)
			if err != nil {
				return err
			}
			printDelivery(delivery)
			return nil
		})
	},
}

var sendImageCmd = &cobra.Command{
	Use:   "send-image <conversation-id> <file>",
	Short: "Add an image to a conversation (kept locally)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("read image: %w", err)
		}
		return withClient(func(ctx context.Context, c *client.Client) error {
			delivery, err := c.SendImage(ctx, args[0], data)
			if err != nil {
				return err
			}
			printDelivery(delivery)
			return nil
		})
	},
}

func printDelivery(delivery string) {
	if jsonFlag {
		outputJSON(map[string]string{"delivery": delivery})
		return
	}
	switch delivery {
	case "live":
		fmt.Println("Sent")
	default:
		fmt.Println("Not connected to this conversation; kept locally")
	}
}
