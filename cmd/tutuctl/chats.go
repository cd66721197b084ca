package main

import (
	"context"
	"fmt"
	"os"

	"github.com/matheus3301/tutu/internal/tui/client"
	"github.com/spf13/cobra"
)

var limitFlag int

func init() {
	messagesCmd.Flags().IntVar(&limitFlag, "limit", 50, "newest messages to show (0 for all)")
	rootCmd.AddCommand(chatsCmd)
	rootCmd.AddCommand(messagesCmd)
	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(readCmd)
}

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "List conversations, most recent first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			convs, err := c.Conversations(ctx)
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(convs)
				return nil
			}
			if len(convs) == 0 {
				fmt.Println("No conversations.")
				return nil
			}
			for _, cv := range convs {
				fmt.Printf("%-6s %-24s %3d  %-16s %s\n", cv.ID, cv.Title, cv.Unread, formatTime(cv.LastAt), cv.Preview)
			}
			return nil
		})
	},
}

var messagesCmd = &cobra.Command{
	Use:   "messages <conversation-id>",
	Short: "Show a conversation's messages, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			msgs, err := c.Messages(ctx, args[0], limitFlag)
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(msgs)
				return nil
			}
			for _, m := range msgs {
				sender := m.SenderID
				if m.Mine {
					sender = "you"
				}
				marker := " "
				if !m.Read {
					marker = "*"
				}
				fmt.Printf("%s %s %-10s %s\n", marker, formatTime(m.SentAt), sender, m.Text)
			}
			return nil
		})
	},
}

var openCmd = &cobra.Command{
	Use:   "open <conversation-id>",
	Short: "Join a conversation's live room and mark what others sent as read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			res, err := c.Open(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(res)
				return nil
			}
			if res.Joined {
				fmt.Println("Joined live room")
			} else if res.JoinError != "" {
				fmt.Fprintf(os.Stderr, "not joined: %s\n", res.JoinError)
			}
			if res.MarkedRead {
				fmt.Println("Marked new messages read")
			}
			return nil
		})
	},
}

var readCmd = &cobra.Command{
	Use:   "read <conversation-id>",
	Short: "Mark every message of a conversation read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			return c.MarkRead(ctx, args[0])
		})
	},
}
