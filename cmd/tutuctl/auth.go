package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/matheus3301/tutu/internal/tui/client"
	"github.com/spf13/cobra"
)

var passwordFlag string

func init() {
	loginCmd.Flags().StringVar(&passwordFlag, "password", "", "password (default $TUTU_PASSWORD, then read from stdin)")
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(refreshCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login <username>",
	Short: "Sign in and load conversations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readPassword()
		if err != nil {
			return err
		}
		return withClient(func(ctx context.Context, c *client.Client) error {
			res, err := c.Login(ctx, args[0], password)
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(res)
				return nil
			}
			fmt.Printf("Signed in as %s (id %d)\n", res.Username, res.UserID)
			if res.SyncError != "" {
				fmt.Printf("Loading conversations failed: %s\n", res.SyncError)
			}
			return nil
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the saved session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			if err := c.Logout(ctx); err != nil {
				return err
			}
			fmt.Println("Signed out")
			return nil
		})
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Renew the session token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			res, err := c.Refresh(ctx)
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(res)
				return nil
			}
			fmt.Printf("Session renewed for %s\n", res.Username)
			return nil
		})
	},
}

func readPassword() (string, error) {
	if passwordFlag != "" {
		return passwordFlag, nil
	}
	if p := os.Getenv("TUTU_PASSWORD"); p != "" {
		return p, nil
	}
	fmt.Fprint(os.Stderr, "Password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
