package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/matheus3301/tutu/internal/lock"
	"github.com/matheus3301/tutu/internal/profile"
	"github.com/matheus3301/tutu/internal/tui/client"
	"github.com/spf13/cobra"
)

var refreshFlag bool

func init() {
	syncCmd.Flags().BoolVar(&refreshFlag, "refresh", false, "renew the token first, forcing a full reload")
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(profilesCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon, account and connection status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			st, err := c.Status(ctx)
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(st)
				return nil
			}
			fmt.Printf("Profile:       %s\n", st.Profile)
			fmt.Printf("Uptime:        %s\n", st.Uptime.Round(time.Second))
			if st.Authenticated {
				fmt.Printf("Account:       %s (id %d)\n", st.Username, st.UserID)
			} else {
				fmt.Println("Account:       signed out")
			}
			fmt.Printf("Connection:    %s\n", st.Connection)
			fmt.Printf("Synced:        %v (loading: %v)\n", st.Synced, st.Loading)
			fmt.Printf("Conversations: %d (%d unread)\n", st.Conversations, st.TotalUnread)
			if st.LastError != "" {
				fmt.Printf("Last error:    [%s] %s\n", st.LastErrorKind, st.LastError)
			}
			return nil
		})
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Load conversations for the current session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			if err := c.Sync(ctx, refreshFlag); err != nil {
				return err
			}
			fmt.Println("Sync complete")
			return nil
		})
	},
}

type profileInfo struct {
	Name    string    `json:"name"`
	Running bool      `json:"running"`
	PID     int       `json:"pid,omitempty"`
	Since   time.Time `json:"since,omitempty"`
}

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List known profiles and whether their daemon holds the lock",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := os.ReadDir(filepath.Join(profile.BaseDir(), "profiles"))
		if err != nil && !os.IsNotExist(err) {
			return err
		}
		var out []profileInfo
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			info := profileInfo{Name: e.Name()}
			if owner, err := lock.ReadOwner(profile.Dir(e.Name())); err == nil {
				info.Running, info.PID, info.Since = true, owner.PID, owner.Since
			}
			out = append(out, info)
		}
		if jsonFlag {
			outputJSON(out)
			return nil
		}
		if len(out) == 0 {
			fmt.Println("No profiles found.")
			return nil
		}
		for _, p := range out {
			state := "stopped"
			if p.Running {
				state = fmt.Sprintf("running (pid %d since %s)", p.PID, formatTime(p.Since))
			}
			fmt.Printf("%-20s %s\n", p.Name, state)
		}
		return nil
	},
}
