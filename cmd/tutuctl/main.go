package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/matheus3301/tutu/internal/profile"
	"github.com/matheus3301/tutu/internal/tui/client"
	"github.com/spf13/cobra"
)

var (
	profileFlag string
	jsonFlag    bool
	timeoutFlag time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "tutuctl",
	Short:         "Control a running tutud daemon",
	Long:          "Command-line access to the tutud chat daemon of a profile: sign in, sync, list and send messages.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&profileFlag, "profile", "", "profile name (overrides config default)")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().DurationVar(&timeoutFlag, "timeout", 30*time.Second, "request timeout")
}

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// withClient dials the profile's daemon and runs fn with a bounded context.
func withClient(fn func(ctx context.Context, c *client.Client) error) error {
	name := profile.Resolve(profileFlag)
	if err := profile.ValidateName(name); err != nil {
		return err
	}
	socketPath := profile.SocketPath(name)
	if _, err := os.Stat(socketPath); err != nil {
		return fmt.Errorf("daemon for profile %q is not running (start it with: tutud --profile %s)", name, name)
	}

	c, err := client.New(socketPath)
	if err != nil {
		return fmt.Errorf("cannot connect to daemon for profile %q: %w", name, err)
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), timeoutFlag)
	defer cancel()
	return fn(ctx, c)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
