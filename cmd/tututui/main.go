package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/matheus3301/tutu/internal/profile"
	"github.com/matheus3301/tutu/internal/tui"
	"github.com/matheus3301/tutu/internal/tui/client"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	flag.Parse()

	_ = godotenv.Load()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	socketPath := profile.SocketPath(profileName)

	// Probe daemon health; auto-start if needed.
	if !probeDaemon(socketPath) {
		fmt.Fprintf(os.Stderr, "daemon not running for profile %q, starting...\n", profileName)
		if err := startDaemon(profileName); err != nil {
			fmt.Fprintf(os.Stderr, "failed to start daemon: %v\n", err)
			os.Exit(1)
		}
		if !waitForDaemon(socketPath, 10*time.Second) {
			fmt.Fprintf(os.Stderr, "daemon did not become ready, see %s\n", profile.LogPath(profileName))
			os.Exit(1)
		}
	}

	c, err := client.New(socketPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to daemon: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	if err := tui.NewApp(c).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// probeDaemon checks that a daemon answers Status on the socket.
func probeDaemon(socketPath string) bool {
	if _, err := os.Stat(socketPath); err != nil {
		return false
	}
	c, err := client.New(socketPath)
	if err != nil {
		return false
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = c.Status(ctx)
	return err == nil
}

func startDaemon(profileName string) error {
	executable, err := os.Executable()
	if err != nil {
		return err
	}
	tutud := filepath.Join(filepath.Dir(executable), "tutud")
	if _, err := os.Stat(tutud); err != nil {
		tutud = "tutud"
	}

	// Output is not inherited: the daemon would draw over the TUI. It logs
	// to the profile's log file.
	cmd := exec.Command(tutud, "--profile", profileName)
	return cmd.Start()
}

func waitForDaemon(socketPath string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if probeDaemon(socketPath) {
			return true
		}
		time.Sleep(300 * time.Millisecond)
	}
	return false
}
