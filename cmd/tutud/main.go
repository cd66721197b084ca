package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/matheus3301/tutu/internal/daemon"
	"github.com/matheus3301/tutu/internal/profile"
	"go.uber.org/fx"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	configFlag := flag.String("config", "", "config file (default ~/.tutu/config.toml)")
	flag.Parse()

	// TUTU_HOME may come from .env, so load it before resolving paths.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: .env: %v\n", err)
	}

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{ProfileName: profileName, ConfigPath: *configFlag}),
	)
	app.Run()
}
