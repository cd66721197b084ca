package tui

import (
	"fmt"
	"strings"
)

// Command represents a parsed ":" command.
type Command struct {
	Name string
	Args string
}

// Commands accepted by the prompt, keyed by name.
var commands = map[string]string{
	"open":   "open <id>: open a conversation",
	"read":   "read [id]: mark a conversation read",
	"image":  "image <path>: send an image file to the open conversation",
	"resync": "resync: renew the token and reload conversations",
	"login":  "login: show the sign in form",
	"logout": "logout: sign out and forget the saved session",
	"quit":   "quit: exit",
}

var aliases = map[string]string{
	"q":    "quit",
	"o":    "open",
	"sync": "resync",
	"img":  "image",
}

// ParseCommand parses a command string (without the leading ':').
func ParseCommand(input string) (Command, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return Command{}, fmt.Errorf("empty command")
	}
	parts := strings.SplitN(input, " ", 2)
	cmd := Command{Name: strings.ToLower(parts[0])}
	if len(parts) > 1 {
		cmd.Args = strings.TrimSpace(parts[1])
	}
	if full, ok := aliases[cmd.Name]; ok {
		cmd.Name = full
	}
	if _, ok := commands[cmd.Name]; !ok {
		return Command{}, fmt.Errorf("unknown command %q", cmd.Name)
	}
	if (cmd.Name == "open" || cmd.Name == "image") && cmd.Args == "" {
		return Command{}, fmt.Errorf("usage: %s", commands[cmd.Name])
	}
	return cmd, nil
}
