package model

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/matheus3301/tutu/internal/api"
	"github.com/matheus3301/tutu/internal/tui/client"
)

// ErrNoConversation is returned by actions that need an open conversation.
var ErrNoConversation = errors.New("no conversation open")

const threadLimit = 200

// Daemon is the part of client.Client the view model drives.
type Daemon interface {
	Status(ctx context.Context) (api.StatusView, error)
	Login(ctx context.Context, username, password string) (client.LoginResult, error)
	Logout(ctx context.Context) error
	Sync(ctx context.Context, refresh bool) error
	Conversations(ctx context.Context) ([]api.ConversationView, error)
	Messages(ctx context.Context, conversationID string, limit int) ([]api.MessageView, error)
	Open(ctx context.Context, conversationID string) (client.OpenResult, error)
	SendText(ctx context.Context, conversationID, text string) (string, error)
	SendImage(ctx context.Context, conversationID string, data []byte) (string, error)
	MarkRead(ctx context.Context, conversationID string) error
}

// ViewModel caches daemon state between polls. Views read snapshots from it.
type ViewModel struct {
	mu sync.RWMutex

	daemon   Daemon
	status   api.StatusView
	convs    []api.ConversationView
	messages []api.MessageView
	active   string
	Flash    Flash
}

// NewViewModel creates a new view model connected to the daemon client.
func NewViewModel(d Daemon) *ViewModel {
	return &ViewModel{daemon: d}
}

// Refresh reloads the status, the conversation list and the open thread.
// New messages arriving in the open thread are marked read.
func (vm *ViewModel) Refresh(ctx context.Context) error {
	st, err := vm.daemon.Status(ctx)
	if err != nil {
		return err
	}
	convs, err := vm.daemon.Conversations(ctx)
	if err != nil {
		return err
	}

	active := vm.ActiveConversation()
	var msgs []api.MessageView
	if active != "" {
		for _, c := range convs {
			if c.ID == active && c.Unread > 0 {
				if err := vm.daemon.MarkRead(ctx, active); err != nil {
					return err
				}
			}
		}
		if msgs, err = vm.daemon.Messages(ctx, active, threadLimit); err != nil {
			return err
		}
	}

	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.status = st
	vm.convs = convs
	if vm.active == active {
		vm.messages = msgs
	}
	return nil
}

// Login signs in. A failed sync after a good login is shown as a warning.
func (vm *ViewModel) Login(ctx context.Context, username, password string) error {
	res, err := vm.daemon.Login(ctx, username, password)
	if err != nil {
		return err
	}
	if res.SyncError != "" {
		vm.Flash.Warn("Signed in, but loading conversations failed: " + res.SyncError)
	} else {
		vm.Flash.Info("Signed in as " + res.Username)
	}
	return vm.Refresh(ctx)
}

// Logout signs out and closes the open thread.
func (vm *ViewModel) Logout(ctx context.Context) error {
	if err := vm.daemon.Logout(ctx); err != nil {
		return err
	}
	vm.Close()
	vm.Flash.Info("Signed out")
	return nil
}

// Open makes conversationID the active thread and loads it.
func (vm *ViewModel) Open(ctx context.Context, conversationID string) error {
	res, err := vm.daemon.Open(ctx, conversationID)
	if err != nil {
		return err
	}
	if res.JoinError != "" {
		vm.Flash.Warn("Offline for this conversation, messages stay local")
	}
	vm.mu.Lock()
	vm.active = conversationID
	vm.messages = nil
	vm.mu.Unlock()
	return vm.Refresh(ctx)
}

// Close leaves the active thread.
func (vm *ViewModel) Close() {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.active = ""
	vm.messages = nil
}

// Send sends text to the active thread.
func (vm *ViewModel) Send(ctx context.Context, text string) error {
	id := vm.ActiveConversation()
	if id == "" {
		return ErrNoConversation
	}
	delivery, err := vm.daemon.SendText(ctx, id, text)
	if err != nil {
		return err
	}
	if delivery == "local" {
		vm.Flash.Warn("Not connected, message kept locally")
	}
	return vm.Refresh(ctx)
}

// SendImageFile reads path and sends it to the active thread.
func (vm *ViewModel) SendImageFile(ctx context.Context, path string) error {
	id := vm.ActiveConversation()
	if id == "" {
		return ErrNoConversation
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	if _, err := vm.daemon.SendImage(ctx, id, data); err != nil {
		return err
	}
	return vm.Refresh(ctx)
}

// MarkRead marks conversationID read, or the active thread when empty.
func (vm *ViewModel) MarkRead(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		conversationID = vm.ActiveConversation()
	}
	if conversationID == "" {
		return ErrNoConversation
	}
	if err := vm.daemon.MarkRead(ctx, conversationID); err != nil {
		return err
	}
	return vm.Refresh(ctx)
}

// Resync renews the token and reloads every conversation.
func (vm *ViewModel) Resync(ctx context.Context) error {
	if err := vm.daemon.Sync(ctx, true); err != nil {
		return err
	}
	vm.Flash.Info("Conversations reloaded")
	return vm.Refresh(ctx)
}

// Status returns the last daemon status.
func (vm *ViewModel) Status() api.StatusView {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.status
}

// Conversations returns a snapshot of the conversation list.
func (vm *ViewModel) Conversations() []api.ConversationView {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.convs
}

// Messages returns a snapshot of the active thread.
func (vm *ViewModel) Messages() []api.MessageView {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.messages
}

// ActiveConversation returns the open thread's id, or "".
func (vm *ViewModel) ActiveConversation() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.active
}

// Title returns the title of conversationID as last listed.
func (vm *ViewModel) Title(conversationID string) string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	for _, c := range vm.convs {
		if c.ID == conversationID {
			return c.Title
		}
	}
	return conversationID
}
