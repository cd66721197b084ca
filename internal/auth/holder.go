package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/matheus3301/tutu/internal/bus"
	"github.com/matheus3301/tutu/internal/store"
	"go.uber.org/zap"
)

var (
	ErrUsernameRequired = errors.New("username is required")
	ErrPasswordRequired = errors.New("password is required")
	ErrNotAuthenticated = errors.New("not signed in")
)

// KV is the persistent slot the holder saves the session into.
type KV interface {
	Put(key, value string) error
	Get(key string) (string, error)
	Delete(key string) error
}

// Authenticator exchanges credentials for a session.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (Session, error)
	Refresh(ctx context.Context, token string) (Session, error)
}

// Holder owns the process-wide current session.
type Holder struct {
	mu      sync.RWMutex
	current Session
	kv      KV
	api     Authenticator
	bus     *bus.Bus
	logger  *zap.Logger
}

// NewHolder creates an unauthenticated holder. Call Restore to load a saved session.
func NewHolder(kv KV, api Authenticator, b *bus.Bus, logger *zap.Logger) *Holder {
	return &Holder{kv: kv, api: api, bus: b, logger: logger}
}

// Restore loads the saved session. A missing or unreadable record leaves the
// holder unauthenticated.
func (h *Holder) Restore() (Session, bool) {
	raw, err := h.kv.Get(StorageKey)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			h.logger.Warn("read saved session", zap.Error(err))
		}
		return Session{}, false
	}
	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil || !s.Valid() {
		h.logger.Warn("discarding unreadable saved session", zap.Error(err))
		return Session{}, false
	}

	h.mu.Lock()
	h.current = s
	h.mu.Unlock()
	h.logger.Info("session restored", zap.Int64("user_id", s.UserID), zap.String("username", s.Username))
	return s, true
}

// Current returns the session and whether one is held.
func (h *Holder) Current() (Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current, h.current.Valid()
}

// Login validates the credentials locally, authenticates, and replaces the
// current session.
func (h *Holder) Login(ctx context.Context, username, password string) (Session, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return Session{}, ErrUsernameRequired
	}
	if password == "" {
		return Session{}, ErrPasswordRequired
	}
	s, err := h.api.Login(ctx, username, password)
	if err != nil {
		return Session{}, fmt.Errorf("login: %w", err)
	}
	if err := h.replace(s); err != nil {
		return Session{}, err
	}
	h.logger.Info("logged in", zap.Int64("user_id", s.UserID), zap.String("username", s.Username))
	return s, nil
}

// Refresh renews the token. On failure the current session is left as is.
func (h *Holder) Refresh(ctx context.Context) (Session, error) {
	cur, ok := h.Current()
	if !ok {
		return Session{}, ErrNotAuthenticated
	}
	s, err := h.api.Refresh(ctx, cur.Token)
	if err != nil {
		h.logger.Warn("token refresh failed", zap.Error(err))
		return cur, fmt.Errorf("refresh: %w", err)
	}
	if err := h.replace(s); err != nil {
		return cur, err
	}
	return s, nil
}

// Logout forgets the session in memory and in storage.
func (h *Holder) Logout() error {
	h.mu.Lock()
	h.current = Session{}
	h.mu.Unlock()

	err := h.kv.Delete(StorageKey)
	if h.bus != nil {
		h.bus.Publish(bus.NewEvent(bus.KindLoggedOut, nil))
	}
	if err != nil {
		return fmt.Errorf("clear saved session: %w", err)
	}
	h.logger.Info("logged out")
	return nil
}

func (h *Holder) replace(s Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := h.kv.Put(StorageKey, string(data)); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	h.mu.Lock()
	h.current = s
	h.mu.Unlock()
	if h.bus != nil {
		h.bus.Publish(bus.NewEvent(bus.KindSessionChanged, s))
	}
	return nil
}
