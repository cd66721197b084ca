package socket

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/matheus3301/tutu/internal/status"
	"go.uber.org/zap"
)

const (
	readLimit    = 1 << 20
	writeTimeout = 10 * time.Second
)

// ErrSuperseded is returned by Connect when a later Connect or Disconnect
// took over while the handshake was in flight.
var ErrSuperseded = errors.New("connect superseded")

// Observer receives decoded frames and connection state changes. Callbacks
// run on the socket's goroutines and must not block.
type Observer interface {
	OnFrame(Frame)
	OnStateChange(status.StatusChange)
}

// Socket owns a single WebSocket connection to the chat server.
type Socket struct {
	url     string
	machine *status.Machine
	logger  *zap.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	token    string
	joined   string
	gen      uint64
	observer Observer
}

// New creates a disconnected socket for endpoint, e.g. ws://host/ws/chat.
func New(endpoint string, machine *status.Machine, logger *zap.Logger) *Socket {
	return &Socket{url: endpoint, machine: machine, logger: logger}
}

// SetObserver registers the single observer. Passing nil removes it.
func (s *Socket) SetObserver(o Observer) {
	s.mu.Lock()
	s.observer = o
	s.mu.Unlock()
}

// State returns the current connection state.
func (s *Socket) State() status.State {
	return s.machine.Current()
}

// JoinedRoom returns the room last joined on the live connection.
func (s *Socket) JoinedRoom() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joined
}

// IsJoined reports whether the socket is connected and joined to roomID.
func (s *Socket) IsJoined(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Current() == status.Connected && s.joined == roomID
}

// Connect opens the connection for token. It returns immediately if the
// socket is already connecting or connected with the same token; a
// different token drops the old connection without a close handshake.
func (s *Socket) Connect(ctx context.Context, token string) error {
	endpoint, err := s.endpoint(token)
	if err != nil {
		return err
	}

	s.mu.Lock()
	st := s.machine.Current()
	if st != status.Disconnected && s.token == token {
		s.mu.Unlock()
		return nil
	}
	var changes []status.StatusChange
	old := s.conn
	if st != status.Disconnected {
		s.conn = nil
		s.joined = ""
		changes = s.transition(changes, status.Disconnected)
	}
	s.gen++
	gen := s.gen
	s.token = token
	changes = s.transition(changes, status.Connecting)
	obs := s.observer
	s.mu.Unlock()

	if old != nil {
		_ = old.CloseNow()
	}
	notify(obs, changes)

	conn, _, err := websocket.Dial(ctx, endpoint, nil) //nolint:bodyclose // Dial closes the response body
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		if conn != nil {
			_ = conn.CloseNow()
		}
		return ErrSuperseded
	}
	if err != nil {
		s.token = ""
		changes = s.transition(nil, status.Disconnected)
		obs = s.observer
		s.mu.Unlock()
		notify(obs, changes)
		return fmt.Errorf("dial socket: %w", err)
	}
	conn.SetReadLimit(readLimit)
	s.conn = conn
	changes = s.transition(nil, status.Connected)
	obs = s.observer
	s.mu.Unlock()

	notify(obs, changes)
	s.logger.Info("socket connected")
	go s.readLoop(conn, gen)
	return nil
}

// Join declares interest in roomID. No-op unless connected.
func (s *Socket) Join(ctx context.Context, roomID string) error {
	s.mu.Lock()
	if s.machine.Current() != status.Connected || s.conn == nil {
		s.mu.Unlock()
		return nil
	}
	conn := s.conn
	s.joined = roomID
	s.mu.Unlock()

	return s.write(ctx, conn, Frame{Type: EventJoin, RoomID: roomID})
}

// SendChat sends a chat frame to roomID. No-op unless connected. Delivery
// is not confirmed.
func (s *Socket) SendChat(ctx context.Context, roomID, content string) error {
	s.mu.Lock()
	if s.machine.Current() != status.Connected || s.conn == nil {
		s.mu.Unlock()
		return nil
	}
	conn := s.conn
	s.mu.Unlock()

	return s.write(ctx, conn, Frame{Type: EventChat, RoomID: roomID, Content: content})
}

// Disconnect closes the connection normally and forgets the joined room.
func (s *Socket) Disconnect() {
	s.mu.Lock()
	if s.machine.Current() == status.Disconnected {
		s.mu.Unlock()
		return
	}
	conn := s.conn
	s.conn = nil
	s.joined = ""
	s.token = ""
	s.gen++
	changes := s.transition(nil, status.Disconnected)
	obs := s.observer
	s.mu.Unlock()

	notify(obs, changes)
	if conn != nil {
		if err := conn.Close(websocket.StatusNormalClosure, ""); err != nil {
			s.logger.Debug("socket close", zap.Error(err))
		}
	}
	s.logger.Info("socket disconnected")
}

func (s *Socket) readLoop(conn *websocket.Conn, gen uint64) {
	ctx := context.Background()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			s.mu.Lock()
			if gen != s.gen {
				s.mu.Unlock()
				return
			}
			s.conn = nil
			s.joined = ""
			s.token = ""
			changes := s.transition(nil, status.Disconnected)
			obs := s.observer
			s.mu.Unlock()

			s.logger.Warn("socket receive failed", zap.Error(err))
			_ = conn.CloseNow()
			notify(obs, changes)
			return
		}

		f, ok := decodeFrame(data)
		if !ok {
			s.logger.Debug("dropping undecodable frame", zap.Int("bytes", len(data)))
			continue
		}
		s.mu.Lock()
		obs := s.observer
		s.mu.Unlock()
		if obs != nil {
			obs.OnFrame(f)
		}
	}
}

func (s *Socket) write(ctx context.Context, conn *websocket.Conn, f Frame) error {
	data, err := encodeFrame(f)
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", f.Type, err)
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		s.logger.Debug("socket write failed", zap.String("type", string(f.Type)), zap.Error(err))
		return fmt.Errorf("write %s frame: %w", f.Type, err)
	}
	return nil
}

// transition must be called with s.mu held.
func (s *Socket) transition(changes []status.StatusChange, to status.State) []status.StatusChange {
	change, err := s.machine.Transition(to)
	if err != nil {
		s.logger.Error("socket state", zap.Error(err))
		return changes
	}
	return append(changes, change)
}

func (s *Socket) endpoint(token string) (string, error) {
	u, err := url.Parse(s.url)
	if err != nil {
		return "", fmt.Errorf("parse socket url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func notify(obs Observer, changes []status.StatusChange) {
	if obs == nil {
		return
	}
	for _, c := range changes {
		obs.OnStateChange(c)
	}
}
