package sync

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/tutu/internal/auth"
	"github.com/matheus3301/tutu/internal/bus"
	"github.com/matheus3301/tutu/internal/outbox"
	"github.com/matheus3301/tutu/internal/remote"
	"github.com/matheus3301/tutu/internal/socket"
	"github.com/matheus3301/tutu/internal/status"
	"go.uber.org/zap"
)

var (
	ErrUnknownConversation = errors.New("unknown conversation")
	ErrEmptyMessage        = errors.New("message is empty")
	ErrStopped             = errors.New("sync engine stopped")
)

const (
	// Live copies of a message already present in fetched history are
	// recognised by content and a send time within this window.
	duplicateWindow = 2 * time.Second

	defaultSender = "me"
	unknownSender = "unknown"
)

// Fetcher loads conversation history.
type Fetcher interface {
	FetchConversationSummaries(ctx context.Context, token string) ([]remote.Summary, error)
	FetchMessages(ctx context.Context, conversationID, token string, page, size int) ([]remote.MessageRecord, error)
}

// Transport is the live connection.
type Transport interface {
	Connect(ctx context.Context, token string) error
	Join(ctx context.Context, roomID string) error
	SendChat(ctx context.Context, roomID, content string) error
	Disconnect()
	IsJoined(roomID string) bool
	State() status.State
	SetObserver(o socket.Observer)
}

// ReceiptQueue accepts best-effort read notifications without blocking.
type ReceiptQueue interface {
	Enqueue(r outbox.Receipt) bool
}

// Delivery reports how SendText and SendImage handled a message.
type Delivery int

const (
	DeliveryRejected Delivery = iota
	DeliveryLive
	DeliveryLocal
)

func (d Delivery) String() string {
	switch d {
	case DeliveryLive:
		return "live"
	case DeliveryLocal:
		return "local"
	default:
		return "rejected"
	}
}

// Status is a snapshot of the engine's non-conversation state.
type Status struct {
	Loading    bool
	LastError  error
	Connection status.State
	Synced     bool
	Identity   auth.Session
	Version    uint64
}

// Engine owns the in-memory conversation set. All state is touched only by
// the loop goroutine; public methods hand closures to it and wait, so two
// calls made in sequence take effect in that order. Network calls run on the
// caller's goroutine, outside the loop.
type Engine struct {
	fetcher   Fetcher
	transport Transport
	receipts  ReceiptQueue
	bus       *bus.Bus
	logger    *zap.Logger
	pageSize  int
	now       func() time.Time
	newID     func() string

	ops     chan func()
	cancel  context.CancelFunc
	stopped chan struct{}

	convs       []*Conversation
	identity    auth.Session
	syncedToken string
	syncing     string
	loading     bool
	lastErr     error
	conn        status.State
	pending     []Message
	version     uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithPageSize sets how many messages are fetched per conversation.
func WithPageSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.pageSize = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithIDGenerator overrides how local message ids are made.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) {
		e.newID = newID
	}
}

// NewEngine creates a sync engine. Call Start before using it.
func NewEngine(f Fetcher, t Transport, r ReceiptQueue, b *bus.Bus, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		fetcher:   f,
		transport: t,
		receipts:  r,
		bus:       b,
		logger:    logger,
		pageSize:  remote.DefaultPageSize,
		now:       time.Now,
		newID:     uuid.NewString,
		ops:       make(chan func(), 64),
		stopped:   make(chan struct{}),
		conn:      status.Disconnected,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start runs the owning loop and registers for socket events.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.transport.SetObserver(e)
	go e.loop(ctx)
}

// Stop stops the loop. Calls made afterwards return ErrStopped.
func (e *Engine) Stop() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	<-e.stopped
	e.transport.SetObserver(nil)
}

func (e *Engine) loop(ctx context.Context) {
	defer close(e.stopped)
	for {
		select {
		case fn := <-e.ops:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// do runs fn on the loop and waits for it.
func (e *Engine) do(fn func()) error {
	done := make(chan struct{})
	select {
	case e.ops <- func() { fn(); close(done) }:
	case <-e.stopped:
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-e.stopped:
		return ErrStopped
	}
}

// post queues fn on the loop without waiting for it to run.
func (e *Engine) post(fn func()) {
	select {
	case e.ops <- fn:
	case <-e.stopped:
	}
}

// OnFrame implements socket.Observer.
func (e *Engine) OnFrame(f socket.Frame) {
	e.post(func() { e.ingest(f) })
}

// OnStateChange implements socket.Observer.
func (e *Engine) OnStateChange(c status.StatusChange) {
	e.post(func() {
		e.conn = e.transport.State()
		e.logger.Debug("connection state", zap.String("from", string(c.From)), zap.String("to", string(c.To)))
		if e.bus != nil {
			e.bus.Publish(bus.NewEvent(bus.KindConnectionChanged, e.conn))
		}
		e.version++
	})
}

// SyncFromServer loads every conversation's first history page for s and
// replaces the conversation set. It returns at once when the set was already
// built for s.Token or a sync for that token is running. On failure the
// previous set stays in place and the error is kept as the engine's error.
func (e *Engine) SyncFromServer(ctx context.Context, s auth.Session) error {
	if !s.Valid() {
		return auth.ErrNotAuthenticated
	}
	var skip bool
	if err := e.do(func() {
		if e.syncedToken == s.Token || e.syncing == s.Token {
			skip = true
			return
		}
		e.setIdentity(s)
		e.syncing = s.Token
		e.loading = true
		e.pending = nil
		e.changed()
	}); err != nil {
		return err
	}
	if skip {
		e.logger.Debug("sync skipped, already applied or running")
		return nil
	}

	if err := e.transport.Connect(ctx, s.Token); err != nil {
		e.logger.Warn("live connection unavailable, loading history only", zap.Error(err))
	}

	start := time.Now()
	convs, fetchErr := e.fetchAll(ctx, s.Token)

	var result error
	if err := e.do(func() {
		if e.syncing != s.Token {
			e.logger.Info("discarding superseded sync result")
			result = fetchErr
			return
		}
		e.syncing = ""
		e.loading = false
		defer e.changed()

		if fetchErr != nil {
			e.lastErr = fetchErr
			e.pending = nil
			result = fetchErr
			e.logger.Error("sync failed", zap.Error(fetchErr))
			if e.bus != nil {
				e.bus.Publish(bus.NewEvent(bus.KindSyncFailed, fetchErr))
			}
			return
		}
		replayed := e.replayPending(convs)
		sortByActivity(convs)
		e.convs = convs
		e.syncedToken = s.Token
		e.lastErr = nil
		e.logger.Info("sync complete",
			zap.Int("conversations", len(convs)),
			zap.Int("replayed_live", replayed),
			zap.Duration("took", time.Since(start)),
		)
	}); err != nil {
		return err
	}
	return result
}

func (e *Engine) fetchAll(ctx context.Context, token string) ([]*Conversation, error) {
	summaries, err := e.fetcher.FetchConversationSummaries(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("sync: %w", err)
	}
	convs := make([]*Conversation, 0, len(summaries))
	for _, s := range summaries {
		records, err := e.fetcher.FetchMessages(ctx, s.ConversationID, token, remote.DefaultPage, e.pageSize)
		if err != nil {
			return nil, fmt.Errorf("sync conversation %s: %w", s.ConversationID, err)
		}
		conv := &Conversation{
			ID:            s.ConversationID,
			Title:         s.Title,
			ServerUnread:  s.UnreadCount,
			ServerPreview: s.LastPreview,
			Messages:      make([]Message, 0, len(records)),
		}
		if strings.TrimSpace(conv.Title) == "" {
			conv.Title = "Conversation " + conv.ID
		}
		for _, r := range records {
			conv.Messages = append(conv.Messages, Message{
				ID:             strconv.FormatInt(r.ID, 10),
				ConversationID: s.ConversationID,
				SenderID:       strconv.FormatInt(r.SenderID, 10),
				SentAt:         r.CreatedAt,
				Content:        TextContent(r.Content),
				Read:           true,
			})
		}
		slices.SortStableFunc(conv.Messages, func(a, b Message) int {
			return a.SentAt.Compare(b.SentAt)
		})
		convs = append(convs, conv)
	}
	return convs, nil
}

// replayPending applies live messages that arrived while convs was being
// fetched, skipping those the history already holds. A history message
// absorbs at most one live copy.
func (e *Engine) replayPending(convs []*Conversation) int {
	claimed := make(map[*Conversation][]bool)
	var fresh []Message
	var targets []*Conversation
	for _, m := range e.pending {
		i := slices.IndexFunc(convs, func(c *Conversation) bool { return c.ID == m.ConversationID })
		if i < 0 {
			continue
		}
		c := convs[i]
		if claimed[c] == nil {
			claimed[c] = make([]bool, len(c.Messages))
		}
		if j := e.copyIndex(c, m, claimed[c]); j >= 0 {
			claimed[c][j] = true
			continue
		}
		fresh = append(fresh, m)
		targets = append(targets, c)
	}
	for k, m := range fresh {
		c := targets[k]
		c.insert(m)
		if !m.Read && !e.isMine(m.SenderID) {
			c.UnreadCount++
		}
	}
	e.pending = nil
	return len(fresh)
}

// copyIndex returns the index of an unclaimed history message in c that m
// duplicates, or -1.
func (e *Engine) copyIndex(c *Conversation, m Message, claimed []bool) int {
	mine := e.isMine(m.SenderID)
	for j, h := range c.Messages {
		if claimed[j] {
			continue
		}
		if h.Content.Kind != m.Content.Kind || h.Content.Text != m.Content.Text {
			continue
		}
		if e.isMine(h.SenderID) != mine {
			continue
		}
		if d := h.SentAt.Sub(m.SentAt); d <= duplicateWindow && d >= -duplicateWindow {
			return j
		}
	}
	return -1
}

// JoinConversation connects if needed and joins the conversation's room so
// sends to it go out live.
func (e *Engine) JoinConversation(ctx context.Context, conversationID string, s auth.Session) error {
	if !s.Valid() {
		return auth.ErrNotAuthenticated
	}
	if err := e.do(func() { e.setIdentity(s) }); err != nil {
		return err
	}
	if err := e.transport.Connect(ctx, s.Token); err != nil {
		return fmt.Errorf("join %s: %w", conversationID, err)
	}
	if err := e.transport.Join(ctx, conversationID); err != nil {
		return fmt.Errorf("join %s: %w", conversationID, err)
	}
	return nil
}

// SendText sends text to a conversation. When the socket is joined to that
// conversation the text goes out live and nothing is appended; the server's
// echo adds it. Otherwise a local message is appended.
func (e *Engine) SendText(ctx context.Context, conversationID, text, senderID string) (Delivery, error) {
	if strings.TrimSpace(text) == "" {
		return DeliveryRejected, ErrEmptyMessage
	}
	d := DeliveryRejected
	var derr error
	if err := e.do(func() {
		conv := e.find(conversationID)
		if conv == nil {
			derr = ErrUnknownConversation
			return
		}
		if e.transport.IsJoined(conversationID) {
			d = DeliveryLive
			return
		}
		e.appendLocal(conv, senderID, TextContent(text))
		d = DeliveryLocal
	}); err != nil {
		return DeliveryRejected, err
	}
	if d == DeliveryLive {
		if err := e.transport.SendChat(ctx, conversationID, text); err != nil {
			e.logger.Warn("live send failed", zap.String("conversation_id", conversationID), zap.Error(err))
		}
	}
	return d, derr
}

// SendImage appends an image to a conversation. Images never go out live.
func (e *Engine) SendImage(conversationID string, data []byte, senderID string) (Delivery, error) {
	if len(data) == 0 {
		return DeliveryRejected, ErrEmptyMessage
	}
	d := DeliveryRejected
	var derr error
	if err := e.do(func() {
		conv := e.find(conversationID)
		if conv == nil {
			derr = ErrUnknownConversation
			return
		}
		e.appendLocal(conv, senderID, ImageContent(slices.Clone(data)))
		d = DeliveryLocal
	}); err != nil {
		return DeliveryRejected, err
	}
	return d, derr
}

// MarkConversationAsRead marks every message read and, when signed in,
// queues a read receipt for the newest server message.
func (e *Engine) MarkConversationAsRead(conversationID string) error {
	var derr error
	if err := e.do(func() {
		conv := e.find(conversationID)
		if conv == nil {
			derr = ErrUnknownConversation
			return
		}
		for i := range conv.Messages {
			conv.Messages[i].Read = true
		}
		conv.UnreadCount = 0
		e.markPendingRead(conversationID, "")
		e.queueReceipt(conv)
		e.changed()
	}); err != nil {
		return err
	}
	return derr
}

// MarkMessagesReadOnOpen marks messages from other senders read. Only when
// something changed is the counter reset and a receipt queued. selfID, when
// set, is treated as an extra self identity. It reports whether any message
// was flipped.
func (e *Engine) MarkMessagesReadOnOpen(conversationID, selfID string) (bool, error) {
	var flipped bool
	var derr error
	if err := e.do(func() {
		conv := e.find(conversationID)
		if conv == nil {
			derr = ErrUnknownConversation
			return
		}
		for i, m := range conv.Messages {
			if m.Read || e.isMine(m.SenderID) || (selfID != "" && m.SenderID == selfID) {
				continue
			}
			conv.Messages[i].Read = true
			flipped = true
		}
		if !flipped {
			return
		}
		conv.UnreadCount = e.unreadOf(conv)
		e.markPendingRead(conversationID, selfID)
		e.queueReceipt(conv)
		e.changed()
	}); err != nil {
		return false, err
	}
	return flipped, derr
}

// Reset drops the live connection, the identity and the conversation set.
// The caller runs it on logout, before another login can start a sync.
func (e *Engine) Reset() {
	e.transport.Disconnect()
	_ = e.do(func() {
		e.identity = auth.Session{}
		e.convs = nil
		e.syncedToken = ""
		e.syncing = ""
		e.loading = false
		e.lastErr = nil
		e.pending = nil
		e.changed()
	})
	e.logger.Info("sync engine reset")
}

// Conversations returns a copy of the conversation set, most recent first.
func (e *Engine) Conversations() []Conversation {
	var out []Conversation
	_ = e.do(func() {
		out = make([]Conversation, 0, len(e.convs))
		for _, c := range e.convs {
			out = append(out, c.clone())
		}
	})
	return out
}

// Conversation returns a copy of one conversation.
func (e *Engine) Conversation(conversationID string) (Conversation, bool) {
	var out Conversation
	var ok bool
	_ = e.do(func() {
		if c := e.find(conversationID); c != nil {
			out, ok = c.clone(), true
		}
	})
	return out, ok
}

// Messages returns a conversation's messages ordered by send time.
func (e *Engine) Messages(conversationID string) []Message {
	c, _ := e.Conversation(conversationID)
	return c.Messages
}

// TotalUnread sums the unread counters of all conversations.
func (e *Engine) TotalUnread() int {
	total := 0
	_ = e.do(func() {
		for _, c := range e.convs {
			total += c.UnreadCount
		}
	})
	return total
}

// Status returns the engine's loading, error and connection state.
func (e *Engine) Status() Status {
	var st Status
	_ = e.do(func() {
		st = Status{
			Loading:    e.loading,
			LastError:  e.lastErr,
			Connection: e.conn,
			Synced:     e.syncedToken != "",
			Identity:   e.identity,
			Version:    e.version,
		}
	})
	return st
}

func (e *Engine) ingest(f socket.Frame) {
	if f.Type != socket.EventChat || f.RoomID == "" {
		return
	}
	sender := f.From
	if sender == "" {
		sender = unknownSender
	}
	sentAt := e.now()
	if f.Timestamp > 0 {
		sentAt = time.UnixMilli(f.Timestamp)
	}
	m := Message{
		ID:             e.newID(),
		ConversationID: f.RoomID,
		SenderID:       sender,
		SentAt:         sentAt,
		Content:        TextContent(f.Content),
		Read:           e.isMine(sender),
	}
	if e.syncing != "" {
		e.pending = append(e.pending, m)
	}

	conv := e.find(f.RoomID)
	if conv == nil {
		e.logger.Debug("dropping live message for unknown conversation", zap.String("conversation_id", f.RoomID))
		return
	}
	e.appendMessage(conv, m)
}

func (e *Engine) appendLocal(conv *Conversation, senderID string, content Content) {
	if senderID == "" {
		senderID = e.localSender()
	}
	e.appendMessage(conv, Message{
		ID:             e.newID(),
		ConversationID: conv.ID,
		SenderID:       senderID,
		SentAt:         e.now(),
		Content:        content,
		Read:           true,
	})
}

func (e *Engine) appendMessage(conv *Conversation, m Message) {
	conv.insert(m)
	if !m.Read && !e.isMine(m.SenderID) {
		conv.UnreadCount++
	}
	sortByActivity(e.convs)
	e.changed()
}

func (e *Engine) queueReceipt(conv *Conversation) {
	if !e.identity.Valid() || e.receipts == nil {
		return
	}
	r := outbox.Receipt{ConversationID: conv.ID, Token: e.identity.Token}
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		if id, err := strconv.ParseInt(conv.Messages[i].ID, 10, 64); err == nil {
			r.LastReadMessageID = &id
			break
		}
	}
	e.receipts.Enqueue(r)
}

// markPendingRead keeps buffered live messages in step with a read made
// while a sync is running. An empty selfID marks all of them.
func (e *Engine) markPendingRead(conversationID, selfID string) {
	for i, m := range e.pending {
		if m.ConversationID != conversationID {
			continue
		}
		if selfID != "" && m.SenderID == selfID {
			continue
		}
		e.pending[i].Read = true
	}
}

func (e *Engine) setIdentity(s auth.Session) {
	if e.identity == s {
		return
	}
	e.identity = s
	for _, c := range e.convs {
		c.UnreadCount = e.unreadOf(c)
	}
}

func (e *Engine) isMine(sender string) bool {
	return e.identity.IsSelf(sender)
}

func (e *Engine) localSender() string {
	if e.identity.UserID != 0 {
		return strconv.FormatInt(e.identity.UserID, 10)
	}
	if e.identity.Username != "" {
		return e.identity.Username
	}
	return defaultSender
}

func (e *Engine) unreadOf(c *Conversation) int {
	n := 0
	for _, m := range c.Messages {
		if !m.Read && !e.isMine(m.SenderID) {
			n++
		}
	}
	return n
}

func (e *Engine) find(conversationID string) *Conversation {
	for _, c := range e.convs {
		if c.ID == conversationID {
			return c
		}
	}
	return nil
}

func (e *Engine) changed() {
	e.version++
	if e.bus != nil {
		e.bus.Publish(bus.NewEvent(bus.KindConversationsChanged, e.version))
	}
}
