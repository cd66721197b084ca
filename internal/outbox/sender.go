package outbox

import (
	"context"
	"time"

	"github.com/matheus3301/tutu/internal/bus"
	"go.uber.org/zap"
)

const (
	queueSize   = 64
	sendTimeout = 10 * time.Second
)

// ReadMarker delivers a read cursor to the server.
type ReadMarker interface {
	MarkRead(ctx context.Context, conversationID string, lastReadMessageID *int64, token string) error
}

// Receipt is a pending read notification. A nil LastReadMessageID marks the
// whole conversation.
type Receipt struct {
	ConversationID    string
	LastReadMessageID *int64
	Token             string
}

// ReceiptResult is the payload of receipt.sent and receipt.failed events.
type ReceiptResult struct {
	ConversationID string
	Err            error
}

// Sender delivers read receipts in the background. Delivery is best effort:
// failures are logged and dropped, never retried.
type Sender struct {
	marker ReadMarker
	bus    *bus.Bus
	logger *zap.Logger
	queue  chan Receipt
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSender creates a receipt sender. Call Start before Enqueue.
func NewSender(marker ReadMarker, b *bus.Bus, logger *zap.Logger) *Sender {
	return &Sender{
		marker: marker,
		bus:    b,
		logger: logger,
		queue:  make(chan Receipt, queueSize),
	}
}

// Start begins draining the queue.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx)
}

// Stop stops the sender loop and waits for the in-flight receipt.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

// Enqueue schedules r without blocking. It reports false if the queue is full.
func (s *Sender) Enqueue(r Receipt) bool {
	select {
	case s.queue <- r:
		return true
	default:
		s.logger.Debug("receipt queue full, dropping", zap.String("conversation_id", r.ConversationID))
		return false
	}
}

func (s *Sender) loop(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case r := <-s.queue:
			s.deliver(ctx, r)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sender) deliver(ctx context.Context, r Receipt) {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	err := s.marker.MarkRead(ctx, r.ConversationID, r.LastReadMessageID, r.Token)
	kind := bus.KindReceiptSent
	if err != nil {
		kind = bus.KindReceiptFailed
		s.logger.Debug("read receipt failed", zap.String("conversation_id", r.ConversationID), zap.Error(err))
	}
	if s.bus != nil {
		s.bus.Publish(bus.NewEvent(kind, ReceiptResult{ConversationID: r.ConversationID, Err: err}))
	}
}
