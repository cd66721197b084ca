package sync

import (
	"context"
	stdsync "sync"

	"github.com/matheus3301/tutu/internal/outbox"
	"github.com/matheus3301/tutu/internal/remote"
	"github.com/matheus3301/tutu/internal/socket"
	"github.com/matheus3301/tutu/internal/status"
)

type fakeFetcher struct {
	mu           stdsync.Mutex
	summaries    []remote.Summary
	pages        map[string][]remote.MessageRecord
	err          error
	summaryCalls int
	pageCalls    int
	lastSize     int
	gate         chan struct{}
	started      chan struct{}
	startedOnce  stdsync.Once
}

func (f *fakeFetcher) FetchConversationSummaries(ctx context.Context, token string) ([]remote.Summary, error) {
	f.mu.Lock()
	f.summaryCalls++
	gate := f.gate
	f.mu.Unlock()

	if f.started != nil {
		f.startedOnce.Do(func() { close(f.started) })
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]remote.Summary(nil), f.summaries...), nil
}

func (f *fakeFetcher) FetchMessages(ctx context.Context, conversationID, token string, page, size int) ([]remote.MessageRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageCalls++
	f.lastSize = size
	return append([]remote.MessageRecord(nil), f.pages[conversationID]...), nil
}

func (f *fakeFetcher) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.summaryCalls, f.pageCalls
}

func (f *fakeFetcher) set(fn func(f *fakeFetcher)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

type chatFrame struct {
	room    string
	content string
}

type fakeTransport struct {
	mu         stdsync.Mutex
	state      status.State
	token      string
	joined     string
	connectErr error
	connects   int
	sent       []chatFrame
	observer   socket.Observer
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{state: status.Disconnected}
}

func (t *fakeTransport) Connect(ctx context.Context, token string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connects++
	if t.connectErr != nil {
		t.state = status.Disconnected
		return t.connectErr
	}
	if t.token != token {
		t.joined = ""
	}
	t.token = token
	t.state = status.Connected
	return nil
}

func (t *fakeTransport) Join(ctx context.Context, roomID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == status.Connected {
		t.joined = roomID
	}
	return nil
}

func (t *fakeTransport) SendChat(ctx context.Context, roomID, content string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == status.Connected {
		t.sent = append(t.sent, chatFrame{room: roomID, content: content})
	}
	return nil
}

func (t *fakeTransport) Disconnect() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = status.Disconnected
	t.joined = ""
	t.token = ""
}

func (t *fakeTransport) IsJoined(roomID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == status.Connected && t.joined == roomID
}

func (t *fakeTransport) State() status.State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *fakeTransport) SetObserver(o socket.Observer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observer = o
}

func (t *fakeTransport) emit(f socket.Frame) {
	t.mu.Lock()
	obs := t.observer
	t.mu.Unlock()
	obs.OnFrame(f)
}

func (t *fakeTransport) sentFrames() []chatFrame {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]chatFrame(nil), t.sent...)
}

type fakeReceipts struct {
	mu       stdsync.Mutex
	receipts []outbox.Receipt
}

func (r *fakeReceipts) Enqueue(rc outbox.Receipt) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receipts = append(r.receipts, rc)
	return true
}

func (r *fakeReceipts) all() []outbox.Receipt {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]outbox.Receipt(nil), r.receipts...)
}
