package sync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/matheus3301/tutu/internal/auth"
	"github.com/matheus3301/tutu/internal/bus"
	"github.com/matheus3301/tutu/internal/remote"
	"github.com/matheus3301/tutu/internal/socket"
	"github.com/matheus3301/tutu/internal/status"
	"go.uber.org/zap"
)

var (
	base  = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	alice = auth.Session{Token: "tok-a", UserID: 1, Username: "alice"}
)

type harness struct {
	e        *Engine
	fetcher  *fakeFetcher
	tr       *fakeTransport
	receipts *fakeReceipts
	bus      *bus.Bus
	clock    time.Time
	ids      int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		fetcher: &fakeFetcher{
			summaries: []remote.Summary{
				{ConversationID: "7", Title: "Conversation 7", UnreadCount: 3},
				{ConversationID: "8", Title: "Bob", UnreadCount: 0},
				{ConversationID: "9", Title: "Empty"},
			},
			pages: map[string][]remote.MessageRecord{
				"7": {
					{ID: 71, ConversationID: 7, SenderID: 2, Content: "hello", CreatedAt: base.Add(-10 * time.Minute)},
				},
				"8": {
					{ID: 82, ConversationID: 8, SenderID: 1, Content: "later", CreatedAt: base.Add(-1 * time.Minute)},
					{ID: 81, ConversationID: 8, SenderID: 3, Content: "earlier", CreatedAt: base.Add(-5 * time.Minute)},
				},
			},
		},
		tr:       newFakeTransport(),
		receipts: &fakeReceipts{},
		bus:      bus.New(),
		clock:    base,
	}
	h.e = NewEngine(h.fetcher, h.tr, h.receipts, h.bus, zap.NewNop(),
		WithPageSize(50),
		WithClock(func() time.Time { return h.clock }),
		WithIDGenerator(func() string {
			h.ids++
			return fmt.Sprintf("local-%d", h.ids)
		}),
	)
	h.e.Start(context.Background())
	t.Cleanup(h.e.Stop)
	return h
}

func (h *harness) sync(t *testing.T) {
	t.Helper()
	if err := h.e.SyncFromServer(context.Background(), alice); err != nil {
		t.Fatalf("SyncFromServer() error = %v", err)
	}
	h.checkUnread(t)
}

// checkUnread asserts that every stored counter equals the number of unread
// messages from other senders.
func (h *harness) checkUnread(t *testing.T) {
	t.Helper()
	self := h.e.Status().Identity
	for _, c := range h.e.Conversations() {
		want := 0
		for _, m := range c.Messages {
			if !m.Read && !self.IsSelf(m.SenderID) {
				want++
			}
		}
		if c.UnreadCount != want {
			t.Errorf("conversation %s UnreadCount = %d, want %d", c.ID, c.UnreadCount, want)
		}
	}
}

func ids(convs []Conversation) []string {
	out := make([]string, 0, len(convs))
	for _, c := range convs {
		out = append(out, c.ID)
	}
	return out
}

func sameIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSyncBuildsConversations(t *testing.T) {
	h := newHarness(t)
	h.fetcher.set(func(f *fakeFetcher) { f.summaries[0].Title = "" })
	h.sync(t)

	convs := h.e.Conversations()
	if got := ids(convs); !sameIDs(got, []string{"8", "7", "9"}) {
		t.Fatalf("order = %v, want [8 7 9]", got)
	}

	c7 := convs[1]
	if c7.Title != "Conversation 7" {
		t.Errorf("title = %q, want placeholder", c7.Title)
	}
	if c7.UnreadCount != 0 || c7.ServerUnread != 3 {
		t.Errorf("UnreadCount = %d ServerUnread = %d, want 0 and 3", c7.UnreadCount, c7.ServerUnread)
	}
	if len(c7.Messages) != 1 || !c7.Messages[0].Read || c7.Messages[0].Content.Kind != ContentText {
		t.Errorf("messages = %+v", c7.Messages)
	}

	c8 := convs[0]
	if c8.Messages[0].ID != "81" || c8.Messages[1].ID != "82" {
		t.Errorf("history not ordered by send time: %+v", c8.Messages)
	}
	if h.fetcher.lastSize != 50 {
		t.Errorf("page size = %d, want 50", h.fetcher.lastSize)
	}

	st := h.e.Status()
	if st.Loading || st.LastError != nil || !st.Synced {
		t.Errorf("status = %+v", st)
	}
	if st.Identity != alice {
		t.Errorf("identity = %+v", st.Identity)
	}
}

func TestSyncTwiceWithSameTokenFetchesOnce(t *testing.T) {
	h := newHarness(t)
	h.sync(t)
	h.sync(t)

	summaries, pages := h.fetcher.calls()
	if summaries != 1 || pages != 3 {
		t.Errorf("calls = %d summaries, %d pages; want 1 and 3", summaries, pages)
	}
}

func TestSyncInFlightIsNotDuplicated(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.fetcher.set(func(f *fakeFetcher) {
		f.gate = gate
		f.started = make(chan struct{})
	})

	errc := make(chan error, 1)
	go func() { errc <- h.e.SyncFromServer(context.Background(), alice) }()
	<-h.fetcher.started

	if !h.e.Status().Loading {
		t.Error("Loading = false during sync")
	}
	if err := h.e.SyncFromServer(context.Background(), alice); err != nil {
		t.Fatalf("second SyncFromServer() error = %v", err)
	}
	close(gate)
	if err := <-errc; err != nil {
		t.Fatalf("first SyncFromServer() error = %v", err)
	}

	if summaries, _ := h.fetcher.calls(); summaries != 1 {
		t.Errorf("summary fetches = %d, want 1", summaries)
	}
	if h.e.Status().Loading {
		t.Error("Loading stuck after sync")
	}
}

func TestSyncFailureKeepsPreviousSet(t *testing.T) {
	h := newHarness(t)
	h.sync(t)
	before := ids(h.e.Conversations())

	h.fetcher.set(func(f *fakeFetcher) {
		f.err = &remote.Error{Kind: remote.KindServer, Op: "fetch conversations", Status: 500, Message: "boom"}
	})
	bob := auth.Session{Token: "tok-b", UserID: 1, Username: "alice"}
	err := h.e.SyncFromServer(context.Background(), bob)
	if !remote.IsKind(err, remote.KindServer) {
		t.Fatalf("error = %v, want server error", err)
	}

	if got := ids(h.e.Conversations()); !sameIDs(got, before) {
		t.Errorf("conversations = %v, want previous %v", got, before)
	}
	st := h.e.Status()
	if st.Loading {
		t.Error("Loading not reset after failure")
	}
	if !remote.IsKind(st.LastError, remote.KindServer) {
		t.Errorf("LastError = %v", st.LastError)
	}

	// A later success clears the error.
	h.fetcher.set(func(f *fakeFetcher) { f.err = nil })
	if err := h.e.SyncFromServer(context.Background(), bob); err != nil {
		t.Fatal(err)
	}
	if st := h.e.Status(); st.LastError != nil {
		t.Errorf("LastError = %v after successful retry", st.LastError)
	}
}

func TestSyncContinuesWhenSocketFails(t *testing.T) {
	h := newHarness(t)
	h.tr.connectErr = errors.New("refused")
	h.sync(t)

	if n := len(h.e.Conversations()); n != 3 {
		t.Errorf("got %d conversations, want 3", n)
	}
}

func TestSyncRejectsMissingSession(t *testing.T) {
	h := newHarness(t)
	if err := h.e.SyncFromServer(context.Background(), auth.Session{}); !errors.Is(err, auth.ErrNotAuthenticated) {
		t.Errorf("error = %v, want ErrNotAuthenticated", err)
	}
}

func TestSendTextEmptyIsNoop(t *testing.T) {
	h := newHarness(t)
	h.sync(t)
	before := h.e.Status().Version

	for _, text := range []string{"", "   ", "\n\t"} {
		d, err := h.e.SendText(context.Background(), "7", text, "")
		if d != DeliveryRejected || !errors.Is(err, ErrEmptyMessage) {
			t.Errorf("SendText(%q) = %v, %v", text, d, err)
		}
	}
	if n := len(h.e.Messages("7")); n != 1 {
		t.Errorf("messages = %d, want 1", n)
	}
	if len(h.tr.sentFrames()) != 0 {
		t.Error("empty text reached the socket")
	}
	if h.e.Status().Version != before {
		t.Error("empty text changed engine state")
	}
}

func TestSendTextUnknownConversation(t *testing.T) {
	h := newHarness(t)
	h.sync(t)

	d, err := h.e.SendText(context.Background(), "404", "hi", "")
	if d != DeliveryRejected || !errors.Is(err, ErrUnknownConversation) {
		t.Errorf("SendText() = %v, %v", d, err)
	}
}

func TestSendTextLiveWhenJoined(t *testing.T) {
	h := newHarness(t)
	h.sync(t)
	if err := h.e.JoinConversation(context.Background(), "7", alice); err != nil {
		t.Fatal(err)
	}

	d, err := h.e.SendText(context.Background(), "7", "hi there", "")
	if err != nil || d != DeliveryLive {
		t.Fatalf("SendText() = %v, %v; want live", d, err)
	}
	if n := len(h.e.Messages("7")); n != 1 {
		t.Errorf("messages = %d, want 1 (no local append)", n)
	}
	sent := h.tr.sentFrames()
	if len(sent) != 1 || sent[0].room != "7" || sent[0].content != "hi there" {
		t.Errorf("sent = %+v", sent)
	}

	// The server echo is what appends the message.
	h.tr.emit(socket.Frame{Type: socket.EventChat, RoomID: "7", From: "1", Content: "hi there", Timestamp: base.UnixMilli()})
	msgs := h.e.Messages("7")
	if len(msgs) != 2 || msgs[1].Content.Text != "hi there" || !msgs[1].Read {
		t.Errorf("messages after echo = %+v", msgs)
	}
	h.checkUnread(t)
}

func TestSendTextLocalWhenNotJoined(t *testing.T) {
	h := newHarness(t)
	h.sync(t)
	if err := h.e.JoinConversation(context.Background(), "8", alice); err != nil {
		t.Fatal(err)
	}

	d, err := h.e.SendText(context.Background(), "9", "first words", "")
	if err != nil || d != DeliveryLocal {
		t.Fatalf("SendText() = %v, %v; want local", d, err)
	}
	msgs := h.e.Messages("9")
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(msgs))
	}
	m := msgs[0]
	if m.ID != "local-1" || !m.Read || m.SenderID != "1" || !m.SentAt.Equal(base) || m.Content.Text != "first words" {
		t.Errorf("local message = %+v", m)
	}
	if got := ids(h.e.Conversations()); got[0] != "9" {
		t.Errorf("order = %v, want 9 first", got)
	}
	if len(h.tr.sentFrames()) != 0 {
		t.Error("local send reached the socket")
	}
	h.checkUnread(t)
}

func TestSequentialSendsKeepCallOrder(t *testing.T) {
	h := newHarness(t)
	h.sync(t)

	for _, text := range []string{"one", "two", "three"} {
		if _, err := h.e.SendText(context.Background(), "7", text, "me"); err != nil {
			t.Fatal(err)
		}
	}
	msgs := h.e.Messages("7")
	var got []string
	for _, m := range msgs[1:] {
		got = append(got, m.Content.Text)
	}
	if !sameIDs(got, []string{"one", "two", "three"}) {
		t.Errorf("order = %v", got)
	}
}

func TestSendImageAlwaysLocal(t *testing.T) {
	h := newHarness(t)
	h.sync(t)
	if err := h.e.JoinConversation(context.Background(), "7", alice); err != nil {
		t.Fatal(err)
	}

	d, err := h.e.SendImage("7", []byte{0x89, 'P', 'N', 'G'}, "")
	if err != nil || d != DeliveryLocal {
		t.Fatalf("SendImage() = %v, %v", d, err)
	}
	c, _ := h.e.Conversation("7")
	if c.LastMessagePreview() != "[image]" {
		t.Errorf("preview = %q", c.LastMessagePreview())
	}
	if len(h.tr.sentFrames()) != 0 {
		t.Error("image went out live")
	}

	if _, err := h.e.SendImage("7", nil, ""); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("empty image error = %v", err)
	}
}

func TestLiveEventIngestion(t *testing.T) {
	h := newHarness(t)
	h.sync(t)

	h.tr.emit(socket.Frame{Type: socket.EventChat, RoomID: "9", From: "5", Content: "ping", Timestamp: base.UnixMilli()})
	c, _ := h.e.Conversation("9")
	if c.UnreadCount != 1 || len(c.Messages) != 1 || c.Messages[0].Read {
		t.Errorf("conversation 9 = %+v", c)
	}
	if got := ids(h.e.Conversations()); got[0] != "9" {
		t.Errorf("order = %v, want 9 first", got)
	}

	// Self by username, self by id: no unread change.
	h.tr.emit(socket.Frame{Type: socket.EventChat, RoomID: "9", From: "alice", Content: "a"})
	h.tr.emit(socket.Frame{Type: socket.EventChat, RoomID: "9", From: "1", Content: "b"})
	if c, _ := h.e.Conversation("9"); c.UnreadCount != 1 || len(c.Messages) != 3 {
		t.Errorf("after self echoes: unread = %d, messages = %d", c.UnreadCount, len(c.Messages))
	}

	// Defaults.
	h.clock = base.Add(time.Minute)
	h.tr.emit(socket.Frame{Type: socket.EventChat, RoomID: "8"})
	c8, _ := h.e.Conversation("8")
	last := c8.Messages[len(c8.Messages)-1]
	if last.SenderID != "unknown" || last.Content.Text != "" || !last.SentAt.Equal(h.clock) {
		t.Errorf("defaults = %+v", last)
	}
	if c8.UnreadCount != 1 {
		t.Errorf("unknown sender counted as self")
	}
	h.checkUnread(t)
}

func TestLiveEventsIgnored(t *testing.T) {
	h := newHarness(t)
	h.sync(t)
	before := h.e.Conversations()

	for _, f := range []socket.Frame{
		{Type: socket.EventChat, RoomID: "404", From: "5", Content: "lost"},
		{Type: socket.EventChat, RoomID: "", From: "5", Content: "no room"},
		{Type: socket.EventSystem, RoomID: "7", Content: "joined"},
		{Type: socket.EventPing},
		{Type: socket.EventJoin, RoomID: "7"},
	} {
		h.tr.emit(f)
	}

	after := h.e.Conversations()
	if len(after) != len(before) {
		t.Fatalf("conversation count %d -> %d", len(before), len(after))
	}
	for i := range after {
		if len(after[i].Messages) != len(before[i].Messages) {
			t.Errorf("conversation %s gained messages", after[i].ID)
		}
	}
}

func TestLiveEventDuringSyncIsNotLostOrDuplicated(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.fetcher.set(func(f *fakeFetcher) {
		f.gate = gate
		f.started = make(chan struct{})
	})

	errc := make(chan error, 1)
	go func() { errc <- h.e.SyncFromServer(context.Background(), alice) }()
	<-h.fetcher.started

	// New message, unknown to history.
	h.tr.emit(socket.Frame{Type: socket.EventChat, RoomID: "7", From: "2", Content: "fresh", Timestamp: base.UnixMilli()})
	// Copy of a message history already holds.
	h.tr.emit(socket.Frame{Type: socket.EventChat, RoomID: "7", From: "2", Content: "hello",
		Timestamp: base.Add(-10*time.Minute + time.Second).UnixMilli()})
	_ = h.e.Status()

	close(gate)
	if err := <-errc; err != nil {
		t.Fatal(err)
	}

	msgs := h.e.Messages("7")
	if len(msgs) != 2 {
		t.Fatalf("messages = %+v, want history + one live", msgs)
	}
	if msgs[1].Content.Text != "fresh" || msgs[1].Read {
		t.Errorf("live message = %+v", msgs[1])
	}
	c, _ := h.e.Conversation("7")
	if c.UnreadCount != 1 {
		t.Errorf("UnreadCount = %d, want 1", c.UnreadCount)
	}
	h.checkUnread(t)
}

func TestRepeatedLiveEventsDuringSyncEachNeedTheirOwnCopy(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.fetcher.set(func(f *fakeFetcher) {
		f.gate = gate
		f.started = make(chan struct{})
	})

	errc := make(chan error, 1)
	go func() { errc <- h.e.SyncFromServer(context.Background(), alice) }()
	<-h.fetcher.started

	// History holds one "hello" from 2; two arrive live within the window.
	sent := base.Add(-10 * time.Minute)
	h.tr.emit(socket.Frame{Type: socket.EventChat, RoomID: "7", From: "2", Content: "hello", Timestamp: sent.UnixMilli()})
	h.tr.emit(socket.Frame{Type: socket.EventChat, RoomID: "7", From: "2", Content: "hello", Timestamp: sent.Add(time.Second).UnixMilli()})
	_ = h.e.Status()

	close(gate)
	if err := <-errc; err != nil {
		t.Fatal(err)
	}

	msgs := h.e.Messages("7")
	if len(msgs) != 2 {
		t.Fatalf("messages = %+v, want the history copy plus the second live one", msgs)
	}
	for _, m := range msgs {
		if m.Content.Text != "hello" {
			t.Errorf("message = %+v", m)
		}
	}
	if !msgs[1].SentAt.Equal(sent.Add(time.Second)) || msgs[1].Read {
		t.Errorf("replayed message = %+v", msgs[1])
	}
	h.checkUnread(t)
}

func TestMarkConversationAsRead(t *testing.T) {
	h := newHarness(t)
	h.sync(t)
	h.tr.emit(socket.Frame{Type: socket.EventChat, RoomID: "7", From: "2", Content: "x", Timestamp: base.UnixMilli()})
	if _, err := h.e.SendText(context.Background(), "7", "local", ""); err != nil {
		t.Fatal(err)
	}

	if err := h.e.MarkConversationAsRead("7"); err != nil {
		t.Fatal(err)
	}
	c, _ := h.e.Conversation("7")
	if c.UnreadCount != 0 {
		t.Errorf("UnreadCount = %d", c.UnreadCount)
	}
	for _, m := range c.Messages {
		if !m.Read {
			t.Errorf("message %s still unread", m.ID)
		}
	}

	rs := h.receipts.all()
	if len(rs) != 1 {
		t.Fatalf("receipts = %d, want 1", len(rs))
	}
	if rs[0].ConversationID != "7" || rs[0].Token != alice.Token || rs[0].LastReadMessageID == nil || *rs[0].LastReadMessageID != 71 {
		t.Errorf("receipt = %+v", rs[0])
	}

	if err := h.e.MarkConversationAsRead("404"); !errors.Is(err, ErrUnknownConversation) {
		t.Errorf("unknown conversation error = %v", err)
	}
}

func TestMarkMessagesReadOnOpen(t *testing.T) {
	h := newHarness(t)
	h.sync(t)

	flipped, err := h.e.MarkMessagesReadOnOpen("7", "")
	if err != nil || flipped {
		t.Fatalf("MarkMessagesReadOnOpen() on read thread = %v, %v", flipped, err)
	}
	if n := len(h.receipts.all()); n != 0 {
		t.Errorf("receipts = %d, want none for an already read thread", n)
	}

	h.tr.emit(socket.Frame{Type: socket.EventChat, RoomID: "7", From: "2", Content: "new", Timestamp: base.UnixMilli()})
	h.tr.emit(socket.Frame{Type: socket.EventChat, RoomID: "7", From: "2", Content: "newer", Timestamp: base.Add(time.Second).UnixMilli()})
	if got := h.e.TotalUnread(); got != 2 {
		t.Errorf("TotalUnread() = %d, want 2", got)
	}

	flipped, err = h.e.MarkMessagesReadOnOpen("7", "1")
	if err != nil || !flipped {
		t.Fatalf("MarkMessagesReadOnOpen() = %v, %v", flipped, err)
	}
	if got := h.e.TotalUnread(); got != 0 {
		t.Errorf("TotalUnread() = %d, want 0", got)
	}
	if n := len(h.receipts.all()); n != 1 {
		t.Errorf("receipts = %d, want 1", n)
	}
	h.checkUnread(t)
}

func TestReceiptNeedsSession(t *testing.T) {
	h := newHarness(t)
	h.sync(t)
	h.e.Reset()

	if err := h.e.MarkConversationAsRead("7"); !errors.Is(err, ErrUnknownConversation) {
		t.Errorf("error = %v, want ErrUnknownConversation after reset", err)
	}
	if n := len(h.receipts.all()); n != 0 {
		t.Errorf("receipts = %d after reset", n)
	}
}

func TestResetDropsSessionState(t *testing.T) {
	h := newHarness(t)
	h.sync(t)
	if err := h.e.JoinConversation(context.Background(), "7", alice); err != nil {
		t.Fatal(err)
	}

	h.e.Reset()
	if n := len(h.e.Conversations()); n != 0 {
		t.Errorf("conversations after reset = %d, want 0", n)
	}
	st := h.e.Status()
	if st.Synced || st.Identity.Valid() {
		t.Errorf("status after reset = %+v", st)
	}
	if h.tr.State() != status.Disconnected {
		t.Errorf("socket state = %s, want disconnected", h.tr.State())
	}

	// A new sync with the same token fetches again.
	h.sync(t)
	if summaries, _ := h.fetcher.calls(); summaries != 2 {
		t.Errorf("summary fetches = %d, want 2", summaries)
	}
}

func TestResetDiscardsSyncInFlight(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.fetcher.set(func(f *fakeFetcher) {
		f.gate = gate
		f.started = make(chan struct{})
	})

	errc := make(chan error, 1)
	go func() { errc <- h.e.SyncFromServer(context.Background(), alice) }()
	<-h.fetcher.started

	h.e.Reset()
	close(gate)
	if err := <-errc; err != nil {
		t.Fatal(err)
	}
	if n := len(h.e.Conversations()); n != 0 {
		t.Errorf("conversations = %d, want the superseded result discarded", n)
	}
	if st := h.e.Status(); st.Synced || st.Loading {
		t.Errorf("status = %+v", st)
	}
}

func TestStoppedEngine(t *testing.T) {
	h := newHarness(t)
	h.e.Stop()

	if _, err := h.e.SendText(context.Background(), "7", "x", ""); !errors.Is(err, ErrStopped) {
		t.Errorf("error = %v, want ErrStopped", err)
	}
	if got := h.e.Conversations(); got != nil {
		t.Errorf("Conversations() = %v, want nil", got)
	}
}
