package api

import (
	"time"

	intsync "github.com/matheus3301/tutu/internal/sync"
	"google.golang.org/protobuf/types/known/structpb"
)

// ConversationView is a conversation list row.
type ConversationView struct {
	ID       string
	Title    string
	Preview  string
	Unread   int
	LastAt   time.Time
	Messages int
}

// MessageView is one rendered message.
type MessageView struct {
	ID       string
	SenderID string
	Kind     string
	Text     string
	SentAt   time.Time
	Read     bool
	Mine     bool
}

// StatusView describes the daemon and its engine.
type StatusView struct {
	Profile       string
	Uptime        time.Duration
	Authenticated bool
	UserID        int64
	Username      string
	Connection    string
	Loading       bool
	Synced        bool
	LastError     string
	LastErrorKind string
	TotalUnread   int
	Conversations int
}

func newConversationView(c intsync.Conversation) ConversationView {
	v := ConversationView{
		ID:       c.ID,
		Title:    c.Title,
		Preview:  c.LastMessagePreview(),
		Unread:   c.UnreadCount,
		LastAt:   c.LatestActivity(),
		Messages: len(c.Messages),
	}
	if len(c.Messages) == 0 && v.Unread == 0 {
		v.Unread = int(c.ServerUnread)
	}
	return v
}

func newMessageView(m intsync.Message, mine bool) MessageView {
	return MessageView{
		ID:       m.ID,
		SenderID: m.SenderID,
		Kind:     m.Content.Kind.String(),
		Text:     m.Content.Preview(),
		SentAt:   m.SentAt,
		Read:     m.Read,
		Mine:     mine,
	}
}

func (v ConversationView) fields() map[string]any {
	return map[string]any{
		"id":       v.ID,
		"title":    v.Title,
		"preview":  v.Preview,
		"unread":   v.Unread,
		"lastAt":   millis(v.LastAt),
		"messages": v.Messages,
	}
}

func (v MessageView) fields() map[string]any {
	return map[string]any{
		"id":       v.ID,
		"senderId": v.SenderID,
		"kind":     v.Kind,
		"text":     v.Text,
		"sentAt":   millis(v.SentAt),
		"read":     v.Read,
		"mine":     v.Mine,
	}
}

func (v StatusView) fields() map[string]any {
	return map[string]any{
		"profile":       v.Profile,
		"uptimeMs":      v.Uptime.Milliseconds(),
		"authenticated": v.Authenticated,
		"userId":        v.UserID,
		"username":      v.Username,
		"connection":    v.Connection,
		"loading":       v.Loading,
		"synced":        v.Synced,
		"lastError":     v.LastError,
		"lastErrorKind": v.LastErrorKind,
		"totalUnread":   v.TotalUnread,
		"conversations": v.Conversations,
	}
}

// DecodeConversations reads a ListConversations response.
func DecodeConversations(resp *structpb.Struct) []ConversationView {
	var out []ConversationView
	for _, row := range list(resp, "conversations") {
		out = append(out, conversationViewFrom(row))
	}
	return out
}

// DecodeMessages reads a ListMessages response.
func DecodeMessages(resp *structpb.Struct) []MessageView {
	var out []MessageView
	for _, row := range list(resp, "messages") {
		out = append(out, messageViewFrom(row))
	}
	return out
}

// DecodeStatus reads a Status response.
func DecodeStatus(resp *structpb.Struct) StatusView {
	return statusViewFrom(resp)
}

// Field returns a string field of a response, or "".
func Field(resp *structpb.Struct, key string) string {
	return str(resp, key)
}

// Flag returns a bool field of a response.
func Flag(resp *structpb.Struct, key string) bool {
	return boolean(resp, key)
}

func conversationViewFrom(s *structpb.Struct) ConversationView {
	return ConversationView{
		ID:       str(s, "id"),
		Title:    str(s, "title"),
		Preview:  str(s, "preview"),
		Unread:   int(num(s, "unread")),
		LastAt:   fromMillis(num(s, "lastAt")),
		Messages: int(num(s, "messages")),
	}
}

func messageViewFrom(s *structpb.Struct) MessageView {
	return MessageView{
		ID:       str(s, "id"),
		SenderID: str(s, "senderId"),
		Kind:     str(s, "kind"),
		Text:     str(s, "text"),
		SentAt:   fromMillis(num(s, "sentAt")),
		Read:     boolean(s, "read"),
		Mine:     boolean(s, "mine"),
	}
}

func statusViewFrom(s *structpb.Struct) StatusView {
	return StatusView{
		Profile:       str(s, "profile"),
		Uptime:        time.Duration(num(s, "uptimeMs")) * time.Millisecond,
		Authenticated: boolean(s, "authenticated"),
		UserID:        num(s, "userId"),
		Username:      str(s, "username"),
		Connection:    str(s, "connection"),
		Loading:       boolean(s, "loading"),
		Synced:        boolean(s, "synced"),
		LastError:     str(s, "lastError"),
		LastErrorKind: str(s, "lastErrorKind"),
		TotalUnread:   int(num(s, "totalUnread")),
		Conversations: int(num(s, "conversations")),
	}
}

func str(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func num(s *structpb.Struct, key string) int64 {
	return int64(s.GetFields()[key].GetNumberValue())
}

func boolean(s *structpb.Struct, key string) bool {
	return s.GetFields()[key].GetBoolValue()
}

func list(s *structpb.Struct, key string) []*structpb.Struct {
	var out []*structpb.Struct
	for _, v := range s.GetFields()[key].GetListValue().GetValues() {
		if sv := v.GetStructValue(); sv != nil {
			out = append(out, sv)
		}
	}
	return out
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
