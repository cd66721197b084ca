package sync

import (
	"slices"
	"time"
)

// ContentKind distinguishes message payloads.
type ContentKind int

const (
	ContentText ContentKind = iota
	ContentImage
	ContentVideo
)

func (k ContentKind) String() string {
	switch k {
	case ContentImage:
		return "image"
	case ContentVideo:
		return "video"
	default:
		return "text"
	}
}

// Content is the payload of a message. Only the field matching Kind is set.
type Content struct {
	Kind     ContentKind
	Text     string
	Image    []byte
	VideoURL string
}

// TextContent wraps s as text content.
func TextContent(s string) Content {
	return Content{Kind: ContentText, Text: s}
}

// ImageContent wraps raw image bytes.
func ImageContent(data []byte) Content {
	return Content{Kind: ContentImage, Image: data}
}

// Preview renders the content for a conversation list row.
func (c Content) Preview() string {
	switch c.Kind {
	case ContentImage:
		return "[image]"
	case ContentVideo:
		return "[video]"
	default:
		return c.Text
	}
}

// Message is one entry of a conversation timeline. ID is the server id in
// decimal for fetched messages and a UUID for locally created ones.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	SentAt         time.Time
	Content        Content
	Read           bool
}

// Conversation is a chat thread with its messages ordered oldest first.
// ServerUnread and ServerPreview are the summary's hints and are shown only
// before any message is loaded.
type Conversation struct {
	ID            string
	Title         string
	Messages      []Message
	UnreadCount   int
	ServerUnread  int64
	ServerPreview string
}

// LatestActivity returns the send time of the newest message, or the zero
// time for an empty conversation.
func (c *Conversation) LatestActivity() time.Time {
	if len(c.Messages) == 0 {
		return time.Time{}
	}
	return c.Messages[len(c.Messages)-1].SentAt
}

// LastMessagePreview returns the preview of the newest message.
func (c *Conversation) LastMessagePreview() string {
	if len(c.Messages) == 0 {
		return c.ServerPreview
	}
	return c.Messages[len(c.Messages)-1].Content.Preview()
}

func (c *Conversation) clone() Conversation {
	out := *c
	out.Messages = slices.Clone(c.Messages)
	return out
}

// insert places m after every message sent at or before it.
func (c *Conversation) insert(m Message) {
	i, _ := slices.BinarySearchFunc(c.Messages, m.SentAt, func(e Message, t time.Time) int {
		if e.SentAt.After(t) {
			return 1
		}
		return -1
	})
	c.Messages = slices.Insert(c.Messages, i, m)
}

// sortByActivity orders conversations most recent first. Empty
// conversations go last; ties keep their relative order.
func sortByActivity(convs []*Conversation) {
	slices.SortStableFunc(convs, func(a, b *Conversation) int {
		return b.LatestActivity().Compare(a.LatestActivity())
	})
}
