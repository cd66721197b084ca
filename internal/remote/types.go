package remote

import "time"

// Summary is one entry of the conversation list.
type Summary struct {
	ConversationID string
	Title          string
	LastPreview    string
	LastMessageAt  time.Time
	UnreadCount    int64
}

// MessageRecord is one persisted message from a history page.
type MessageRecord struct {
	ID             int64
	ConversationID int64
	SenderID       int64
	Content        string
	CreatedAt      time.Time
}
