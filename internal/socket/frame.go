package socket

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// EventType is the "type" of a socket frame.
type EventType string

const (
	EventJoin   EventType = "JOIN"
	EventChat   EventType = "CHAT"
	EventSystem EventType = "SYSTEM"
	EventPing   EventType = "PING"
	EventPong   EventType = "PONG"
)

func (t EventType) known() bool {
	switch t {
	case EventJoin, EventChat, EventSystem, EventPing, EventPong:
		return true
	}
	return false
}

// Frame is one JSON message exchanged over the socket. Every field except
// Type is optional; Timestamp is epoch milliseconds, zero when absent.
type Frame struct {
	Type      EventType `json:"type"`
	RoomID    string    `json:"roomId,omitempty"`
	From      string    `json:"from,omitempty"`
	Content   string    `json:"content,omitempty"`
	Timestamp int64     `json:"timestamp,omitempty"`
	ErrorCode string    `json:"errorCode,omitempty"`
	Users     []string  `json:"users,omitempty"`
}

func encodeFrame(f Frame) ([]byte, error) {
	return json.Marshal(f)
}

// decodeFrame parses an inbound frame. Ids arrive as strings or numbers
// depending on the server path, so scalar fields are read leniently.
func decodeFrame(data []byte) (Frame, bool) {
	if !gjson.ValidBytes(data) {
		return Frame{}, false
	}
	r := gjson.ParseBytes(data)
	if !r.IsObject() {
		return Frame{}, false
	}
	f := Frame{Type: EventType(r.Get("type").String())}
	if !f.Type.known() {
		return Frame{}, false
	}
	f.RoomID = scalar(r.Get("roomId"))
	f.From = scalar(r.Get("from"))
	f.Content = scalar(r.Get("content"))
	f.ErrorCode = scalar(r.Get("errorCode"))
	if ts := r.Get("timestamp"); ts.Type == gjson.Number {
		f.Timestamp = ts.Int()
	}
	for _, u := range r.Get("users").Array() {
		f.Users = append(f.Users, scalar(u))
	}
	return f, true
}

func scalar(v gjson.Result) string {
	switch v.Type {
	case gjson.String:
		return v.Str
	case gjson.Number:
		return v.Raw
	}
	return ""
}
