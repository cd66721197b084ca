package remote

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

func decodeSummaries(op string, body []byte) ([]Summary, error) {
	if !gjson.ValidBytes(body) {
		return nil, decodeError(op, "body is not JSON")
	}
	root := gjson.ParseBytes(body)
	if !root.IsArray() {
		return nil, decodeError(op, "expected an array")
	}

	var out []Summary
	var derr error
	root.ForEach(func(_, item gjson.Result) bool {
		id := item.Get("chatId")
		if id.Type != gjson.Number {
			derr = decodeError(op, "chatId missing or not a number")
			return false
		}
		unread := item.Get("unreadCount")
		if unread.Type != gjson.Number {
			derr = decodeError(op, "unreadCount missing or not a number")
			return false
		}
		s := Summary{
			ConversationID: strconv.FormatInt(id.Int(), 10),
			Title:          item.Get("title").String(),
			LastPreview:    item.Get("lastMessageContent").String(),
			UnreadCount:    unread.Int(),
		}
		if strings.TrimSpace(s.Title) == "" {
			s.Title = "Conversation " + s.ConversationID
		}
		if ts := item.Get("lastMessageTimestamp"); ts.Type == gjson.Number {
			s.LastMessageAt = time.UnixMilli(ts.Int())
		}
		out = append(out, s)
		return true
	})
	if derr != nil {
		return nil, derr
	}
	return out, nil
}

func decodeMessagePage(op string, body []byte, now time.Time) ([]MessageRecord, error) {
	if !gjson.ValidBytes(body) {
		return nil, decodeError(op, "body is not JSON")
	}
	content := gjson.GetBytes(body, "content")
	if !content.IsArray() {
		return nil, decodeError(op, "expected an object with a content array")
	}

	var out []MessageRecord
	var derr error
	content.ForEach(func(_, item gjson.Result) bool {
		rec, err := decodeMessage(item, now)
		if err != nil {
			derr = decodeError(op, fmt.Sprintf("message %d: %v", len(out), err))
			return false
		}
		out = append(out, rec)
		return true
	})
	if derr != nil {
		return nil, derr
	}
	return out, nil
}

func decodeMessage(item gjson.Result, now time.Time) (MessageRecord, error) {
	var rec MessageRecord
	for _, f := range []struct {
		name string
		dst  *int64
	}{
		{"id", &rec.ID},
		{"chatId", &rec.ConversationID},
		{"senderId", &rec.SenderID},
	} {
		v := item.Get(f.name)
		if v.Type != gjson.Number {
			return rec, fmt.Errorf("%s missing or not a number", f.name)
		}
		*f.dst = v.Int()
	}
	c := item.Get("content")
	if c.Type != gjson.String {
		return rec, fmt.Errorf("content missing or not a string")
	}
	rec.Content = c.String()
	rec.CreatedAt = parseTimestamp(item.Get("createdAt"), now)
	return rec, nil
}

// parseTimestamp accepts epoch milliseconds or an ISO-8601 string. Integer
// form wins; a value that is neither yields fallback.
func parseTimestamp(v gjson.Result, fallback time.Time) time.Time {
	switch v.Type {
	case gjson.Number:
		return time.UnixMilli(v.Int())
	case gjson.String:
		s := strings.TrimSpace(v.Str)
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms)
		}
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02T15:04:05"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t
			}
		}
	}
	return fallback
}

func decodeSession(op string, body []byte) (token string, userID int64, username string, err error) {
	if !gjson.ValidBytes(body) {
		return "", 0, "", decodeError(op, "body is not JSON")
	}
	r := gjson.ParseBytes(body)
	tok, id, name := r.Get("token"), r.Get("userId"), r.Get("username")
	if tok.Type != gjson.String || tok.Str == "" {
		return "", 0, "", decodeError(op, "token missing")
	}
	if id.Type != gjson.Number {
		return "", 0, "", decodeError(op, "userId missing or not a number")
	}
	if name.Type != gjson.String {
		return "", 0, "", decodeError(op, "username missing")
	}
	return tok.Str, id.Int(), name.Str, nil
}

// errorMessage extracts a human message from a failed response body:
// JSON "message", then JSON "error", then the raw text.
func errorMessage(body []byte, status int) string {
	if gjson.ValidBytes(body) {
		for _, key := range []string{"message", "error"} {
			if m := gjson.GetBytes(body, key); m.Type == gjson.String && m.Str != "" {
				return m.Str
			}
		}
	}
	if s := strings.TrimSpace(string(body)); s != "" {
		return s
	}
	return fmt.Sprintf("HTTP %d", status)
}
