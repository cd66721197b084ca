package views

import (
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/tutu/internal/api"
)

func TestSanitizeForTerminal(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"hello", "hello"},
		{"\U0001F44D\U0001F3FB", "\U0001F44D"},
		{"\U0001F468\u200D\U0001F469", "\U0001F468\U0001F469"},
		{"\u2764\uFE0F", "\u2764"},
	}
	for _, tt := range tests {
		if got := sanitizeForTerminal(tt.in); got != tt.want {
			t.Errorf("sanitizeForTerminal(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFilterConversations(t *testing.T) {
	convs := []api.ConversationView{
		{ID: "1", Title: "Bob", Preview: "lunch?"},
		{ID: "2", Title: "Team", Preview: "Deploy done"},
	}
	if got := filterConversations(convs, ""); len(got) != 2 {
		t.Errorf("empty filter kept %d", len(got))
	}
	if got := filterConversations(convs, "deploy"); len(got) != 1 || got[0].ID != "2" {
		t.Errorf("filter by preview = %+v", got)
	}
	if got := filterConversations(convs, "BOB"); len(got) != 1 || got[0].ID != "1" {
		t.Errorf("filter by title = %+v", got)
	}
}

func TestFormatTimestamp(t *testing.T) {
	now := time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)
	if got := formatTimestamp(time.Time{}, now); got != "" {
		t.Errorf("zero time = %q", got)
	}
	if got := formatTimestamp(now.Add(-3*time.Hour), now); got != "15:00" {
		t.Errorf("same day = %q", got)
	}
	if got := formatTimestamp(now.AddDate(0, 0, -2), now); got != "04/29" {
		t.Errorf("earlier day = %q", got)
	}
}

func TestRenderMessages(t *testing.T) {
	now := time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)
	out := renderMessages([]api.MessageView{
		{SenderID: "2", Kind: "text", Text: "hi [there]", SentAt: now},
		{SenderID: "1", Kind: "image", Mine: true, SentAt: now},
	}, "green", now)

	if !strings.Contains(out, "hi [there[]") {
		t.Errorf("text not escaped: %q", out)
	}
	if !strings.Contains(out, "[green]You[-]") || !strings.Contains(out, "[image[]") {
		t.Errorf("own image message not rendered: %q", out)
	}
}

func TestStatusLine(t *testing.T) {
	now := time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)
	line := statusLine(api.StatusView{Profile: "main", Authenticated: true, Username: "alice", Connection: "CONNECTED", TotalUnread: 3}, now)
	for _, want := range []string{"main", "alice", "live", "3 unread", "18:00"} {
		if !strings.Contains(line, want) {
			t.Errorf("status line %q missing %q", line, want)
		}
	}
	if line := statusLine(api.StatusView{Profile: "main"}, now); !strings.Contains(line, "signed out") || !strings.Contains(line, "offline") {
		t.Errorf("signed out line = %q", line)
	}
}
