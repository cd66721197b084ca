package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/tutu/internal/api"
	"github.com/matheus3301/tutu/internal/tui/ui"
	"github.com/rivo/tview"
)

// MessageThread displays messages and a composer for a single conversation.
type MessageThread struct {
	*tview.Flex
	theme    *ui.Theme
	messages *tview.TextView
	composer *tview.InputField
	title    string
	onSend   func(text string)
}

// NewMessageThread creates a new message thread view.
func NewMessageThread(theme *ui.Theme) *MessageThread {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitle(" Messages ")
	messages.SetTitleColor(theme.TitleColor)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.MenuKeyColor)
	composer.SetTitle(" Compose (i to focus) ")
	composer.SetTitleColor(theme.TitleColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, true).
		AddItem(composer, 3, 0, false)

	mt := &MessageThread{
		Flex:     flex,
		theme:    theme,
		messages: messages,
		composer: composer,
	}

	composer.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter || mt.onSend == nil {
			return
		}
		if text := composer.GetText(); strings.TrimSpace(text) != "" {
			mt.onSend(text)
			composer.SetText("")
		}
	})

	return mt
}

// Name implements ui.Component.
func (mt *MessageThread) Name() string {
	if mt.title != "" {
		return mt.title
	}
	return "Messages"
}

// Hints implements ui.Component.
func (mt *MessageThread) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "i", Description: "Compose"},
		{Key: "Esc", Description: "Back"},
	}
}

// SetTitle updates the conversation title.
func (mt *MessageThread) SetTitle(title string) {
	mt.title = title
	mt.messages.SetTitle(fmt.Sprintf(" %s ", tview.Escape(sanitizeForTerminal(title))))
}

// SetOnSend sets the callback when a message is submitted.
func (mt *MessageThread) SetOnSend(fn func(text string)) {
	mt.onSend = fn
}

// Update renders msgs, which are ordered oldest first.
func (mt *MessageThread) Update(msgs []api.MessageView) {
	mt.messages.Clear()
	_, _ = fmt.Fprint(mt.messages, renderMessages(msgs, ui.ColorTag(mt.theme.MineColor), time.Now()))
	mt.messages.ScrollToEnd()
}

// Messages returns the messages text view (for focus management).
func (mt *MessageThread) Messages() *tview.TextView {
	return mt.messages
}

// Composer returns the composer input field (for focus management).
func (mt *MessageThread) Composer() *tview.InputField {
	return mt.composer
}

func renderMessages(msgs []api.MessageView, mineColor string, now time.Time) string {
	var b strings.Builder
	for _, m := range msgs {
		sender := tview.Escape(sanitizeForTerminal(m.SenderID))
		if m.Mine {
			sender = fmt.Sprintf("[%s]You[-]", mineColor)
		}
		body := m.Text
		if m.Kind != "text" {
			body = "[" + m.Kind + "]"
		}
		fmt.Fprintf(&b, "[::b]%s[-:-:-] [::d]%s[-:-:-]\n%s\n\n",
			sender, formatTimestamp(m.SentAt, now), tview.Escape(sanitizeForTerminal(body)))
	}
	return b.String()
}
