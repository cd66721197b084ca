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

// ConversationList is the main conversation table.
type ConversationList struct {
	*tview.Table
	theme   *ui.Theme
	convs   []api.ConversationView
	visible []api.ConversationView
	filter  string
}

// NewConversationList creates a new conversation list table.
func NewConversationList(theme *ui.Theme) *ConversationList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitle(" Conversations ")
	table.SetTitleColor(theme.TitleColor)

	return &ConversationList{
		Table: table,
		theme: theme,
	}
}

// Name implements ui.Component.
func (cl *ConversationList) Name() string { return "Conversations" }

// Hints implements ui.Component.
func (cl *ConversationList) Hints() []ui.MenuHint {
	return []ui.MenuHint{{Key: "Enter", Description: "Open"}}
}

// Update replaces the rows, keeping the selected conversation selected.
func (cl *ConversationList) Update(convs []api.ConversationView) {
	selected := cl.SelectedConversation()
	cl.convs = convs
	cl.render()
	for i, c := range cl.visible {
		if c.ID == selected {
			cl.Select(i+1, 0)
			return
		}
	}
}

// SetFilter shows only conversations whose title or preview contains filter.
// An empty filter shows all of them.
func (cl *ConversationList) SetFilter(filter string) {
	cl.filter = strings.TrimSpace(filter)
	cl.render()
	cl.Select(1, 0)
}

func (cl *ConversationList) render() {
	cl.Clear()

	headers := []struct {
		text string
		exp  int
	}{
		{" TITLE", 1},
		{" LAST MESSAGE", 2},
		{" TIME", 0},
	}
	for col, h := range headers {
		cell := tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(cl.theme.TableHeaderFg).
			SetBackgroundColor(cl.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp)
		cl.SetCell(0, col, cell)
	}

	cl.visible = filterConversations(cl.convs, cl.filter)
	for i, c := range cl.visible {
		row := i + 1
		title := c.Title
		color := cl.theme.FgColor
		if c.Unread > 0 {
			title = fmt.Sprintf("(%d) %s", c.Unread, title)
			color = cl.theme.UnreadColor
		}
		cl.SetCell(row, 0, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(title))).SetExpansion(1).SetTextColor(color))
		cl.SetCell(row, 1, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(c.Preview))).SetExpansion(2).SetTextColor(cl.theme.FgColor))
		cl.SetCell(row, 2, tview.NewTableCell(formatTimestamp(c.LastAt, time.Now())).SetTextColor(cl.theme.FgColor).SetAlign(tview.AlignRight))
	}

	if cl.filter != "" {
		cl.SetTitle(fmt.Sprintf(" Conversations (%d/%d) filter: %s ", len(cl.visible), len(cl.convs), tview.Escape(cl.filter)))
	} else {
		cl.SetTitle(fmt.Sprintf(" Conversations (%d) ", len(cl.convs)))
	}
}

// SelectedConversation returns the id of the selected row, or "".
func (cl *ConversationList) SelectedConversation() string {
	row, _ := cl.GetSelection()
	idx := row - 1 // header
	if idx < 0 || idx >= len(cl.visible) {
		return ""
	}
	return cl.visible[idx].ID
}

func filterConversations(convs []api.ConversationView, filter string) []api.ConversationView {
	if filter == "" {
		return convs
	}
	needle := strings.ToLower(filter)
	var out []api.ConversationView
	for _, c := range convs {
		if strings.Contains(strings.ToLower(c.Title), needle) || strings.Contains(strings.ToLower(c.Preview), needle) {
			out = append(out, c)
		}
	}
	return out
}

func formatTimestamp(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	t = t.In(now.Location())
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}
