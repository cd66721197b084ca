package views

import (
	"fmt"
	"time"

	"github.com/matheus3301/tutu/internal/api"
	"github.com/rivo/tview"
)

// StatusBar displays the profile, account and connection state.
type StatusBar struct {
	*tview.TextView
	status api.StatusView
}

// NewStatusBar creates a new status bar.
func NewStatusBar() *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv}
}

// SetStatus updates the bar.
func (sb *StatusBar) SetStatus(st api.StatusView) {
	sb.status = st
	sb.Clear()
	_, _ = fmt.Fprint(sb, statusLine(st, time.Now()))
}

func statusLine(st api.StatusView, now time.Time) string {
	account := "[yellow]signed out[-]"
	if st.Authenticated {
		account = tview.Escape(st.Username)
	}

	conn := "[red]offline[-]"
	switch st.Connection {
	case "CONNECTED":
		conn = "[green]live[-]"
	case "CONNECTING":
		conn = "[yellow]connecting[-]"
	}

	line := fmt.Sprintf(" [::b]%s[-:-:-] | %s | %s", tview.Escape(st.Profile), account, conn)
	if st.Loading {
		line += " | [green]syncing~[-]"
	}
	if st.TotalUnread > 0 {
		line += fmt.Sprintf(" | %d unread", st.TotalUnread)
	}
	if st.LastError != "" {
		line += " | [red]" + tview.Escape(st.LastError) + "[-]"
	}
	return line + " | " + now.Format("15:04")
}
