package ui

import (
	"fmt"

	"github.com/matheus3301/tutu/internal/tui/model"
	"github.com/rivo/tview"
)

// FlashBar displays the current flash notification.
type FlashBar struct {
	*tview.TextView
	theme *Theme
}

// NewFlashBar creates a new flash notification bar.
func NewFlashBar(theme *Theme) *FlashBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)

	return &FlashBar{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders msg, or clears the bar when msg is nil.
func (fb *FlashBar) Update(msg *model.FlashMessage) {
	fb.Clear()
	if msg == nil {
		return
	}

	var color string
	switch msg.Level {
	case model.FlashWarn:
		color = ColorTag(fb.theme.FlashWarnColor)
	case model.FlashErr:
		color = ColorTag(fb.theme.FlashErrColor)
	default:
		color = ColorTag(fb.theme.FlashInfoColor)
	}
	_, _ = fmt.Fprintf(fb, " [%s]%s[-]", color, tview.Escape(msg.Text))
}
