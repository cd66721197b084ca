package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
)

// Theme holds color constants for the TUI.
type Theme struct {
	BgColor           tcell.Color
	FgColor           tcell.Color
	BorderColor       tcell.Color
	TableHeaderFg     tcell.Color
	TableHeaderBg     tcell.Color
	TableCursorFg     tcell.Color
	TableCursorBg     tcell.Color
	MenuKeyColor      tcell.Color
	TitleColor        tcell.Color
	UnreadColor       tcell.Color
	MineColor         tcell.Color
	FlashInfoColor    tcell.Color
	FlashWarnColor    tcell.Color
	FlashErrColor     tcell.Color
	PromptBorderColor tcell.Color
}

// DefaultTheme returns a k9s-inspired dark theme.
func DefaultTheme() *Theme {
	return &Theme{
		BgColor:           tcell.ColorBlack,
		FgColor:           tcell.ColorCadetBlue,
		BorderColor:       tcell.ColorDodgerBlue,
		TableHeaderFg:     tcell.ColorWhite,
		TableHeaderBg:     tcell.ColorBlack,
		TableCursorFg:     tcell.ColorBlack,
		TableCursorBg:     tcell.ColorAqua,
		MenuKeyColor:      tcell.ColorDodgerBlue,
		TitleColor:        tcell.ColorFuchsia,
		UnreadColor:       tcell.ColorPapayaWhip,
		MineColor:         tcell.ColorLightGreen,
		FlashInfoColor:    tcell.ColorNavajoWhite,
		FlashWarnColor:    tcell.ColorOrange,
		FlashErrColor:     tcell.ColorOrangeRed,
		PromptBorderColor: tcell.ColorDodgerBlue,
	}
}

// ColorTag returns c as a tview color tag name.
func ColorTag(c tcell.Color) string {
	for name, val := range tcell.ColorNames {
		if val == c {
			return name
		}
	}
	return fmt.Sprintf("#%06x", c.Hex())
}
