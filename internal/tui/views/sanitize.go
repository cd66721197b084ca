package views

import "strings"

// sanitizeForTerminal drops emoji modifiers that tcell renders with the wrong
// width: skin tones, zero width joiners and variation selectors. A modified
// emoji then shows as its base glyph.
func sanitizeForTerminal(s string) string {
	return strings.Map(func(r rune) rune {
		if isModifierRune(r) {
			return -1
		}
		return r
	}, s)
}

func isModifierRune(r rune) bool {
	switch {
	case r >= 0x1F3FB && r <= 0x1F3FF: // skin tones
		return true
	case r == 0x200D:
		return true
	case r >= 0xFE00 && r <= 0xFE0F, r >= 0xE0100 && r <= 0xE01EF:
		return true
	}
	return false
}
