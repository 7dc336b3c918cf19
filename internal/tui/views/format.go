package views

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/pawprox/pawchat/internal/api"
	"github.com/pawprox/pawchat/internal/tui/ui"
	"github.com/rivo/tview"
)

// cleanText drops codepoints tcell cannot lay out in a single cell run:
// emoji modifiers and joiners, variation selectors and control characters
// other than newline. Escapes tview color tags.
func cleanText(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\n':
			return r
		case r >= 0x1F3FB && r <= 0x1F3FF, r == 0x200D,
			r >= 0xFE00 && r <= 0xFE0F, r >= 0xE0100 && r <= 0xE01EF:
			return -1
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, s)
	return tview.Escape(s)
}

// messageLine renders one message for the conversation pane.
func messageLine(t *ui.Theme, m api.Message, self int64, peerName string) string {
	var b strings.Builder
	if m.ID > 0 {
		fmt.Fprintf(&b, "%s#%d[-] ", ui.Tag(t.PendingColor), m.ID)
	}
	if !m.Timestamp.IsZero() {
		fmt.Fprintf(&b, "%s%s[-] ", ui.Tag(t.PendingColor), m.Timestamp.Local().Format("15:04"))
	}
	switch {
	case m.SenderID == self:
		fmt.Fprintf(&b, "%s[::b]me[::-][-]", ui.Tag(t.SelfColor))
	default:
		name := m.SenderName
		if name == "" {
			name = peerName
		}
		fmt.Fprintf(&b, "%s[::b]%s[::-][-]", ui.Tag(t.PeerColor), cleanText(name))
	}
	if m.ReplyTo > 0 {
		fmt.Fprintf(&b, " %s(re #%d)[-]", ui.Tag(t.PendingColor), m.ReplyTo)
	}
	b.WriteString(": ")
	text := cleanText(m.Text)
	if m.Pending {
		text = ui.Tag(t.PendingColor) + text + " (sending)[-]"
	}
	b.WriteString(text)
	if m.Likes > 0 {
		fmt.Fprintf(&b, " %s♥%d[-]", ui.Tag(t.BadgeColor), m.Likes)
	}
	return b.String()
}

// badge renders an unread count, or nothing when zero.
func badge(n int) string {
	switch {
	case n <= 0:
		return ""
	case n > 99:
		return "99+"
	}
	return fmt.Sprintf("%d", n)
}
