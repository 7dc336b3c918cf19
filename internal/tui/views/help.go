package views

import (
	"strings"

	"github.com/pawprox/pawchat/internal/tui/ui"
	"github.com/rivo/tview"
)

const composerHelp = `Composer
  text          send a message
  /reply ID     reply to message ID with the next message
  /cancel       drop the pending reply
  /like ID      like message ID
  /delete ID    delete one of your messages
  /close        leave the conversation
  //text        send text starting with a slash`

// NewHelpView renders the key hints and composer commands.
func NewHelpView(theme *ui.Theme, sections map[string][]string, order []string) *tview.TextView {
	tv := tview.NewTextView().SetDynamicColors(true).SetScrollable(true)
	theme.Frame(tv.Box, "Help (esc to close)")
	tv.SetTextColor(theme.FgColor)

	var b strings.Builder
	for _, name := range order {
		b.WriteString(ui.Tag(theme.TitleColor) + name + "[-]\n")
		for _, h := range sections[name] {
			b.WriteString("  " + tview.Escape(h) + "\n")
		}
		b.WriteByte('\n')
	}
	b.WriteString(tview.Escape(composerHelp))
	tv.SetText(b.String())
	return tv
}
