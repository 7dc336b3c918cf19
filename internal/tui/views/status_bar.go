package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/pawprox/pawchat/internal/api"
	"github.com/pawprox/pawchat/internal/tui/model"
	"github.com/pawprox/pawchat/internal/tui/ui"
	"github.com/rivo/tview"
)

// StatusBar shows the profile, link state, unread total, a flash message
// and key hints.
type StatusBar struct {
	*tview.TextView
	theme  *ui.Theme
	status api.Status
	flash  string
	level  model.FlashLevel
	hints  []string
}

// NewStatusBar creates the status bar.
func NewStatusBar(theme *ui.Theme) *StatusBar {
	tv := tview.NewTextView().SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)
	return &StatusBar{TextView: tv, theme: theme}
}

// SetStatus updates the daemon status.
func (sb *StatusBar) SetStatus(st api.Status) {
	sb.status = st
	sb.render()
}

// SetFlash sets the transient message; an empty msg clears it.
func (sb *StatusBar) SetFlash(msg string, level model.FlashLevel) {
	sb.flash = msg
	sb.level = level
	sb.render()
}

// SetHints sets the key hints for the current view.
func (sb *StatusBar) SetHints(hints []string) {
	sb.hints = hints
	sb.render()
}

func (sb *StatusBar) render() {
	link := "[red]offline[-]"
	if sb.status.Connected {
		link = "[green]online[-]"
	}
	who := sb.status.Name
	if who == "" {
		who = sb.status.Username
	}
	line := fmt.Sprintf(" [::b]%s[::-] %s | %s", tview.Escape(sb.status.Profile), tview.Escape(who), link)
	if sb.status.Unread > 0 {
		line += fmt.Sprintf(" | %s%d unread[-]", ui.Tag(sb.theme.BadgeColor), sb.status.Unread)
	}
	line += " | " + time.Now().Format("15:04")
	if sb.flash != "" {
		color := sb.theme.FlashInfoColor
		switch sb.level {
		case model.FlashWarn:
			color = sb.theme.FlashWarnColor
		case model.FlashErr:
			color = sb.theme.FlashErrColor
		}
		line += fmt.Sprintf(" | %s%s[-]", ui.Tag(color), tview.Escape(sb.flash))
	}
	if len(sb.hints) > 0 {
		line += "\n " + ui.Tag(sb.theme.KeyColor) + tview.Escape(strings.Join(sb.hints, "  ")) + "[-]"
	}
	sb.SetText(line)
}
