package views

import (
	"github.com/gdamore/tcell/v2"
	"github.com/pawprox/pawchat/internal/api"
	"github.com/pawprox/pawchat/internal/tui/ui"
	"github.com/rivo/tview"
)

// FriendList shows the roster with unread badges.
type FriendList struct {
	*tview.Table
	theme   *ui.Theme
	friends []api.User
	onOpen  func(api.User)
}

// NewFriendList creates the roster table.
func NewFriendList(theme *ui.Theme) *FriendList {
	t := tview.NewTable().
		SetSelectable(true, false).
		SetFixed(1, 0)
	theme.Frame(t.Box, "Friends")
	t.SetSelectedStyle(tcell.StyleDefault.Foreground(theme.CursorFg).Background(theme.CursorBg))

	fl := &FriendList{Table: t, theme: theme}
	t.SetSelectedFunc(func(row, _ int) {
		if f, ok := fl.at(row); ok && fl.onOpen != nil {
			fl.onOpen(f)
		}
	})
	return fl
}

// SetOpenFunc sets the handler for Enter on a friend.
func (fl *FriendList) SetOpenFunc(fn func(api.User)) {
	fl.onOpen = fn
}

// SetFriends redraws the roster, marking the active peer and keeping the
// cursor on the same friend where possible.
func (fl *FriendList) SetFriends(friends []api.User, active int64) {
	var keep int64
	if f, ok := fl.Selected(); ok {
		keep = f.ID
	}
	fl.friends = friends
	fl.Clear()

	for col, h := range []string{"", "NAME", "USERNAME", "UNREAD"} {
		fl.SetCell(0, col, tview.NewTableCell(h).
			SetTextColor(fl.theme.HeaderColor).
			SetSelectable(false))
	}
	row := 1
	for i, f := range friends {
		marker := " "
		if f.ID == active {
			marker = "▶"
		}
		fl.SetCell(i+1, 0, tview.NewTableCell(marker).SetTextColor(fl.theme.SelfColor))
		fl.SetCell(i+1, 1, tview.NewTableCell(cleanText(f.DisplayName())).
			SetTextColor(fl.theme.FgColor).
			SetExpansion(1))
		fl.SetCell(i+1, 2, tview.NewTableCell(cleanText(f.Username)).SetTextColor(fl.theme.PendingColor))
		fl.SetCell(i+1, 3, tview.NewTableCell(badge(f.Unread)).
			SetTextColor(fl.theme.BadgeColor).
			SetAlign(tview.AlignRight))
		if f.ID == keep {
			row = i + 1
		}
	}
	if len(friends) == 0 {
		fl.SetCell(1, 1, tview.NewTableCell("no friends yet, press s to search").
			SetTextColor(fl.theme.PendingColor).
			SetSelectable(false))
		return
	}
	fl.Select(row, 0)
}

// Selected returns the friend under the cursor.
func (fl *FriendList) Selected() (api.User, bool) {
	row, _ := fl.GetSelection()
	return fl.at(row)
}

func (fl *FriendList) at(row int) (api.User, bool) {
	if row < 1 || row > len(fl.friends) {
		return api.User{}, false
	}
	return fl.friends[row-1], true
}
