package views

import (
	"strconv"

	"github.com/gdamore/tcell/v2"
	"github.com/pawprox/pawchat/internal/api"
	"github.com/pawprox/pawchat/internal/tui/ui"
	"github.com/rivo/tview"
)

// RequestList shows pending incoming friend requests.
type RequestList struct {
	*tview.Table
	theme    *ui.Theme
	requests []api.Request
}

// NewRequestList creates the requests table.
func NewRequestList(theme *ui.Theme) *RequestList {
	t := tview.NewTable().
		SetSelectable(true, false).
		SetFixed(1, 0)
	theme.Frame(t.Box, "Friend requests")
	t.SetSelectedStyle(tcell.StyleDefault.Foreground(theme.CursorFg).Background(theme.CursorBg))
	return &RequestList{Table: t, theme: theme}
}

// SetRequests redraws the list.
func (rl *RequestList) SetRequests(reqs []api.Request) {
	rl.requests = reqs
	rl.Clear()
	for col, h := range []string{"REQUEST", "FROM"} {
		rl.SetCell(0, col, tview.NewTableCell(h).
			SetTextColor(rl.theme.HeaderColor).
			SetSelectable(false))
	}
	if len(reqs) == 0 {
		rl.SetCell(1, 1, tview.NewTableCell("no pending requests").
			SetTextColor(rl.theme.PendingColor).
			SetSelectable(false))
		return
	}
	for i, r := range reqs {
		from := r.SenderName
		if from == "" {
			from = "#" + strconv.FormatInt(r.SenderID, 10)
		}
		rl.SetCell(i+1, 0, tview.NewTableCell(strconv.FormatInt(r.ID, 10)).SetTextColor(rl.theme.PendingColor))
		rl.SetCell(i+1, 1, tview.NewTableCell(cleanText(from)).
			SetTextColor(rl.theme.FgColor).
			SetExpansion(1))
	}
	row, _ := rl.GetSelection()
	if row < 1 || row > len(reqs) {
		rl.Select(1, 0)
	}
}

// Selected returns the request under the cursor.
func (rl *RequestList) Selected() (api.Request, bool) {
	row, _ := rl.GetSelection()
	if row < 1 || row > len(rl.requests) {
		return api.Request{}, false
	}
	return rl.requests[row-1], true
}
