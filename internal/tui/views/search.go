package views

import (
	"github.com/gdamore/tcell/v2"
	"github.com/pawprox/pawchat/internal/api"
	"github.com/pawprox/pawchat/internal/tui/ui"
	"github.com/rivo/tview"
)

// SearchView is a query field over a result table.
type SearchView struct {
	*tview.Flex
	theme   *ui.Theme
	input   *tview.InputField
	results *tview.Table
	users   []api.User
}

// NewSearchView creates the search page. onChange fires on every edit.
func NewSearchView(theme *ui.Theme, onChange func(query string)) *SearchView {
	input := tview.NewInputField().
		SetLabel(" / ").
		SetFieldWidth(0).
		SetChangedFunc(onChange)
	theme.Frame(input.Box, "Search users")
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)
	input.SetLabelColor(theme.KeyColor)

	results := tview.NewTable().SetSelectable(true, false)
	theme.Frame(results.Box, "Results")
	results.SetSelectedStyle(tcell.StyleDefault.Foreground(theme.CursorFg).Background(theme.CursorBg))

	sv := &SearchView{
		Flex: tview.NewFlex().
			SetDirection(tview.FlexRow).
			AddItem(input, 3, 0, true).
			AddItem(results, 0, 1, false),
		theme:   theme,
		input:   input,
		results: results,
	}
	return sv
}

// Input returns the query field.
func (sv *SearchView) Input() *tview.InputField { return sv.input }

// Results returns the result table.
func (sv *SearchView) Results() *tview.Table { return sv.results }

// SetResults redraws the result table.
func (sv *SearchView) SetResults(res api.SearchResult) {
	sv.users = res.Users
	sv.results.Clear()
	if !res.Active {
		return
	}
	if len(res.Users) == 0 {
		sv.results.SetCell(0, 0, tview.NewTableCell("no users match").
			SetTextColor(sv.theme.PendingColor).
			SetSelectable(false))
		return
	}
	for i, u := range res.Users {
		status := "enter to add"
		color := sv.theme.PendingColor
		if u.IsFriend {
			status = "friend, enter to chat"
			color = sv.theme.SelfColor
		}
		sv.results.SetCell(i, 0, tview.NewTableCell(cleanText(u.DisplayName())).
			SetTextColor(sv.theme.FgColor).
			SetExpansion(1))
		sv.results.SetCell(i, 1, tview.NewTableCell(cleanText(u.Username)).SetTextColor(sv.theme.PendingColor))
		sv.results.SetCell(i, 2, tview.NewTableCell(status).SetTextColor(color))
	}
	row, _ := sv.results.GetSelection()
	if row >= len(res.Users) {
		sv.results.Select(0, 0)
	}
}

// Selected returns the user under the result cursor.
func (sv *SearchView) Selected() (api.User, bool) {
	row, _ := sv.results.GetSelection()
	if row < 0 || row >= len(sv.users) {
		return api.User{}, false
	}
	return sv.users[row], true
}

// Reset clears the query and results.
func (sv *SearchView) Reset() {
	sv.input.SetText("")
	sv.SetResults(api.SearchResult{})
}
