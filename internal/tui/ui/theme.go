package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Theme holds the TUI colors.
type Theme struct {
	BgColor          tcell.Color
	FgColor          tcell.Color
	BorderColor      tcell.Color
	BorderFocusColor tcell.Color
	HeaderColor      tcell.Color
	CursorFg         tcell.Color
	CursorBg         tcell.Color
	TitleColor       tcell.Color
	KeyColor         tcell.Color
	SelfColor        tcell.Color
	PeerColor        tcell.Color
	PendingColor     tcell.Color
	BadgeColor       tcell.Color
	FlashInfoColor   tcell.Color
	FlashWarnColor   tcell.Color
	FlashErrColor    tcell.Color
}

// DefaultTheme returns the dark theme.
func DefaultTheme() *Theme {
	return &Theme{
		BgColor:          tcell.ColorBlack,
		FgColor:          tcell.ColorCadetBlue,
		BorderColor:      tcell.ColorDodgerBlue,
		BorderFocusColor: tcell.ColorLightSkyBlue,
		HeaderColor:      tcell.ColorWhite,
		CursorFg:         tcell.ColorBlack,
		CursorBg:         tcell.ColorAqua,
		TitleColor:       tcell.ColorFuchsia,
		KeyColor:         tcell.ColorDodgerBlue,
		SelfColor:        tcell.ColorLightGreen,
		PeerColor:        tcell.ColorOrange,
		PendingColor:     tcell.ColorGray,
		BadgeColor:       tcell.ColorPapayaWhip,
		FlashInfoColor:   tcell.ColorNavajoWhite,
		FlashWarnColor:   tcell.ColorOrange,
		FlashErrColor:    tcell.ColorOrangeRed,
	}
}

// Frame applies the theme's border and title styling to a boxed primitive.
func (t *Theme) Frame(b *tview.Box, title string) {
	b.SetBorder(true)
	b.SetBorderColor(t.BorderColor)
	b.SetBackgroundColor(t.BgColor)
	b.SetTitle(" " + title + " ")
	b.SetTitleColor(t.TitleColor)
}

// Tag renders c as a tview color tag.
func Tag(c tcell.Color) string {
	return fmt.Sprintf("[#%06x]", c.Hex())
}
