package views

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/pawprox/pawchat/internal/api"
	"github.com/pawprox/pawchat/internal/conversation"
	"github.com/pawprox/pawchat/internal/status"
	"github.com/pawprox/pawchat/internal/tui/ui"
	"github.com/rivo/tview"
)

// ConversationView shows the active conversation above a composer.
type ConversationView struct {
	*tview.Flex
	theme    *ui.Theme
	messages *tview.TextView
	composer *tview.InputField
	viewport conversation.Viewport

	peer     int64
	count    int
	replyTo  int64
	onSubmit func(text string)
}

// NewConversationView creates the conversation pane. threshold is how many
// rows from the bottom still count as following the conversation.
func NewConversationView(theme *ui.Theme, threshold int) *ConversationView {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	theme.Frame(messages.Box, "Conversation")
	messages.SetTextColor(theme.FgColor)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	theme.Frame(composer.Box, "Compose (i to focus, /reply ID, /like ID, /delete ID)")
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.KeyColor)

	cv := &ConversationView{
		Flex: tview.NewFlex().
			SetDirection(tview.FlexRow).
			AddItem(messages, 0, 1, false).
			AddItem(composer, 3, 0, true),
		theme:    theme,
		messages: messages,
		composer: composer,
		viewport: conversation.Viewport{Threshold: threshold},
	}
	composer.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter || cv.onSubmit == nil {
			return
		}
		text := composer.GetText()
		if strings.TrimSpace(text) == "" {
			return
		}
		composer.SetText("")
		cv.onSubmit(text)
	})
	return cv
}

// SetSubmitFunc sets the handler for Enter in the composer.
func (cv *ConversationView) SetSubmitFunc(fn func(text string)) {
	cv.onSubmit = fn
}

// Composer returns the input field.
func (cv *ConversationView) Composer() *tview.InputField { return cv.composer }

// Messages returns the message pane.
func (cv *ConversationView) Messages() *tview.TextView { return cv.messages }

// SetReply marks the next message as a reply to id, or clears it with 0.
func (cv *ConversationView) SetReply(id int64) {
	cv.replyTo = id
	if id > 0 {
		cv.composer.SetLabel(fmt.Sprintf(" re #%d > ", id))
		return
	}
	cv.composer.SetLabel(" > ")
}

// Reply returns the pending reply target.
func (cv *ConversationView) Reply() int64 { return cv.replyTo }

// SetConversation redraws the pane. The view follows new messages when the
// conversation was just opened or the reader is already near the bottom;
// otherwise the scroll position is kept.
func (cv *ConversationView) SetConversation(c api.Conversation, self int64, peerName string) {
	initial := c.Peer != cv.peer || cv.count == 0
	if c.Peer != cv.peer {
		cv.SetReply(0)
	}
	row, _ := cv.messages.GetScrollOffset()
	_, _, _, height := cv.messages.GetInnerRect()
	distance := cv.messages.GetOriginalLineCount() - row - height
	if distance < 0 {
		distance = 0
	}
	follow := cv.viewport.ShouldFollow(initial, distance)

	cv.peer = c.Peer
	cv.count = len(c.Messages)
	cv.messages.SetTitle(" " + conversationTitle(c, peerName) + " ")

	var b strings.Builder
	switch {
	case c.State == string(status.Joining):
		b.WriteString(ui.Tag(cv.theme.PendingColor) + "loading history...[-]")
	case c.Peer == 0:
		b.WriteString(ui.Tag(cv.theme.PendingColor) + "select a friend to start chatting[-]")
	case len(c.Messages) == 0:
		b.WriteString(ui.Tag(cv.theme.PendingColor) + "no messages yet[-]")
	}
	for i, m := range c.Messages {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(messageLine(cv.theme, m, self, peerName))
	}
	cv.messages.SetText(b.String())

	if follow {
		cv.messages.ScrollToEnd()
		return
	}
	cv.messages.ScrollTo(row, 0)
}

func conversationTitle(c api.Conversation, peerName string) string {
	if c.Peer == 0 {
		return "Conversation"
	}
	return fmt.Sprintf("%s (%s)", cleanText(peerName), c.Room)
}
