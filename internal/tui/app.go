package tui

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/pawprox/pawchat/internal/api"
	"github.com/pawprox/pawchat/internal/bus"
	"github.com/pawprox/pawchat/internal/tui/keys"
	"github.com/pawprox/pawchat/internal/tui/model"
	"github.com/pawprox/pawchat/internal/tui/ui"
	"github.com/pawprox/pawchat/internal/tui/views"
	"github.com/rivo/tview"
)

const (
	pageMain     = "main"
	pageRequests = "requests"
	pageSearch   = "search"
	pageHelp     = "help"
	pageConfirm  = "confirm"

	// Views within the main page, used as key scopes.
	viewFriends = "friends"
	viewChat    = "chat"

	flashFor       = 5 * time.Second
	refreshEvery   = 5 * time.Second
	watchRetryWait = 2 * time.Second
)

// App is the main TUI application shell.
type App struct {
	app       *tview.Application
	pages     *tview.Pages
	theme     *ui.Theme
	vm        *model.ViewModel
	registry  *keys.Registry
	statusBar *views.StatusBar
	friends   *views.FriendList
	conv      *views.ConversationView
	requests  *views.RequestList
	search    *views.SearchView
	ctx       context.Context
	cancel    context.CancelFunc
}

// Options tunes the TUI.
type Options struct {
	Profile string
	// ScrollThreshold is how close to the bottom the conversation must be
	// scrolled to keep following new messages.
	ScrollThreshold int
}

// NewApp creates the TUI over a daemon connection.
func NewApp(c model.Control, opts Options) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:       tview.NewApplication(),
		pages:     tview.NewPages(),
		theme:     theme,
		vm:        model.NewViewModel(c),
		registry:  keys.NewRegistry(),
		statusBar: views.NewStatusBar(theme),
		friends:   views.NewFriendList(theme),
		conv:      views.NewConversationView(theme, opts.ScrollThreshold),
		requests:  views.NewRequestList(theme),
		ctx:       ctx,
		cancel:    cancel,
	}
	a.search = views.NewSearchView(theme, func(query string) {
		a.run("search", func(ctx context.Context) error {
			return a.vm.QueueSearch(ctx, query)
		})
	})

	a.statusBar.SetStatus(api.Status{Profile: opts.Profile})
	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()
	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: 'q', Description: "quit", Visible: true,
		Handler: a.Stop,
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: 's', Description: "search", Visible: true,
		Handler: a.showSearch,
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: 'r', Description: "requests", Visible: true,
		Handler: a.showRequests,
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: '?', Description: "help", Visible: true,
		Handler: a.showHelp,
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyCtrlR, Description: "reload",
		Handler: a.reload,
	})

	a.registry.AddView(viewFriends, &keys.Action{
		Key: tcell.KeyTab, Description: "conversation", Visible: true,
		Handler: func() { a.app.SetFocus(a.conv.Composer()) },
	})
	a.registry.AddView(viewFriends, &keys.Action{
		Key: tcell.KeyRune, Rune: 'x', Description: "remove friend", Visible: true,
		Handler: a.removeSelectedFriend,
	})

	a.registry.AddView(viewChat, &keys.Action{
		Key: tcell.KeyRune, Rune: 'i', Description: "compose", Visible: true,
		Handler: func() { a.app.SetFocus(a.conv.Composer()) },
	})
	a.registry.AddView(viewChat, &keys.Action{
		Key: tcell.KeyRune, Rune: 'c', Description: "close conversation", Visible: true,
		Handler: a.closeConversation,
	})
	a.registry.AddView(viewChat, &keys.Action{
		Key: tcell.KeyTab, Description: "friends", Visible: true,
		Handler: func() { a.app.SetFocus(a.friends) },
	})

	a.registry.AddView(pageRequests, &keys.Action{
		Key: tcell.KeyRune, Rune: 'a', Description: "accept", Visible: true,
		Handler: a.acceptSelected,
	})
	a.registry.AddView(pageRequests, &keys.Action{
		Key: tcell.KeyRune, Rune: 'd', Description: "decline", Visible: true,
		Handler: a.declineSelected,
	})
}

func (a *App) setupCallbacks() {
	a.friends.SetOpenFunc(a.openConversation)
	a.conv.SetSubmitFunc(a.submit)

	a.search.Input().SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter || key == tcell.KeyTab {
			a.app.SetFocus(a.search.Results())
		}
	})
	a.search.Results().SetSelectedFunc(func(int, int) {
		u, ok := a.search.Selected()
		if !ok {
			return
		}
		if u.IsFriend {
			a.openConversation(u)
			return
		}
		a.run("add friend", func(ctx context.Context) error {
			if err := a.vm.AddFriend(ctx, u.ID); err != nil {
				return err
			}
			a.flash(model.FlashInfo, "friend request sent to "+u.DisplayName())
			return nil
		})
	})
}

func (a *App) setupLayout() {
	main := tview.NewFlex().
		AddItem(a.friends, 36, 0, true).
		AddItem(a.conv, 0, 1, false)

	a.pages.AddPage(pageMain, main, true, true)
	a.pages.AddPage(pageRequests, a.requests, true, false)
	a.pages.AddPage(pageSearch, a.search, true, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.statusBar, 2, 0, false)
	a.app.SetRoot(root, true)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		page, _ := a.pages.GetFrontPage()
		if page == pageConfirm {
			return event
		}

		if event.Key() == tcell.KeyEscape {
			switch {
			case page != pageMain:
				a.showMain()
				return nil
			case a.app.GetFocus() == a.conv.Composer():
				a.app.SetFocus(a.conv.Messages())
				a.renderHints()
				return nil
			case a.app.GetFocus() == a.conv.Messages():
				a.app.SetFocus(a.friends)
				a.renderHints()
				return nil
			}
		}

		// Text fields keep every other key.
		if _, ok := a.app.GetFocus().(*tview.InputField); ok {
			return event
		}

		if a.registry.HandleEvent(a.currentView(), event) {
			a.renderHints()
			return nil
		}
		return event
	})
}

// currentView names the key scope for the focused widget.
func (a *App) currentView() string {
	page, _ := a.pages.GetFrontPage()
	if page != pageMain {
		return page
	}
	if a.app.GetFocus() == a.friends {
		return viewFriends
	}
	return viewChat
}

// run performs a daemon call off the UI goroutine and flashes its error.
func (a *App) run(what string, fn func(ctx context.Context) error) {
	go func() {
		if err := fn(a.ctx); err != nil {
			a.flash(model.FlashErr, what+" failed: "+err.Error())
		}
	}()
}

func (a *App) flash(level model.FlashLevel, msg string) {
	a.vm.Flash.Set(level, msg, flashFor)
	a.app.QueueUpdateDraw(a.renderFlash)
}

func (a *App) openConversation(u api.User) {
	a.showMain()
	a.app.SetFocus(a.conv.Composer())
	a.run("open conversation", func(ctx context.Context) error {
		return a.vm.Open(ctx, u.ID)
	})
}

func (a *App) closeConversation() {
	a.app.SetFocus(a.friends)
	a.run("close conversation", a.vm.CloseConversation)
}

func (a *App) submit(text string) {
	cmd, err := ParseCommand(text)
	if err != nil {
		a.flash(model.FlashWarn, err.Error())
		return
	}
	switch cmd.Name {
	case cmdSend:
		reply := a.conv.Reply()
		a.conv.SetReply(0)
		a.run("send", func(ctx context.Context) error {
			return a.vm.Send(ctx, cmd.Args, reply)
		})
	case cmdCancel:
		a.conv.SetReply(0)
	case cmdClose:
		a.closeConversation()
	case cmdReply, cmdLike, cmdDelete:
		id, err := cmd.MessageID()
		if err != nil {
			a.flash(model.FlashWarn, err.Error())
			return
		}
		switch cmd.Name {
		case cmdReply:
			a.conv.SetReply(id)
		case cmdLike:
			a.run("like", func(ctx context.Context) error { return a.vm.Like(ctx, id) })
		case cmdDelete:
			a.confirm(fmt.Sprintf("Delete message #%d?", id), func() {
				a.run("delete", func(ctx context.Context) error { return a.vm.Delete(ctx, id) })
			})
		}
	}
}

func (a *App) removeSelectedFriend() {
	f, ok := a.friends.Selected()
	if !ok {
		return
	}
	a.confirm(fmt.Sprintf("Remove %s from your friends?", f.DisplayName()), func() {
		a.run("remove friend", func(ctx context.Context) error {
			if a.vm.Conversation().Peer == f.ID {
				if err := a.vm.CloseConversation(ctx); err != nil {
					return err
				}
			}
			return a.vm.RemoveFriend(ctx, f.ID)
		})
	})
}

func (a *App) acceptSelected() {
	r, ok := a.requests.Selected()
	if !ok {
		return
	}
	a.run("accept", func(ctx context.Context) error { return a.vm.Accept(ctx, r) })
}

func (a *App) declineSelected() {
	r, ok := a.requests.Selected()
	if !ok {
		return
	}
	a.run("decline", func(ctx context.Context) error { return a.vm.Decline(ctx, r) })
}

// confirm shows a yes/no modal and calls onYes if accepted.
func (a *App) confirm(prompt string, onYes func()) {
	back := a.app.GetFocus()
	modal := tview.NewModal().
		SetText(prompt).
		AddButtons([]string{"Yes", "No"}).
		SetDoneFunc(func(_ int, label string) {
			a.pages.RemovePage(pageConfirm)
			a.app.SetFocus(back)
			if label == "Yes" {
				onYes()
			}
		})
	a.pages.AddPage(pageConfirm, modal, false, true)
	a.app.SetFocus(modal)
}

func (a *App) showMain() {
	if page, _ := a.pages.GetFrontPage(); page == pageSearch {
		a.run("clear search", func(ctx context.Context) error {
			return a.vm.QueueSearch(ctx, "")
		})
	}
	a.pages.RemovePage(pageHelp)
	a.pages.SwitchToPage(pageMain)
	a.app.SetFocus(a.friends)
	a.renderHints()
}

func (a *App) showSearch() {
	a.search.Reset()
	a.pages.SwitchToPage(pageSearch)
	a.app.SetFocus(a.search.Input())
	a.renderHints()
}

func (a *App) showRequests() {
	a.pages.SwitchToPage(pageRequests)
	a.app.SetFocus(a.requests)
	a.renderHints()
	a.run("load requests", func(ctx context.Context) error { return a.vm.LoadRequests(ctx, true) })
}

func (a *App) showHelp() {
	order := []string{viewFriends, viewChat, pageRequests}
	sections := make(map[string][]string, len(order))
	for _, v := range order {
		sections[v] = a.registry.Hints(v)
	}
	a.pages.AddPage(pageHelp, views.NewHelpView(a.theme, sections, order), true, true)
	a.renderHints()
}

func (a *App) reload() {
	a.run("reload", func(ctx context.Context) error {
		if err := a.vm.LoadFriends(ctx, true); err != nil {
			return err
		}
		if err := a.vm.LoadRequests(ctx, true); err != nil {
			return err
		}
		return a.vm.LoadStatus(ctx)
	})
}

// render copies the view model into every widget. Runs on the UI goroutine.
func (a *App) render() {
	st := a.vm.Status()
	conv := a.vm.Conversation()
	a.statusBar.SetStatus(st)
	a.friends.SetFriends(a.vm.Friends(), conv.Peer)

	reqs := a.vm.Requests()
	a.requests.SetRequests(reqs)
	a.requests.SetTitle(fmt.Sprintf(" Friend requests [%d] ", len(reqs)))
	a.search.SetResults(a.vm.Results())

	peerName := "#" + strconv.FormatInt(conv.Peer, 10)
	if f, ok := a.vm.Friend(conv.Peer); ok {
		peerName = f.DisplayName()
	}
	a.conv.SetConversation(conv, st.UserID, peerName)
	a.renderFlash()
}

func (a *App) renderFlash() {
	a.statusBar.SetFlash(a.vm.Flash.Get())
}

func (a *App) renderHints() {
	a.statusBar.SetHints(a.registry.Hints(a.currentView()))
}

// Run starts the TUI and blocks until it exits.
func (a *App) Run() error {
	defer a.cancel()

	go func() {
		ctx := a.ctx
		for _, load := range []func(context.Context) error{
			a.vm.LoadStatus,
			func(ctx context.Context) error { return a.vm.LoadFriends(ctx, true) },
			func(ctx context.Context) error { return a.vm.LoadRequests(ctx, true) },
			a.vm.LoadConversation,
		} {
			if err := load(ctx); err != nil {
				a.flash(model.FlashErr, "load failed: "+err.Error())
			}
		}
		a.app.QueueUpdateDraw(a.renderHints)
	}()
	go a.renderLoop()
	go a.watchLoop()

	return a.app.Run()
}

// renderLoop redraws on view model changes, and periodically so the clock
// and flash expiry stay current.
func (a *App) renderLoop() {
	ticker := time.NewTicker(refreshEvery)
	defer ticker.Stop()
	for {
		select {
		case <-a.vm.RefreshCh():
			a.app.QueueUpdateDraw(a.render)
		case <-ticker.C:
			_ = a.vm.LoadStatus(a.ctx)
			a.app.QueueUpdateDraw(a.render)
		case <-a.ctx.Done():
			return
		}
	}
}

// watchLoop follows daemon events, reconnecting while the app runs.
func (a *App) watchLoop() {
	for {
		err := a.vm.Watch(a.ctx, func(kind string, err error) {
			switch {
			case err != nil:
				a.flash(model.FlashErr, "refresh failed: "+err.Error())
			case kind == bus.KindSendFailed:
				a.flash(model.FlashErr, "message could not be sent")
			case kind == bus.KindTransportDown:
				a.flash(model.FlashWarn, "realtime link down, reconnecting")
			case kind == bus.KindTransportConnected:
				a.flash(model.FlashInfo, "realtime link up")
			}
		})
		if a.ctx.Err() != nil {
			return
		}
		if err != nil {
			a.flash(model.FlashWarn, "event stream lost: "+err.Error())
		}
		select {
		case <-time.After(watchRetryWait):
		case <-a.ctx.Done():
			return
		}
	}
}

// Stop shuts the TUI down.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
