package model

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/pawprox/pawchat/internal/api"
	"github.com/pawprox/pawchat/internal/bus"
	"github.com/pawprox/pawchat/internal/status"
	"github.com/pawprox/pawchat/internal/tui/client"
)

// Control is the subset of the daemon client the view model drives.
type Control interface {
	Status(ctx context.Context) (api.Status, error)
	Friends(ctx context.Context, refresh bool) ([]api.User, error)
	Requests(ctx context.Context, refresh bool) ([]api.Request, error)
	QueueSearch(ctx context.Context, query string) error
	SendRequest(ctx context.Context, userID int64) error
	Accept(ctx context.Context, requestID, senderID int64) error
	Decline(ctx context.Context, requestID int64) error
	RemoveFriend(ctx context.Context, friendID int64, confirmed bool) (bool, error)
	Select(ctx context.Context, peerID int64) (api.Conversation, error)
	Deselect(ctx context.Context) error
	Messages(ctx context.Context) (api.Conversation, error)
	Send(ctx context.Context, text string, replyTo int64) (api.Message, error)
	Like(ctx context.Context, messageID int64) error
	Delete(ctx context.Context, messageID int64, confirmed bool) (bool, error)
	Watch(ctx context.Context, prefix string, fn func(api.Event)) error
}

var _ Control = (*client.Client)(nil)

// ViewModel caches daemon state and signals UI refreshes.
type ViewModel struct {
	mu sync.RWMutex

	client       Control
	status       api.Status
	friends      []api.User
	requests     []api.Request
	results      api.SearchResult
	conversation api.Conversation
	Flash        Flash

	refreshCh chan struct{}
}

// NewViewModel creates a view model over the daemon client.
func NewViewModel(c Control) *ViewModel {
	return &ViewModel{
		client:    c,
		refreshCh: make(chan struct{}, 1),
	}
}

// RefreshCh returns the channel that signals UI refresh.
func (vm *ViewModel) RefreshCh() <-chan struct{} {
	return vm.refreshCh
}

func (vm *ViewModel) signalRefresh() {
	select {
	case vm.refreshCh <- struct{}{}:
	default:
	}
}

// LoadStatus fetches the daemon status.
func (vm *ViewModel) LoadStatus(ctx context.Context) error {
	st, err := vm.client.Status(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.status = st
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// LoadFriends fetches the roster with unread counts.
func (vm *ViewModel) LoadFriends(ctx context.Context, refresh bool) error {
	friends, err := vm.client.Friends(ctx, refresh)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.friends = friends
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// LoadRequests fetches pending friend requests.
func (vm *ViewModel) LoadRequests(ctx context.Context, refresh bool) error {
	reqs, err := vm.client.Requests(ctx, refresh)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.requests = reqs
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// LoadConversation re-reads the active conversation.
func (vm *ViewModel) LoadConversation(ctx context.Context) error {
	conv, err := vm.client.Messages(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.conversation = conv
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// Open selects a friend's conversation and waits for its history.
func (vm *ViewModel) Open(ctx context.Context, peer int64) error {
	conv, err := vm.client.Select(ctx, peer)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.conversation = conv
	for i := range vm.friends {
		if vm.friends[i].ID == peer {
			vm.friends[i].Unread = 0
		}
	}
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// CloseConversation leaves the active conversation.
func (vm *ViewModel) CloseConversation(ctx context.Context) error {
	if err := vm.client.Deselect(ctx); err != nil {
		return err
	}
	vm.mu.Lock()
	vm.conversation = api.Conversation{State: string(status.Idle)}
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// Send posts text to the active conversation.
func (vm *ViewModel) Send(ctx context.Context, text string, replyTo int64) error {
	if _, err := vm.client.Send(ctx, text, replyTo); err != nil {
		return err
	}
	return vm.LoadConversation(ctx)
}

// Like asks the backend to like a message.
func (vm *ViewModel) Like(ctx context.Context, id int64) error {
	return vm.client.Like(ctx, id)
}

// Delete asks the backend to delete one of our messages. The caller has
// already confirmed.
func (vm *ViewModel) Delete(ctx context.Context, id int64) error {
	_, err := vm.client.Delete(ctx, id, true)
	return err
}

// AddFriend sends a friend request.
func (vm *ViewModel) AddFriend(ctx context.Context, id int64) error {
	return vm.client.SendRequest(ctx, id)
}

// Accept accepts a request and reloads both lists.
func (vm *ViewModel) Accept(ctx context.Context, r api.Request) error {
	if err := vm.client.Accept(ctx, r.ID, r.SenderID); err != nil {
		return err
	}
	return vm.reloadContacts(ctx)
}

// Decline declines a request.
func (vm *ViewModel) Decline(ctx context.Context, r api.Request) error {
	if err := vm.client.Decline(ctx, r.ID); err != nil {
		return err
	}
	return vm.LoadRequests(ctx, false)
}

// RemoveFriend removes a friend. The caller has already confirmed.
func (vm *ViewModel) RemoveFriend(ctx context.Context, id int64) error {
	if _, err := vm.client.RemoveFriend(ctx, id, true); err != nil {
		return err
	}
	return vm.reloadContacts(ctx)
}

func (vm *ViewModel) reloadContacts(ctx context.Context) error {
	if err := vm.LoadFriends(ctx, false); err != nil {
		return err
	}
	return vm.LoadRequests(ctx, false)
}

// QueueSearch passes query to the daemon, which runs it once input has been
// quiet. A blank query clears the cached results immediately. Results arrive
// through Watch.
func (vm *ViewModel) QueueSearch(ctx context.Context, query string) error {
	if strings.TrimSpace(query) == "" {
		vm.mu.Lock()
		vm.results = api.SearchResult{}
		vm.mu.Unlock()
		vm.signalRefresh()
	}
	return vm.client.QueueSearch(ctx, query)
}

// Watch relays daemon events until ctx ends, reloading whatever each event
// kind affects. onEvent is called after the reload with the event kind.
func (vm *ViewModel) Watch(ctx context.Context, onEvent func(kind string, err error)) error {
	return vm.client.Watch(ctx, "", func(ev api.Event) {
		err := vm.apply(ctx, ev)
		if onEvent != nil {
			onEvent(ev.Kind, err)
		}
	})
}

func (vm *ViewModel) apply(ctx context.Context, ev api.Event) error {
	switch ev.Kind {
	case bus.KindSearchResults:
		return vm.setResults(ev.Payload)
	case bus.KindConversationUpdated, bus.KindConversationReset, bus.KindSendFailed:
		return vm.LoadConversation(ctx)
	case bus.KindUnreadChanged, bus.KindContactsChanged:
		return vm.reloadContacts(ctx)
	case bus.KindStatusChanged, bus.KindTransportConnected, bus.KindTransportDown:
		return vm.LoadStatus(ctx)
	}
	return nil
}

func (vm *ViewModel) setResults(payload json.RawMessage) error {
	var res api.SearchResult
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &res); err != nil {
			return fmt.Errorf("decode search results: %w", err)
		}
	}
	vm.mu.Lock()
	vm.results = res
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// Status returns the cached daemon status.
func (vm *ViewModel) Status() api.Status {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.status
}

// Friends returns the cached roster.
func (vm *ViewModel) Friends() []api.User {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return append([]api.User(nil), vm.friends...)
}

// Friend looks a friend up in the cached roster.
func (vm *ViewModel) Friend(id int64) (api.User, bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	for _, f := range vm.friends {
		if f.ID == id {
			return f, true
		}
	}
	return api.User{}, false
}

// Requests returns the cached pending requests.
func (vm *ViewModel) Requests() []api.Request {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return append([]api.Request(nil), vm.requests...)
}

// Results returns the latest search results.
func (vm *ViewModel) Results() api.SearchResult {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.results
}

// Conversation returns the cached active conversation.
func (vm *ViewModel) Conversation() api.Conversation {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	c := vm.conversation
	c.Messages = append([]api.Message(nil), c.Messages...)
	return c
}
