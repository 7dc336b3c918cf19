package model

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pawprox/pawchat/internal/api"
	"github.com/pawprox/pawchat/internal/bus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeControl struct {
	mu       sync.Mutex
	friends  []api.User
	requests []api.Request
	conv     api.Conversation
	searches []string
	accepted []int64
	removed  []int64
	watch    []api.Event
	fail     error
}

func (f *fakeControl) Status(context.Context) (api.Status, error) {
	return api.Status{Profile: "test", State: f.conv.State}, f.fail
}

func (f *fakeControl) Friends(context.Context, bool) ([]api.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]api.User(nil), f.friends...), f.fail
}

func (f *fakeControl) Requests(context.Context, bool) ([]api.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]api.Request(nil), f.requests...), f.fail
}

func (f *fakeControl) QueueSearch(_ context.Context, q string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, q)
	return f.fail
}

func (f *fakeControl) SendRequest(context.Context, int64) error { return f.fail }

func (f *fakeControl) Accept(_ context.Context, reqID, senderID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accepted = append(f.accepted, reqID)
	f.requests = nil
	f.friends = append(f.friends, api.User{ID: senderID})
	return f.fail
}

func (f *fakeControl) Decline(context.Context, int64) error { return f.fail }

func (f *fakeControl) RemoveFriend(_ context.Context, id int64, confirmed bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, id)
	return confirmed, f.fail
}

func (f *fakeControl) Select(_ context.Context, peer int64) (api.Conversation, error) {
	return api.Conversation{State: "ACTIVE", Peer: peer, Room: "1_2"}, f.fail
}

func (f *fakeControl) Deselect(context.Context) error { return f.fail }

func (f *fakeControl) Messages(context.Context) (api.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conv, f.fail
}

func (f *fakeControl) Send(context.Context, string, int64) (api.Message, error) {
	return api.Message{}, f.fail
}

func (f *fakeControl) Like(context.Context, int64) error { return f.fail }

func (f *fakeControl) Delete(_ context.Context, _ int64, confirmed bool) (bool, error) {
	return confirmed, f.fail
}

func (f *fakeControl) Watch(_ context.Context, _ string, fn func(api.Event)) error {
	for _, ev := range f.watch {
		fn(ev)
	}
	return nil
}

func TestOpenClearsUnreadBadge(t *testing.T) {
	fc := &fakeControl{friends: []api.User{{ID: 2, Name: "Bob", Unread: 3}}}
	vm := NewViewModel(fc)
	ctx := context.Background()

	require.NoError(t, vm.LoadFriends(ctx, true))
	require.NoError(t, vm.Open(ctx, 2))

	f, ok := vm.Friend(2)
	require.True(t, ok)
	assert.Zero(t, f.Unread)
	assert.Equal(t, "1_2", vm.Conversation().Room)
}

func TestAcceptReloadsContacts(t *testing.T) {
	fc := &fakeControl{requests: []api.Request{{ID: 5, SenderID: 3, SenderName: "Carol"}}}
	vm := NewViewModel(fc)
	ctx := context.Background()
	require.NoError(t, vm.LoadRequests(ctx, true))

	require.NoError(t, vm.Accept(ctx, vm.Requests()[0]))

	assert.Equal(t, []int64{5}, fc.accepted)
	assert.Empty(t, vm.Requests())
	_, ok := vm.Friend(3)
	assert.True(t, ok)
}

func TestQueueSearchForwardsQuery(t *testing.T) {
	fc := &fakeControl{}
	vm := NewViewModel(fc)

	require.NoError(t, vm.QueueSearch(context.Background(), "bob"))

	assert.Equal(t, []string{"bob"}, fc.searches)
	assert.False(t, vm.Results().Active, "results only change when the daemon publishes them")
}

func TestQueueSearchBlankClears(t *testing.T) {
	fc := &fakeControl{watch: []api.Event{{
		Kind:    bus.KindSearchResults,
		Payload: json.RawMessage(`{"query":"bob","active":true,"users":[{"id":4,"name":"Bob","is_friend":true}]}`),
	}}}
	vm := NewViewModel(fc)
	require.NoError(t, vm.Watch(context.Background(), nil))
	require.True(t, vm.Results().Active)

	require.NoError(t, vm.QueueSearch(context.Background(), "   "))

	assert.False(t, vm.Results().Active)
	assert.Empty(t, vm.Results().Users)
}

func TestWatchAppliesSearchResults(t *testing.T) {
	fc := &fakeControl{watch: []api.Event{
		{Kind: bus.KindSearchResults, Payload: json.RawMessage(`{"query":"bo","active":true,"users":[]}`)},
		{Kind: bus.KindSearchResults, Payload: json.RawMessage(`{"query":"bob","active":true,"users":[{"id":4,"name":"Bob","is_friend":true}]}`)},
	}}
	vm := NewViewModel(fc)

	require.NoError(t, vm.Watch(context.Background(), func(_ string, err error) {
		assert.NoError(t, err)
	}))

	res := vm.Results()
	assert.Equal(t, "bob", res.Query)
	require.Len(t, res.Users, 1)
	assert.True(t, res.Users[0].IsFriend)
}

func TestWatchReloadsByKind(t *testing.T) {
	fc := &fakeControl{
		friends: []api.User{{ID: 2, Unread: 1}},
		conv:    api.Conversation{State: "ACTIVE", Peer: 2, Messages: []api.Message{{ID: 10, Text: "hi"}}},
		watch: []api.Event{
			{Kind: bus.KindConversationUpdated},
			{Kind: bus.KindUnreadChanged},
			{Kind: "something.else"},
		},
	}
	vm := NewViewModel(fc)

	var kinds []string
	err := vm.Watch(context.Background(), func(kind string, err error) {
		assert.NoError(t, err)
		kinds = append(kinds, kind)
	})
	require.NoError(t, err)

	assert.Len(t, kinds, 3)
	assert.Len(t, vm.Conversation().Messages, 1)
	f, ok := vm.Friend(2)
	require.True(t, ok)
	assert.Equal(t, 1, f.Unread)
}

func TestLoadErrorKeepsCache(t *testing.T) {
	fc := &fakeControl{friends: []api.User{{ID: 2}}}
	vm := NewViewModel(fc)
	require.NoError(t, vm.LoadFriends(context.Background(), false))

	fc.fail = errors.New("daemon gone")
	require.Error(t, vm.LoadFriends(context.Background(), false))

	assert.Len(t, vm.Friends(), 1)
}

func TestFlashExpires(t *testing.T) {
	now := time.Unix(1000, 0)
	f := Flash{now: func() time.Time { return now }}
	f.Set(FlashErr, "boom", time.Second)

	msg, level := f.Get()
	assert.Equal(t, "boom", msg)
	assert.Equal(t, FlashErr, level)

	now = now.Add(2 * time.Second)
	msg, _ = f.Get()
	assert.Empty(t, msg)
}
