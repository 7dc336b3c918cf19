// Package contacts keeps the friends roster, incoming requests and user
// search results consistent with the backend.
package contacts

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/pawprox/pawchat/internal/bus"
	"github.com/pawprox/pawchat/internal/confirm"
	"github.com/pawprox/pawchat/internal/model"
	"go.uber.org/zap"
)

// API is the slice of the backend the directory needs.
type API interface {
	SearchUsers(ctx context.Context, query string) ([]model.User, error)
	GetUser(ctx context.Context, id int64) (model.User, error)
	AreFriends(ctx context.Context, id int64) (bool, error)
	AcceptedFriends(ctx context.Context) ([]model.User, error)
	PendingRequests(ctx context.Context) ([]model.FriendRequest, error)
	SendRequest(ctx context.Context, receiverID int64) error
	AcceptRequest(ctx context.Context, requestID int64) error
	DeclineRequest(ctx context.Context, requestID int64) error
	RemoveFriend(ctx context.Context, friendID int64) error
}

// Candidate is a search hit annotated with its friendship flag.
type Candidate struct {
	model.User
	IsFriend bool
}

// SearchResult distinguishes "no search running" (Active false) from a
// search that matched nobody (Active true, Users empty).
type SearchResult struct {
	Query  string
	Active bool
	Users  []Candidate
}

// Directory is safe for concurrent use. Mutations are applied only after the
// backend confirms them.
type Directory struct {
	api      API
	self     int64
	bus      *bus.Bus
	logger   *zap.Logger
	debounce time.Duration

	mu        sync.Mutex
	friends   []model.User
	pending   []model.FriendRequest
	results   SearchResult
	status    map[int64]bool
	searchSeq uint64
	timer     *time.Timer
}

// New creates a directory for user self.
func New(api API, self int64, debounce time.Duration, b *bus.Bus, logger *zap.Logger) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{
		api:      api,
		self:     self,
		bus:      b,
		logger:   logger.Named("contacts"),
		debounce: debounce,
		status:   make(map[int64]bool),
	}
}

// QueueSearch runs Search for query once no further QueueSearch call has
// arrived for the debounce period. A blank query clears without waiting.
// Results are published as contacts.search_results.
func (d *Directory) QueueSearch(ctx context.Context, query string) {
	delay := d.debounce
	if strings.TrimSpace(query) == "" {
		delay = 0
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(delay, func() {
		if ctx.Err() != nil {
			return
		}
		_, _ = d.Search(ctx, query)
	})
}

// Stop cancels a queued search.
func (d *Directory) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Search looks users up by display name. A blank query clears the results
// without calling search and reloads the friends roster instead.
func (d *Directory) Search(ctx context.Context, query string) (SearchResult, error) {
	d.mu.Lock()
	d.searchSeq++
	seq := d.searchSeq
	d.mu.Unlock()

	q := strings.TrimSpace(query)
	if q == "" {
		d.mu.Lock()
		if seq == d.searchSeq {
			d.results = SearchResult{}
		}
		d.mu.Unlock()
		d.bus.Emit(bus.KindSearchResults, SearchResult{})
		return SearchResult{}, d.LoadFriends(ctx)
	}

	users, err := d.api.SearchUsers(ctx, q)
	if err != nil {
		d.logger.Error("search failed", zap.String("query", q), zap.Error(err))
		return SearchResult{}, err
	}

	res := SearchResult{Query: q, Active: true, Users: []Candidate{}}
	checked := make(map[int64]bool, len(users))
	for _, u := range users {
		if u.ID == d.self {
			continue
		}
		isFriend, err := d.api.AreFriends(ctx, u.ID)
		if err != nil {
			d.logger.Warn("friendship check failed", zap.Int64("user_id", u.ID), zap.Error(err))
		} else {
			checked[u.ID] = true
		}
		res.Users = append(res.Users, Candidate{User: u, IsFriend: isFriend})
	}

	d.mu.Lock()
	if seq != d.searchSeq {
		d.mu.Unlock()
		return res, nil
	}
	d.results = res
	for _, c := range res.Users {
		// A failed check leaves no flag rather than a false one.
		if !checked[c.ID] {
			continue
		}
		if c.IsFriend {
			d.status[c.ID] = true
		} else if !d.isFriendLocked(c.ID) {
			d.status[c.ID] = false
		}
	}
	d.mu.Unlock()

	d.bus.Emit(bus.KindSearchResults, res)
	return res, nil
}

// LoadFriends replaces the roster with the backend's accepted friends.
func (d *Directory) LoadFriends(ctx context.Context) error {
	friends, err := d.api.AcceptedFriends(ctx)
	if err != nil {
		d.logger.Error("load friends failed", zap.Error(err))
		return err
	}

	d.mu.Lock()
	for id, ok := range d.status {
		if ok {
			delete(d.status, id)
		}
	}
	d.friends = friends
	for _, f := range friends {
		d.status[f.ID] = true
	}
	d.pending = slices.DeleteFunc(d.pending, func(r model.FriendRequest) bool {
		return d.status[r.SenderID]
	})
	d.mu.Unlock()

	d.changed()
	return nil
}

// LoadPendingRequests replaces the incoming request list. Requests from users
// already on the roster are dropped.
func (d *Directory) LoadPendingRequests(ctx context.Context) error {
	reqs, err := d.api.PendingRequests(ctx)
	if err != nil {
		d.logger.Error("load requests failed", zap.Error(err))
		return err
	}

	d.mu.Lock()
	d.pending = slices.DeleteFunc(reqs, func(r model.FriendRequest) bool {
		return d.isFriendLocked(r.SenderID)
	})
	d.mu.Unlock()

	d.changed()
	return nil
}

// SendRequest asks the backend to send a friend request. Local state does not
// change; the friendship appears once the other side accepts.
func (d *Directory) SendRequest(ctx context.Context, targetID int64) error {
	if targetID == d.self {
		return fmt.Errorf("cannot befriend yourself")
	}
	if err := d.api.SendRequest(ctx, targetID); err != nil {
		d.logger.Error("send request failed", zap.Int64("target_id", targetID), zap.Error(err))
		return err
	}
	d.logger.Info("friend request sent", zap.Int64("target_id", targetID))
	return nil
}

// AcceptRequest accepts request requestID from senderID and moves the sender
// onto the roster.
func (d *Directory) AcceptRequest(ctx context.Context, requestID, senderID int64) error {
	if err := d.api.AcceptRequest(ctx, requestID); err != nil {
		d.logger.Error("accept failed", zap.Int64("request_id", requestID), zap.Error(err))
		return err
	}

	friend, err := d.api.GetUser(ctx, senderID)
	if err != nil {
		d.logger.Warn("sender profile unavailable", zap.Int64("sender_id", senderID), zap.Error(err))
		friend = d.userFromRequest(requestID, senderID)
	}

	d.mu.Lock()
	d.pending = slices.DeleteFunc(d.pending, func(r model.FriendRequest) bool {
		return r.ID == requestID || r.SenderID == senderID
	})
	if !slices.ContainsFunc(d.friends, func(u model.User) bool { return u.ID == senderID }) {
		d.friends = append(d.friends, friend)
	}
	d.status[senderID] = true
	d.mu.Unlock()

	d.logger.Info("friend request accepted", zap.Int64("request_id", requestID), zap.Int64("sender_id", senderID))
	d.changed()
	return nil
}

func (d *Directory) userFromRequest(requestID, senderID int64) model.User {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range d.pending {
		if r.ID == requestID {
			return model.User{ID: senderID, Name: r.SenderName, ProfilePic: r.SenderPic}
		}
	}
	return model.User{ID: senderID}
}

// DeclineRequest declines request requestID.
func (d *Directory) DeclineRequest(ctx context.Context, requestID int64) error {
	if err := d.api.DeclineRequest(ctx, requestID); err != nil {
		d.logger.Error("decline failed", zap.Int64("request_id", requestID), zap.Error(err))
		return err
	}

	d.mu.Lock()
	d.pending = slices.DeleteFunc(d.pending, func(r model.FriendRequest) bool { return r.ID == requestID })
	d.mu.Unlock()

	d.changed()
	return nil
}

// RemoveFriend unfriends friendID once c approves. A declined confirmation
// returns (false, nil) and touches nothing.
func (d *Directory) RemoveFriend(ctx context.Context, friendID int64, c confirm.Confirmer) (bool, error) {
	if !confirm.Approved(ctx, c, fmt.Sprintf("Remove %s from your friends?", d.nameOf(friendID))) {
		d.logger.Debug("remove friend declined", zap.Int64("friend_id", friendID))
		return false, nil
	}
	if err := d.api.RemoveFriend(ctx, friendID); err != nil {
		d.logger.Error("remove friend failed", zap.Int64("friend_id", friendID), zap.Error(err))
		return false, err
	}

	d.mu.Lock()
	d.friends = slices.DeleteFunc(d.friends, func(u model.User) bool { return u.ID == friendID })
	delete(d.status, friendID)
	d.mu.Unlock()

	d.logger.Info("friend removed", zap.Int64("friend_id", friendID))
	d.changed()
	return true, nil
}

func (d *Directory) nameOf(id int64) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, f := range d.friends {
		if f.ID == id {
			return f.DisplayName()
		}
	}
	return fmt.Sprintf("user %d", id)
}

// ConfirmFriend reports whether id is a confirmed friend, asking the backend
// when the cached flag is not already true.
func (d *Directory) ConfirmFriend(ctx context.Context, id int64) bool {
	if d.IsFriend(id) {
		return true
	}
	ok, err := d.api.AreFriends(ctx, id)
	if err != nil {
		d.logger.Warn("friendship check failed", zap.Int64("user_id", id), zap.Error(err))
		return false
	}
	d.mu.Lock()
	d.status[id] = ok
	d.mu.Unlock()
	return ok
}

// IsFriend reports the cached friendship flag for id.
func (d *Directory) IsFriend(id int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.isFriendLocked(id)
}

func (d *Directory) isFriendLocked(id int64) bool {
	return d.status[id]
}

// Friend returns the roster entry for id.
func (d *Directory) Friend(id int64) (model.User, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, f := range d.friends {
		if f.ID == id {
			return f, true
		}
	}
	return model.User{}, false
}

// Friends returns a copy of the roster.
func (d *Directory) Friends() []model.User {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.friends)
}

// Pending returns a copy of the incoming requests.
func (d *Directory) Pending() []model.FriendRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.pending)
}

// Results returns the latest search result.
func (d *Directory) Results() SearchResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	r := d.results
	r.Users = slices.Clone(r.Users)
	return r
}

func (d *Directory) changed() {
	d.bus.Emit(bus.KindContactsChanged, nil)
}
