// Package chat sequences the transport, contact directory and conversation
// store for one logged-in session.
package chat

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"

	"github.com/pawprox/pawchat/internal/auth"
	"github.com/pawprox/pawchat/internal/bus"
	"github.com/pawprox/pawchat/internal/confirm"
	"github.com/pawprox/pawchat/internal/contacts"
	"github.com/pawprox/pawchat/internal/conversation"
	"github.com/pawprox/pawchat/internal/model"
	"github.com/pawprox/pawchat/internal/status"
	"github.com/pawprox/pawchat/internal/transport"
	"go.uber.org/zap"
)

var (
	// ErrNotFriend is returned when selecting a peer that is not a confirmed friend.
	ErrNotFriend = errors.New("peer is not a confirmed friend")
	// ErrNoActivePeer is returned by message operations with no conversation open.
	ErrNoActivePeer = errors.New("no active conversation")
	// ErrSuperseded is returned by Select when another selection replaced it
	// before its history arrived.
	ErrSuperseded = errors.New("selection superseded")
	// ErrUnknownMessage is returned for message ids not in the conversation.
	ErrUnknownMessage = errors.New("message not in conversation")
	// ErrNotOwnMessage is returned when deleting someone else's message.
	ErrNotOwnMessage = errors.New("can only delete your own messages")
)

// Transport is the real-time connection the controller drives.
type Transport interface {
	Connect(ctx context.Context, token string) error
	Connected() bool
	Close()
	JoinRoom(ctx context.Context, room string) error
	Subscribe(room string, h transport.Handlers) func()
	OnNotify(fn func(model.Message)) func()
	Send(ctx context.Context, room string, msg model.Message) error
	Like(ctx context.Context, room string, id int64) error
	Delete(ctx context.Context, room string, id int64) error
}

// UnreadChange is the payload of unread.changed.
type UnreadChange struct {
	Peer  int64
	Count int
}

// Snapshot is a point-in-time view of the session.
type Snapshot struct {
	Self      auth.Identity
	State     status.State
	Peer      int64
	Room      string
	Connected bool
	Messages  []model.Message
	Unread    map[int64]int
}

type liveKind int

const (
	liveMessage liveKind = iota
	liveLiked
	liveDeleted
)

type liveEvent struct {
	kind liveKind
	msg  model.Message
	id   int64
}

// Controller owns the active peer. Only the controller joins rooms and
// registers transport callbacks.
type Controller struct {
	self    auth.Identity
	tr      Transport
	dir     *contacts.Directory
	store   *conversation.Store
	machine *status.Machine
	bus     *bus.Bus
	logger  *zap.Logger

	// joinMu orders room joins so the last join sent is the newest selection's.
	joinMu sync.Mutex

	mu         sync.Mutex
	gen        uint64
	detach     func()
	buffering  bool
	buffer     []liveEvent
	unread     map[int64]int
	stopNotify func()
	cancel     context.CancelFunc
	connDone   chan struct{}
}

// New creates a controller for self.
func New(self auth.Identity, tr Transport, dir *contacts.Directory, store *conversation.Store, machine *status.Machine, b *bus.Bus, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		self:    self,
		tr:      tr,
		dir:     dir,
		store:   store,
		machine: machine,
		bus:     b,
		logger:  logger.Named("chat"),
		unread:  make(map[int64]int),
	}
}

// Start loads the roster and pending requests and connects the transport in
// the background. Directory load failures are logged, not returned.
func (c *Controller) Start(ctx context.Context) error {
	if c.self.UserID == 0 || c.self.Token == "" {
		return auth.ErrNoIdentity
	}

	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return errors.New("session already started")
	}
	life, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.connDone = make(chan struct{})
	c.stopNotify = c.tr.OnNotify(c.onNotify)
	c.mu.Unlock()

	if err := c.dir.LoadFriends(ctx); err != nil {
		c.logger.Warn("initial friends load failed", zap.Error(err))
	}
	if err := c.dir.LoadPendingRequests(ctx); err != nil {
		c.logger.Warn("initial requests load failed", zap.Error(err))
	}

	go func() {
		defer close(c.connDone)
		if err := c.tr.Connect(life, c.self.Token); err != nil && life.Err() == nil {
			c.logger.Error("transport connect failed", zap.Error(err))
			c.bus.Emit(bus.KindTransportDown, err.Error())
		}
	}()

	c.logger.Info("session started", zap.Int64("user_id", c.self.UserID))
	return nil
}

// Select makes peer the active conversation. The room is joined and the
// handlers attached before history is fetched; live events arriving in the
// meantime are held back and replayed after the history is applied.
func (c *Controller) Select(ctx context.Context, peer int64) error {
	if peer == 0 || peer == c.self.UserID || !c.dir.ConfirmFriend(ctx, peer) {
		c.logger.Info("select refused", zap.Int64("peer", peer))
		return ErrNotFriend
	}
	room := model.RoomID(c.self.UserID, peer)

	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.detachLocked()
	if err := c.machine.Transition(status.Joining, peer); err != nil {
		c.mu.Unlock()
		return err
	}
	c.store.Open(peer)
	c.resetUnreadLocked(peer)
	c.buffering = true
	c.buffer = nil
	c.detach = c.tr.Subscribe(room, transport.Handlers{
		OnMessage:        func(m model.Message) { c.onLive(gen, liveEvent{kind: liveMessage, msg: m}) },
		OnMessageLiked:   func(m model.Message) { c.onLive(gen, liveEvent{kind: liveLiked, msg: m}) },
		OnMessageDeleted: func(id int64) { c.onLive(gen, liveEvent{kind: liveDeleted, id: id}) },
	})
	c.mu.Unlock()

	c.join(ctx, gen, room)

	msgs, err := c.store.Fetch(ctx, peer)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		c.logger.Debug("stale selection discarded", zap.Int64("peer", peer))
		return ErrSuperseded
	}
	if err != nil {
		c.detachLocked()
		c.buffering = false
		c.buffer = nil
		c.store.Open(0)
		c.machine.Reset()
		return fmt.Errorf("load history: %w", err)
	}

	c.store.Replace(peer, msgs)
	for _, evt := range c.buffer {
		c.applyLocked(evt)
	}
	c.buffer = nil
	c.buffering = false
	if err := c.machine.Transition(status.Active, peer); err != nil {
		return err
	}
	c.logger.Info("conversation active", zap.Int64("peer", peer), zap.String("room", room), zap.Int("messages", len(msgs)))
	return nil
}

// join sends the room join unless a newer selection has already replaced gen.
func (c *Controller) join(ctx context.Context, gen uint64, room string) {
	c.joinMu.Lock()
	defer c.joinMu.Unlock()

	c.mu.Lock()
	current := gen == c.gen
	c.mu.Unlock()
	if !current {
		return
	}
	if err := c.tr.JoinRoom(ctx, room); err != nil {
		// The transport re-joins the room once it reconnects.
		c.logger.Warn("join room failed", zap.String("room", room), zap.Error(err))
	}
}

func (c *Controller) onLive(gen uint64, evt liveEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// A handler copied out just before detach can still fire.
	if gen != c.gen {
		return
	}
	if c.buffering {
		c.buffer = append(c.buffer, evt)
		return
	}
	c.applyLocked(evt)
}

func (c *Controller) applyLocked(evt liveEvent) {
	switch evt.kind {
	case liveMessage:
		c.store.AppendIncoming(evt.msg)
	case liveLiked:
		c.store.ApplyLike(evt.msg)
	case liveDeleted:
		c.store.ApplyDelete(evt.id)
	}
}

func (c *Controller) onNotify(m model.Message) {
	if m.SenderID == c.self.UserID {
		return
	}
	peer := m.Peer(c.self.UserID)

	c.mu.Lock()
	if c.machine.Current() != status.Idle && c.machine.Peer() == peer {
		c.mu.Unlock()
		return
	}
	c.unread[peer]++
	n := c.unread[peer]
	c.mu.Unlock()

	c.bus.Emit(bus.KindUnreadChanged, UnreadChange{Peer: peer, Count: n})
}

func (c *Controller) resetUnreadLocked(peer int64) {
	if _, ok := c.unread[peer]; !ok {
		return
	}
	delete(c.unread, peer)
	c.bus.Emit(bus.KindUnreadChanged, UnreadChange{Peer: peer, Count: 0})
}

func (c *Controller) detachLocked() {
	if c.detach != nil {
		c.detach()
		c.detach = nil
	}
}

// Deselect closes the active conversation.
func (c *Controller) Deselect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.detachLocked()
	c.buffering = false
	c.buffer = nil
	if c.machine.Current() != status.Idle {
		c.machine.Reset()
		c.store.Open(0)
	}
}

func (c *Controller) activeRoom() (string, error) {
	if c.machine.Current() == status.Idle {
		return "", ErrNoActivePeer
	}
	return c.store.Room(), nil
}

// Send posts text to the active peer, optionally as a reply to message
// replyTo. The message shows as pending until the backend echoes it.
func (c *Controller) Send(ctx context.Context, text string, replyTo int64) (model.Message, error) {
	if _, err := c.activeRoom(); err != nil {
		return model.Message{}, err
	}
	if strings.TrimSpace(text) == "" {
		return model.Message{}, conversation.ErrEmptyMessage
	}
	if replyTo != 0 {
		if _, ok := c.store.Message(replyTo); !ok {
			return model.Message{}, ErrUnknownMessage
		}
	}
	return c.store.SendOptimistic(ctx, text, replyTo, c.tr.Send)
}

// Like asks the backend to like message id. The stored copy changes when the
// backend broadcasts the update.
func (c *Controller) Like(ctx context.Context, id int64) error {
	room, err := c.activeRoom()
	if err != nil {
		return err
	}
	if _, ok := c.store.Message(id); !ok {
		return ErrUnknownMessage
	}
	if err := c.tr.Like(ctx, room, id); err != nil {
		c.logger.Warn("like failed", zap.Int64("message_id", id), zap.Error(err))
		return err
	}
	return nil
}

// Delete asks the backend to delete message id once cf approves. A declined
// confirmation returns (false, nil).
func (c *Controller) Delete(ctx context.Context, id int64, cf confirm.Confirmer) (bool, error) {
	room, err := c.activeRoom()
	if err != nil {
		return false, err
	}
	m, ok := c.store.Message(id)
	if !ok {
		return false, ErrUnknownMessage
	}
	if m.SenderID != c.self.UserID {
		return false, ErrNotOwnMessage
	}
	if !confirm.Approved(ctx, cf, fmt.Sprintf("Delete message %q?", preview(m.Text))) {
		return false, nil
	}
	if err := c.tr.Delete(ctx, room, id); err != nil {
		c.logger.Warn("delete failed", zap.Int64("message_id", id), zap.Error(err))
		return false, err
	}
	return true, nil
}

func preview(s string) string {
	r := []rune(s)
	if len(r) > 40 {
		return string(r[:40]) + "..."
	}
	return s
}

// Unread returns a copy of the unread counters.
func (c *Controller) Unread() map[int64]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.unread)
}

// Snapshot returns the current session view.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	unread := maps.Clone(c.unread)
	c.mu.Unlock()

	st := c.machine.Current()
	snap := Snapshot{
		Self:      c.self,
		State:     st,
		Peer:      c.machine.Peer(),
		Connected: c.tr.Connected(),
		Unread:    unread,
	}
	snap.Self.Token = ""
	if st != status.Idle {
		snap.Room = c.store.Room()
		snap.Messages = c.store.Messages()
	}
	return snap
}

// Directory returns the session's contact directory.
func (c *Controller) Directory() *contacts.Directory { return c.dir }

// Self returns the logged-in identity.
func (c *Controller) Self() auth.Identity { return c.self }

// Close tears the session down: the conversation is closed, every callback
// detached and the transport shut.
func (c *Controller) Close() {
	c.Deselect()

	c.mu.Lock()
	cancel, done, stop := c.cancel, c.connDone, c.stopNotify
	c.cancel, c.stopNotify = nil, nil
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
	c.dir.Stop()
	if cancel != nil {
		cancel()
		<-done
	}
	c.tr.Close()
	c.logger.Info("session closed")
}
