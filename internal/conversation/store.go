// Package conversation holds the message list of the active peer and
// reconciles REST history, live pushes and optimistic sends.
package conversation

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pawprox/pawchat/internal/auth"
	"github.com/pawprox/pawchat/internal/bus"
	"github.com/pawprox/pawchat/internal/model"
	"go.uber.org/zap"
)

var (
	// ErrEmptyMessage is returned for blank message text.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrNoPeer is returned when no conversation is open.
	ErrNoPeer = errors.New("no conversation open")
)

// History fetches the stored conversation with a peer.
type History interface {
	Conversation(ctx context.Context, peerID int64) ([]model.Message, error)
}

// Change describes what happened to the message list.
type Change string

const (
	Loaded    Change = "loaded"
	Appended  Change = "appended"
	Confirmed Change = "confirmed"
	Liked     Change = "liked"
	Deleted   Change = "deleted"
	Dropped   Change = "dropped"
)

// Update is the payload of conversation.updated.
type Update struct {
	Peer    int64
	Change  Change
	Message model.Message
	// Initial is set for the first history load of a conversation.
	Initial bool
}

// Store holds messages for one peer at a time. It is safe for concurrent use.
type Store struct {
	self    auth.Identity
	history History
	bus     *bus.Bus
	logger  *zap.Logger

	mu       sync.Mutex
	peer     int64
	room     string
	messages []model.Message
	loaded   bool
}

// New creates an empty store for the identity self.
func New(self auth.Identity, history History, b *bus.Bus, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		self:    self,
		history: history,
		bus:     b,
		logger:  logger.Named("conversation"),
	}
}

// Open discards the current conversation and starts an empty one with peer.
// A zero peer closes the conversation.
func (s *Store) Open(peer int64) {
	s.mu.Lock()
	s.peer = peer
	s.room = ""
	if peer != 0 {
		s.room = model.RoomID(s.self.UserID, peer)
	}
	s.messages = nil
	s.loaded = false
	s.mu.Unlock()

	s.bus.Emit(bus.KindConversationReset, peer)
}

// Peer returns the open conversation's peer, zero when none.
func (s *Store) Peer() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer
}

// Room returns the open conversation's room id.
func (s *Store) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// Fetch retrieves the history with peer without touching the store.
func (s *Store) Fetch(ctx context.Context, peer int64) ([]model.Message, error) {
	msgs, err := s.history.Conversation(ctx, peer)
	if err != nil {
		s.logger.Error("history fetch failed", zap.Int64("peer", peer), zap.Error(err))
		return nil, err
	}
	return msgs, nil
}

// Replace swaps the message list for msgs if peer is still the open
// conversation, and reports whether it did. Messages from other rooms are
// skipped.
func (s *Store) Replace(peer int64, msgs []model.Message) bool {
	s.mu.Lock()
	if peer == 0 || peer != s.peer {
		s.mu.Unlock()
		return false
	}
	initial := !s.loaded
	list := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		if !s.belongsLocked(&m) {
			continue
		}
		m.Pending = false
		list = append(list, m)
	}
	s.messages = list
	s.loaded = true
	s.mu.Unlock()

	s.bus.Emit(bus.KindConversationUpdated, Update{Peer: peer, Change: Loaded, Initial: initial})
	return true
}

// AppendIncoming adds a pushed message to the end of the list. An echo of a
// locally sent message replaces its pending copy in place instead. Messages
// for other rooms and ids already present are ignored. It reports whether the
// list changed.
func (s *Store) AppendIncoming(m model.Message) bool {
	s.mu.Lock()
	if s.peer == 0 || !s.belongsLocked(&m) {
		s.mu.Unlock()
		return false
	}
	if m.ID != 0 && s.indexOfLocked(m.ID) >= 0 {
		s.mu.Unlock()
		return false
	}
	m.Pending = false

	change := Appended
	if i := s.pendingEchoLocked(m); i >= 0 {
		if m.ClientID == "" {
			m.ClientID = s.messages[i].ClientID
		}
		s.messages[i] = m
		change = Confirmed
	} else {
		s.messages = append(s.messages, m)
	}
	peer := s.peer
	s.mu.Unlock()

	s.bus.Emit(bus.KindConversationUpdated, Update{Peer: peer, Change: change, Message: m})
	return true
}

// belongsLocked reports whether m is part of the open conversation. Pushes
// that omit the receiver are completed from the sender.
func (s *Store) belongsLocked(m *model.Message) bool {
	if m.ReceiverID == 0 {
		switch m.SenderID {
		case s.self.UserID:
			m.ReceiverID = s.peer
		case s.peer:
			m.ReceiverID = s.self.UserID
		}
	}
	return m.Room() == s.room
}

// pendingEchoLocked finds the pending message m confirms: by correlation id,
// or for echoes without one, the oldest pending message from self with the
// same text.
func (s *Store) pendingEchoLocked(m model.Message) int {
	if m.SenderID != s.self.UserID {
		return -1
	}
	if m.ClientID != "" {
		return slices.IndexFunc(s.messages, func(p model.Message) bool {
			return p.Pending && p.ClientID == m.ClientID
		})
	}
	return slices.IndexFunc(s.messages, func(p model.Message) bool {
		return p.Pending && p.Text == m.Text
	})
}

// SendOptimistic appends a pending message to the open conversation and hands
// it to emit. If emit fails the pending message is removed and the error is
// returned; nothing is retried.
func (s *Store) SendOptimistic(ctx context.Context, text string, replyTo int64, emit func(context.Context, string, model.Message) error) (model.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.Message{}, ErrEmptyMessage
	}

	s.mu.Lock()
	if s.peer == 0 {
		s.mu.Unlock()
		return model.Message{}, ErrNoPeer
	}
	m := model.Message{
		ClientID:   uuid.NewString(),
		SenderID:   s.self.UserID,
		ReceiverID: s.peer,
		Text:       text,
		Timestamp:  time.Now().UTC(),
		SenderName: s.self.DisplayName(),
		SenderPic:  s.self.Avatar,
		ReplyTo:    replyTo,
		Pending:    true,
	}
	room, peer := s.room, s.peer
	s.messages = append(s.messages, m)
	s.mu.Unlock()

	s.bus.Emit(bus.KindConversationUpdated, Update{Peer: peer, Change: Appended, Message: m})

	if err := emit(ctx, room, m); err != nil {
		s.logger.Warn("send failed", zap.String("room", room), zap.String("client_id", m.ClientID), zap.Error(err))
		s.mu.Lock()
		removed := false
		if s.peer == peer {
			n := len(s.messages)
			s.messages = slices.DeleteFunc(s.messages, func(p model.Message) bool {
				return p.Pending && p.ClientID == m.ClientID
			})
			removed = len(s.messages) != n
		}
		s.mu.Unlock()
		if removed {
			s.bus.Emit(bus.KindConversationUpdated, Update{Peer: peer, Change: Dropped, Message: m})
		}
		s.bus.Emit(bus.KindSendFailed, m)
		return m, err
	}
	return m, nil
}

// ApplyLike replaces the stored copy of updated in place.
func (s *Store) ApplyLike(updated model.Message) bool {
	s.mu.Lock()
	i := -1
	if updated.ID != 0 {
		i = s.indexOfLocked(updated.ID)
	}
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	prev := s.messages[i]
	// Like payloads may omit fields; keep what we know.
	if updated.Text == "" {
		updated.Text = prev.Text
	}
	if updated.SenderID == 0 {
		updated.SenderID, updated.ReceiverID = prev.SenderID, prev.ReceiverID
	}
	if updated.SenderName == "" {
		updated.SenderName = prev.SenderName
	}
	if updated.SenderPic == "" {
		updated.SenderPic = prev.SenderPic
	}
	if updated.Timestamp.IsZero() {
		updated.Timestamp = prev.Timestamp
	}
	if updated.ReplyTo == 0 {
		updated.ReplyTo = prev.ReplyTo
	}
	updated.ClientID = prev.ClientID
	updated.Pending = false
	s.messages[i] = updated
	peer := s.peer
	s.mu.Unlock()

	s.bus.Emit(bus.KindConversationUpdated, Update{Peer: peer, Change: Liked, Message: updated})
	return true
}

// ApplyDelete removes the message with id.
func (s *Store) ApplyDelete(id int64) bool {
	s.mu.Lock()
	i := s.indexOfLocked(id)
	if id == 0 || i < 0 {
		s.mu.Unlock()
		return false
	}
	m := s.messages[i]
	s.messages = slices.Delete(s.messages, i, i+1)
	peer := s.peer
	s.mu.Unlock()

	s.bus.Emit(bus.KindConversationUpdated, Update{Peer: peer, Change: Deleted, Message: m})
	return true
}

// Message returns the stored message with id.
func (s *Store) Message(id int64) (model.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOfLocked(id); i >= 0 {
		return s.messages[i], true
	}
	return model.Message{}, false
}

// Messages returns a copy of the list in display order.
func (s *Store) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}

func (s *Store) indexOfLocked(id int64) int {
	if id == 0 {
		return -1
	}
	return slices.IndexFunc(s.messages, func(m model.Message) bool { return m.ID == id })
}
