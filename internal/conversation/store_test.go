package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pawprox/pawchat/internal/auth"
	"github.com/pawprox/pawchat/internal/bus"
	"github.com/pawprox/pawchat/internal/model"
)

type fakeHistory struct {
	msgs map[int64][]model.Message
	err  error
}

func (f *fakeHistory) Conversation(_ context.Context, peer int64) ([]model.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.msgs[peer], nil
}

// recordEmit captures what the store hands to the transport.
type recordEmit struct {
	rooms []string
	msgs  []model.Message
	err   error
}

func (r *recordEmit) emit(_ context.Context, room string, m model.Message) error {
	r.rooms = append(r.rooms, room)
	r.msgs = append(r.msgs, m)
	return r.err
}

var alice = auth.Identity{UserID: 1, Username: "alice", Name: "Alice"}

func newStore(h History) *Store {
	return New(alice, h, bus.New(), nil)
}

func ids(msgs []model.Message) []int64 {
	out := make([]int64, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestFetchThenReplace(t *testing.T) {
	h := &fakeHistory{msgs: map[int64][]model.Message{
		2: {
			{ID: 10, SenderID: 2, ReceiverID: 1, Text: "hi"},
			{ID: 12, SenderID: 1, ReceiverID: 2, Text: "yo"},
		},
	}}
	s := newStore(h)
	s.Open(2)
	s.AppendIncoming(model.Message{ID: 99, SenderID: 2, ReceiverID: 1, Text: "stale"})

	msgs, err := s.Fetch(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if !s.Replace(2, msgs) {
		t.Fatal("history for the open peer was not applied")
	}
	if got := ids(s.Messages()); !equalIDs(got, []int64{10, 12}) {
		t.Fatalf("ids = %v, want [10 12]", got)
	}
}

func TestReplaceDropsOtherPeer(t *testing.T) {
	s := newStore(&fakeHistory{})
	s.Open(3)
	if s.Replace(2, []model.Message{{ID: 10, SenderID: 2, ReceiverID: 1}}) {
		t.Fatal("history for peer 2 applied while 3 is open")
	}
	if len(s.Messages()) != 0 {
		t.Fatal("store changed")
	}
}

func TestAppendIncomingScopedToRoom(t *testing.T) {
	s := newStore(&fakeHistory{})
	s.Open(2)

	if s.AppendIncoming(model.Message{ID: 5, SenderID: 3, ReceiverID: 1}) {
		t.Error("message from room 1_3 appended to 1_2")
	}
	if !s.AppendIncoming(model.Message{ID: 6, SenderID: 2, ReceiverID: 1}) {
		t.Error("message for open room rejected")
	}
	if s.AppendIncoming(model.Message{ID: 6, SenderID: 2, ReceiverID: 1}) {
		t.Error("duplicate id appended")
	}
	if got := ids(s.Messages()); !equalIDs(got, []int64{6}) {
		t.Fatalf("ids = %v", got)
	}
}

func TestAppendKeepsDeliveryOrder(t *testing.T) {
	s := newStore(&fakeHistory{})
	s.Open(2)
	now := time.Now()
	s.AppendIncoming(model.Message{ID: 2, SenderID: 2, ReceiverID: 1, Timestamp: now})
	s.AppendIncoming(model.Message{ID: 1, SenderID: 2, ReceiverID: 1, Timestamp: now.Add(-time.Hour)})
	if got := ids(s.Messages()); !equalIDs(got, []int64{2, 1}) {
		t.Fatalf("ids = %v, want delivery order [2 1]", got)
	}
}

func TestSendOptimisticReconcilesEcho(t *testing.T) {
	tests := []struct {
		name string
		echo func(sent model.Message) model.Message
	}{
		{"by client id", func(sent model.Message) model.Message {
			return model.Message{ID: 11, ClientID: sent.ClientID, SenderID: 1, ReceiverID: 2, Text: "hello"}
		}},
		{"by text without client id", func(model.Message) model.Message {
			return model.Message{ID: 11, SenderID: 1, ReceiverID: 2, Text: "hello"}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(&fakeHistory{})
			s.Open(2)
			s.Replace(2, []model.Message{{ID: 10, SenderID: 2, ReceiverID: 1, Text: "hi"}})

			rec := &recordEmit{}
			sent, err := s.SendOptimistic(context.Background(), "  hello ", 0, rec.emit)
			if err != nil {
				t.Fatal(err)
			}
			if rec.rooms[0] != "1_2" {
				t.Errorf("room = %q, want 1_2", rec.rooms[0])
			}
			if sent.ClientID == "" || !sent.Pending || sent.Text != "hello" {
				t.Fatalf("sent = %+v", sent)
			}
			if n := len(s.Messages()); n != 2 {
				t.Fatalf("got %d messages before echo, want 2", n)
			}

			s.AppendIncoming(tt.echo(sent))

			msgs := s.Messages()
			if got := ids(msgs); !equalIDs(got, []int64{10, 11}) {
				t.Fatalf("ids = %v, want [10 11]", got)
			}
			if msgs[1].Pending {
				t.Error("echoed message still pending")
			}
			if msgs[1].ClientID != sent.ClientID {
				t.Error("client id lost on reconcile")
			}
		})
	}
}

func TestSendOptimisticValidation(t *testing.T) {
	s := newStore(&fakeHistory{})
	rec := &recordEmit{}

	if _, err := s.SendOptimistic(context.Background(), "hi", 0, rec.emit); !errors.Is(err, ErrNoPeer) {
		t.Errorf("err = %v, want ErrNoPeer", err)
	}
	s.Open(2)
	if _, err := s.SendOptimistic(context.Background(), " \n ", 0, rec.emit); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("err = %v, want ErrEmptyMessage", err)
	}
	if len(rec.msgs) != 0 {
		t.Fatal("emit called for invalid send")
	}
}

func TestSendOptimisticDropsOnEmitFailure(t *testing.T) {
	b := bus.New()
	s := New(alice, &fakeHistory{}, b, nil)
	s.Open(2)
	failed, unsub := b.Subscribe(bus.KindSendFailed, 1)
	defer unsub()

	rec := &recordEmit{err: errors.New("transport not connected")}
	if _, err := s.SendOptimistic(context.Background(), "hello", 0, rec.emit); err == nil {
		t.Fatal("expected error")
	}
	if len(s.Messages()) != 0 {
		t.Fatal("failed message kept in list")
	}
	select {
	case <-failed:
	default:
		t.Error("no send_failed event")
	}
}

func TestApplyLikeInPlace(t *testing.T) {
	s := newStore(&fakeHistory{})
	s.Open(2)
	s.Replace(2, []model.Message{
		{ID: 10, SenderID: 2, ReceiverID: 1, Text: "a"},
		{ID: 11, SenderID: 1, ReceiverID: 2, Text: "b"},
		{ID: 12, SenderID: 2, ReceiverID: 1, Text: "c"},
	})

	if !s.ApplyLike(model.Message{ID: 11, Likes: 3}) {
		t.Fatal("like not applied")
	}
	msgs := s.Messages()
	if got := ids(msgs); !equalIDs(got, []int64{10, 11, 12}) {
		t.Fatalf("order changed: %v", got)
	}
	if msgs[1].Likes != 3 || msgs[1].Text != "b" {
		t.Errorf("liked message = %+v", msgs[1])
	}
	if s.ApplyLike(model.Message{ID: 99, Likes: 1}) {
		t.Error("like for unknown id applied")
	}
}

func TestApplyDelete(t *testing.T) {
	s := newStore(&fakeHistory{})
	s.Open(2)
	s.Replace(2, []model.Message{
		{ID: 10, SenderID: 2, ReceiverID: 1},
		{ID: 11, SenderID: 1, ReceiverID: 2},
	})
	if !s.ApplyDelete(10) {
		t.Fatal("delete not applied")
	}
	if s.ApplyDelete(10) {
		t.Error("second delete reported a change")
	}
	if got := ids(s.Messages()); !equalIDs(got, []int64{11}) {
		t.Fatalf("ids = %v", got)
	}
}

func TestInitialLoadFlag(t *testing.T) {
	b := bus.New()
	s := New(alice, &fakeHistory{}, b, nil)
	ch, unsub := b.Subscribe(bus.KindConversationUpdated, 4)
	defer unsub()

	s.Open(2)
	s.Replace(2, nil)
	s.Replace(2, nil)

	first := (<-ch).Payload.(Update)
	second := (<-ch).Payload.(Update)
	if !first.Initial || second.Initial {
		t.Fatalf("initial flags = %v, %v; want true, false", first.Initial, second.Initial)
	}
}
