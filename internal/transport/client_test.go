package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/pawprox/pawchat/internal/bus"
	"github.com/pawprox/pawchat/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// fakeBackend accepts WebSocket connections and records every frame.
type fakeBackend struct {
	srv    *httptest.Server
	frames chan envelope
	conns  chan *websocket.Conn
	auth   chan string
	reject bool
}

func newFakeBackend(t *testing.T, reject bool) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{
		reject: reject,
		frames: make(chan envelope, 64),
		conns:  make(chan *websocket.Conn, 4),
		auth:   make(chan string, 4),
	}
	fb.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fb.reject {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		fb.auth <- r.Header.Get("Authorization") + "|" + r.URL.Query().Get("access_token")
		fb.conns <- conn
		for {
			var env envelope
			if err := wsjson.Read(context.Background(), conn, &env); err != nil {
				return
			}
			fb.frames <- env
		}
	}))
	t.Cleanup(fb.srv.Close)
	return fb
}

func (fb *fakeBackend) wsURL() string {
	return "ws" + strings.TrimPrefix(fb.srv.URL, "http")
}

func (fb *fakeBackend) nextConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-fb.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no connection")
		return nil
	}
}

func (fb *fakeBackend) nextFrame(t *testing.T) envelope {
	t.Helper()
	select {
	case f := <-fb.frames:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("no frame")
		return envelope{}
	}
}

func push(t *testing.T, conn *websocket.Conn, event, room string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, wsjson.Write(context.Background(), conn, envelope{Event: event, Room: room, Data: raw}))
}

func connect(t *testing.T, fb *fakeBackend, b *bus.Bus) (*Client, *websocket.Conn) {
	t.Helper()
	c := New(fb.wsURL(), b, nil, WithBackoff(10*time.Millisecond, 50*time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx, "tok"))
	t.Cleanup(c.Close)
	return c, fb.nextConn(t)
}

func TestConnectSendsCredential(t *testing.T) {
	fb := newFakeBackend(t, false)
	c, _ := connect(t, fb, nil)

	assert.Equal(t, "Bearer tok|", <-fb.auth)
	assert.True(t, c.Connected())
}

func TestJoinRoomIdempotent(t *testing.T) {
	fb := newFakeBackend(t, false)
	c, _ := connect(t, fb, nil)
	ctx := context.Background()

	require.NoError(t, c.JoinRoom(ctx, "1_2"))
	require.NoError(t, c.JoinRoom(ctx, "1_2"))
	require.NoError(t, c.Send(ctx, "1_2", model.Message{SenderID: 1, ReceiverID: 2, Text: "hello"}))

	join := fb.nextFrame(t)
	assert.Equal(t, evJoinRoom, join.Event)
	assert.JSONEq(t, `{"room":"1_2"}`, string(join.Data))

	// The second join sent nothing, so the next frame is the send.
	send := fb.nextFrame(t)
	assert.Equal(t, evSendMessage, send.Event)
	var p sendPayload
	require.NoError(t, json.Unmarshal(send.Data, &p))
	assert.Equal(t, "1_2", p.Room)
	assert.Equal(t, "hello", p.Message.Text)
}

func TestLikeAndDeleteFrames(t *testing.T) {
	fb := newFakeBackend(t, false)
	c, _ := connect(t, fb, nil)
	ctx := context.Background()

	require.NoError(t, c.Like(ctx, "1_2", 10))
	require.NoError(t, c.Delete(ctx, "1_2", 11))

	like := fb.nextFrame(t)
	assert.Equal(t, evLikeMessage, like.Event)
	assert.JSONEq(t, `{"messageId":10,"room":"1_2"}`, string(like.Data))

	del := fb.nextFrame(t)
	assert.Equal(t, evDeleteMessage, del.Event)
	assert.JSONEq(t, `{"messageId":11,"room":"1_2"}`, string(del.Data))
}

func TestRoomScopedDispatch(t *testing.T) {
	fb := newFakeBackend(t, false)
	c, srvConn := connect(t, fb, nil)
	require.NoError(t, c.JoinRoom(context.Background(), "1_2"))
	fb.nextFrame(t)

	got := make(chan model.Message, 4)
	liked := make(chan model.Message, 4)
	deleted := make(chan int64, 4)
	detach := c.Subscribe("1_2", Handlers{
		OnMessage:        func(m model.Message) { got <- m },
		OnMessageLiked:   func(m model.Message) { liked <- m },
		OnMessageDeleted: func(id int64) { deleted <- id },
	})

	// Another room's traffic is not delivered.
	push(t, srvConn, evMessage, "1_3", model.Message{ID: 20, SenderID: 3, ReceiverID: 1, Text: "other"})
	push(t, srvConn, evMessage, "", model.Message{ID: 11, SenderID: 2, ReceiverID: 1, Text: "hi"})
	push(t, srvConn, evMessageLiked, "1_2", model.Message{ID: 11, SenderID: 2, ReceiverID: 1, Likes: 1})
	push(t, srvConn, evMessageDeleted, "", 11)
	push(t, srvConn, evMessageDeleted, "1_2", map[string]int64{"messageId": 12})

	select {
	case m := <-got:
		assert.Equal(t, int64(11), m.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("message not dispatched")
	}
	select {
	case m := <-liked:
		assert.Equal(t, 1, m.Likes)
	case <-time.After(2 * time.Second):
		t.Fatal("like not dispatched")
	}
	for _, want := range []int64{11, 12} {
		select {
		case id := <-deleted:
			assert.Equal(t, want, id)
		case <-time.After(2 * time.Second):
			t.Fatal("delete not dispatched")
		}
	}
	assert.Len(t, got, 0)

	detach()
	push(t, srvConn, evMessage, "", model.Message{ID: 13, SenderID: 2, ReceiverID: 1})
	select {
	case m := <-got:
		t.Fatalf("delivered after detach: %+v", m)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRoomlessEventsGoToJoinedRoom(t *testing.T) {
	fb := newFakeBackend(t, false)
	c, srvConn := connect(t, fb, nil)
	require.NoError(t, c.JoinRoom(context.Background(), "1_2"))
	fb.nextFrame(t)

	got := make(chan model.Message, 2)
	liked := make(chan model.Message, 2)
	defer c.Subscribe("1_2", Handlers{
		OnMessage:      func(m model.Message) { got <- m },
		OnMessageLiked: func(m model.Message) { liked <- m },
	})()

	// An echo without a receiver and a like without a sender.
	push(t, srvConn, evMessage, "", map[string]any{"id": 11, "sender_id": 1, "text": "hello"})
	push(t, srvConn, evMessageLiked, "", map[string]any{"id": 10, "likes": 3})

	select {
	case m := <-got:
		assert.Equal(t, int64(11), m.ID)
		assert.Equal(t, "hello", m.Text)
	case <-time.After(2 * time.Second):
		t.Fatal("echo not delivered to joined room")
	}
	select {
	case m := <-liked:
		assert.Equal(t, int64(10), m.ID)
		assert.Equal(t, 3, m.Likes)
	case <-time.After(2 * time.Second):
		t.Fatal("like not delivered to joined room")
	}
}

func TestDialFailureDoesNotLogToken(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	c := New("ws://127.0.0.1:1/ws", nil, zap.New(core), WithBackoff(10*time.Millisecond, 20*time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.Error(t, c.Connect(ctx, "secret-bearer"))

	entries := logs.FilterMessage("transport dial failed").All()
	require.NotEmpty(t, entries)
	for _, e := range entries {
		for k, v := range e.ContextMap() {
			assert.NotContains(t, fmt.Sprint(v), "secret-bearer", "field %s", k)
		}
	}
}

func TestNotifyHandlers(t *testing.T) {
	fb := newFakeBackend(t, false)
	c, srvConn := connect(t, fb, nil)

	got := make(chan model.Message, 1)
	detach := c.OnNotify(func(m model.Message) { got <- m })
	defer detach()

	push(t, srvConn, evNewMessage, "", model.Message{ID: 30, SenderID: 4, ReceiverID: 1})
	select {
	case m := <-got:
		assert.Equal(t, int64(4), m.SenderID)
	case <-time.After(2 * time.Second):
		t.Fatal("notification not delivered")
	}
}

func TestEmitWhileDisconnected(t *testing.T) {
	c := New("ws://127.0.0.1:1/ws", nil, nil)
	err := c.Send(context.Background(), "1_2", model.Message{Text: "lost"})
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, c.JoinRoom(context.Background(), "1_2"), ErrNotConnected)
}

func TestUnauthorizedHandshake(t *testing.T) {
	fb := newFakeBackend(t, true)

	c := New(fb.wsURL(), nil, nil, WithBackoff(10*time.Millisecond, 20*time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.ErrorIs(t, c.Connect(ctx, "expired"), ErrUnauthorized)
}

func TestConnectGivesUpWithContext(t *testing.T) {
	c := New("ws://127.0.0.1:1/ws", nil, nil, WithBackoff(10*time.Millisecond, 20*time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Connect(ctx, "tok"), context.DeadlineExceeded)
}

func TestRedialRejoinsRoom(t *testing.T) {
	fb := newFakeBackend(t, false)
	b := bus.New()
	events, unsub := b.Subscribe("transport.", 16)
	defer unsub()

	c, srvConn := connect(t, fb, b)
	require.NoError(t, c.JoinRoom(context.Background(), "1_2"))
	assert.Equal(t, evJoinRoom, fb.nextFrame(t).Event)

	// Server drops the connection.
	_ = srvConn.Close(websocket.StatusGoingAway, "restart")

	fb.nextConn(t)
	rejoin := fb.nextFrame(t)
	assert.Equal(t, evJoinRoom, rejoin.Event)
	assert.JSONEq(t, `{"room":"1_2"}`, string(rejoin.Data))

	var kinds []string
	deadline := time.After(2 * time.Second)
	for len(kinds) < 3 {
		select {
		case evt := <-events:
			kinds = append(kinds, evt.Kind)
		case <-deadline:
			t.Fatalf("got events %v", kinds)
		}
	}
	assert.Equal(t, []string{bus.KindTransportConnected, bus.KindTransportDown, bus.KindTransportConnected}, kinds)
}
