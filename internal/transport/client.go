// Package transport owns the authenticated real-time connection to the
// PawProx messaging backend.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/pawprox/pawchat/internal/bus"
	"github.com/pawprox/pawchat/internal/model"
	"go.uber.org/zap"
)

var (
	// ErrNotConnected is returned by emits while the connection is down.
	// Nothing is queued; the caller's message is lost.
	ErrNotConnected = errors.New("transport not connected")
	// ErrUnauthorized is returned when the handshake rejects the token.
	ErrUnauthorized = errors.New("transport rejected credential")
)

// Handlers receive room-scoped events. Nil fields are skipped.
type Handlers struct {
	OnMessage        func(model.Message)
	OnMessageLiked   func(model.Message)
	OnMessageDeleted func(id int64)
}

type roomSub struct {
	room string
	h    Handlers
}

// Client is a WebSocket client with automatic redial. One Client serves one
// logged-in session.
type Client struct {
	url        string
	bus        *bus.Bus
	logger     *zap.Logger
	minBackoff time.Duration
	maxBackoff time.Duration

	mu      sync.Mutex
	token   string
	conn    *websocket.Conn
	want    string // room the caller asked for
	joined  string // room joined on the current connection
	subs    map[int]roomSub
	notify  map[int]func(model.Message)
	next    int
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// Option configures a Client.
type Option func(*Client)

// WithBackoff sets the redial backoff bounds.
func WithBackoff(min, max time.Duration) Option {
	return func(c *Client) {
		c.minBackoff = min
		c.maxBackoff = max
	}
}

// New creates a client for the WebSocket endpoint at wsURL.
func New(wsURL string, b *bus.Bus, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		url:        wsURL,
		bus:        b,
		logger:     logger,
		minBackoff: 250 * time.Millisecond,
		maxBackoff: 10 * time.Second,
		subs:       make(map[int]roomSub),
		notify:     make(map[int]func(model.Message)),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Connect dials the backend with token, retrying with backoff until it
// succeeds, ctx ends, or the credential is rejected. Once connected, dropped
// connections are redialed in the background and the last room is re-joined.
func (c *Client) Connect(ctx context.Context, token string) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return errors.New("transport already connected")
	}
	c.token = token
	c.mu.Unlock()

	conn, err := c.dialRetry(ctx)
	if err != nil {
		return err
	}

	life, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.started = true
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()

	c.up(life, conn)
	go c.supervise(life, conn)
	return nil
}

// Connected reports whether a connection is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Close shuts the connection down and stops redialing.
func (c *Client) Close() {
	c.mu.Lock()
	cancel, done, conn := c.cancel, c.done, c.conn
	c.cancel = nil
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "session closed")
	}
	<-done
}

func (c *Client) supervise(ctx context.Context, conn *websocket.Conn) {
	defer close(c.done)
	for {
		err := c.readLoop(ctx, conn)
		c.down(conn, err)
		if ctx.Err() != nil {
			return
		}
		conn, err = c.dialRetry(ctx)
		if err != nil {
			c.logger.Error("transport giving up", zap.Error(err))
			return
		}
		c.up(ctx, conn)
	}
}

func (c *Client) dialRetry(ctx context.Context) (*websocket.Conn, error) {
	backoff := c.minBackoff
	for {
		conn, err := c.dial(ctx)
		if err == nil {
			return conn, nil
		}
		if errors.Is(err, ErrUnauthorized) {
			return nil, err
		}
		c.logger.Warn("transport dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("dial %s: %w", c.url, ctx.Err())
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, c.maxBackoff)
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()

	// The token travels only in the header so dial errors, which quote the
	// URL, never carry it into logs.
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, resp, err := websocket.Dial(ctx, c.url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	conn.SetReadLimit(1 << 20)
	return conn, nil
}

// up installs conn and re-joins the wanted room.
func (c *Client) up(ctx context.Context, conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.joined = ""
	room := c.want
	c.mu.Unlock()

	c.logger.Info("transport connected", zap.String("url", c.url))
	c.bus.Emit(bus.KindTransportConnected, nil)
	if room != "" {
		if err := c.JoinRoom(ctx, room); err != nil {
			c.logger.Warn("rejoin failed", zap.String("room", room), zap.Error(err))
		}
	}
}

func (c *Client) down(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.joined = ""
	}
	c.mu.Unlock()
	_ = conn.CloseNow()
	c.logger.Warn("transport disconnected", zap.Error(err))
	c.bus.Emit(bus.KindTransportDown, nil)
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		var env envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			return err
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env envelope) {
	switch env.Event {
	case evMessage, evMessageLiked, evNewMessage:
		var m model.Message
		if err := json.Unmarshal(env.Data, &m); err != nil {
			c.logger.Warn("bad message payload", zap.String("event", env.Event), zap.Error(err))
			return
		}
		if env.Event == evNewMessage {
			for _, fn := range c.notifyHandlers() {
				fn(m)
			}
			return
		}
		for _, h := range c.roomHandlers(c.eventRoom(env)) {
			if env.Event == evMessage && h.OnMessage != nil {
				h.OnMessage(m)
			}
			if env.Event == evMessageLiked && h.OnMessageLiked != nil {
				h.OnMessageLiked(m)
			}
		}
	case evMessageDeleted:
		id, err := decodeMessageID(env.Data)
		if err != nil {
			c.logger.Warn("bad delete payload", zap.Error(err))
			return
		}
		for _, h := range c.roomHandlers(c.eventRoom(env)) {
			if h.OnMessageDeleted != nil {
				h.OnMessageDeleted(id)
			}
		}
	default:
		c.logger.Debug("ignoring event", zap.String("event", env.Event))
	}
}

// eventRoom attributes env to its explicit room, or else to the room last
// joined on this connection.
func (c *Client) eventRoom(env envelope) string {
	if env.Room != "" {
		return env.Room
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.joined
}

func (c *Client) roomHandlers(room string) []Handlers {
	c.mu.Lock()
	defer c.mu.Unlock()
	var hs []Handlers
	for _, s := range c.subs {
		if s.room == room {
			hs = append(hs, s.h)
		}
	}
	return hs
}

func (c *Client) notifyHandlers() []func(model.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fns := make([]func(model.Message), 0, len(c.notify))
	for _, fn := range c.notify {
		fns = append(fns, fn)
	}
	return fns
}

// Subscribe registers handlers for events scoped to room. The returned func
// detaches them; it is safe to call more than once.
func (c *Client) Subscribe(room string, h Handlers) func() {
	c.mu.Lock()
	id := c.next
	c.next++
	c.subs[id] = roomSub{room: room, h: h}
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// OnNotify registers fn for the session-wide newMessage notification.
func (c *Client) OnNotify(fn func(model.Message)) func() {
	c.mu.Lock()
	id := c.next
	c.next++
	c.notify[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.notify, id)
		c.mu.Unlock()
	}
}

// JoinRoom subscribes the connection to room. Joining the room already joined
// on this connection sends nothing. The room is remembered and re-joined after
// a redial even when this call fails with ErrNotConnected.
func (c *Client) JoinRoom(ctx context.Context, room string) error {
	c.mu.Lock()
	c.want = room
	if c.joined == room && c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.emit(ctx, evJoinRoom, room, joinPayload{Room: room}); err != nil {
		return err
	}
	c.mu.Lock()
	c.joined = room
	c.mu.Unlock()
	return nil
}

// Send emits msg to room without waiting for an acknowledgement.
func (c *Client) Send(ctx context.Context, room string, msg model.Message) error {
	return c.emit(ctx, evSendMessage, room, sendPayload{Room: room, Message: msg})
}

// Like asks the backend to like message id.
func (c *Client) Like(ctx context.Context, room string, id int64) error {
	return c.emit(ctx, evLikeMessage, room, messageRef{MessageID: id, Room: room})
}

// Delete asks the backend to delete message id.
func (c *Client) Delete(ctx context.Context, room string, id int64) error {
	return c.emit(ctx, evDeleteMessage, room, messageRef{MessageID: id, Room: room})
}

func (c *Client) emit(ctx context.Context, event, room string, payload any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	env, err := encode(event, room, payload)
	if err != nil {
		return err
	}
	if err := wsjson.Write(ctx, conn, env); err != nil {
		return fmt.Errorf("%s: %w", event, err)
	}
	return nil
}
