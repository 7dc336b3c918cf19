// Package backend is the REST client for the PawProx social API.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pawprox/pawchat/internal/model"
	"go.uber.org/zap"
)

// ErrUnauthorized means the call was rejected for a missing or expired
// credential. Re-authentication is the user's job (pawchatctl login).
var ErrUnauthorized = errors.New("unauthorized")

// Error describes a failed backend call.
type Error struct {
	Op     string
	Status int // 0 when the request never got a response
	Err    error
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether repeating the call may succeed: connectivity
// failures, timeouts, throttling and server errors.
func (e *Error) Retryable() bool {
	return e.Status == 0 || e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// Client calls the backend on behalf of one bearer credential.
type Client struct {
	http   *resty.Client
	token  string
	logger *zap.Logger
}

// New creates a client for baseURL. Every request is bounded by timeout.
func New(baseURL, token string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	hc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if token != "" {
		hc.SetAuthToken(token)
	}
	return &Client{http: hc, token: token, logger: logger}
}

func (c *Client) request(ctx context.Context) (*resty.Request, error) {
	if c.token == "" {
		return nil, ErrUnauthorized
	}
	// Some deployments answer JSON as text/plain; decode regardless.
	return c.http.R().SetContext(ctx).ForceContentType("application/json"), nil
}

// do runs the request and classifies the outcome.
func (c *Client) do(op string, req *resty.Request, method, path string) error {
	start := time.Now()
	resp, err := req.Execute(method, path)
	if err != nil {
		c.logger.Warn("backend call failed", zap.String("op", op), zap.Error(err))
		return &Error{Op: op, Err: err}
	}
	c.logger.Debug("backend call",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode()),
		zap.Duration("took", time.Since(start)))

	switch code := resp.StatusCode(); {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return &Error{Op: op, Status: code, Err: ErrUnauthorized}
	case resp.IsError():
		return &Error{Op: op, Status: code, Err: errors.New(http.StatusText(code))}
	}
	return nil
}

// SearchUsers looks users up by display-name substring.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]model.User, error) {
	req, err := c.request(ctx)
	if err != nil {
		return nil, err
	}
	var users []model.User
	req.SetQueryParam("search", query).SetResult(&users)
	if err := c.do("search users", req, http.MethodGet, "/users"); err != nil {
		return nil, err
	}
	return users, nil
}

// GetUser fetches a single user profile.
func (c *Client) GetUser(ctx context.Context, id int64) (model.User, error) {
	req, err := c.request(ctx)
	if err != nil {
		return model.User{}, err
	}
	var u model.User
	req.SetPathParam("id", strconv.FormatInt(id, 10)).SetResult(&u)
	if err := c.do("get user", req, http.MethodGet, "/users/{id}"); err != nil {
		return model.User{}, err
	}
	return u, nil
}

// AreFriends asks the backend whether self and id are confirmed friends.
func (c *Client) AreFriends(ctx context.Context, id int64) (bool, error) {
	req, err := c.request(ctx)
	if err != nil {
		return false, err
	}
	var out struct {
		AreFriends bool `json:"areFriends"`
	}
	req.SetPathParam("id", strconv.FormatInt(id, 10)).SetResult(&out)
	if err := c.do("check friendship", req, http.MethodGet, "/friends/check/{id}"); err != nil {
		return false, err
	}
	return out.AreFriends, nil
}

// AcceptedFriends returns the full friends roster.
func (c *Client) AcceptedFriends(ctx context.Context) ([]model.User, error) {
	req, err := c.request(ctx)
	if err != nil {
		return nil, err
	}
	var friends []model.User
	req.SetResult(&friends)
	if err := c.do("list friends", req, http.MethodGet, "/friends/accepted"); err != nil {
		return nil, err
	}
	return friends, nil
}

// PendingRequests returns incoming friend requests.
func (c *Client) PendingRequests(ctx context.Context) ([]model.FriendRequest, error) {
	req, err := c.request(ctx)
	if err != nil {
		return nil, err
	}
	var reqs []model.FriendRequest
	req.SetResult(&reqs)
	if err := c.do("list requests", req, http.MethodGet, "/friends/requests"); err != nil {
		return nil, err
	}
	return reqs, nil
}

// SendRequest sends a friend request to receiverID.
func (c *Client) SendRequest(ctx context.Context, receiverID int64) error {
	req, err := c.request(ctx)
	if err != nil {
		return err
	}
	req.SetBody(map[string]int64{"receiver_id": receiverID})
	return c.do("send request", req, http.MethodPost, "/friends/send")
}

// AcceptRequest accepts an incoming request.
func (c *Client) AcceptRequest(ctx context.Context, requestID int64) error {
	req, err := c.request(ctx)
	if err != nil {
		return err
	}
	req.SetPathParam("id", strconv.FormatInt(requestID, 10))
	return c.do("accept request", req, http.MethodPost, "/friends/accept/{id}")
}

// DeclineRequest declines an incoming request.
func (c *Client) DeclineRequest(ctx context.Context, requestID int64) error {
	req, err := c.request(ctx)
	if err != nil {
		return err
	}
	req.SetPathParam("id", strconv.FormatInt(requestID, 10))
	return c.do("decline request", req, http.MethodPost, "/friends/decline/{id}")
}

// RemoveFriend unfriends friendID.
func (c *Client) RemoveFriend(ctx context.Context, friendID int64) error {
	req, err := c.request(ctx)
	if err != nil {
		return err
	}
	req.SetPathParam("id", strconv.FormatInt(friendID, 10))
	return c.do("remove friend", req, http.MethodDelete, "/friends/remove/{id}")
}

// Conversation returns the message history with peerID, oldest first.
func (c *Client) Conversation(ctx context.Context, peerID int64) ([]model.Message, error) {
	req, err := c.request(ctx)
	if err != nil {
		return nil, err
	}
	var msgs []model.Message
	req.SetQueryParam("receiver_id", strconv.FormatInt(peerID, 10)).SetResult(&msgs)
	if err := c.do("load conversation", req, http.MethodGet, "/chat/conversation"); err != nil {
		return nil, err
	}
	return msgs, nil
}
