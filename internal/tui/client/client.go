package client

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/pawprox/pawchat/internal/api"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client wraps the gRPC connection to the daemon's control service.
type Client struct {
	conn *grpc.ClientConn
}

// New dials the daemon's Unix domain socket.
func New(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) call(ctx context.Context, method string, req, resp any) error {
	in := &structpb.Struct{}
	if req != nil {
		var err error
		if in, err = api.Encode(req); err != nil {
			return err
		}
	}
	if resp == nil {
		return c.conn.Invoke(ctx, api.FullMethod(method), in, &emptypb.Empty{})
	}
	out := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, api.FullMethod(method), in, out); err != nil {
		return err
	}
	return api.Decode(out, resp)
}

// Status returns the daemon status.
func (c *Client) Status(ctx context.Context) (api.Status, error) {
	var st api.Status
	err := c.call(ctx, api.MethodStatus, nil, &st)
	return st, err
}

// Friends returns the roster with unread counts, reloading it from the
// backend first when refresh is set.
func (c *Client) Friends(ctx context.Context, refresh bool) ([]api.User, error) {
	var resp api.FriendsResponse
	err := c.call(ctx, api.MethodFriends, api.ListRequest{Refresh: refresh}, &resp)
	return resp.Friends, err
}

// Requests returns the pending incoming friend requests.
func (c *Client) Requests(ctx context.Context, refresh bool) ([]api.Request, error) {
	var resp api.RequestsResponse
	err := c.call(ctx, api.MethodRequests, api.ListRequest{Refresh: refresh}, &resp)
	return resp.Requests, err
}

// Search looks users up by name.
func (c *Client) Search(ctx context.Context, query string) (api.SearchResult, error) {
	var res api.SearchResult
	err := c.call(ctx, api.MethodSearch, api.SearchRequest{Query: query}, &res)
	return res, err
}

// QueueSearch hands query to the daemon's debounced search. Results are
// published as contacts.search_results on Watch.
func (c *Client) QueueSearch(ctx context.Context, query string) error {
	return c.call(ctx, api.MethodSearch, api.SearchRequest{Query: query, Debounce: true}, nil)
}

// SendRequest sends a friend request to userID.
func (c *Client) SendRequest(ctx context.Context, userID int64) error {
	return c.call(ctx, api.MethodSendRequest, api.AddFriendRequest{UserID: userID}, nil)
}

// Accept accepts request requestID from senderID.
func (c *Client) Accept(ctx context.Context, requestID, senderID int64) error {
	return c.call(ctx, api.MethodAccept, api.AcceptRequest{RequestID: requestID, SenderID: senderID}, nil)
}

// Decline declines request requestID.
func (c *Client) Decline(ctx context.Context, requestID int64) error {
	return c.call(ctx, api.MethodDecline, api.DeclineRequest{RequestID: requestID}, nil)
}

// RemoveFriend unfriends friendID. Without confirmed nothing is sent to the
// backend and removed is false.
func (c *Client) RemoveFriend(ctx context.Context, friendID int64, confirmed bool) (bool, error) {
	var resp api.RemoveFriendResponse
	err := c.call(ctx, api.MethodRemoveFriend, api.RemoveFriendRequest{FriendID: friendID, Confirmed: confirmed}, &resp)
	return resp.Removed, err
}

// Select opens the conversation with peerID.
func (c *Client) Select(ctx context.Context, peerID int64) (api.Conversation, error) {
	var conv api.Conversation
	err := c.call(ctx, api.MethodSelect, api.SelectRequest{PeerID: peerID}, &conv)
	return conv, err
}

// Deselect closes the active conversation.
func (c *Client) Deselect(ctx context.Context) error {
	return c.call(ctx, api.MethodDeselect, nil, nil)
}

// Messages returns the active conversation.
func (c *Client) Messages(ctx context.Context) (api.Conversation, error) {
	var conv api.Conversation
	err := c.call(ctx, api.MethodMessages, nil, &conv)
	return conv, err
}

// Send posts text to the active peer.
func (c *Client) Send(ctx context.Context, text string, replyTo int64) (api.Message, error) {
	var m api.Message
	err := c.call(ctx, api.MethodSend, api.SendMessageRequest{Text: text, ReplyTo: replyTo}, &m)
	return m, err
}

// Like likes messageID.
func (c *Client) Like(ctx context.Context, messageID int64) error {
	return c.call(ctx, api.MethodLike, api.LikeRequest{MessageID: messageID}, nil)
}

// Delete deletes messageID when confirmed.
func (c *Client) Delete(ctx context.Context, messageID int64, confirmed bool) (bool, error) {
	var resp api.DeleteResponse
	err := c.call(ctx, api.MethodDelete, api.DeleteRequest{MessageID: messageID, Confirmed: confirmed}, &resp)
	return resp.Deleted, err
}

// Unread returns the unread counters by peer.
func (c *Client) Unread(ctx context.Context) (map[int64]int, error) {
	var resp api.UnreadResponse
	err := c.call(ctx, api.MethodUnread, nil, &resp)
	return resp.Unread, err
}

// Watch streams events whose kind starts with prefix to fn until ctx ends or
// the daemon goes away.
func (c *Client) Watch(ctx context.Context, prefix string, fn func(api.Event)) error {
	desc := &grpc.StreamDesc{StreamName: api.MethodWatch, ServerStreams: true}
	stream, err := c.conn.NewStream(ctx, desc, api.FullMethod(api.MethodWatch))
	if err != nil {
		return err
	}
	in, err := api.Encode(api.WatchRequest{Prefix: prefix})
	if err != nil {
		return err
	}
	if err := stream.SendMsg(in); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		out := &structpb.Struct{}
		if err := stream.RecvMsg(out); err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		var evt api.Event
		if err := api.Decode(out, &evt); err != nil {
			return err
		}
		fn(evt)
	}
}
