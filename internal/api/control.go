// Package api exposes the chat session to local control clients over gRPC.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/pawprox/pawchat/internal/backend"
	"github.com/pawprox/pawchat/internal/bus"
	"github.com/pawprox/pawchat/internal/chat"
	"github.com/pawprox/pawchat/internal/confirm"
	"github.com/pawprox/pawchat/internal/contacts"
	"github.com/pawprox/pawchat/internal/conversation"
	"github.com/pawprox/pawchat/internal/transport"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ControlService implements pawchat.v1.Control.
type ControlService struct {
	profile   string
	startedAt time.Time
	ctrl      *chat.Controller
	dir       *contacts.Directory
	bus       *bus.Bus
	logger    *zap.Logger

	// life outlives single calls for work queued past the RPC.
	life      context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// NewControlService creates the control service for a running session.
func NewControlService(profile string, ctrl *chat.Controller, b *bus.Bus, logger *zap.Logger) *ControlService {
	if logger == nil {
		logger = zap.NewNop()
	}
	life, cancel := context.WithCancel(context.Background())
	return &ControlService{
		profile:   profile,
		startedAt: time.Now(),
		ctrl:      ctrl,
		dir:       ctrl.Directory(),
		bus:       b,
		logger:    logger.Named("api"),
		life:      life,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// Close ends every open Watch stream and drops queued searches.
func (s *ControlService) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		close(s.done)
	})
}

func (s *ControlService) Status(_ context.Context, _ *structpb.Struct) (proto.Message, error) {
	snap := s.ctrl.Snapshot()
	total := 0
	for _, n := range snap.Unread {
		total += n
	}
	return Encode(Status{
		Profile:   s.profile,
		UserID:    snap.Self.UserID,
		Username:  snap.Self.Username,
		Name:      snap.Self.Name,
		State:     string(snap.State),
		Peer:      snap.Peer,
		Room:      snap.Room,
		Connected: snap.Connected,
		UptimeMs:  time.Since(s.startedAt).Milliseconds(),
		Unread:    total,
	})
}

func (s *ControlService) Friends(ctx context.Context, in *structpb.Struct) (proto.Message, error) {
	var req ListRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	if req.Refresh {
		if err := s.dir.LoadFriends(ctx); err != nil {
			s.logger.Warn("refresh friends failed, serving cached roster", zap.Error(err))
		}
	}
	unread := s.ctrl.Unread()
	resp := FriendsResponse{Friends: []User{}}
	for _, f := range s.dir.Friends() {
		u := userFromModel(f)
		u.IsFriend = true
		u.Unread = unread[f.ID]
		resp.Friends = append(resp.Friends, u)
	}
	return Encode(resp)
}

func (s *ControlService) Requests(ctx context.Context, in *structpb.Struct) (proto.Message, error) {
	var req ListRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	if req.Refresh {
		if err := s.dir.LoadPendingRequests(ctx); err != nil {
			s.logger.Warn("refresh requests failed, serving cached list", zap.Error(err))
		}
	}
	resp := RequestsResponse{Requests: []Request{}}
	for _, r := range s.dir.Pending() {
		resp.Requests = append(resp.Requests, requestFromModel(r))
	}
	return Encode(resp)
}

func (s *ControlService) Search(ctx context.Context, in *structpb.Struct) (proto.Message, error) {
	var req SearchRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	if req.Debounce {
		s.dir.QueueSearch(s.life, req.Query)
		return Encode(searchFromContacts(s.dir.Results()))
	}
	res, err := s.dir.Search(ctx, req.Query)
	if err != nil {
		return nil, toStatus("search", err)
	}
	return Encode(searchFromContacts(res))
}

func (s *ControlService) SendRequest(ctx context.Context, in *structpb.Struct) (proto.Message, error) {
	var req AddFriendRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	if req.UserID == 0 {
		return nil, grpcstatus.Error(codes.InvalidArgument, "user_id is required")
	}
	if err := s.dir.SendRequest(ctx, req.UserID); err != nil {
		return nil, toStatus("send request", err)
	}
	return &emptypb.Empty{}, nil
}

func (s *ControlService) Accept(ctx context.Context, in *structpb.Struct) (proto.Message, error) {
	var req AcceptRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	if req.RequestID == 0 || req.SenderID == 0 {
		return nil, grpcstatus.Error(codes.InvalidArgument, "request_id and sender_id are required")
	}
	if err := s.dir.AcceptRequest(ctx, req.RequestID, req.SenderID); err != nil {
		return nil, toStatus("accept", err)
	}
	return &emptypb.Empty{}, nil
}

func (s *ControlService) Decline(ctx context.Context, in *structpb.Struct) (proto.Message, error) {
	var req DeclineRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	if err := s.dir.DeclineRequest(ctx, req.RequestID); err != nil {
		return nil, toStatus("decline", err)
	}
	return &emptypb.Empty{}, nil
}

func (s *ControlService) RemoveFriend(ctx context.Context, in *structpb.Struct) (proto.Message, error) {
	var req RemoveFriendRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	removed, err := s.dir.RemoveFriend(ctx, req.FriendID, confirm.Answer(req.Confirmed))
	if err != nil {
		return nil, toStatus("remove friend", err)
	}
	if removed && s.ctrl.Snapshot().Peer == req.FriendID {
		s.ctrl.Deselect()
	}
	return Encode(RemoveFriendResponse{Removed: removed})
}

func (s *ControlService) Select(ctx context.Context, in *structpb.Struct) (proto.Message, error) {
	var req SelectRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	if err := s.ctrl.Select(ctx, req.PeerID); err != nil {
		return nil, toStatus("select", err)
	}
	return Encode(conversationFromSnapshot(s.ctrl.Snapshot()))
}

func (s *ControlService) Deselect(_ context.Context, _ *structpb.Struct) (proto.Message, error) {
	s.ctrl.Deselect()
	return &emptypb.Empty{}, nil
}

func (s *ControlService) Messages(_ context.Context, _ *structpb.Struct) (proto.Message, error) {
	return Encode(conversationFromSnapshot(s.ctrl.Snapshot()))
}

func (s *ControlService) Send(ctx context.Context, in *structpb.Struct) (proto.Message, error) {
	var req SendMessageRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	m, err := s.ctrl.Send(ctx, req.Text, req.ReplyTo)
	if err != nil {
		return nil, toStatus("send", err)
	}
	return Encode(messageFromModel(m))
}

func (s *ControlService) Like(ctx context.Context, in *structpb.Struct) (proto.Message, error) {
	var req LikeRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	if err := s.ctrl.Like(ctx, req.MessageID); err != nil {
		return nil, toStatus("like", err)
	}
	return &emptypb.Empty{}, nil
}

func (s *ControlService) Delete(ctx context.Context, in *structpb.Struct) (proto.Message, error) {
	var req DeleteRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	deleted, err := s.ctrl.Delete(ctx, req.MessageID, confirm.Answer(req.Confirmed))
	if err != nil {
		return nil, toStatus("delete", err)
	}
	return Encode(DeleteResponse{Deleted: deleted})
}

func (s *ControlService) Unread(_ context.Context, _ *structpb.Struct) (proto.Message, error) {
	return Encode(UnreadResponse{Unread: s.ctrl.Unread()})
}

// Watch relays bus events whose kind starts with the requested prefix until
// the client goes away.
func (s *ControlService) Watch(in *structpb.Struct, stream EventStream) error {
	var req WatchRequest
	if err := decodeRequest(in, &req); err != nil {
		return err
	}
	ch, unsub := s.bus.Subscribe(req.Prefix, 256)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			out, err := encodeEvent(evt)
			if err != nil {
				s.logger.Warn("drop unencodable event", zap.String("kind", evt.Kind), zap.Error(err))
				continue
			}
			if err := stream.Send(out); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		case <-s.done:
			return nil
		}
	}
}

func encodeEvent(evt bus.Event) (*structpb.Struct, error) {
	var payload json.RawMessage
	if evt.Payload != nil {
		v := evt.Payload
		if res, ok := v.(contacts.SearchResult); ok {
			v = searchFromContacts(res)
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		payload = b
	}
	return Encode(Event{Kind: evt.Kind, At: evt.Timestamp, Payload: payload})
}

func decodeRequest(in *structpb.Struct, v any) error {
	if in == nil {
		return nil
	}
	if err := Decode(in, v); err != nil {
		return grpcstatus.Errorf(codes.InvalidArgument, "%v", err)
	}
	return nil
}

// toStatus maps session errors onto gRPC codes.
func toStatus(op string, err error) error {
	var apiErr *backend.Error
	code := codes.Internal
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, backend.ErrUnauthorized), errors.Is(err, transport.ErrUnauthorized):
		code = codes.Unauthenticated
	case errors.Is(err, transport.ErrNotConnected):
		code = codes.Unavailable
	case errors.Is(err, chat.ErrNotFriend), errors.Is(err, chat.ErrNoActivePeer), errors.Is(err, conversation.ErrNoPeer):
		code = codes.FailedPrecondition
	case errors.Is(err, conversation.ErrEmptyMessage):
		code = codes.InvalidArgument
	case errors.Is(err, chat.ErrUnknownMessage):
		code = codes.NotFound
	case errors.Is(err, chat.ErrNotOwnMessage):
		code = codes.PermissionDenied
	case errors.Is(err, chat.ErrSuperseded):
		code = codes.Aborted
	case errors.As(err, &apiErr):
		switch {
		case apiErr.Retryable():
			code = codes.Unavailable
		case apiErr.Status == 404:
			code = codes.NotFound
		case apiErr.Status >= 400 && apiErr.Status < 500:
			code = codes.InvalidArgument
		}
	}
	return grpcstatus.Errorf(code, "%s: %v", op, err)
}
