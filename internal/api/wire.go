package api

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/pawprox/pawchat/internal/chat"
	"github.com/pawprox/pawchat/internal/contacts"
	"github.com/pawprox/pawchat/internal/model"
	"google.golang.org/protobuf/types/known/structpb"
)

// User is a friend, request sender or search hit as seen by control clients.
type User struct {
	ID         int64  `json:"id"`
	Username   string `json:"username,omitempty"`
	Name       string `json:"name,omitempty"`
	ProfilePic string `json:"profile_pic,omitempty"`
	IsFriend   bool   `json:"is_friend,omitempty"`
	Unread     int    `json:"unread,omitempty"`
}

// DisplayName prefers the display name over the username.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	if u.Username != "" {
		return u.Username
	}
	return "#" + strconv.FormatInt(u.ID, 10)
}

// Request is a pending incoming friend request.
type Request struct {
	ID         int64  `json:"id"`
	SenderID   int64  `json:"sender_id"`
	SenderName string `json:"sender_name,omitempty"`
	SenderPic  string `json:"sender_pic,omitempty"`
}

// Message is a conversation entry.
type Message struct {
	ID         int64     `json:"id,omitempty"`
	ClientID   string    `json:"client_id,omitempty"`
	SenderID   int64     `json:"sender_id"`
	ReceiverID int64     `json:"receiver_id"`
	SenderName string    `json:"sender_name,omitempty"`
	Text       string    `json:"text"`
	Likes      int       `json:"likes"`
	Timestamp  time.Time `json:"timestamp"`
	ReplyTo    int64     `json:"reply_to,omitempty"`
	Pending    bool      `json:"pending,omitempty"`
}

// Status describes the daemon and its session.
type Status struct {
	Profile   string `json:"profile"`
	UserID    int64  `json:"user_id"`
	Username  string `json:"username,omitempty"`
	Name      string `json:"name,omitempty"`
	State     string `json:"state"`
	Peer      int64  `json:"peer,omitempty"`
	Room      string `json:"room,omitempty"`
	Connected bool   `json:"connected"`
	UptimeMs  int64  `json:"uptime_ms"`
	Unread    int    `json:"unread"`
}

// Conversation is the active conversation.
type Conversation struct {
	State    string    `json:"state"`
	Peer     int64     `json:"peer,omitempty"`
	Room     string    `json:"room,omitempty"`
	Messages []Message `json:"messages"`
}

// SearchResult is the outcome of a user search.
type SearchResult struct {
	Query  string `json:"query"`
	Active bool   `json:"active"`
	Users  []User `json:"users"`
}

// Event is one bus event relayed by Watch.
type Event struct {
	Kind    string          `json:"kind"`
	At      time.Time       `json:"at"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func userFromModel(u model.User) User {
	return User{ID: u.ID, Username: u.Username, Name: u.Name, ProfilePic: u.ProfilePic}
}

func requestFromModel(r model.FriendRequest) Request {
	return Request{ID: r.ID, SenderID: r.SenderID, SenderName: r.SenderName, SenderPic: r.SenderPic}
}

func messageFromModel(m model.Message) Message {
	return Message{
		ID:         m.ID,
		ClientID:   m.ClientID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		SenderName: m.SenderName,
		Text:       m.Text,
		Likes:      m.Likes,
		Timestamp:  m.Timestamp,
		ReplyTo:    m.ReplyTo,
		Pending:    m.Pending,
	}
}

func searchFromContacts(r contacts.SearchResult) SearchResult {
	out := SearchResult{Query: r.Query, Active: r.Active, Users: make([]User, 0, len(r.Users))}
	for _, c := range r.Users {
		u := userFromModel(c.User)
		u.IsFriend = c.IsFriend
		out.Users = append(out.Users, u)
	}
	return out
}

func conversationFromSnapshot(s chat.Snapshot) Conversation {
	c := Conversation{State: string(s.State), Peer: s.Peer, Room: s.Room, Messages: make([]Message, 0, len(s.Messages))}
	for _, m := range s.Messages {
		c.Messages = append(c.Messages, messageFromModel(m))
	}
	return c
}

// Encode converts v to a Struct through its JSON form.
func Encode(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return structpb.NewStruct(m)
}

// Decode fills v from s. Numbers go through encoding/json so integral
// values survive the float64 representation in Struct.
func Decode(s *structpb.Struct, v any) error {
	b, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// Requests.
type (
	ListRequest struct {
		// Refresh reloads from the backend before answering.
		Refresh bool `json:"refresh,omitempty"`
	}
	SearchRequest struct {
		Query string `json:"query"`
		// Debounce queues the search behind the quiet period and answers
		// with the current results. The outcome arrives on Watch.
		Debounce bool `json:"debounce,omitempty"`
	}
	AddFriendRequest struct {
		UserID int64 `json:"user_id"`
	}
	AcceptRequest struct {
		RequestID int64 `json:"request_id"`
		SenderID  int64 `json:"sender_id"`
	}
	DeclineRequest struct {
		RequestID int64 `json:"request_id"`
	}
	RemoveFriendRequest struct {
		FriendID  int64 `json:"friend_id"`
		Confirmed bool  `json:"confirmed"`
	}
	SelectRequest struct {
		PeerID int64 `json:"peer_id"`
	}
	SendMessageRequest struct {
		Text    string `json:"text"`
		ReplyTo int64  `json:"reply_to,omitempty"`
	}
	LikeRequest struct {
		MessageID int64 `json:"message_id"`
	}
	DeleteRequest struct {
		MessageID int64 `json:"message_id"`
		Confirmed bool  `json:"confirmed"`
	}
	WatchRequest struct {
		Prefix string `json:"prefix,omitempty"`
	}
)

// Responses without a dedicated entity type.
type (
	FriendsResponse struct {
		Friends []User `json:"friends"`
	}
	RequestsResponse struct {
		Requests []Request `json:"requests"`
	}
	RemoveFriendResponse struct {
		Removed bool `json:"removed"`
	}
	DeleteResponse struct {
		Deleted bool `json:"deleted"`
	}
	UnreadResponse struct {
		Unread map[int64]int `json:"unread"`
	}
)
