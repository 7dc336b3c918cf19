// Package model defines the PawProx chat entities exchanged with the backend.
package model

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// User is a PawProx account as returned by the backend.
type User struct {
	ID         int64  `json:"id"`
	Username   string `json:"username"`
	Name       string `json:"name"`
	ProfilePic string `json:"profilePic,omitempty"`
}

// DisplayName prefers the display name over the username.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}

// FriendRequest is a pending incoming request.
type FriendRequest struct {
	ID         int64  `json:"id"`
	SenderID   int64  `json:"sender_id"`
	SenderName string `json:"senderName"`
	SenderPic  string `json:"senderPic,omitempty"`
}

// Message is a direct message between two users.
//
// ID is zero while a locally sent message waits for the server echo; such a
// message is Pending and identified by ClientID instead.
type Message struct {
	ID         int64     `json:"id,omitempty"`
	ClientID   string    `json:"client_id,omitempty"`
	SenderID   int64     `json:"sender_id"`
	ReceiverID int64     `json:"receiver_id"`
	Text       string    `json:"text"`
	Likes      int       `json:"likes"`
	Timestamp  time.Time `json:"timestamp"`
	SenderName string    `json:"senderName,omitempty"`
	SenderPic  string    `json:"senderPic,omitempty"`
	ReplyTo    int64     `json:"reply_to,omitempty"`
	Pending    bool      `json:"-"`
}

// Room returns the room the message belongs to.
func (m Message) Room() string {
	return RoomID(m.SenderID, m.ReceiverID)
}

// Peer returns the participant that is not self.
func (m Message) Peer(self int64) int64 {
	if m.SenderID == self {
		return m.ReceiverID
	}
	return m.SenderID
}

// RoomID derives the shared channel id for two users. The ids are compared as
// decimal strings, so RoomID(10, 9) is "10_9"; web clients of the same backend
// derive rooms the same way.
func RoomID(a, b int64) string {
	ids := []string{strconv.FormatInt(a, 10), strconv.FormatInt(b, 10)}
	sort.Strings(ids)
	return strings.Join(ids, "_")
}
