package transport

import (
	"encoding/json"
	"fmt"

	"github.com/pawprox/pawchat/internal/model"
)

// Event names on the wire.
const (
	evJoinRoom      = "joinRoom"
	evSendMessage   = "sendMessage"
	evLikeMessage   = "likeMessage"
	evDeleteMessage = "deleteMessage"

	evMessage        = "message"
	evMessageLiked   = "messageLiked"
	evMessageDeleted = "messageDeleted"
	evNewMessage     = "newMessage"
)

// envelope is one JSON frame: {"event": ..., "room": ..., "data": ...}.
type envelope struct {
	Event string          `json:"event"`
	Room  string          `json:"room,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type joinPayload struct {
	Room string `json:"room"`
}

type sendPayload struct {
	Room    string        `json:"room"`
	Message model.Message `json:"message"`
}

type messageRef struct {
	MessageID int64  `json:"messageId"`
	Room      string `json:"room"`
}

func encode(event, room string, payload any) (envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return envelope{}, fmt.Errorf("encode %s: %w", event, err)
	}
	return envelope{Event: event, Room: room, Data: data}, nil
}

// decodeMessageID accepts a bare id or an object carrying messageId or id.
func decodeMessageID(data json.RawMessage) (int64, error) {
	var id int64
	if err := json.Unmarshal(data, &id); err == nil {
		return id, nil
	}
	var obj struct {
		MessageID int64  `json:"messageId"`
		ID        int64  `json:"id"`
		Room      string `json:"room"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return 0, err
	}
	if obj.MessageID != 0 {
		return obj.MessageID, nil
	}
	if obj.ID != 0 {
		return obj.ID, nil
	}
	return 0, fmt.Errorf("no message id in %s", string(data))
}
