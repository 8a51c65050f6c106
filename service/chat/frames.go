package chat

import (
	"encoding/json"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/marketlink/sellchat/global"
)

// Server->client frame types.
const (
	FrameNewMessage        = "NEW_MESSAGE"
	FrameUnseenCountUpdate = "UNSEEN_COUNT_UPDATE"
)

// Client->server event discriminator values. Anything without a recognized
// type is treated as a chat message if the required fields are present.
const EventMarkAsSeen = "MARK_AS_SEEN"

// ChatEvent is the loosely-typed inbound event. Frames arrive as free-form
// JSON objects; they are decoded through a map so an unknown `type` still
// lands in the same struct.
type ChatEvent struct {
	Type           string `mapstructure:"type"`
	FromUserID     string `mapstructure:"fromUserId"`
	ToUserID       string `mapstructure:"toUserId"`
	ConversationID string `mapstructure:"conversationId"`
	MessageBody    string `mapstructure:"messageBody"`
	SenderType     string `mapstructure:"senderType"`
}

// ParseEvent decodes a structured frame. Returns an error for anything
// that is not a JSON object.
func ParseEvent(raw []byte) (*ChatEvent, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, errors.Wrap(err, "unmarshal frame")
	}
	var ev ChatEvent
	if err := mapstructure.Decode(m, &ev); err != nil {
		return nil, errors.Wrap(err, "decode frame")
	}
	return &ev, nil
}

// ParseIdentityFrame interprets a pre-registration frame as a bare
// identity string ("user_<id>" / "seller_<id>").
func ParseIdentityFrame(raw []byte) (key, role, id string, ok bool) {
	key = strings.TrimSpace(string(raw))
	role, id, ok = global.ParseIdentityKey(key)
	return key, role, id, ok
}

type MessagePayload struct {
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	SenderType     string `json:"senderType"`
	Content        string `json:"content"`
	CreatedAt      string `json:"createdAt"`
}

type serverFrame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type unseenPayload struct {
	ConversationID string `json:"conversationId"`
	Count          int64  `json:"count"`
}

// BuildNewMessage renders a NEW_MESSAGE frame.
func BuildNewMessage(p MessagePayload) []byte {
	b, _ := json.Marshal(serverFrame{Type: FrameNewMessage, Payload: p})
	return b
}

// BuildUnseenCountUpdate renders an UNSEEN_COUNT_UPDATE frame.
func BuildUnseenCountUpdate(conversationID string, count int64) []byte {
	b, _ := json.Marshal(serverFrame{
		Type:    FrameUnseenCountUpdate,
		Payload: unseenPayload{ConversationID: conversationID, Count: count},
	})
	return b
}
