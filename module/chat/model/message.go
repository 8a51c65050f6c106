package model

import (
	"time"

	"github.com/pkg/errors"
)

// Message rows are created transiently at the gateway, mirrored into the
// durable log, and materialized by the batch consumer. CreatedAt is
// assigned by the gateway at receipt time and is never rewritten, so
// ordering within a conversation reflects gateway receipt order.
type Message struct {
	ID             string    `json:"id" db:"id"`
	ConversationID string    `json:"conversationId" db:"conversation_id"`
	SenderID       string    `json:"senderId" db:"sender_id"`
	SenderType     string    `json:"senderType" db:"sender_type"` // "user" | "seller"
	Content        string    `json:"content" db:"content"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
}

// LogRecord is the durable-log wire value: JSON keyed by conversation id,
// createdAt as an ISO-8601 string.
type LogRecord struct {
	SenderID       string `json:"senderId"`
	Content        string `json:"content"`
	ConversationID string `json:"conversationId"`
	SenderType     string `json:"senderType"`
	CreatedAt      string `json:"createdAt"`
}

func NewLogRecord(m Message) LogRecord {
	return LogRecord{
		SenderID:       m.SenderID,
		Content:        m.Content,
		ConversationID: m.ConversationID,
		SenderType:     m.SenderType,
		CreatedAt:      m.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// ToMessage materializes a log record; the message id is assigned by the
// consumer since the log value does not carry one.
func (r LogRecord) ToMessage(id string) (Message, error) {
	ts, err := time.Parse(time.RFC3339Nano, r.CreatedAt)
	if err != nil {
		return Message{}, errors.Wrapf(err, "parse createdAt %q", r.CreatedAt)
	}
	if r.ConversationID == "" || r.SenderID == "" {
		return Message{}, errors.New("log record missing conversationId/senderId")
	}
	return Message{
		ID:             id,
		ConversationID: r.ConversationID,
		SenderID:       r.SenderID,
		SenderType:     r.SenderType,
		Content:        r.Content,
		CreatedAt:      ts,
	}, nil
}
