package model

import "time"

// Conversation is a 1:1 thread between a user and a seller. Exactly one
// conversation exists per unordered pair; creation is lookup-before-create.
// Conversations are never deleted.
type Conversation struct {
	ID        string    `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Participant binds a conversation to either a user or a seller; exactly
// one of UserID/SellerID is populated per row.
type Participant struct {
	ID             string `db:"id"`
	ConversationID string `db:"conversation_id"`
	UserID         string `db:"user_id"`
	SellerID       string `db:"seller_id"`
}
