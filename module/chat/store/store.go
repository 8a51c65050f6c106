package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/marketlink/sellchat/global"
	"github.com/marketlink/sellchat/module/chat/model"
	"github.com/marketlink/sellchat/tools/ids"
)

// Store is the relational repository for conversations, participants and
// messages, backed by a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping database")
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS participants (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id),
	user_id         TEXT,
	seller_id       TEXT,
	CHECK ((user_id IS NULL) <> (seller_id IS NULL))
);
CREATE INDEX IF NOT EXISTS idx_participants_conv ON participants(conversation_id);
CREATE INDEX IF NOT EXISTS idx_participants_user ON participants(user_id);
CREATE INDEX IF NOT EXISTS idx_participants_seller ON participants(seller_id);
CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id),
	sender_id       TEXT NOT NULL,
	sender_type     TEXT NOT NULL,
	content         TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_conv_created ON messages(conversation_id, created_at DESC);
`

// Migrate applies the schema; safe to run on every boot.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return errors.Wrap(err, "migrate")
}

// EnsureConversation returns the conversation for the unordered
// {userID, sellerID} pair, creating it (with both participant rows) on
// first contact. Lookup-before-create keeps it idempotent.
func (s *Store) EnsureConversation(ctx context.Context, userID, sellerID string) (model.Conversation, error) {
	var conv model.Conversation
	err := s.pool.QueryRow(ctx, `
		SELECT c.id, c.created_at, c.updated_at
		FROM conversations c
		JOIN participants pu ON pu.conversation_id = c.id AND pu.user_id = $1
		JOIN participants ps ON ps.conversation_id = c.id AND ps.seller_id = $2`,
		userID, sellerID).Scan(&conv.ID, &conv.CreatedAt, &conv.UpdatedAt)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.Conversation{}, errors.Wrap(err, "lookup conversation")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Conversation{}, errors.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	convID := ids.GenerateString()
	if err := tx.QueryRow(ctx, `
		INSERT INTO conversations (id) VALUES ($1)
		RETURNING id, created_at, updated_at`,
		convID).Scan(&conv.ID, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
		return model.Conversation{}, errors.Wrap(err, "insert conversation")
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO participants (id, conversation_id, user_id) VALUES ($1, $2, $3)`,
		ids.GenerateString(), convID, userID); err != nil {
		return model.Conversation{}, errors.Wrap(err, "insert user participant")
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO participants (id, conversation_id, seller_id) VALUES ($1, $2, $3)`,
		ids.GenerateString(), convID, sellerID); err != nil {
		return model.Conversation{}, errors.Wrap(err, "insert seller participant")
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Conversation{}, errors.Wrap(err, "commit")
	}
	return conv, nil
}

// InsertBatch writes all messages in one transaction so a failed flush
// never leaves a partial batch behind.
func (s *Store) InsertBatch(ctx context.Context, msgs []model.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b := &pgx.Batch{}
	for _, m := range msgs {
		b.Queue(`
			INSERT INTO messages (id, conversation_id, sender_id, sender_type, content, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			m.ID, m.ConversationID, m.SenderID, m.SenderType, m.Content, m.CreatedAt)
		b.Queue(`UPDATE conversations SET updated_at = GREATEST(updated_at, $2) WHERE id = $1`,
			m.ConversationID, m.CreatedAt)
	}
	br := tx.SendBatch(ctx, b)
	for i := 0; i < b.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return errors.Wrap(err, "batch insert")
		}
	}
	if err := br.Close(); err != nil {
		return errors.Wrap(err, "close batch")
	}
	return errors.Wrap(tx.Commit(ctx), "commit")
}

// IsParticipant checks conversation membership for the given identity.
func (s *Store) IsParticipant(ctx context.Context, conversationID, role, id string) (bool, error) {
	col := "user_id"
	if role == global.RoleSeller {
		col = "seller_id"
	}
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM participants WHERE conversation_id = $1 AND `+col+` = $2`,
		conversationID, id).Scan(&n)
	if err != nil {
		return false, errors.Wrap(err, "participant check")
	}
	return n > 0, nil
}

// ListMessages returns one page of a conversation's history, newest first.
func (s *Store) ListMessages(ctx context.Context, conversationID string, page, size int) ([]model.Message, error) {
	if page < 1 {
		page = 1
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, sender_id, sender_type, content, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		conversationID, size, (page-1)*size)
	if err != nil {
		return nil, errors.Wrap(err, "list messages")
	}
	defer rows.Close()

	out := make([]model.Message, 0, size)
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.SenderType, &m.Content, &m.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan message")
		}
		out = append(out, m)
	}
	return out, errors.Wrap(rows.Err(), "list messages")
}

// ConversationSummary is one row of the conversation list: the thread,
// the counterpart's id, and the latest message if any.
type ConversationSummary struct {
	Conversation  model.Conversation
	CounterpartID string
	LastMessage   *model.Message
}

// ListConversations returns every conversation the identity participates
// in, most recently updated first, with counterpart and last message.
func (s *Store) ListConversations(ctx context.Context, role, id string) ([]ConversationSummary, error) {
	meCol, otherCol := "user_id", "seller_id"
	if role == global.RoleSeller {
		meCol, otherCol = "seller_id", "user_id"
	}
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.created_at, c.updated_at, other.`+otherCol+`,
		       lm.id, lm.sender_id, lm.sender_type, lm.content, lm.created_at
		FROM conversations c
		JOIN participants me ON me.conversation_id = c.id AND me.`+meCol+` = $1
		JOIN participants other ON other.conversation_id = c.id AND other.`+otherCol+` IS NOT NULL
		LEFT JOIN LATERAL (
			SELECT m.id, m.sender_id, m.sender_type, m.content, m.created_at
			FROM messages m
			WHERE m.conversation_id = c.id
			ORDER BY m.created_at DESC
			LIMIT 1
		) lm ON true
		ORDER BY c.updated_at DESC`,
		id)
	if err != nil {
		return nil, errors.Wrap(err, "list conversations")
	}
	defer rows.Close()

	var out []ConversationSummary
	for rows.Next() {
		var sum ConversationSummary
		var lmID, lmSender, lmType, lmContent *string
		var lmCreated *time.Time
		if err := rows.Scan(&sum.Conversation.ID, &sum.Conversation.CreatedAt, &sum.Conversation.UpdatedAt,
			&sum.CounterpartID, &lmID, &lmSender, &lmType, &lmContent, &lmCreated); err != nil {
			return nil, errors.Wrap(err, "scan conversation")
		}
		if lmID != nil {
			sum.LastMessage = &model.Message{
				ID:             *lmID,
				ConversationID: sum.Conversation.ID,
				SenderID:       *lmSender,
				SenderType:     *lmType,
				Content:        *lmContent,
				CreatedAt:      *lmCreated,
			}
		}
		out = append(out, sum)
	}
	return out, errors.Wrap(rows.Err(), "list conversations")
}
