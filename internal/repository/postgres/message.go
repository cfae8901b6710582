package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lalith-99/collabspace/internal/models"
)

type MessageStore struct {
	db DB
}

func NewMessageStore(db DB) *MessageStore {
	return &MessageStore{db: db}
}

const messageColumns = `id, chat_id, sender_id, body, attachment_url, created_at, read_at`

func scanMessage(row pgx.Row) (*models.Message, error) {
	var msg models.Message
	err := row.Scan(
		&msg.ID,
		&msg.ChatID,
		&msg.SenderID,
		&msg.Body,
		&msg.AttachmentURL,
		&msg.CreatedAt,
		&msg.ReadAt,
	)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// Create lets Postgres assign both the bigserial id and created_at, so the
// order clients see is the server's, not the sender's clock.
func (s *MessageStore) Create(ctx context.Context, chatID, senderID uuid.UUID, body string, attachmentURL *string) (*models.Message, error) {
	query := `
		INSERT INTO messages (chat_id, sender_id, body, attachment_url)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + messageColumns

	msg, err := scanMessage(conn(ctx, s.db).QueryRow(ctx, query, chatID, senderID, body, attachmentURL))
	if err != nil {
		return nil, wrapErr("insert message", err)
	}
	return msg, nil
}

func (s *MessageStore) GetByID(ctx context.Context, messageID int64) (*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`

	msg, err := scanMessage(conn(ctx, s.db).QueryRow(ctx, query, messageID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapErr("get message", err)
	}
	return msg, nil
}

// ListByChat pages forward: after=0 starts at the oldest message. Ascending
// id order matches the realtime stream, which lets clients merge the two.
func (s *MessageStore) ListByChat(ctx context.Context, chatID uuid.UUID, after int64, limit int) ([]models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE chat_id = $1 AND id > $2
		ORDER BY id ASC
		LIMIT $3`

	return s.list(ctx, query, chatID, after, limit)
}

func (s *MessageStore) ListSentBy(ctx context.Context, senderID uuid.UUID) ([]models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE sender_id = $1
		ORDER BY id ASC`

	return s.list(ctx, query, senderID)
}

func (s *MessageStore) list(ctx context.Context, query string, args ...any) ([]models.Message, error) {
	rows, err := conn(ctx, s.db).Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list messages", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, wrapErr("scan message", err)
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate messages", err)
	}
	return messages, nil
}

// MarkRead only touches rows whose read_at is still null, so repeat calls
// change nothing.
func (s *MessageStore) MarkRead(ctx context.Context, messageID int64) (bool, error) {
	query := `UPDATE messages SET read_at = now() WHERE id = $1 AND read_at IS NULL`

	tag, err := conn(ctx, s.db).Exec(ctx, query, messageID)
	if err != nil {
		return false, wrapErr("mark message read", err)
	}
	return tag.RowsAffected() > 0, nil
}
