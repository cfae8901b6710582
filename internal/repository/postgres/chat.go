package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lalith-99/collabspace/internal/models"
)

type ChatStore struct {
	db DB
}

func NewChatStore(db DB) *ChatStore {
	return &ChatStore{db: db}
}

const chatColumns = `id, participant_a, participant_b, created_at`

func scanChat(row pgx.Row) (*models.Chat, error) {
	var c models.Chat
	if err := row.Scan(&c.ID, &c.ParticipantA, &c.ParticipantB, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *ChatStore) findPair(ctx context.Context, a, b uuid.UUID) (*models.Chat, error) {
	query := `SELECT ` + chatColumns + ` FROM chats WHERE participant_a = $1 AND participant_b = $2`

	c, err := scanChat(conn(ctx, s.db).QueryRow(ctx, query, a, b))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

// GetOrCreate relies on the (participant_a, participant_b) unique constraint
// over the canonical pair. When two first contacts race, the loser's INSERT
// does nothing and the follow-up SELECT (a new statement, so a new snapshot)
// sees the winner's row.
func (s *ChatStore) GetOrCreate(ctx context.Context, userA, userB uuid.UUID) (*models.Chat, bool, error) {
	a, b := models.CanonicalPair(userA, userB)

	existing, err := s.findPair(ctx, a, b)
	if err != nil {
		return nil, false, wrapErr("find chat", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	insert := `
		INSERT INTO chats (participant_a, participant_b)
		VALUES ($1, $2)
		ON CONFLICT (participant_a, participant_b) DO NOTHING
		RETURNING ` + chatColumns

	created, err := scanChat(conn(ctx, s.db).QueryRow(ctx, insert, a, b))
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, wrapErr("insert chat", err)
	}

	winner, err := s.findPair(ctx, a, b)
	if err != nil {
		return nil, false, wrapErr("find chat after conflict", err)
	}
	if winner == nil {
		return nil, false, wrapErr("find chat after conflict", pgx.ErrNoRows)
	}
	return winner, false, nil
}

func (s *ChatStore) GetByID(ctx context.Context, chatID uuid.UUID) (*models.Chat, error) {
	query := `SELECT ` + chatColumns + ` FROM chats WHERE id = $1`

	c, err := scanChat(conn(ctx, s.db).QueryRow(ctx, query, chatID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapErr("get chat", err)
	}
	return c, nil
}

func (s *ChatStore) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Chat, error) {
	query := `
		SELECT ` + chatColumns + `
		FROM chats
		WHERE participant_a = $1 OR participant_b = $1
		ORDER BY created_at DESC`

	rows, err := conn(ctx, s.db).Query(ctx, query, userID)
	if err != nil {
		return nil, wrapErr("list chats", err)
	}
	defer rows.Close()

	chats := make([]models.Chat, 0)
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, wrapErr("scan chat", err)
		}
		chats = append(chats, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate chats", err)
	}
	return chats, nil
}
