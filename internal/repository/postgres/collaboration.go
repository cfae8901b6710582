package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lalith-99/collabspace/internal/models"
)

type CollaborationStore struct {
	db DB
}

func NewCollaborationStore(db DB) *CollaborationStore {
	return &CollaborationStore{db: db}
}

const collaborationColumns = `id, requester_id, receiver_id, title, description, status, created_at, updated_at`

func scanCollaboration(row pgx.Row) (*models.CollaborationRequest, error) {
	var r models.CollaborationRequest
	var status string
	err := row.Scan(
		&r.ID,
		&r.RequesterID,
		&r.ReceiverID,
		&r.Title,
		&r.Description,
		&status,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Status = models.CollabStatus(status)
	if !r.Status.Valid() {
		return nil, badEnum("collaborations", "status", status)
	}
	return &r, nil
}

func (s *CollaborationStore) Create(ctx context.Context, requesterID, receiverID uuid.UUID, title, description string) (*models.CollaborationRequest, error) {
	query := `
		INSERT INTO collaborations (requester_id, receiver_id, title, description, status)
		VALUES ($1, $2, $3, $4, 'pending')
		RETURNING ` + collaborationColumns

	r, err := scanCollaboration(conn(ctx, s.db).QueryRow(ctx, query, requesterID, receiverID, title, description))
	if err != nil {
		return nil, wrapErr("insert collaboration", err)
	}
	return r, nil
}

func (s *CollaborationStore) GetByID(ctx context.Context, id uuid.UUID) (*models.CollaborationRequest, error) {
	query := `SELECT ` + collaborationColumns + ` FROM collaborations WHERE id = $1`

	r, err := scanCollaboration(conn(ctx, s.db).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapErr("get collaboration", err)
	}
	return r, nil
}

// Transition is a compare-and-set on status: of two concurrent responders
// only the first UPDATE matches.
func (s *CollaborationStore) Transition(ctx context.Context, id uuid.UUID, from, to models.CollabStatus) (*models.CollaborationRequest, error) {
	query := `
		UPDATE collaborations
		SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING ` + collaborationColumns

	r, err := scanCollaboration(conn(ctx, s.db).QueryRow(ctx, query, id, string(from), string(to)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapErr("transition collaboration", err)
	}
	return r, nil
}

func (s *CollaborationStore) ListActiveForUser(ctx context.Context, userID uuid.UUID) ([]models.CollaborationRequest, error) {
	query := `
		SELECT ` + collaborationColumns + `
		FROM collaborations
		WHERE (requester_id = $1 OR receiver_id = $1) AND status <> 'rejected'
		ORDER BY created_at DESC, id`

	return s.list(ctx, query, userID)
}

func (s *CollaborationStore) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.CollaborationRequest, error) {
	query := `
		SELECT ` + collaborationColumns + `
		FROM collaborations
		WHERE requester_id = $1 OR receiver_id = $1
		ORDER BY created_at DESC, id`

	return s.list(ctx, query, userID)
}

func (s *CollaborationStore) list(ctx context.Context, query string, args ...any) ([]models.CollaborationRequest, error) {
	rows, err := conn(ctx, s.db).Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list collaborations", err)
	}
	defer rows.Close()

	requests := make([]models.CollaborationRequest, 0)
	for rows.Next() {
		r, err := scanCollaboration(rows)
		if err != nil {
			return nil, wrapErr("scan collaboration", err)
		}
		requests = append(requests, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate collaborations", err)
	}
	return requests, nil
}

type DashboardStore struct {
	db DB
}

func NewDashboardStore(db DB) *DashboardStore {
	return &DashboardStore{db: db}
}

// Counts reads every dashboard number in one statement so the figures come
// from the same snapshot.
func (s *DashboardStore) Counts(ctx context.Context, userID uuid.UUID) (models.DashboardCounts, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE c.status = 'accepted'),
			COUNT(*) FILTER (WHERE c.status = 'completed'),
			COUNT(*),
			(
				SELECT COUNT(*)
				FROM messages m
				JOIN chats ch ON ch.id = m.chat_id
				WHERE (ch.participant_a = $1 OR ch.participant_b = $1)
				  AND m.sender_id <> $1
				  AND m.read_at IS NULL
			)
		FROM collaborations c
		WHERE c.requester_id = $1 OR c.receiver_id = $1`

	var counts models.DashboardCounts
	err := conn(ctx, s.db).QueryRow(ctx, query, userID).Scan(
		&counts.Accepted,
		&counts.Completed,
		&counts.Total,
		&counts.UnreadMessages,
	)
	if err != nil {
		return models.DashboardCounts{}, wrapErr("dashboard counts", err)
	}
	return counts, nil
}
