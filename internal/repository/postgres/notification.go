package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lalith-99/collabspace/internal/models"
)

type NotificationStore struct {
	db DB
}

func NewNotificationStore(db DB) *NotificationStore {
	return &NotificationStore{db: db}
}

const notificationColumns = `id, user_id, type, title, body, link, read, created_at`

func scanNotification(row pgx.Row) (*models.Notification, error) {
	var n models.Notification
	var typ string
	err := row.Scan(
		&n.ID,
		&n.UserID,
		&typ,
		&n.Title,
		&n.Body,
		&n.Link,
		&n.Read,
		&n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	n.Type = models.NotificationType(typ)
	if !n.Type.Valid() {
		return nil, badEnum("notifications", "type", typ)
	}
	return &n, nil
}

func (s *NotificationStore) Create(ctx context.Context, n *models.Notification) (*models.Notification, error) {
	query := `
		INSERT INTO notifications (user_id, type, title, body, link)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + notificationColumns

	created, err := scanNotification(conn(ctx, s.db).QueryRow(ctx, query,
		n.UserID, string(n.Type), n.Title, n.Body, n.Link))
	if err != nil {
		return nil, wrapErr("insert notification", err)
	}
	return created, nil
}

func (s *NotificationStore) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2`

	rows, err := conn(ctx, s.db).Query(ctx, query, userID, limit)
	if err != nil {
		return nil, wrapErr("list notifications", err)
	}
	defer rows.Close()

	out := make([]models.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, wrapErr("scan notification", err)
		}
		out = append(out, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate notifications", err)
	}
	return out, nil
}

// MarkRead is scoped to the owner; another user's id matches nothing.
func (s *NotificationStore) MarkRead(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	query := `UPDATE notifications SET read = true WHERE id = $1 AND user_id = $2`

	tag, err := conn(ctx, s.db).Exec(ctx, query, id, userID)
	if err != nil {
		return false, wrapErr("mark notification read", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *NotificationStore) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	query := `UPDATE notifications SET read = true WHERE user_id = $1 AND read = false`

	tag, err := conn(ctx, s.db).Exec(ctx, query, userID)
	if err != nil {
		return 0, wrapErr("mark all notifications read", err)
	}
	return tag.RowsAffected(), nil
}

func (s *NotificationStore) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read = false`

	var n int
	if err := conn(ctx, s.db).QueryRow(ctx, query, userID).Scan(&n); err != nil {
		return 0, wrapErr("count unread notifications", err)
	}
	return n, nil
}
