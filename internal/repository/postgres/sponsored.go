package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lalith-99/collabspace/internal/models"
)

type SponsoredStore struct {
	db DB
}

func NewSponsoredStore(db DB) *SponsoredStore {
	return &SponsoredStore{db: db}
}

const sponsoredColumns = `id, title, description, image_url, link_url, display_order, is_active, created_at, updated_at`

func scanSponsored(row pgx.Row) (*models.SponsoredPost, error) {
	var p models.SponsoredPost
	err := row.Scan(
		&p.ID,
		&p.Title,
		&p.Description,
		&p.ImageURL,
		&p.LinkURL,
		&p.DisplayOrder,
		&p.IsActive,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *SponsoredStore) ListActive(ctx context.Context) ([]models.SponsoredPost, error) {
	query := `
		SELECT ` + sponsoredColumns + `
		FROM sponsored_posts
		WHERE is_active
		ORDER BY display_order ASC, created_at ASC`

	rows, err := conn(ctx, s.db).Query(ctx, query)
	if err != nil {
		return nil, wrapErr("list sponsored posts", err)
	}
	defer rows.Close()

	posts := make([]models.SponsoredPost, 0)
	for rows.Next() {
		p, err := scanSponsored(rows)
		if err != nil {
			return nil, wrapErr("scan sponsored post", err)
		}
		posts = append(posts, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate sponsored posts", err)
	}
	return posts, nil
}

func (s *SponsoredStore) Create(ctx context.Context, p *models.SponsoredPost) (*models.SponsoredPost, error) {
	query := `
		INSERT INTO sponsored_posts (title, description, image_url, link_url, display_order, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + sponsoredColumns

	created, err := scanSponsored(conn(ctx, s.db).QueryRow(ctx, query,
		p.Title, p.Description, p.ImageURL, p.LinkURL, p.DisplayOrder, p.IsActive))
	if err != nil {
		return nil, wrapErr("insert sponsored post", err)
	}
	return created, nil
}

func (s *SponsoredStore) SetActive(ctx context.Context, id uuid.UUID, active bool) (*models.SponsoredPost, error) {
	query := `
		UPDATE sponsored_posts
		SET is_active = $2, updated_at = now()
		WHERE id = $1
		RETURNING ` + sponsoredColumns

	p, err := scanSponsored(conn(ctx, s.db).QueryRow(ctx, query, id, active))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapErr("set sponsored post active", err)
	}
	return p, nil
}
