package postgres

import (
	"context"
	"errors"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lalith-99/collabspace/internal/models"
	"github.com/lalith-99/collabspace/internal/repository"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type ProfileStore struct {
	db DB
}

func NewProfileStore(db DB) *ProfileStore {
	return &ProfileStore{db: db}
}

const profileColumns = `user_id, display_name, bio, niche, follower_count, picture_url,
	instagram_url, tiktok_url, youtube_url, visibility, created_at, updated_at`

func profileDest(p *models.Profile, visibility *string) []any {
	return []any{
		&p.UserID,
		&p.DisplayName,
		&p.Bio,
		&p.Niche,
		&p.FollowerCount,
		&p.PictureURL,
		&p.Links.Instagram,
		&p.Links.TikTok,
		&p.Links.YouTube,
		visibility,
		&p.CreatedAt,
		&p.UpdatedAt,
	}
}

func scanProfile(row pgx.Row) (*models.Profile, error) {
	var p models.Profile
	var visibility string
	if err := row.Scan(profileDest(&p, &visibility)...); err != nil {
		return nil, err
	}
	p.Visibility = models.Visibility(visibility)
	if !p.Visibility.Valid() {
		return nil, badEnum("profiles", "visibility", visibility)
	}
	return &p, nil
}

func (s *ProfileStore) Create(ctx context.Context, p *models.Profile) (*models.Profile, error) {
	query := `
		INSERT INTO profiles (user_id, display_name, bio, niche, follower_count, picture_url,
			instagram_url, tiktok_url, youtube_url, visibility)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + profileColumns

	created, err := scanProfile(conn(ctx, s.db).QueryRow(ctx, query,
		p.UserID, p.DisplayName, p.Bio, p.Niche, p.FollowerCount, p.PictureURL,
		p.Links.Instagram, p.Links.TikTok, p.Links.YouTube, string(p.Visibility),
	))
	if err != nil {
		return nil, wrapErr("insert profile", err)
	}
	return created, nil
}

func (s *ProfileStore) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE user_id = $1`

	p, err := scanProfile(conn(ctx, s.db).QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapErr("get profile", err)
	}
	return p, nil
}

// Update overwrites every editable column. picture_url has its own path
// through SetPicture so an edit form can't clobber a fresh upload.
func (s *ProfileStore) Update(ctx context.Context, p *models.Profile) (*models.Profile, error) {
	query := `
		UPDATE profiles
		SET display_name = $2, bio = $3, niche = $4, follower_count = $5,
			instagram_url = $6, tiktok_url = $7, youtube_url = $8, visibility = $9,
			updated_at = now()
		WHERE user_id = $1
		RETURNING ` + profileColumns

	updated, err := scanProfile(conn(ctx, s.db).QueryRow(ctx, query,
		p.UserID, p.DisplayName, p.Bio, p.Niche, p.FollowerCount,
		p.Links.Instagram, p.Links.TikTok, p.Links.YouTube, string(p.Visibility),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapErr("update profile", err)
	}
	return updated, nil
}

func (s *ProfileStore) SetPicture(ctx context.Context, userID uuid.UUID, url string) error {
	query := `UPDATE profiles SET picture_url = $2, updated_at = now() WHERE user_id = $1`

	tag, err := conn(ctx, s.db).Exec(ctx, query, userID, url)
	if err != nil {
		return wrapErr("set profile picture", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ListDiscoverable builds the directory query. The boosted flag and tier are
// correlated subqueries so one round trip returns complete entries.
func (s *ProfileStore) ListDiscoverable(ctx context.Context, q repository.DirectoryQuery) ([]models.DirectoryEntry, error) {
	builder := psql.
		Select(prefixColumns("p", profileColumns)...).
		Column(sq.Expr(`EXISTS (
			SELECT 1 FROM profile_boosts b
			WHERE b.user_id = p.user_id AND b.status = 'active' AND b.end_date >= ?
		) AS boosted`, q.Now)).
		Column(`COALESCE((
			SELECT s.plan FROM subscriptions s
			WHERE s.user_id = p.user_id AND s.status = 'active'
		), 'free') AS tier`).
		From("profiles p").
		Where(sq.Eq{"p.visibility": string(models.VisibilityPublic)}).
		// uuid.UUID is a [16]byte, which sq.NotEq would expand into a list.
		Where(sq.Expr("p.user_id <> ?", q.ViewerID)).
		OrderBy("boosted DESC", "p.follower_count DESC", "p.user_id")

	if search := strings.TrimSpace(q.Search); search != "" {
		pattern := "%" + escapeLike(search) + "%"
		builder = builder.Where(sq.Or{
			sq.ILike{"p.display_name": pattern},
			sq.ILike{"p.bio": pattern},
			sq.ILike{"p.niche": pattern},
		})
	}
	if niche := strings.TrimSpace(q.Niche); niche != "" {
		builder = builder.Where(sq.Expr("lower(p.niche) = lower(?)", niche))
	}
	if q.Limit > 0 {
		builder = builder.Limit(uint64(q.Limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, wrapErr("build directory query", err)
	}

	rows, err := conn(ctx, s.db).Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list directory", err)
	}
	defer rows.Close()

	entries := make([]models.DirectoryEntry, 0)
	for rows.Next() {
		var e models.DirectoryEntry
		var visibility, tier string
		dest := append(profileDest(&e.Profile, &visibility), &e.Boosted, &tier)
		if err := rows.Scan(dest...); err != nil {
			return nil, wrapErr("scan directory entry", err)
		}
		e.Visibility = models.Visibility(visibility)
		if !e.Visibility.Valid() {
			return nil, badEnum("profiles", "visibility", visibility)
		}
		e.Tier = models.Plan(tier)
		if !e.Tier.Valid() {
			return nil, badEnum("subscriptions", "plan", tier)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate directory", err)
	}
	return entries, nil
}

func prefixColumns(alias, columns string) []string {
	parts := strings.Split(columns, ",")
	out := make([]string, 0, len(parts))
	for _, c := range parts {
		out = append(out, alias+"."+strings.TrimSpace(c))
	}
	return out
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
