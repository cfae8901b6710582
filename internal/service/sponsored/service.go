package sponsored

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/lalith-99/collabspace/internal/models"
	"github.com/lalith-99/collabspace/internal/service/directory"
)

type sponsoredRepo interface {
	ListActive(ctx context.Context) ([]models.SponsoredPost, error)
	Create(ctx context.Context, p *models.SponsoredPost) (*models.SponsoredPost, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) (*models.SponsoredPost, error)
}

type roleRepo interface {
	HasRole(ctx context.Context, userID uuid.UUID, role models.Role) (bool, error)
}

const maxTitleLen = 200

type Service struct {
	posts sponsoredRepo
	roles roleRepo
}

func NewService(posts sponsoredRepo, roles roleRepo) *Service {
	return &Service{posts: posts, roles: roles}
}

// ListActive is ordered by display_order, then creation time.
func (s *Service) ListActive(ctx context.Context) ([]models.SponsoredPost, error) {
	return s.posts.ListActive(ctx)
}

type NewPost struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	ImageURL     string `json:"image_url"`
	LinkURL      string `json:"link_url"`
	DisplayOrder int    `json:"display_order"`
}

func (s *Service) Create(ctx context.Context, actorID uuid.UUID, in NewPost) (*models.SponsoredPost, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}

	post := &models.SponsoredPost{
		Title:        strings.TrimSpace(in.Title),
		Description:  strings.TrimSpace(in.Description),
		ImageURL:     strings.TrimSpace(in.ImageURL),
		LinkURL:      strings.TrimSpace(in.LinkURL),
		DisplayOrder: in.DisplayOrder,
		IsActive:     true,
	}

	var v models.Validator
	v.Check(post.Title != "", "title", "required")
	v.Check(utf8.RuneCountInString(post.Title) <= maxTitleLen, "title", fmt.Sprintf("must be at most %d characters", maxTitleLen))
	v.Check(directory.IsHTTPURL(post.LinkURL), "link_url", "must be an absolute http(s) URL")
	v.Check(post.ImageURL == "" || directory.IsHTTPURL(post.ImageURL), "image_url", "must be an absolute http(s) URL")
	v.Check(post.DisplayOrder >= 0, "display_order", "must not be negative")
	if err := v.Err(); err != nil {
		return nil, err
	}

	return s.posts.Create(ctx, post)
}

func (s *Service) SetActive(ctx context.Context, actorID, postID uuid.UUID, active bool) (*models.SponsoredPost, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}

	post, err := s.posts.SetActive(ctx, postID, active)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, models.ErrNotFound
	}
	return post, nil
}

func (s *Service) requireAdmin(ctx context.Context, actorID uuid.UUID) error {
	ok, err := s.roles.HasRole(ctx, actorID, models.RoleAdmin)
	if err != nil {
		return fmt.Errorf("check admin role: %w", err)
	}
	if !ok {
		return models.ErrUnauthorized
	}
	return nil
}
