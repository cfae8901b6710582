package directory

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/lalith-99/collabspace/internal/models"
	"github.com/lalith-99/collabspace/internal/repository"
)

type profileRepo interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	Update(ctx context.Context, p *models.Profile) (*models.Profile, error)
	ListDiscoverable(ctx context.Context, q repository.DirectoryQuery) ([]models.DirectoryEntry, error)
}

const (
	DefaultLimit = 20
	MaxLimit     = 100

	maxDisplayNameLen = 100
	maxBioLen         = 1000
	maxNicheLen       = 100
)

type Filter struct {
	Search string
	Niche  string
	Limit  int
}

type Service struct {
	profiles profileRepo
	now      func() time.Time
}

func NewService(profiles profileRepo) *Service {
	return &Service{profiles: profiles, now: time.Now}
}

// List returns public profiles other than the viewer's, best first.
func (s *Service) List(ctx context.Context, viewerID uuid.UUID, f Filter) ([]models.DirectoryEntry, error) {
	limit := f.Limit
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}

	entries, err := s.profiles.ListDiscoverable(ctx, repository.DirectoryQuery{
		ViewerID: viewerID,
		Search:   f.Search,
		Niche:    f.Niche,
		Limit:    limit,
		Now:      s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("list directory: %w", err)
	}
	Rank(entries)
	return entries, nil
}

// Rank sorts in place: boosted first, then by follower count, then by user id
// so equal entries keep a stable order between calls.
func Rank(entries []models.DirectoryEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Boosted != b.Boosted {
			return a.Boosted
		}
		if a.FollowerCount != b.FollowerCount {
			return a.FollowerCount > b.FollowerCount
		}
		return a.UserID.String() < b.UserID.String()
	})
}

// GetProfile returns a profile by owner. Private profiles are only visible to
// their owner.
func (s *Service) GetProfile(ctx context.Context, viewerID, userID uuid.UUID) (*models.Profile, error) {
	p, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	if p == nil {
		return nil, models.ErrNotFound
	}
	if p.Visibility == models.VisibilityPrivate && viewerID != userID {
		return nil, models.ErrNotFound
	}
	return p, nil
}

// ProfilePatch holds the fields a caller wants to change. Nil means keep.
type ProfilePatch struct {
	DisplayName   *string             `json:"display_name"`
	Bio           *string             `json:"bio"`
	Niche         *string             `json:"niche"`
	FollowerCount *int                `json:"follower_count"`
	Links         *models.SocialLinks `json:"links"`
	Visibility    *models.Visibility  `json:"visibility"`
}

func (s *Service) UpdateProfile(ctx context.Context, ownerID uuid.UUID, patch ProfilePatch) (*models.Profile, error) {
	current, err := s.profiles.GetByUserID(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	if current == nil {
		return nil, models.ErrNotFound
	}

	next := *current
	if patch.DisplayName != nil {
		next.DisplayName = strings.TrimSpace(*patch.DisplayName)
	}
	if patch.Bio != nil {
		next.Bio = strings.TrimSpace(*patch.Bio)
	}
	if patch.Niche != nil {
		next.Niche = strings.TrimSpace(*patch.Niche)
	}
	if patch.FollowerCount != nil {
		next.FollowerCount = *patch.FollowerCount
	}
	if patch.Links != nil {
		next.Links = models.SocialLinks{
			Instagram: strings.TrimSpace(patch.Links.Instagram),
			TikTok:    strings.TrimSpace(patch.Links.TikTok),
			YouTube:   strings.TrimSpace(patch.Links.YouTube),
		}
	}
	if patch.Visibility != nil {
		next.Visibility = *patch.Visibility
	}

	if err := ValidateProfile(&next); err != nil {
		return nil, err
	}

	updated, err := s.profiles.Update(ctx, &next)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return updated, nil
}

func ValidateProfile(p *models.Profile) error {
	var v models.Validator
	nameLen := utf8.RuneCountInString(p.DisplayName)
	v.Check(nameLen >= 1 && nameLen <= maxDisplayNameLen, "display_name", fmt.Sprintf("must be 1-%d characters", maxDisplayNameLen))
	v.Check(utf8.RuneCountInString(p.Bio) <= maxBioLen, "bio", fmt.Sprintf("must be at most %d characters", maxBioLen))
	v.Check(utf8.RuneCountInString(p.Niche) <= maxNicheLen, "niche", fmt.Sprintf("must be at most %d characters", maxNicheLen))
	v.Check(p.FollowerCount >= 0, "follower_count", "must not be negative")
	v.Check(p.Visibility.Valid(), "visibility", "must be public or private")
	v.Check(optionalHTTPURL(p.Links.Instagram), "links.instagram", "must be an absolute http(s) URL")
	v.Check(optionalHTTPURL(p.Links.TikTok), "links.tiktok", "must be an absolute http(s) URL")
	v.Check(optionalHTTPURL(p.Links.YouTube), "links.youtube", "must be an absolute http(s) URL")
	return v.Err()
}

func optionalHTTPURL(raw string) bool {
	return raw == "" || IsHTTPURL(raw)
}

// IsHTTPURL accepts absolute http and https URLs with a host.
func IsHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
