package matching

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/collabspace/internal/models"
	"github.com/lalith-99/collabspace/internal/observ"
	"github.com/lalith-99/collabspace/internal/service/directory"
	"go.uber.org/zap"
)

const (
	poolSize       = 20
	maxSuggestions = 10
	fallbackSize   = 3
)

type directoryLister interface {
	List(ctx context.Context, viewerID uuid.UUID, f directory.Filter) ([]models.DirectoryEntry, error)
}

type profileGetter interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
}

// Ranker orders a candidate pool for a viewer and returns the raw ids it
// picked, best first. The service validates them.
type Ranker interface {
	Rank(ctx context.Context, viewer *models.Profile, pool []models.DirectoryEntry) ([]string, error)
}

// ErrNoRanking means the ranker answered but without a usable id list.
var ErrNoRanking = errors.New("no ranking in answer")

type Service struct {
	log       *zap.Logger
	directory directoryLister
	profiles  profileGetter
	ranker    Ranker
	timeout   time.Duration
}

// NewService builds the matcher. A nil ranker always uses the fallback.
func NewService(logger *zap.Logger, dir directoryLister, profiles profileGetter, ranker Ranker, timeout time.Duration) *Service {
	return &Service{
		log:       observ.Component(logger, "matching"),
		directory: dir,
		profiles:  profiles,
		ranker:    ranker,
		timeout:   timeout,
	}
}

// Suggest returns up to ten collaborators for userID.
func (s *Service) Suggest(ctx context.Context, userID uuid.UUID) ([]models.DirectoryEntry, error) {
	pool, err := s.directory.List(ctx, userID, directory.Filter{Limit: poolSize})
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	if len(pool) == 0 {
		return []models.DirectoryEntry{}, nil
	}
	if s.ranker == nil {
		return Fallback(pool), nil
	}

	viewer, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load viewer profile: %w", err)
	}
	if viewer == nil {
		viewer = &models.Profile{UserID: userID}
	}

	rankCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		rankCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	ids, err := s.ranker.Rank(rankCtx, viewer, pool)
	if err != nil {
		s.logRankError(userID, err)
		return Fallback(pool), nil
	}

	picked, ok := Pick(pool, ids)
	if !ok {
		s.log.Warn("ranker answer rejected", zap.String("user_id", userID.String()), zap.Strings("ids", ids))
		return Fallback(pool), nil
	}
	return picked, nil
}

func (s *Service) logRankError(userID uuid.UUID, err error) {
	fields := []zap.Field{zap.String("user_id", userID.String()), zap.Error(err)}

	var ext *models.ExternalServiceError
	if errors.As(err, &ext) {
		fields = append(fields, zap.String("kind", string(ext.Kind)), zap.Int("status", ext.StatusCode))
		if ext.Kind != models.ExternalUpstream {
			s.log.Warn("ranker unavailable, using fallback", fields...)
			return
		}
	}
	s.log.Error("ranker failed, using fallback", fields...)
}

// Pick maps ranked ids back onto the pool. Any id that is not a UUID makes the
// whole answer invalid. UUIDs outside the pool and repeats are dropped. The
// answer is also invalid when nothing survives.
func Pick(pool []models.DirectoryEntry, ids []string) ([]models.DirectoryEntry, bool) {
	byID := make(map[uuid.UUID]models.DirectoryEntry, len(pool))
	for _, e := range pool {
		byID[e.UserID] = e
	}

	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]models.DirectoryEntry, 0, maxSuggestions)
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, false
		}
		e, ok := byID[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, e)
		if len(out) == maxSuggestions {
			break
		}
	}
	return out, len(out) > 0
}

// Fallback is the top three of the pool by follower count.
func Fallback(pool []models.DirectoryEntry) []models.DirectoryEntry {
	out := make([]models.DirectoryEntry, len(pool))
	copy(out, pool)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FollowerCount > out[j].FollowerCount
	})
	if len(out) > fallbackSize {
		out = out[:fallbackSize]
	}
	return out
}
