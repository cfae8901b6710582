package dashboard

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/lalith-99/collabspace/internal/models"
)

type countsRepo interface {
	Counts(ctx context.Context, userID uuid.UUID) (models.DashboardCounts, error)
}

type Service struct {
	repo countsRepo
}

func NewService(repo countsRepo) *Service {
	return &Service{repo: repo}
}

// Summary reads one snapshot. On error nothing partial is returned.
func (s *Service) Summary(ctx context.Context, userID uuid.UUID) (*models.Dashboard, error) {
	counts, err := s.repo.Counts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("dashboard counts: %w", err)
	}
	return &models.Dashboard{
		ActiveCollaborations: counts.Accepted,
		UnreadMessages:       counts.UnreadMessages,
		SuccessRate:          SuccessRate(counts.Completed, counts.Total),
		TotalCollaborations:  counts.Total,
	}, nil
}

// SuccessRate is completed/total as a whole percentage, rounded half away
// from zero. Pending requests count toward total.
func SuccessRate(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(completed) / float64(total)))
}
