package analysis

import (
	"context"

	"github.com/claudiug/kaeruera/internal/domain/analysis"
	"github.com/claudiug/kaeruera/internal/domain/apperrors"
)

// Service produces AI triage summaries for stored errors. Reads go through
// the scoped repository so a user can only analyze errors they can see.
type Service struct {
	client analysis.Client
	errors apperrors.Repository
}

func NewService(client analysis.Client, errors apperrors.Repository) *Service {
	return &Service{client: client, errors: errors}
}

func (s *Service) Summarize(ctx context.Context, userID, errorID int64) (string, error) {
	e, err := s.errors.GetScoped(ctx, errorID, userID)
	if err != nil {
		return "", err
	}
	return s.client.Summarize(ctx, e.Class, e.Message, e.Backtrace)
}
