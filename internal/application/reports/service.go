package reports

import (
	"context"
	"encoding/json"
	"time"

	"github.com/claudiug/kaeruera/internal/domain/apperrors"
	"github.com/claudiug/kaeruera/internal/domain/apps"
)

// Service implements the ingestion use-case: authenticate the reporting
// application, normalize its payload, store one error row.
type Service struct {
	Apps   apps.Repository
	Errors apperrors.Repository
	Clock  Clock
}

// Clock abstraction so ingestion time is testable
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Payload is the diagnostic data block of a report. Required fields are
// passed through as-is; optional fields stay nil when absent and are never
// stored as empty placeholders.
type Payload struct {
	Class     string            `json:"error_class"`
	Message   string            `json:"message"`
	Backtrace []string          `json:"backtrace"`
	Params    json.RawMessage   `json:"params,omitempty"`
	Session   json.RawMessage   `json:"session,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
}

// ReportCommand is one incoming report: the claimed credentials plus the
// diagnostic payload.
type ReportCommand struct {
	Token string
	AppID int64
	Data  Payload
}

// Report authenticates the (token, id) pair and persists the normalized
// payload. Returns the generated error id, the sole content of a success
// response. Any holder of a valid token may report without bound; there is
// no replay protection and no dedup.
func (s *Service) Report(ctx context.Context, cmd ReportCommand) (int64, error) {
	app, err := s.Apps.Authenticate(ctx, cmd.Token, cmd.AppID)
	if err != nil {
		return 0, err
	}

	rec := normalize(app.ID, cmd.Data, s.Clock.Now())
	return s.Errors.Insert(ctx, rec)
}

// normalize converts a payload into an insertable error row. No schema
// validation beyond field presence: a report with an empty class or
// message is stored as sent.
func normalize(appID int64, p Payload, now time.Time) *apperrors.Error {
	return &apperrors.Error{
		ApplicationID: appID,
		Class:         p.Class,
		Message:       p.Message,
		Backtrace:     p.Backtrace,
		Params:        p.Params,
		Session:       p.Session,
		Env:           p.Env,
		Status:        apperrors.StatusOpen,
		CreatedAt:     now,
	}
}
