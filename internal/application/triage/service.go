package triage

import (
	"context"

	"github.com/claudiug/kaeruera/internal/domain/apperrors"
	"github.com/claudiug/kaeruera/internal/domain/apps"
)

// PerPage is the fixed page size for every listing and search window.
// Not client-configurable.
const PerPage = 25

// Service implements the operator use-cases: browse a single application's
// errors, search across every owned application, inspect and triage one
// error. Every read is scoped to the requesting user.
type Service struct {
	Apps   apps.Repository
	Errors apperrors.Repository
}

// SearchFilters are the recognized search constraints. Term is required by
// the caller before search mode is entered at all; the rest are optional.
type SearchFilters struct {
	Term   string
	Class  string
	Status *apperrors.Status
}

// ListApplications returns the user's applications ordered by name.
func (s *Service) ListApplications(ctx context.Context, userID int64) ([]*apps.Application, error) {
	return s.Apps.ListOwned(ctx, userID)
}

// GetApplication returns one owned application, apps.ErrNotFound otherwise.
func (s *Service) GetApplication(ctx context.Context, userID, appID int64) (*apps.Application, error) {
	return s.Apps.GetOwned(ctx, userID, appID)
}

// CreateApplication registers a new monitored application for the user.
func (s *Service) CreateApplication(ctx context.Context, userID int64, name, token string) (*apps.Application, error) {
	return s.Apps.Create(ctx, userID, name, token)
}

// ListErrors returns one page of an application's errors in most-recent
// order. Ownership of the application is verified first; a foreign or
// missing application id yields apps.ErrNotFound.
func (s *Service) ListErrors(ctx context.Context, userID, appID int64, page int) (*apperrors.Page, error) {
	if _, err := s.Apps.GetOwned(ctx, userID, appID); err != nil {
		return nil, err
	}
	return s.window(ctx, apperrors.Query{ApplicationID: appID}, page)
}

// Search returns one page of errors across every application the user
// owns, constrained by the recognized filters. Rows from applications
// owned by other users never appear, even on a class/message match.
func (s *Service) Search(ctx context.Context, userID int64, f SearchFilters, page int) (*apperrors.Page, error) {
	q := apperrors.Query{
		OwnerID: userID,
		Search:  f.Term,
		Class:   f.Class,
		Status:  f.Status,
	}
	return s.window(ctx, q, page)
}

// GetError returns one error visible to the user, apperrors.ErrNotFound
// otherwise.
func (s *Service) GetError(ctx context.Context, userID, id int64) (*apperrors.Error, error) {
	return s.Errors.GetScoped(ctx, id, userID)
}

// UpdateError applies the single triage mutation: optionally close, and
// overwrite notes. An already-closed error rejects the whole update with
// apperrors.ErrClosed, notes included. close=false never reopens.
func (s *Service) UpdateError(ctx context.Context, userID, id int64, close bool, notes string) (*apperrors.Error, error) {
	e, err := s.Errors.GetScoped(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if e.Closed() {
		return nil, apperrors.ErrClosed
	}
	if close {
		e.Status = apperrors.StatusClosed
	}
	e.Notes = notes
	if err := s.Errors.Update(ctx, e, userID); err != nil {
		return nil, err
	}
	return e, nil
}

// window fetches one lookahead row past the page boundary so HasNext needs
// no count query. Pages below 1 clamp to 1.
func (s *Service) window(ctx context.Context, q apperrors.Query, page int) (*apperrors.Page, error) {
	if page < 1 {
		page = 1
	}
	q.Limit = PerPage + 1
	q.Offset = (page - 1) * PerPage

	rows, err := s.Errors.Window(ctx, q)
	if err != nil {
		return nil, err
	}

	hasNext := false
	if len(rows) == PerPage+1 {
		rows = rows[:PerPage]
		hasNext = true
	}
	return &apperrors.Page{
		Data:    rows,
		Page:    page,
		HasNext: hasNext,
		HasPrev: page > 1,
	}, nil
}
