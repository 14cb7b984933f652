package apps

import (
	"context"
	"errors"
)

// ErrAuthenticationFailed indicates the claimed (token, id) pair does not
// resolve to a stored application.
var ErrAuthenticationFailed = errors.New("application authentication failed")

// ErrNotFound indicates no application with the given id is owned by the
// requesting user. Deliberately the same answer for "missing" and "owned
// by someone else".
var ErrNotFound = errors.New("application not found")

// Repository port (interface for persistence)
type Repository interface {
	// Authenticate resolves the application whose stored token and id both
	// match. Returns ErrAuthenticationFailed on any mismatch.
	Authenticate(ctx context.Context, token string, id int64) (*Application, error)

	// GetOwned returns the application only when owned by userID,
	// otherwise ErrNotFound.
	GetOwned(ctx context.Context, userID, id int64) (*Application, error)

	// ListOwned returns every application owned by userID, ordered by name.
	ListOwned(ctx context.Context, userID int64) ([]*Application, error)

	Create(ctx context.Context, userID int64, name, token string) (*Application, error)
}
