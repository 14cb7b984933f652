package apperrors

import "context"

// Repository port (interface for persistence)
type Repository interface {
	// Insert persists a new error row and returns its generated id.
	// CreatedAt must be set by the caller before insert.
	Insert(ctx context.Context, e *Error) (int64, error)

	// GetScoped returns the error only when its owning application belongs
	// to userID, otherwise ErrNotFound.
	GetScoped(ctx context.Context, id, userID int64) (*Error, error)

	// Update persists Status and Notes for an error still in the Open
	// state. Returns ErrClosed when the row was closed in the meantime.
	Update(ctx context.Context, e *Error, userID int64) error

	// Window returns the rows selected by q in most-recent order.
	Window(ctx context.Context, q Query) ([]*Error, error)
}
