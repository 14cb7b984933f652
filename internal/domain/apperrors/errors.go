package apperrors

import "errors"

// ErrNotFound indicates no error row with the given id is visible to the
// requesting user. A row owned by another tenant produces the same answer
// as a row that does not exist.
var ErrNotFound = errors.New("error not found")

// ErrClosed indicates a mutation was attempted on an error that is already
// closed. No field, including notes, may change once closed.
var ErrClosed = errors.New("error not open")
