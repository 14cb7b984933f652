package apperrors

// Query is a typed specification for a windowed read over error rows.
// Per-application listing sets ApplicationID; cross-application search sets
// OwnerID plus any of the optional constraints. Both shapes share the same
// ordering (created_at descending, id descending as tie-break) and the same
// windowing path, so no total-count query is ever needed.
type Query struct {
	// ApplicationID restricts rows to one application. The caller must have
	// verified ownership of that application already.
	ApplicationID int64

	// OwnerID restricts rows to every application owned by that user, via a
	// join against the applications table.
	OwnerID int64

	// Search matches the term against error_class or message, substring,
	// case-insensitive.
	Search string

	// Class matches error_class exactly.
	Class string

	// Status, when non-nil, restricts rows to one lifecycle state.
	Status *Status

	Limit  int
	Offset int
}

// Page is one window of a query result plus lookahead navigation flags.
// HasNext comes from fetching one row beyond the window, never from a
// separate count.
type Page struct {
	Data    []*Error `json:"data"`
	Page    int      `json:"page"`
	HasNext bool     `json:"has_next"`
	HasPrev bool     `json:"has_prev"`
}
