package apps

// Application is a monitored client application registered by a user.
// The (Token, ID) pair authenticates ingestion; UserID scopes every
// browse and search operation.
type Application struct {
	ID     int64  `json:"id"`
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
	Token  string `json:"-"`
}
