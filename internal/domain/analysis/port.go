package analysis

import "context"

// Client produces a triage summary for one reported error.
type Client interface {
	Summarize(ctx context.Context, errorClass, message string, backtrace []string) (string, error)
}
