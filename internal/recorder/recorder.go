// Package recorder writes this service's own failures into the errors
// table it manages, under a dedicated self-monitoring application.
package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"runtime"
	"time"

	"github.com/claudiug/kaeruera/internal/domain/apperrors"
	"github.com/claudiug/kaeruera/internal/middleware"
)

const writeTimeout = 5 * time.Second

// Recorder is an explicitly injected collaborator, not a global. The write
// path is best-effort and non-recursive: a failure while recording a
// failure goes to the structured log and stops there.
type Recorder struct {
	errors apperrors.Repository
	appID  int64
}

func New(errors apperrors.Repository, appID int64) *Recorder {
	return &Recorder{errors: errors, appID: appID}
}

// Record stores one diagnostic event for a failed request. The triggering
// request's parameters, environment and session identity ride along so the
// stored error is debuggable on its own.
func (r *Recorder) Record(req *http.Request, cause error) {
	if r == nil || r.errors == nil {
		return
	}

	e := &apperrors.Error{
		ApplicationID: r.appID,
		Class:         fmt.Sprintf("%T", cause),
		Message:       cause.Error(),
		Backtrace:     backtrace(),
		Params:        requestParams(req),
		Session:       sessionInfo(req),
		Env:           requestEnv(req),
		Status:        apperrors.StatusOpen,
		CreatedAt:     time.Now(),
	}

	// Detached context: the failed request's context is likely done.
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if _, err := r.errors.Insert(ctx, e); err != nil {
		log.Printf("recorder: dropping self-monitoring event: %v (original: %v)", err, cause)
	}
}

func requestParams(req *http.Request) json.RawMessage {
	if req == nil {
		return nil
	}
	params := map[string]any{"query": req.URL.Query()}
	if req.Form != nil {
		params["form"] = req.Form
	}
	b, err := json.Marshal(params)
	if err != nil {
		return nil
	}
	return b
}

func sessionInfo(req *http.Request) json.RawMessage {
	if req == nil {
		return nil
	}
	uid := middleware.UserIDFromContext(req.Context())
	if uid == 0 {
		return nil
	}
	b, err := json.Marshal(map[string]int64{"user_id": uid})
	if err != nil {
		return nil
	}
	return b
}

func requestEnv(req *http.Request) map[string]string {
	if req == nil {
		return nil
	}
	env := map[string]string{
		"REQUEST_METHOD":  req.Method,
		"PATH_INFO":       req.URL.Path,
		"QUERY_STRING":    req.URL.RawQuery,
		"REMOTE_ADDR":     req.RemoteAddr,
		"HTTP_USER_AGENT": req.UserAgent(),
	}
	if id := middleware.RequestIDFromContext(req.Context()); id != "" {
		env["REQUEST_ID"] = id
	}
	return env
}

func backtrace() []string {
	pcs := make([]uintptr, 32)
	// Skip runtime.Callers, backtrace and Record itself.
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	var out []string
	for {
		f, more := frames.Next()
		out = append(out, fmt.Sprintf("%s:%d %s", f.File, f.Line, f.Function))
		if !more {
			break
		}
	}
	return out
}
