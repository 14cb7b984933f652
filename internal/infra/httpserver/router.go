package httpserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	appanalysis "github.com/claudiug/kaeruera/internal/application/analysis"
	"github.com/claudiug/kaeruera/internal/application/reports"
	"github.com/claudiug/kaeruera/internal/application/triage"
	"github.com/claudiug/kaeruera/internal/domain/analysis"
	"github.com/claudiug/kaeruera/internal/domain/apperrors"
	"github.com/claudiug/kaeruera/internal/domain/apps"
	"github.com/claudiug/kaeruera/internal/middleware"
	"github.com/claudiug/kaeruera/internal/recorder"
)

// Archiver stores raw report payloads; nil disables archival.
type Archiver interface {
	Put(ctx context.Context, key string, body []byte) (string, error)
}

type Router struct {
	reportsSvc  *reports.Service
	triageSvc   *triage.Service
	analysisSvc *appanalysis.Service
	archive     Archiver
	recorder    *recorder.Recorder
}

func NewRouter(reportsSvc *reports.Service, triageSvc *triage.Service, analysisSvc *appanalysis.Service, archive Archiver, rec *recorder.Recorder, health http.HandlerFunc) http.Handler {
	r := &Router{
		reportsSvc:  reportsSvc,
		triageSvc:   triageSvc,
		analysisSvc: analysisSvc,
		archive:     archive,
		recorder:    rec,
	}
	mux := chi.NewRouter()

	if health != nil {
		mux.Get("/health", health)
	}
	mux.Get("/metrics", middleware.MetricsHandler)

	// Machine ingestion; no operator session required.
	mux.Post("/report_error", r.wrap(r.handleReportError))

	// Operator API; the session middleware has resolved a user id by the
	// time these run.
	mux.Get("/applications", r.wrap(r.handleListApplications))
	mux.Post("/applications", r.wrap(r.handleCreateApplication))
	mux.Get("/applications/{application_id}/errors", r.wrap(r.handleListErrors))
	mux.Get("/search", r.wrap(r.handleSearch))
	mux.Get("/error/{id}", r.wrap(r.handleGetError))
	mux.Post("/update_error/{id}", r.wrap(r.handleUpdateError))
	if analysisSvc != nil {
		mux.Post("/error/{id}/analyze", r.wrap(r.handleAnalyze))
	}

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// wrap maps domain failures to statuses. Anything unclassified goes
// through the self-monitoring recorder and comes back as a generic 500
// with no distinguishing code.
func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		switch {
		case errors.Is(err, apps.ErrAuthenticationFailed):
			http.Error(w, "authentication failed", http.StatusUnauthorized)
		case errors.Is(err, apps.ErrNotFound),
			errors.Is(err, apperrors.ErrNotFound),
			errors.Is(err, sql.ErrNoRows):
			http.Error(w, "not found", http.StatusNotFound)
		case errors.Is(err, apperrors.ErrClosed):
			http.Error(w, "error not open", http.StatusForbidden)
		case errors.Is(err, analysis.ErrQuotaExceeded):
			http.Error(w, "ai quota exceeded", http.StatusTooManyRequests)
		default:
			r.recorder.Record(req, err)
			http.Error(w, "sorry, an error occurred", http.StatusInternalServerError)
		}
	}
}

// POST /report_error
// Body: {"token": "...", "id": 7, "data": {"error_class": ..., "message": ..., "backtrace": [...], ...}}
func (r *Router) handleReportError(w http.ResponseWriter, req *http.Request) error {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return err
	}

	var report struct {
		Token string          `json:"token"`
		ID    int64           `json:"id"`
		Data  reports.Payload `json:"data"`
	}
	if err := json.Unmarshal(body, &report); err != nil {
		// Malformed bodies take the generic failure path; the ingestion
		// contract defines no structured error code.
		return err
	}

	id, err := r.reportsSvc.Report(req.Context(), reports.ReportCommand{
		Token: report.Token,
		AppID: report.ID,
		Data:  report.Data,
	})
	if err != nil {
		if errors.Is(err, apps.ErrAuthenticationFailed) {
			middleware.IncrementReportsRejected()
		}
		return err
	}
	middleware.IncrementReports()
	r.archivePayload(req.Context(), report.ID, id, body)

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(map[string]int64{"error_id": id})
}

// archivePayload is best-effort: a failed archive write is logged, never
// surfaced to the reporter.
func (r *Router) archivePayload(ctx context.Context, appID, errorID int64, body []byte) {
	if r.archive == nil {
		return
	}
	key := fmt.Sprintf("%d/%d.json", appID, errorID)
	if _, err := r.archive.Put(ctx, key, body); err != nil {
		log.Printf("payload archive failed for error %d: %v", errorID, err)
	}
}

// GET /applications
func (r *Router) handleListApplications(w http.ResponseWriter, req *http.Request) error {
	userID := middleware.UserIDFromContext(req.Context())
	list, err := r.triageSvc.ListApplications(req.Context(), userID)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(list)
}

// POST /applications
// Body: {"name": "..."}
func (r *Router) handleCreateApplication(w http.ResponseWriter, req *http.Request) error {
	userID := middleware.UserIDFromContext(req.Context())
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return err
	}
	if body.Name == "" {
		return fmt.Errorf("name is required")
	}

	app, err := r.triageSvc.CreateApplication(req.Context(), userID, body.Name, uuid.New().String())
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	return json.NewEncoder(w).Encode(app)
}

// errorsPage is a listing or search result page plus navigation links.
type errorsPage struct {
	*apperrors.Page
	PrevLink string `json:"prev_link,omitempty"`
	NextLink string `json:"next_link,omitempty"`
}

// GET /applications/{application_id}/errors?page=
func (r *Router) handleListErrors(w http.ResponseWriter, req *http.Request) error {
	userID := middleware.UserIDFromContext(req.Context())
	appID, err := strconv.ParseInt(chi.URLParam(req, "application_id"), 10, 64)
	if err != nil {
		return apps.ErrNotFound
	}

	pg, err := r.triageSvc.ListErrors(req.Context(), userID, appID, parsePage(req))
	if err != nil {
		return err
	}

	prev, next := pageLinks(req.URL.Path, req.URL.Query(), pg)
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(errorsPage{Page: pg, PrevLink: prev, NextLink: next})
}

// GET /search?search=&error_class=&status=&page=
// The presence of the search parameter switches modes: without it the
// response is the application-selection view, not an empty result list.
func (r *Router) handleSearch(w http.ResponseWriter, req *http.Request) error {
	userID := middleware.UserIDFromContext(req.Context())
	q := req.URL.Query()

	w.Header().Set("Content-Type", "application/json")
	if !q.Has("search") {
		list, err := r.triageSvc.ListApplications(req.Context(), userID)
		if err != nil {
			return err
		}
		return json.NewEncoder(w).Encode(map[string]any{
			"mode":         "select_application",
			"applications": list,
		})
	}

	var status *apperrors.Status
	switch q.Get("status") {
	case "open":
		s := apperrors.StatusOpen
		status = &s
	case "closed":
		s := apperrors.StatusClosed
		status = &s
	}

	pg, err := r.triageSvc.Search(req.Context(), userID, triage.SearchFilters{
		Term:   q.Get("search"),
		Class:  q.Get("error_class"),
		Status: status,
	}, parsePage(req))
	if err != nil {
		return err
	}

	prev, next := pageLinks(req.URL.Path, q, pg)
	return json.NewEncoder(w).Encode(struct {
		Mode string `json:"mode"`
		errorsPage
	}{Mode: "results", errorsPage: errorsPage{Page: pg, PrevLink: prev, NextLink: next}})
}

// GET /error/{id}
func (r *Router) handleGetError(w http.ResponseWriter, req *http.Request) error {
	userID := middleware.UserIDFromContext(req.Context())
	id, err := strconv.ParseInt(chi.URLParam(req, "id"), 10, 64)
	if err != nil {
		return apperrors.ErrNotFound
	}

	e, err := r.triageSvc.GetError(req.Context(), userID, id)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(e)
}

// POST /update_error/{id}
// Form fields: notes, close (the literal "1" closes; anything else leaves
// the state alone). Success redirects back to the single-error view.
func (r *Router) handleUpdateError(w http.ResponseWriter, req *http.Request) error {
	userID := middleware.UserIDFromContext(req.Context())
	id, err := strconv.ParseInt(chi.URLParam(req, "id"), 10, 64)
	if err != nil {
		return apperrors.ErrNotFound
	}
	if err := req.ParseForm(); err != nil {
		return err
	}

	e, err := r.triageSvc.UpdateError(req.Context(), userID, id,
		req.PostFormValue("close") == "1",
		req.PostFormValue("notes"),
	)
	if err != nil {
		return err
	}

	http.Redirect(w, req, fmt.Sprintf("/error/%d", e.ID), http.StatusSeeOther)
	return nil
}

// POST /error/{id}/analyze
func (r *Router) handleAnalyze(w http.ResponseWriter, req *http.Request) error {
	userID := middleware.UserIDFromContext(req.Context())
	id, err := strconv.ParseInt(chi.URLParam(req, "id"), 10, 64)
	if err != nil {
		return apperrors.ErrNotFound
	}

	summary, err := r.analysisSvc.Summarize(req.Context(), userID, id)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(map[string]string{"analysis": summary})
}
