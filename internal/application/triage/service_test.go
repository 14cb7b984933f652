package triage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/claudiug/kaeruera/internal/domain/apperrors"
	"github.com/claudiug/kaeruera/internal/domain/apps"
)

type memAppRepo struct {
	apps map[int64]*apps.Application
}

func (r *memAppRepo) Authenticate(_ context.Context, token string, id int64) (*apps.Application, error) {
	a, ok := r.apps[id]
	if !ok || a.Token != token {
		return nil, apps.ErrAuthenticationFailed
	}
	return a, nil
}

func (r *memAppRepo) GetOwned(_ context.Context, userID, id int64) (*apps.Application, error) {
	a, ok := r.apps[id]
	if !ok || a.UserID != userID {
		return nil, apps.ErrNotFound
	}
	return a, nil
}

func (r *memAppRepo) ListOwned(_ context.Context, userID int64) ([]*apps.Application, error) {
	var out []*apps.Application
	for _, a := range r.apps {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memAppRepo) Create(_ context.Context, userID int64, name, token string) (*apps.Application, error) {
	id := int64(len(r.apps) + 1)
	a := &apps.Application{ID: id, UserID: userID, Name: name, Token: token}
	r.apps[id] = a
	return a, nil
}

type memErrorRepo struct {
	mu     sync.Mutex
	seq    int64
	rows   map[int64]*apperrors.Error
	owners map[int64]int64 // application id -> user id
}

func newMemErrorRepo(appRepo *memAppRepo) *memErrorRepo {
	owners := make(map[int64]int64)
	for id, a := range appRepo.apps {
		owners[id] = a.UserID
	}
	return &memErrorRepo{rows: make(map[int64]*apperrors.Error), owners: owners}
}

func (r *memErrorRepo) Insert(_ context.Context, e *apperrors.Error) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	cp := *e
	cp.ID = r.seq
	r.rows[cp.ID] = &cp
	return cp.ID, nil
}

func (r *memErrorRepo) GetScoped(_ context.Context, id, userID int64) (*apperrors.Error, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.rows[id]
	if !ok || r.owners[e.ApplicationID] != userID {
		return nil, apperrors.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *memErrorRepo) Update(_ context.Context, e *apperrors.Error, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.rows[e.ID]
	if !ok || r.owners[cur.ApplicationID] != userID || cur.Closed() {
		return apperrors.ErrClosed
	}
	cur.Status = e.Status
	cur.Notes = e.Notes
	return nil
}

func (r *memErrorRepo) Window(_ context.Context, q apperrors.Query) ([]*apperrors.Error, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []*apperrors.Error
	for _, e := range r.rows {
		if q.ApplicationID > 0 && e.ApplicationID != q.ApplicationID {
			continue
		}
		if q.OwnerID > 0 && r.owners[e.ApplicationID] != q.OwnerID {
			continue
		}
		if q.Search != "" {
			t := strings.ToLower(q.Search)
			if !strings.Contains(strings.ToLower(e.Class), t) && !strings.Contains(strings.ToLower(e.Message), t) {
				continue
			}
		}
		if q.Class != "" && e.Class != q.Class {
			continue
		}
		if q.Status != nil && e.Status != *q.Status {
			continue
		}
		cp := *e
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})
	if q.Offset >= len(all) {
		return nil, nil
	}
	all = all[q.Offset:]
	if q.Limit > 0 && len(all) > q.Limit {
		all = all[:q.Limit]
	}
	return all, nil
}

func newTestService() (*Service, *memErrorRepo) {
	appRepo := &memAppRepo{apps: map[int64]*apps.Application{
		7:  {ID: 7, UserID: 1, Name: "checkout", Token: "abc"},
		8:  {ID: 8, UserID: 1, Name: "billing", Token: "def"},
		99: {ID: 99, UserID: 2, Name: "other", Token: "zzz"},
	}}
	errRepo := newMemErrorRepo(appRepo)
	return &Service{Apps: appRepo, Errors: errRepo}, errRepo
}

func seedErrors(t *testing.T, repo *memErrorRepo, appID int64, n int) []int64 {
	t.Helper()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		id, err := repo.Insert(context.Background(), &apperrors.Error{
			ApplicationID: appID,
			Class:         "RuntimeError",
			Message:       fmt.Sprintf("boom %d", i),
			Backtrace:     []string{"a.go:1"},
			Status:        apperrors.StatusOpen,
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("seed insert: %v", err)
		}
		ids = append(ids, id)
	}
	return ids
}

func TestListErrorsPagination(t *testing.T) {
	svc, repo := newTestService()
	seedErrors(t, repo, 7, 30)

	pg, err := svc.ListErrors(context.Background(), 1, 7, 1)
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if len(pg.Data) != PerPage {
		t.Fatalf("page 1 rows = %d, want %d", len(pg.Data), PerPage)
	}
	if !pg.HasNext || pg.HasPrev {
		t.Errorf("page 1 flags = next:%v prev:%v, want next:true prev:false", pg.HasNext, pg.HasPrev)
	}
	// Most recent first; the newest row was seeded last.
	if pg.Data[0].Message != "boom 29" {
		t.Errorf("page 1 first row = %q, want newest", pg.Data[0].Message)
	}

	pg, err = svc.ListErrors(context.Background(), 1, 7, 2)
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if len(pg.Data) != 5 {
		t.Fatalf("page 2 rows = %d, want 5", len(pg.Data))
	}
	if pg.HasNext || !pg.HasPrev {
		t.Errorf("page 2 flags = next:%v prev:%v, want next:false prev:true", pg.HasNext, pg.HasPrev)
	}
}

func TestListErrorsPageClamp(t *testing.T) {
	svc, repo := newTestService()
	seedErrors(t, repo, 7, 3)

	for _, page := range []int{0, -5, 1} {
		pg, err := svc.ListErrors(context.Background(), 1, 7, page)
		if err != nil {
			t.Fatalf("page %d: %v", page, err)
		}
		if pg.Page != 1 || len(pg.Data) != 3 {
			t.Errorf("page %d -> (page=%d, rows=%d), want page 1 with 3 rows", page, pg.Page, len(pg.Data))
		}
	}
}

func TestListErrorsExactPageBoundary(t *testing.T) {
	svc, repo := newTestService()
	seedErrors(t, repo, 7, PerPage)

	pg, err := svc.ListErrors(context.Background(), 1, 7, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(pg.Data) != PerPage || pg.HasNext {
		t.Errorf("exact boundary: rows=%d next=%v, want %d rows and no next page", len(pg.Data), pg.HasNext, PerPage)
	}
}

func TestListErrorsTieBreakByID(t *testing.T) {
	svc, repo := newTestService()
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if _, err := repo.Insert(context.Background(), &apperrors.Error{
			ApplicationID: 7, Class: "E", Message: "same instant",
			Status: apperrors.StatusOpen, CreatedAt: ts,
		}); err != nil {
			t.Fatal(err)
		}
	}

	pg, err := svc.ListErrors(context.Background(), 1, 7, 1)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(pg.Data); i++ {
		if pg.Data[i-1].ID < pg.Data[i].ID {
			t.Fatalf("ids not descending under created_at tie: %d before %d", pg.Data[i-1].ID, pg.Data[i].ID)
		}
	}
}

func TestListErrorsForeignApplication(t *testing.T) {
	svc, repo := newTestService()
	seedErrors(t, repo, 99, 2)

	if _, err := svc.ListErrors(context.Background(), 1, 99, 1); err != apps.ErrNotFound {
		t.Fatalf("listing a foreign application: err = %v, want apps.ErrNotFound", err)
	}
}

func TestGetErrorScoped(t *testing.T) {
	svc, repo := newTestService()
	ids := seedErrors(t, repo, 7, 1)

	if _, err := svc.GetError(context.Background(), 2, ids[0]); err != apperrors.ErrNotFound {
		t.Fatalf("foreign user read: err = %v, want apperrors.ErrNotFound", err)
	}

	// Idempotent view: two reads return identical data.
	a, err := svc.GetError(context.Background(), 1, ids[0])
	if err != nil {
		t.Fatal(err)
	}
	b, err := svc.GetError(context.Background(), 1, ids[0])
	if err != nil {
		t.Fatal(err)
	}
	if a.ID != b.ID || a.Message != b.Message || a.Notes != b.Notes || a.Status != b.Status {
		t.Errorf("repeated reads differ: %+v vs %+v", a, b)
	}
}

func TestUpdateErrorCloseAndGuard(t *testing.T) {
	svc, repo := newTestService()
	ids := seedErrors(t, repo, 7, 1)

	e, err := svc.UpdateError(context.Background(), 1, ids[0], true, "investigated")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if !e.Closed() || e.Notes != "investigated" {
		t.Fatalf("after close: status=%s notes=%q", e.Status, e.Notes)
	}

	// Any further mutation is rejected, notes edits included.
	if _, err := svc.UpdateError(context.Background(), 1, ids[0], false, "more"); err != apperrors.ErrClosed {
		t.Fatalf("update after close: err = %v, want apperrors.ErrClosed", err)
	}
	got, err := svc.GetError(context.Background(), 1, ids[0])
	if err != nil {
		t.Fatal(err)
	}
	if got.Notes != "investigated" {
		t.Errorf("notes changed after rejected update: %q", got.Notes)
	}
}

func TestUpdateErrorCloseFalseNeverReopens(t *testing.T) {
	svc, repo := newTestService()
	ids := seedErrors(t, repo, 7, 1)

	if _, err := svc.UpdateError(context.Background(), 1, ids[0], false, "still open"); err != nil {
		t.Fatal(err)
	}
	got, err := svc.GetError(context.Background(), 1, ids[0])
	if err != nil {
		t.Fatal(err)
	}
	if got.Closed() {
		t.Error("close=false closed the error")
	}
	if got.Notes != "still open" {
		t.Errorf("notes = %q, want overwritten value", got.Notes)
	}
}

func TestUpdateErrorNotesOverwritten(t *testing.T) {
	svc, repo := newTestService()
	ids := seedErrors(t, repo, 7, 1)

	for _, notes := range []string{"first", "second"} {
		if _, err := svc.UpdateError(context.Background(), 1, ids[0], false, notes); err != nil {
			t.Fatal(err)
		}
	}
	got, _ := svc.GetError(context.Background(), 1, ids[0])
	if got.Notes != "second" {
		t.Errorf("notes = %q, want full overwrite, not append", got.Notes)
	}
}

func TestSearchTenantIsolation(t *testing.T) {
	svc, repo := newTestService()
	seedErrors(t, repo, 7, 2)
	seedErrors(t, repo, 8, 1)
	seedErrors(t, repo, 99, 4) // other user's rows, same class/message

	pg, err := svc.Search(context.Background(), 1, SearchFilters{Term: "boom"}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(pg.Data) != 3 {
		t.Fatalf("search rows = %d, want 3 (only the caller's applications)", len(pg.Data))
	}
	for _, e := range pg.Data {
		if e.ApplicationID == 99 {
			t.Fatalf("search leaked a row from a foreign application: %+v", e)
		}
	}
}

func TestSearchFilters(t *testing.T) {
	svc, repo := newTestService()
	seedErrors(t, repo, 7, 2)
	if _, err := repo.Insert(context.Background(), &apperrors.Error{
		ApplicationID: 7, Class: "TimeoutError", Message: "slow upstream",
		Status: apperrors.StatusOpen, CreatedAt: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}

	pg, err := svc.Search(context.Background(), 1, SearchFilters{Term: "upstream", Class: "TimeoutError"}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(pg.Data) != 1 || pg.Data[0].Class != "TimeoutError" {
		t.Fatalf("filtered search returned %d rows", len(pg.Data))
	}

	closed := apperrors.StatusClosed
	pg, err = svc.Search(context.Background(), 1, SearchFilters{Term: "boom", Status: &closed}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(pg.Data) != 0 {
		t.Fatalf("status filter returned %d rows, want 0 closed", len(pg.Data))
	}
}
