package reports

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/claudiug/kaeruera/internal/domain/apperrors"
	"github.com/claudiug/kaeruera/internal/domain/apps"
)

type fakeAppRepo struct {
	app *apps.Application
}

func (r *fakeAppRepo) Authenticate(_ context.Context, token string, id int64) (*apps.Application, error) {
	if r.app == nil || r.app.Token != token || r.app.ID != id {
		return nil, apps.ErrAuthenticationFailed
	}
	return r.app, nil
}

func (r *fakeAppRepo) GetOwned(context.Context, int64, int64) (*apps.Application, error) {
	return nil, apps.ErrNotFound
}

func (r *fakeAppRepo) ListOwned(context.Context, int64) ([]*apps.Application, error) {
	return nil, nil
}

func (r *fakeAppRepo) Create(context.Context, int64, string, string) (*apps.Application, error) {
	return nil, nil
}

type fakeErrorRepo struct {
	seq      int64
	inserted []*apperrors.Error
}

func (r *fakeErrorRepo) Insert(_ context.Context, e *apperrors.Error) (int64, error) {
	r.seq++
	e.ID = r.seq
	r.inserted = append(r.inserted, e)
	return r.seq, nil
}

func (r *fakeErrorRepo) GetScoped(context.Context, int64, int64) (*apperrors.Error, error) {
	return nil, apperrors.ErrNotFound
}

func (r *fakeErrorRepo) Update(context.Context, *apperrors.Error, int64) error { return nil }

func (r *fakeErrorRepo) Window(context.Context, apperrors.Query) ([]*apperrors.Error, error) {
	return nil, nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newTestService() (*Service, *fakeErrorRepo) {
	repo := &fakeErrorRepo{}
	svc := &Service{
		Apps:   &fakeAppRepo{app: &apps.Application{ID: 7, UserID: 1, Name: "checkout", Token: "abc"}},
		Errors: repo,
		Clock:  fixedClock{t: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)},
	}
	return svc, repo
}

func TestReportStoresNormalizedRecord(t *testing.T) {
	svc, repo := newTestService()

	id, err := svc.Report(context.Background(), ReportCommand{
		Token: "abc",
		AppID: 7,
		Data: Payload{
			Class:     "RuntimeError",
			Message:   "boom",
			Backtrace: []string{"a.rb:1", "b.rb:2"},
		},
	})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if id != 1 {
		t.Errorf("error id = %d, want 1", id)
	}

	e := repo.inserted[0]
	if e.ApplicationID != 7 || e.Class != "RuntimeError" || e.Message != "boom" {
		t.Errorf("stored row = %+v", e)
	}
	if len(e.Backtrace) != 2 || e.Backtrace[0] != "a.rb:1" {
		t.Errorf("backtrace order not preserved: %v", e.Backtrace)
	}
	// Absent optional fields stay absent, not empty placeholders.
	if e.Params != nil || e.Session != nil || e.Env != nil {
		t.Errorf("optional fields should be nil: params=%v session=%v env=%v", e.Params, e.Session, e.Env)
	}
	if e.Status != apperrors.StatusOpen {
		t.Errorf("new error status = %s, want open", e.Status)
	}
	if !e.CreatedAt.Equal(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("created_at = %v, want ingestion time", e.CreatedAt)
	}
}

func TestReportPreservesNestedOptionalFields(t *testing.T) {
	svc, repo := newTestService()

	params := json.RawMessage(`{"order":{"id":12,"items":[1,2,3]}}`)
	_, err := svc.Report(context.Background(), ReportCommand{
		Token: "abc",
		AppID: 7,
		Data: Payload{
			Class:     "E",
			Message:   "m",
			Backtrace: []string{"x"},
			Params:    params,
			Env:       map[string]string{"RACK_ENV": "production"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	e := repo.inserted[0]
	if string(e.Params) != string(params) {
		t.Errorf("params not preserved verbatim: %s", e.Params)
	}
	if e.Session != nil {
		t.Errorf("absent session stored as %v", e.Session)
	}
	if e.Env["RACK_ENV"] != "production" {
		t.Errorf("env = %v", e.Env)
	}
}

func TestReportAuthFailureWritesNothing(t *testing.T) {
	svc, repo := newTestService()

	cases := []struct {
		name  string
		token string
		appID int64
	}{
		{"wrong token", "nope", 7},
		{"wrong id", "abc", 8},
		{"both wrong", "nope", 8},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			id, err := svc.Report(context.Background(), ReportCommand{
				Token: tc.token,
				AppID: tc.appID,
				Data:  Payload{Class: "E", Message: "m"},
			})
			if err != apps.ErrAuthenticationFailed {
				t.Fatalf("err = %v, want ErrAuthenticationFailed", err)
			}
			if id != 0 {
				t.Errorf("id = %d, want none", id)
			}
		})
	}
	if len(repo.inserted) != 0 {
		t.Fatalf("%d rows written on failed auth", len(repo.inserted))
	}
}

func TestReportIDsStrictlyIncrease(t *testing.T) {
	svc, _ := newTestService()

	var last int64
	for i := 0; i < 5; i++ {
		id, err := svc.Report(context.Background(), ReportCommand{
			Token: "abc", AppID: 7,
			Data: Payload{Class: "E", Message: "m"},
		})
		if err != nil {
			t.Fatal(err)
		}
		if id <= last {
			t.Fatalf("id %d not strictly increasing after %d", id, last)
		}
		last = id
	}
}
