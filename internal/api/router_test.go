package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/creatorhub/copyscan/internal/api"
	"github.com/creatorhub/copyscan/internal/api/handlers"
	"github.com/creatorhub/copyscan/internal/enforcement"
	"github.com/creatorhub/copyscan/internal/models"
	"github.com/creatorhub/copyscan/internal/scan"
	"github.com/creatorhub/copyscan/internal/scheduler"
	"github.com/creatorhub/copyscan/pkg/dto"
)

type fakeJobs struct {
	jobs map[uuid.UUID]*scheduler.Job
}

func (f *fakeJobs) Enqueue(_ context.Context, kind string, payload any) (*scheduler.Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	job := &scheduler.Job{ID: uuid.New(), Kind: kind, Payload: raw, Status: scheduler.StatusPending, RunAfter: now, CreatedAt: now, UpdatedAt: now}
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeJobs) GetJob(_ context.Context, id uuid.UUID) (*scheduler.Job, error) {
	return f.jobs[id], nil
}

type fakeMatches struct {
	matches map[uuid.UUID]*models.CopyrightMatch
}

func (f *fakeMatches) GetMatch(_ context.Context, id uuid.UUID) (*models.CopyrightMatch, error) {
	return f.matches[id], nil
}

func (f *fakeMatches) ListMatches(_ context.Context, originalRef string, limit, offset int) ([]models.CopyrightMatch, int, error) {
	var out []models.CopyrightMatch
	for _, m := range f.matches {
		if originalRef == "" || m.OriginalRef == originalRef {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CandidateURL < out[j].CandidateURL })
	return out, len(out), nil
}

type fakeAudit struct{ keys []string }

func (f *fakeAudit) ListObjects(_ context.Context, _ string) ([]string, error) { return f.keys, nil }
func (f *fakeAudit) PresignedURL(_ context.Context, key string) (string, error) {
	return "https://objects.test/" + key, nil
}

type fakeActions struct{ matches *fakeMatches }

func (f *fakeActions) Apply(_ context.Context, id uuid.UUID, actionType string) (*models.CopyrightAction, error) {
	at, ok := models.ParseActionType(actionType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", enforcement.ErrInvalidActionType, actionType)
	}
	m := f.matches.matches[id]
	if m == nil {
		return nil, enforcement.ErrMatchNotFound
	}
	a := models.CopyrightAction{ID: uuid.New(), MatchID: id, ActionType: at, Status: models.ActionStatusSent, CreatedAt: time.Now()}
	m.Actions = append([]models.CopyrightAction{a}, m.Actions...)
	return &a, nil
}

type fixture struct {
	jobs    *fakeJobs
	matches *fakeMatches
	handler http.Handler
}

func newFixture(t *testing.T, checks map[string]handlers.Check) *fixture {
	t.Helper()
	f := &fixture{
		jobs:    &fakeJobs{jobs: make(map[uuid.UUID]*scheduler.Job)},
		matches: &fakeMatches{matches: make(map[uuid.UUID]*models.CopyrightMatch)},
	}
	f.handler = api.NewRouter(api.RouterConfig{
		APIKey:  "key",
		Jobs:    f.jobs,
		Matches: f.matches,
		Audit:   &fakeAudit{keys: []string{"audit/x/0.00.jpg", "audit/x/1.00.jpg"}},
		Actions: &fakeActions{matches: f.matches},
		Checks:  checks,
	})
	return f
}

func (f *fixture) addMatch(originalRef, candidate string) *models.CopyrightMatch {
	m := &models.CopyrightMatch{
		ID:              uuid.New(),
		OriginalRef:     originalRef,
		CandidateURL:    candidate,
		Platform:        "youtube",
		SimilarityScore: 0.91,
		DataQuality:     models.DataQualityVerified,
		AlignedPairs:    12,
		CreatedAt:       time.Now(),
	}
	f.matches.matches[m.ID] = m
	return m
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", "key")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return v
}

func TestCreateScan(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/v1/scans", dto.CreateScanRequest{
		OriginalRef:  "s3://originals/a.mp4",
		CandidateURL: "https://www.tiktok.com/@u/video/1",
		Intervals:    []float64{1, 5},
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	resp := decode[dto.ScanResponse](t, rec)
	job := f.jobs.jobs[resp.ID]
	if job == nil || job.Kind != scan.JobKind {
		t.Fatalf("job not queued: %+v", job)
	}
	var req models.ScanRequest
	if err := json.Unmarshal(job.Payload, &req); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if req.CandidateURL != "https://www.tiktok.com/@u/video/1" || len(req.Intervals) != 2 {
		t.Fatalf("payload = %+v", req)
	}
}

func TestCreateScanRejectsBadInput(t *testing.T) {
	f := newFixture(t, nil)
	bodies := []any{
		map[string]any{"candidate_url": "https://x.com/v"},
		dto.CreateScanRequest{OriginalRef: "a", CandidateURL: "ftp://host/file"},
		dto.CreateScanRequest{OriginalRef: "a", CandidateURL: "https://x.com/v", Intervals: []float64{0}},
	}
	for i, b := range bodies {
		if rec := f.do(t, http.MethodPost, "/v1/scans", b); rec.Code != http.StatusBadRequest {
			t.Errorf("body %d: status = %d, want 400", i, rec.Code)
		}
	}
	if len(f.jobs.jobs) != 0 {
		t.Fatalf("queued %d jobs for invalid input", len(f.jobs.jobs))
	}
}

func TestGetScanIncludesMatch(t *testing.T) {
	f := newFixture(t, nil)
	m := f.addMatch("orig", "https://youtu.be/x")

	job, _ := f.jobs.Enqueue(context.Background(), scan.JobKind, models.ScanRequest{OriginalRef: "orig", CandidateURL: "https://youtu.be/x"})
	job.Status = scheduler.StatusCompleted
	job.Result, _ = json.Marshal(models.ScanResult{Status: models.ScanStatusMatched, MatchID: &m.ID})

	rec := f.do(t, http.MethodGet, "/v1/scans/"+job.ID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode[dto.ScanResponse](t, rec)
	if resp.Status != "completed" || resp.Outcome != "matched" || resp.Match == nil || resp.Match.ID != m.ID {
		t.Fatalf("response = %+v", resp)
	}

	if rec := f.do(t, http.MethodGet, "/v1/scans/"+uuid.NewString(), nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown scan status = %d, want 404", rec.Code)
	}
}

func TestGetMatch(t *testing.T) {
	f := newFixture(t, nil)
	m := f.addMatch("orig", "https://youtu.be/x")

	rec := f.do(t, http.MethodGet, "/v1/matches/"+m.ID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode[dto.MatchResponse](t, rec)
	if resp.State != models.MatchStateUnactioned || resp.DataQuality != "verified" {
		t.Fatalf("response = %+v", resp)
	}
	if len(resp.AuditFrames) != 2 {
		t.Fatalf("audit frames = %v", resp.AuditFrames)
	}

	tests := []struct {
		path string
		want int
	}{
		{"/v1/matches/" + uuid.NewString(), http.StatusNotFound},
		{"/v1/matches/not-a-uuid", http.StatusBadRequest},
	}
	for _, tt := range tests {
		if rec := f.do(t, http.MethodGet, tt.path, nil); rec.Code != tt.want {
			t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.want)
		}
	}
}

func TestListMatchesByOriginal(t *testing.T) {
	f := newFixture(t, nil)
	f.addMatch("a", "https://youtu.be/1")
	f.addMatch("a", "https://youtu.be/2")
	f.addMatch("b", "https://youtu.be/3")

	rec := f.do(t, http.MethodGet, "/v1/matches?original_ref=a", nil)
	resp := decode[dto.MatchListResponse](t, rec)
	if resp.Total != 2 || len(resp.Matches) != 2 {
		t.Fatalf("response = %+v", resp)
	}
}

func TestCreateAction(t *testing.T) {
	f := newFixture(t, nil)
	m := f.addMatch("orig", "https://youtu.be/x")

	tests := []struct {
		name   string
		id     string
		action string
		want   int
	}{
		{"takedown", m.ID.String(), "takedown", http.StatusCreated},
		{"invalid type", m.ID.String(), "delete", http.StatusUnprocessableEntity},
		{"unknown match", uuid.NewString(), "ignored", http.StatusNotFound},
		{"missing type", m.ID.String(), "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/v1/matches/"+tt.id+"/actions", dto.CreateActionRequest{ActionType: tt.action})
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}

	resp := decode[dto.MatchResponse](t, f.do(t, http.MethodGet, "/v1/matches/"+m.ID.String(), nil))
	if resp.State != "sent" || len(resp.Actions) != 1 {
		t.Fatalf("match after actions = %+v", resp)
	}
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/matches", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestReadiness(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name   string
		checks map[string]handlers.Check
		want   int
	}{
		{"all up", map[string]handlers.Check{"postgres": ok, "nats": ok}, http.StatusOK},
		{"one down", map[string]handlers.Check{"postgres": ok, "nats": down}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.checks)
			if rec := f.do(t, http.MethodGet, "/readyz", nil); rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}

	f := newFixture(t, nil)
	if rec := f.do(t, http.MethodGet, "/healthz", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
}
