package storage_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/creatorhub/copyscan/internal/config"
	"github.com/creatorhub/copyscan/internal/models"
	"github.com/creatorhub/copyscan/internal/scheduler"
	"github.com/creatorhub/copyscan/internal/storage"
)

// openStore connects to the database named by COPYSCAN_DB_* and applies
// migrations. Set COPYSCAN_TEST_DB=1 against a disposable database to run.
func openStore(t *testing.T) *storage.PostgresStore {
	t.Helper()
	if os.Getenv("COPYSCAN_TEST_DB") == "" {
		t.Skip("COPYSCAN_TEST_DB not set")
	}
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s, err := storage.NewPostgresStore(ctx, cfg.Database)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(s.Close)
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestMatchActionsAreAppendOnly(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	m := &models.CopyrightMatch{
		OriginalRef:     "test/" + uuid.NewString(),
		CandidateURL:    "https://youtu.be/x",
		Platform:        "youtube",
		SimilarityScore: 0.8,
		DataQuality:     models.DataQualityVerified,
		AlignedPairs:    5,
		Breakdown:       models.SignalComparison{KeyframeScore: 0.9, OverallScore: 0.8},
		Intervals:       []float64{1, 2},
	}
	if err := s.CreateMatch(ctx, m); err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}

	for _, st := range []models.ActionStatus{models.ActionStatusSent, models.ActionStatusIgnored, models.ActionStatusFailed} {
		a := &models.CopyrightAction{MatchID: m.ID, ActionType: models.ActionIgnored, Status: st}
		if st == models.ActionStatusSent {
			a.ActionType = models.ActionTakedown
			a.DocumentURL = "https://objects.test/notice.txt"
		}
		if err := s.CreateAction(ctx, a); err != nil {
			t.Fatalf("CreateAction: %v", err)
		}
	}

	got, err := s.GetMatch(ctx, m.ID)
	if err != nil || got == nil {
		t.Fatalf("GetMatch = %v, %v", got, err)
	}
	if len(got.Actions) != 3 || got.State() != "failed" {
		t.Fatalf("actions = %+v, state %s", got.Actions, got.State())
	}
	if got.Actions[2].DocumentURL == "" || got.Breakdown.KeyframeScore != 0.9 {
		t.Fatalf("round trip lost data: %+v", got)
	}

	list, total, err := s.ListMatches(ctx, m.OriginalRef, 10, 0)
	if err != nil || total != 1 || len(list) != 1 || list[0].State() != "failed" {
		t.Fatalf("ListMatches = %+v, %d, %v", list, total, err)
	}

	if missing, err := s.GetMatch(ctx, uuid.New()); missing != nil || err != nil {
		t.Fatalf("missing match = %v, %v", missing, err)
	}
}

func TestOriginalSignalCache(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	ref := "test/" + uuid.NewString()
	t.Cleanup(func() { _ = s.DeleteOriginalSignals(context.Background(), ref) })
	key := models.SignalCacheKey{OriginalRef: ref, Profile: "w320", Interval: 1}

	if _, ok, err := s.LoadOriginalSignals(ctx, key); ok || err != nil {
		t.Fatalf("empty cache: ok=%v err=%v", ok, err)
	}

	frames := []models.FrameSignals{
		{Timestamp: 0, KeyframeHash: "0101", OCRTokens: []string{"logo"}},
		{Timestamp: 1, KeyframeHash: "0110", Motion: models.MotionVector{Direction: 90, Magnitude: 2, Defined: true},
			Faces: []models.FaceDetection{{Confidence: 0.9, BBox: [4]float32{1, 2, 3, 4}, Embedding: []float32{0.6, 0.8}}}},
		{Timestamp: 2, KeyframeHash: "0110", Motion: models.MotionVector{Defined: true}},
	}
	if err := s.SaveOriginalSignals(ctx, key, frames); err != nil {
		t.Fatalf("SaveOriginalSignals: %v", err)
	}

	got, ok, err := s.LoadOriginalSignals(ctx, key)
	if err != nil || !ok || len(got) != 3 {
		t.Fatalf("LoadOriginalSignals = %+v, %v, %v", got, ok, err)
	}
	if got[0].Motion.Defined {
		t.Fatalf("first frame motion should stay undefined: %+v", got[0].Motion)
	}
	if got[1].Motion != frames[1].Motion || len(got[1].Faces) != 1 || len(got[1].Faces[0].Embedding) != 2 {
		t.Fatalf("frame 1 = %+v", got[1])
	}
	if !got[2].Motion.Defined {
		t.Fatalf("measured standstill lost its flag: %+v", got[2].Motion)
	}

	for _, other := range []models.SignalCacheKey{
		{OriginalRef: ref, Profile: "w320", Interval: 2},
		{OriginalRef: ref, Profile: "w640", Interval: 1},
	} {
		if _, ok, _ := s.LoadOriginalSignals(ctx, other); ok {
			t.Fatalf("%+v should not be cached", other)
		}
	}
}

func TestJobQueueLifecycle(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	job, err := s.Enqueue(ctx, "test", map[string]string{"k": "v"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// Drain until our job is claimed; earlier rows may exist in a shared test database.
	var claimed *scheduler.Job
	for i := 0; i < 100 && claimed == nil; i++ {
		j, err := s.DequeueOne(ctx)
		if err != nil {
			t.Fatalf("DequeueOne: %v", err)
		}
		if j == nil {
			break
		}
		if j.ID == job.ID {
			claimed = j
			continue
		}
		_ = s.Report(ctx, j.ID, scheduler.Failed(errors.New("drained by test")))
	}
	if claimed == nil || claimed.Attempts != 1 || claimed.Status != scheduler.StatusProcessing {
		t.Fatalf("claimed = %+v", claimed)
	}

	later := time.Now().Add(time.Hour)
	if err := s.Report(ctx, job.ID, scheduler.RetryAt(errors.New("rate limited"), later)); err != nil {
		t.Fatalf("Report retry: %v", err)
	}
	got, _ := s.GetJob(ctx, job.ID)
	if got.Status != scheduler.StatusPending || got.LastError != "rate limited" || got.RunAfter.Before(later.Add(-time.Second)) {
		t.Fatalf("after retry = %+v", got)
	}

	// Not processing any more: a second report must not apply.
	if err := s.Report(ctx, job.ID, scheduler.Completed(nil)); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("report on pending job = %v, want ErrNotFound", err)
	}
}

// claim enqueues a job and drains the queue until that job is processing.
func claim(t *testing.T, s *storage.PostgresStore) *scheduler.Job {
	t.Helper()
	ctx := context.Background()
	job, err := s.Enqueue(ctx, "test", map[string]string{})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	for i := 0; i < 100; i++ {
		j, err := s.DequeueOne(ctx)
		if err != nil {
			t.Fatalf("DequeueOne: %v", err)
		}
		if j == nil {
			break
		}
		if j.ID == job.ID {
			return j
		}
		_ = s.Report(ctx, j.ID, scheduler.Failed(errors.New("drained by test")))
	}
	t.Fatalf("job %s was not claimed", job.ID)
	return nil
}

func TestResetStuckRespectsWindowAndAttempts(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	running := claim(t, s)
	if _, err := s.ResetStuck(ctx, time.Hour, 5); err != nil {
		t.Fatalf("ResetStuck: %v", err)
	}
	if got, _ := s.GetJob(ctx, running.ID); got.Status != scheduler.StatusProcessing {
		t.Fatalf("recently claimed job was reset: %+v", got)
	}

	// A negative window treats every processing job as abandoned.
	if _, err := s.ResetStuck(ctx, -time.Minute, 5); err != nil {
		t.Fatalf("ResetStuck: %v", err)
	}
	got, _ := s.GetJob(ctx, running.ID)
	if got.Status != scheduler.StatusPending || got.Attempts != 1 || got.LastError == "" {
		t.Fatalf("abandoned job with attempts left = %+v", got)
	}
	_ = s.Report(ctx, running.ID, scheduler.Failed(errors.New("cleanup")))

	exhausted := claim(t, s)
	if _, err := s.ResetStuck(ctx, -time.Minute, 1); err != nil {
		t.Fatalf("ResetStuck: %v", err)
	}
	got, _ = s.GetJob(ctx, exhausted.ID)
	if got.Status != scheduler.StatusFailed || got.Attempts != 1 {
		t.Fatalf("abandoned job without attempts left = %+v", got)
	}
}

func TestReleasedJobKeepsAttemptBudget(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	job := claim(t, s)
	if err := s.Report(ctx, job.ID, scheduler.Released(context.Canceled)); err != nil {
		t.Fatalf("Report released: %v", err)
	}
	got, _ := s.GetJob(ctx, job.ID)
	if got.Status != scheduler.StatusPending || got.Attempts != 0 {
		t.Fatalf("released job = %+v", got)
	}
}
