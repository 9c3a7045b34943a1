// Package scan compares one original against one candidate and records the
// resulting CopyrightMatch.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/creatorhub/copyscan/internal/ingest"
	"github.com/creatorhub/copyscan/internal/matching"
	"github.com/creatorhub/copyscan/internal/models"
	"github.com/creatorhub/copyscan/internal/observability"
	"github.com/creatorhub/copyscan/internal/vision"
)

// ErrUnavailable is matched by every UnavailableError.
var ErrUnavailable = errors.New("scan target unavailable")

const (
	SideOriginal  = "original"
	SideCandidate = "candidate"
)

// UnavailableError reports which side of a scan could not be fetched or
// decoded. No match is recorded for such a scan.
type UnavailableError struct {
	Side string
	Err  error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Side, e.Err)
}

func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }
func (e *UnavailableError) Unwrap() error        { return e.Err }

type Sampler interface {
	Sample(ctx context.Context, media []byte, intervals []float64) ([]ingest.Sequence, error)
}

type Extractor interface {
	ExtractSequence(ctx context.Context, samples []models.FrameSample) ([]models.FrameSignals, error)
}

type MatchStore interface {
	CreateMatch(ctx context.Context, m *models.CopyrightMatch) error
}

// SignalCache stores extracted original signals per sampling interval and
// settings profile.
type SignalCache interface {
	LoadOriginalSignals(ctx context.Context, key models.SignalCacheKey) ([]models.FrameSignals, bool, error)
	SaveOriginalSignals(ctx context.Context, key models.SignalCacheKey, frames []models.FrameSignals) error
}

type ObjectStore interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
}

type Publisher interface {
	Publish(ctx context.Context, ev models.Event) error
}

// Deps are the engine's collaborators. Cache, Thumbnails and Events are
// optional. CacheProfile describes the sampler and extractor settings and is
// part of every cache key.
type Deps struct {
	Fetcher      ingest.Fetcher
	Sampler      Sampler
	Extractor    Extractor
	Matches      MatchStore
	Cache        SignalCache
	CacheProfile string
	Thumbnails   ObjectStore
	Events       Publisher
}

type Engine struct {
	deps      Deps
	policy    matching.Policy
	intervals []float64
}

// NewEngine validates the policy; intervals is the default sampling set for
// requests that carry none.
func NewEngine(deps Deps, policy matching.Policy, intervals []float64) (*Engine, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if len(intervals) == 0 {
		return nil, fmt.Errorf("scan engine: no default sampling intervals")
	}
	return &Engine{deps: deps, policy: policy, intervals: intervals}, nil
}

// prepared is one side of a scan, sampled and extracted per interval.
type prepared struct {
	signals [][]models.FrameSignals
	samples [][]models.FrameSample // nil for cached intervals
}

func (p prepared) frameCount() int {
	n := 0
	for _, s := range p.signals {
		n += len(s)
	}
	return n
}

// Scan fetches and compares both sides and persists the match. If either side
// is unavailable it returns an error matching ErrUnavailable and records
// nothing.
func (e *Engine) Scan(ctx context.Context, req models.ScanRequest) (*models.CopyrightMatch, error) {
	intervals := req.Intervals
	if len(intervals) == 0 {
		intervals = e.intervals
	}
	start := time.Now()

	var orig, cand prepared
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		orig, err = e.prepareOriginal(gctx, req.OriginalRef, intervals)
		return err
	})
	g.Go(func() error {
		var err error
		cand, err = e.prepare(gctx, SideCandidate, req.CandidateURL, intervals)
		return err
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, ErrUnavailable) {
			observability.ScansCompleted.WithLabelValues("unavailable").Inc()
		}
		return nil, err
	}

	pairs := make([]matching.SequencePair, len(intervals))
	for i, iv := range intervals {
		pairs[i] = matching.SequencePair{Interval: iv, Original: orig.signals[i], Candidate: cand.signals[i]}
	}
	a := e.policy.Evaluate(pairs...)

	m := &models.CopyrightMatch{
		ID:              uuid.New(),
		OriginalRef:     req.OriginalRef,
		CandidateURL:    req.CandidateURL,
		Platform:        string(ingest.DetectPlatform(req.CandidateURL)),
		SimilarityScore: a.SimilarityScore,
		DataQuality:     a.DataQuality,
		AlignedPairs:    a.AlignedPairs,
		OriginalFrames:  orig.frameCount(),
		CandidateFrames: cand.frameCount(),
		Breakdown:       a.Breakdown,
		Intervals:       intervals,
	}
	if err := e.deps.Matches.CreateMatch(ctx, m); err != nil {
		return nil, fmt.Errorf("store match: %w", err)
	}

	observability.ScansCompleted.WithLabelValues(string(m.DataQuality)).Inc()
	observability.SimilarityScores.Observe(m.SimilarityScore)
	slog.Info("scan completed",
		"match_id", m.ID,
		"original", m.OriginalRef,
		"candidate", m.CandidateURL,
		"score", m.SimilarityScore,
		"quality", m.DataQuality,
		"pairs", m.AlignedPairs,
		"took", time.Since(start).Round(time.Millisecond),
	)

	e.storeThumbnails(ctx, m.ID, cand)
	if e.deps.Events != nil {
		ev := models.Event{Type: models.EventMatchCreated, MatchID: m.ID, OriginalRef: m.OriginalRef, Match: m, At: time.Now().UTC()}
		if err := e.deps.Events.Publish(ctx, ev); err != nil {
			slog.Warn("publish match event", "match_id", m.ID, "error", err)
		}
	}
	return m, nil
}

// prepareOriginal serves cached intervals from the cache and samples the rest.
// A fully cached original is still checked for availability, so a deleted
// original stops producing matches.
func (e *Engine) prepareOriginal(ctx context.Context, ref string, intervals []float64) (prepared, error) {
	if e.deps.Cache == nil {
		return e.prepare(ctx, SideOriginal, ref, intervals)
	}

	out := prepared{signals: make([][]models.FrameSignals, len(intervals)), samples: make([][]models.FrameSample, len(intervals))}
	var missing []float64
	var missingIdx []int
	for i, iv := range intervals {
		cached, ok, err := e.deps.Cache.LoadOriginalSignals(ctx, e.cacheKey(ref, iv))
		if err != nil {
			slog.Warn("load cached original signals", "original", ref, "interval", iv, "error", err)
		}
		if ok {
			out.signals[i] = cached
			continue
		}
		missing = append(missing, iv)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		if err := ingest.Check(ctx, e.deps.Fetcher, ref); err != nil {
			return prepared{}, sideError(SideOriginal, err)
		}
		return out, nil
	}

	fresh, err := e.prepare(ctx, SideOriginal, ref, missing)
	if err != nil {
		return prepared{}, err
	}
	for j, i := range missingIdx {
		out.signals[i] = fresh.signals[j]
		out.samples[i] = fresh.samples[j]
		if err := e.deps.Cache.SaveOriginalSignals(ctx, e.cacheKey(ref, missing[j]), fresh.signals[j]); err != nil {
			slog.Warn("cache original signals", "original", ref, "interval", missing[j], "error", err)
		}
	}
	return out, nil
}

func (e *Engine) cacheKey(ref string, interval float64) models.SignalCacheKey {
	return models.SignalCacheKey{OriginalRef: ref, Profile: e.deps.CacheProfile, Interval: interval}
}

func (e *Engine) prepare(ctx context.Context, side, ref string, intervals []float64) (prepared, error) {
	media, err := e.deps.Fetcher.Fetch(ctx, ref)
	if err != nil {
		return prepared{}, sideError(side, err)
	}
	seqs, err := e.deps.Sampler.Sample(ctx, media, intervals)
	if err != nil {
		return prepared{}, sideError(side, err)
	}

	out := prepared{signals: make([][]models.FrameSignals, len(seqs)), samples: make([][]models.FrameSample, len(seqs))}
	for i, seq := range seqs {
		observability.FramesSampled.WithLabelValues(side).Add(float64(len(seq.Samples)))
		sig, err := e.deps.Extractor.ExtractSequence(ctx, seq.Samples)
		if err != nil {
			return prepared{}, fmt.Errorf("extract %s signals at %vs: %w", side, seq.Interval, err)
		}
		out.signals[i] = sig
		out.samples[i] = seq.Samples
	}
	return out, nil
}

func sideError(side string, err error) error {
	if errors.Is(err, ingest.ErrUnavailable) {
		return &UnavailableError{Side: side, Err: err}
	}
	return fmt.Errorf("%s: %w", side, err)
}

// storeThumbnails uploads the candidate frames of the first interval under
// audit/<match_id>/<timestamp>.jpg. Failures are logged only.
func (e *Engine) storeThumbnails(ctx context.Context, matchID uuid.UUID, cand prepared) {
	if e.deps.Thumbnails == nil || len(cand.samples) == 0 {
		return
	}
	for _, s := range cand.samples[0] {
		if s.Thumbnail == nil {
			continue
		}
		data, err := vision.EncodeThumbnail(s.Thumbnail)
		if err != nil {
			slog.Warn("encode thumbnail", "match_id", matchID, "error", err)
			continue
		}
		if err := e.deps.Thumbnails.PutObject(ctx, AuditKey(matchID, s.Timestamp), data, "image/jpeg"); err != nil {
			slog.Warn("store thumbnail", "match_id", matchID, "error", err)
			return
		}
	}
}

// AuditKey is the object key of a candidate thumbnail kept for review.
func AuditKey(matchID uuid.UUID, timestamp float64) string {
	return fmt.Sprintf("%s%.2f.jpg", AuditPrefix(matchID), timestamp)
}

func AuditPrefix(matchID uuid.UUID) string {
	return fmt.Sprintf("audit/%s/", matchID)
}
