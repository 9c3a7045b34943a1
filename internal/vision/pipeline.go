package vision

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/creatorhub/copyscan/internal/models"
	"github.com/creatorhub/copyscan/internal/observability"
)

// Extractor turns sampled frames into FrameSignals.
//
// A failing extractor degrades to that signal's empty value and the frame
// still counts. Rate limiting and cancellation are the exceptions: both abort
// the whole sequence so the caller can retry later.
type Extractor struct {
	hasher  Hasher
	text    TextRecognizer
	faces   FaceDetector
	motion  MotionEstimator
	workers int
	timeout time.Duration
}

type ExtractorConfig struct {
	Workers       int           // frames processed concurrently
	SignalTimeout time.Duration // per frame, per signal; zero disables
}

func NewExtractor(h Hasher, t TextRecognizer, f FaceDetector, m MotionEstimator, cfg ExtractorConfig) *Extractor {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Extractor{
		hasher:  h,
		text:    t,
		faces:   f,
		motion:  m,
		workers: cfg.Workers,
		timeout: cfg.SignalTimeout,
	}
}

// ExtractSequence extracts every sample. The result is index-aligned with
// samples; motion for sample i is measured against sample i-1.
func (e *Extractor) ExtractSequence(ctx context.Context, samples []models.FrameSample) ([]models.FrameSignals, error) {
	out := make([]models.FrameSignals, len(samples))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := range samples {
		g.Go(func() error {
			sig, err := e.extractFrame(gctx, samples, i)
			if err != nil {
				return err
			}
			out[i] = sig
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Extractor) extractFrame(ctx context.Context, samples []models.FrameSample, i int) (models.FrameSignals, error) {
	s := samples[i]
	sig := models.FrameSignals{Timestamp: s.Timestamp, KeyframeHash: s.FrameHash}

	if s.Thumbnail == nil {
		return sig, nil
	}

	g, gctx := errgroup.WithContext(ctx)

	if sig.KeyframeHash == "" {
		g.Go(func() error {
			h, err := e.hasher.Hash(s.Thumbnail)
			if err != nil {
				return degrade(ctx, models.SignalHash, s.Timestamp, err)
			}
			sig.KeyframeHash = h
			return nil
		})
	}

	g.Go(func() error {
		sctx, cancel := e.signalContext(gctx)
		defer cancel()
		start := time.Now()
		tokens, err := e.text.Recognize(sctx, s.Thumbnail)
		if err != nil {
			return degrade(gctx, models.SignalText, s.Timestamp, err)
		}
		observability.InferenceDuration.WithLabelValues("ocr").Observe(time.Since(start).Seconds())
		sig.OCRTokens = tokens
		return nil
	})

	g.Go(func() error {
		sctx, cancel := e.signalContext(gctx)
		defer cancel()
		faces, err := e.faces.DetectFaces(sctx, s.Thumbnail)
		if err != nil {
			return degrade(gctx, models.SignalFace, s.Timestamp, err)
		}
		sig.Faces = faces
		return nil
	})

	if i > 0 {
		g.Go(func() error {
			mv, err := e.motion.Estimate(samples[i-1].Thumbnail, s.Thumbnail)
			if err != nil {
				return degrade(gctx, models.SignalMotion, s.Timestamp, err)
			}
			sig.Motion = mv
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return models.FrameSignals{}, err
	}
	return sig, nil
}

func (e *Extractor) signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.timeout)
}

// degrade decides whether an extraction error aborts the sequence. ctx is the
// frame's context, not the per-signal one, so a signal timeout degrades.
func degrade(ctx context.Context, signal models.Signal, ts float64, err error) error {
	if errors.Is(err, models.ErrRateLimited) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	observability.SignalFailures.WithLabelValues(string(signal)).Inc()
	slog.Warn("signal extraction failed", "signal", signal, "timestamp", ts, "error", err)
	return nil
}
