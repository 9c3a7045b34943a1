package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/creatorhub/copyscan/internal/models"
	"github.com/creatorhub/copyscan/internal/vision"
)

// ErrUnavailable marks media that cannot be fetched or decoded. It is a
// terminal outcome for a scan, not a retryable failure.
var ErrUnavailable = errors.New("media unavailable")

// DefaultHorizon is how many seconds of media are sampled.
const DefaultHorizon = 60.0

// Sequence is the frames sampled at one interval.
type Sequence struct {
	Interval float64
	Samples  []models.FrameSample
}

// Sampler turns raw media bytes into timestamped, hashed frames.
type Sampler struct {
	decoder Decoder
	hasher  vision.Hasher
	horizon float64
}

func NewSampler(decoder Decoder, hasher vision.Hasher, horizon float64) *Sampler {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	return &Sampler{decoder: decoder, hasher: hasher, horizon: horizon}
}

// Sample decodes media once per interval. Frames are taken at t = k*interval
// for every t below min(horizon, duration). A still image yields a single
// frame at t=0 for each interval.
func (s *Sampler) Sample(ctx context.Context, media []byte, intervals []float64) ([]Sequence, error) {
	if len(media) == 0 {
		return nil, fmt.Errorf("%w: empty media", ErrUnavailable)
	}
	for _, iv := range intervals {
		if iv <= 0 || math.IsNaN(iv) {
			return nil, fmt.Errorf("invalid sampling interval %v", iv)
		}
	}

	f, err := os.CreateTemp("", "copyscan-media-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(media); err != nil {
		f.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close temp file: %w", err)
	}

	duration, err := s.decoder.Probe(ctx, f.Name())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	out := make([]Sequence, 0, len(intervals))
	for _, iv := range intervals {
		seq, err := s.sampleInterval(ctx, f.Name(), duration, iv)
		if err != nil {
			return nil, err
		}
		out = append(out, seq)
	}
	return out, nil
}

func (s *Sampler) sampleInterval(ctx context.Context, path string, duration, interval float64) (Sequence, error) {
	bound := math.Min(s.horizon, duration)
	want := 1
	limit := 0.0
	if bound > 0 {
		want = int(math.Ceil(bound / interval))
		limit = bound
	}

	frames, err := s.decoder.Frames(ctx, path, interval, limit)
	if err != nil {
		if ctx.Err() != nil {
			return Sequence{}, ctx.Err()
		}
		return Sequence{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(frames) == 0 {
		return Sequence{}, fmt.Errorf("%w: no frames decoded at interval %vs", ErrUnavailable, interval)
	}
	if len(frames) > want {
		frames = frames[:want]
	}

	seq := Sequence{Interval: interval, Samples: make([]models.FrameSample, len(frames))}
	for k, img := range frames {
		hash, err := s.hasher.Hash(img)
		if err != nil {
			slog.Warn("hash frame", "timestamp", float64(k)*interval, "error", err)
		}
		seq.Samples[k] = models.FrameSample{
			Timestamp: float64(k) * interval,
			FrameHash: hash,
			Thumbnail: img,
		}
	}
	return seq, nil
}
