package matching

import (
	"errors"
	"fmt"
	"math"

	"github.com/creatorhub/copyscan/internal/models"
)

// ErrInvalidPolicy is returned for weights or thresholds that cannot be used.
var ErrInvalidPolicy = errors.New("invalid matching policy")

const weightEpsilon = 1e-6

// Weights is the linear fusion of the four comparator outputs. The weights
// must be non-negative and sum to 1.
type Weights struct {
	Hash   float64 `yaml:"hash" json:"hash"`
	Text   float64 `yaml:"text" json:"text"`
	Face   float64 `yaml:"face" json:"face"`
	Motion float64 `yaml:"motion" json:"motion"`
}

// DefaultWeights is the hand-picked 40/20/20/20 split. It is not calibrated
// against labeled data.
func DefaultWeights() Weights {
	return Weights{Hash: 0.4, Text: 0.2, Face: 0.2, Motion: 0.2}
}

func (w Weights) Sum() float64 {
	return w.Hash + w.Text + w.Face + w.Motion
}

func (w Weights) Get(s models.Signal) float64 {
	switch s {
	case models.SignalHash:
		return w.Hash
	case models.SignalText:
		return w.Text
	case models.SignalFace:
		return w.Face
	case models.SignalMotion:
		return w.Motion
	}
	return 0
}

func (w *Weights) set(s models.Signal, v float64) {
	switch s {
	case models.SignalHash:
		w.Hash = v
	case models.SignalText:
		w.Text = v
	case models.SignalFace:
		w.Face = v
	case models.SignalMotion:
		w.Motion = v
	}
}

func (w Weights) Validate() error {
	for _, s := range models.AllSignals {
		v := w.Get(s)
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("%w: %s weight %v is negative", ErrInvalidPolicy, s, v)
		}
	}
	if math.Abs(w.Sum()-1) > weightEpsilon {
		return fmt.Errorf("%w: weights sum to %v, want 1", ErrInvalidPolicy, w.Sum())
	}
	return nil
}

// WithWeight sets one signal's weight and rescales the others proportionally
// so the total stays 1. If the others are all zero they share the remainder
// equally.
func (w Weights) WithWeight(s models.Signal, v float64) (Weights, error) {
	if v < 0 || v > 1 || math.IsNaN(v) {
		return w, fmt.Errorf("%w: weight %v out of [0,1]", ErrInvalidPolicy, v)
	}
	others := w.Sum() - w.Get(s)
	remainder := 1 - v

	out := Weights{}
	for _, o := range models.AllSignals {
		if o == s {
			out.set(o, v)
			continue
		}
		if others > 0 {
			out.set(o, w.Get(o)/others*remainder)
		} else {
			out.set(o, remainder/float64(len(models.AllSignals)-1))
		}
	}
	return out, nil
}

// Fuse combines the four comparator scores into the overall score. The sum is
// divided by the weight total so rounding in the weights cannot push a perfect
// match below 1.
func (w Weights) Fuse(c models.SignalComparison) float64 {
	var total, weight float64
	for _, s := range models.AllSignals {
		total += w.Get(s) * c.Score(s)
		weight += w.Get(s)
	}
	if weight <= 0 {
		return 0
	}
	return clamp01(total / weight)
}
