package models

import "image"

// Signal names one of the extracted signal types.
type Signal string

const (
	SignalHash   Signal = "hash"
	SignalText   Signal = "text"
	SignalFace   Signal = "face"
	SignalMotion Signal = "motion"
)

// AllSignals lists every signal type in fusion order.
var AllSignals = []Signal{SignalHash, SignalText, SignalFace, SignalMotion}

// FrameSample is one sampled instant of a media source.
type FrameSample struct {
	Timestamp float64     `json:"timestamp"` // seconds from start
	FrameHash string      `json:"frame_hash"`
	Thumbnail image.Image `json:"-"`
}

// FaceDetection is one detected face. Embedding is only set when the
// detection confidence cleared the embedder's floor.
type FaceDetection struct {
	Confidence float32    `json:"confidence"`
	BBox       [4]float32 `json:"bbox"` // x1, y1, x2, y2
	Embedding  []float32  `json:"embedding,omitempty"`
}

// MotionVector is movement relative to the previous sampled frame.
// The zero value is the empty signal: the first frame has no predecessor and
// a failed estimate is dropped. A measured standstill has Defined set.
type MotionVector struct {
	Direction float64 `json:"direction"` // degrees in [0,360)
	Magnitude float64 `json:"magnitude"`
	Defined   bool    `json:"defined"`
}

// SignalCacheKey identifies the cached signals of one original at one
// sampling interval. Profile names the sampling and extraction settings the
// signals were produced with, so a settings change misses the cache.
type SignalCacheKey struct {
	OriginalRef string
	Profile     string
	Interval    float64
}

// FrameSignals is the extracted-signal bundle for one FrameSample.
type FrameSignals struct {
	Timestamp    float64         `json:"timestamp"`
	KeyframeHash string          `json:"keyframe_hash"`
	OCRTokens    []string        `json:"ocr_tokens"` // sorted, unique, case-folded
	Faces        []FaceDetection `json:"faces"`
	Motion       MotionVector    `json:"motion"`
}

// SignalComparison is the per-signal similarity between two FrameSignals.
type SignalComparison struct {
	KeyframeScore float64 `json:"keyframe_score"`
	OCRScore      float64 `json:"ocr_score"`
	FaceScore     float64 `json:"face_score"`
	MotionScore   float64 `json:"motion_score"`
	OverallScore  float64 `json:"overall_score"`
}

// Score returns the comparator output for one signal type.
func (c SignalComparison) Score(s Signal) float64 {
	switch s {
	case SignalHash:
		return c.KeyframeScore
	case SignalText:
		return c.OCRScore
	case SignalFace:
		return c.FaceScore
	case SignalMotion:
		return c.MotionScore
	}
	return 0
}
