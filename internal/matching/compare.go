// Package matching holds the pure comparison side of the copyright engine:
// per-signal comparators, frame alignment, fusion and match classification.
// Nothing here touches media; inputs are already-extracted FrameSignals.
package matching

import (
	"math"

	"github.com/creatorhub/copyscan/internal/models"
)

// HashScore is the normalized Hamming similarity of two equal-length hash
// strings. Hashes of different (or zero) length are incomparable and score 0.
func HashScore(a, b string) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	mismatched := 0
	for i := 0; i < len(a); i++ {
		if a[i] != b[i] {
			mismatched++
		}
	}
	return 1 - float64(mismatched)/float64(len(a))
}

// TextScore is the Jaccard similarity of two token sets. Two empty sets give 0.
func TextScore(a, b []string) float64 {
	setA := make(map[string]struct{}, len(a))
	for _, t := range a {
		setA[t] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, t := range b {
		setB[t] = struct{}{}
	}

	intersection := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// FaceScore matches every embedded original face to its most similar embedded
// candidate face and averages those best similarities. Faces without an
// embedding carry no identity evidence and are skipped; if no original face
// has one the score is 0.
func FaceScore(original, candidate []models.FaceDetection) float64 {
	var sum float64
	counted := 0
	for _, of := range original {
		if len(of.Embedding) == 0 {
			continue
		}
		counted++
		best := 0.0
		for _, cf := range candidate {
			if len(cf.Embedding) == 0 {
				continue
			}
			if s := CosineSimilarity(of.Embedding, cf.Embedding); s > best {
				best = s
			}
		}
		sum += best
	}
	if counted == 0 {
		return 0
	}
	return clamp01(sum / float64(counted))
}

// MotionScore combines the normalized angular and magnitude differences of
// two motion vectors: 1 - mean(|Δdir|/180, |Δmag|/max(mag, 1)). Undefined
// motion on either side scores 0.
func MotionScore(a, b models.MotionVector) float64 {
	if !a.Defined || !b.Defined {
		return 0
	}
	d := math.Abs(normalizeDegrees(a.Direction) - normalizeDegrees(b.Direction))
	if d > 180 {
		d = 360 - d
	}
	angular := d / 180

	magA := math.Max(a.Magnitude, 0)
	magB := math.Max(b.Magnitude, 0)
	magnitude := math.Abs(magA-magB) / math.Max(math.Max(magA, magB), 1)

	return clamp01(1 - (angular+magnitude)/2)
}

// CosineSimilarity of two vectors; mismatched or empty vectors give 0 and
// negative similarity is reported as 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return clamp01(dot / math.Sqrt(na*nb))
}

// Compare runs every comparator over one frame pair and fuses the result.
func Compare(original, candidate models.FrameSignals, w Weights) models.SignalComparison {
	c := models.SignalComparison{
		KeyframeScore: HashScore(original.KeyframeHash, candidate.KeyframeHash),
		OCRScore:      TextScore(original.OCRTokens, candidate.OCRTokens),
		FaceScore:     FaceScore(original.Faces, candidate.Faces),
		MotionScore:   MotionScore(original.Motion, candidate.Motion),
	}
	c.OverallScore = w.Fuse(c)
	return c
}

func normalizeDegrees(d float64) float64 {
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return 0
	}
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	return d
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
