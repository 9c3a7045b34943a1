package matching_test

import (
	"math"
	"strings"
	"testing"

	"github.com/creatorhub/copyscan/internal/matching"
	"github.com/creatorhub/copyscan/internal/models"
)

func TestHashScoreSelfAndSymmetry(t *testing.T) {
	hashes := []string{
		"0000000000000000",
		"1010101010101010",
		"1111000011110000",
		"0110100110010110",
	}
	for _, a := range hashes {
		if got := matching.HashScore(a, a); got != 1 {
			t.Fatalf("HashScore(%q, itself) = %v, want 1", a, got)
		}
		for _, b := range hashes {
			if ab, ba := matching.HashScore(a, b), matching.HashScore(b, a); ab != ba {
				t.Fatalf("HashScore not symmetric for %q/%q: %v vs %v", a, b, ab, ba)
			}
		}
	}
}

func TestHashScoreCountsMismatchedPositions(t *testing.T) {
	got := matching.HashScore("11110000", "11110011")
	if got != 0.75 {
		t.Fatalf("expected 0.75, got %v", got)
	}
	if got := matching.HashScore("1111", "0000"); got != 0 {
		t.Fatalf("expected fully different hashes to score 0, got %v", got)
	}
}

func TestHashScoreDifferentLengthIsZero(t *testing.T) {
	cases := [][2]string{
		{"1010", "10101"},
		{"", "1"},
		{"", ""},
		{"11111111", "1111"},
	}
	for _, tc := range cases {
		if got := matching.HashScore(tc[0], tc[1]); got != 0 {
			t.Fatalf("HashScore(%q, %q) = %v, want 0", tc[0], tc[1], got)
		}
	}
}

func TestTextScore(t *testing.T) {
	cases := []struct {
		name string
		a, b []string
		want float64
	}{
		{"both empty", nil, nil, 0},
		{"one empty", []string{"promo"}, nil, 0},
		{"identical", []string{"subscribe", "now"}, []string{"now", "subscribe"}, 1},
		{"half overlap", []string{"a", "b", "c"}, []string{"b", "c", "d"}, 0.5},
		{"duplicates ignored", []string{"a", "a", "b"}, []string{"a", "b"}, 1},
		{"disjoint", []string{"x"}, []string{"y"}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := matching.TextScore(tc.a, tc.b)
			if got != tc.want {
				t.Fatalf("TextScore = %v, want %v", got, tc.want)
			}
			if rev := matching.TextScore(tc.b, tc.a); rev != got {
				t.Fatalf("TextScore not symmetric: %v vs %v", got, rev)
			}
			if got < 0 || got > 1 {
				t.Fatalf("TextScore out of range: %v", got)
			}
		})
	}
}

func TestFaceScoreWithoutFacesIsZero(t *testing.T) {
	if got := matching.FaceScore(nil, nil); got != 0 {
		t.Fatalf("expected 0 for no faces, got %v", got)
	}
	orig := []models.FaceDetection{{Confidence: 0.9, Embedding: []float32{1, 0, 0}}}
	if got := matching.FaceScore(orig, nil); got != 0 {
		t.Fatalf("expected 0 when candidate has no faces, got %v", got)
	}
	if got := matching.FaceScore(nil, orig); got != 0 {
		t.Fatalf("expected 0 when original has no faces, got %v", got)
	}
}

func TestFaceScoreAveragesBestMatches(t *testing.T) {
	orig := []models.FaceDetection{
		{Confidence: 0.9, Embedding: []float32{1, 0}},
		{Confidence: 0.9, Embedding: []float32{0, 1}},
		{Confidence: 0.3}, // below the embedding floor, ignored
	}
	cand := []models.FaceDetection{
		{Confidence: 0.9, Embedding: []float32{1, 0}},
		{Confidence: 0.9, Embedding: []float32{-1, 0}},
	}
	// first face matches perfectly, second has no positive match.
	if got := matching.FaceScore(orig, cand); got != 0.5 {
		t.Fatalf("expected 0.5, got %v", got)
	}
}

func TestCosineSimilarityMismatchedDims(t *testing.T) {
	if got := matching.CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}); got != 0 {
		t.Fatalf("expected 0 for mismatched dims, got %v", got)
	}
	if got := matching.CosineSimilarity([]float32{0, 0}, []float32{1, 0}); got != 0 {
		t.Fatalf("expected 0 for zero vector, got %v", got)
	}
}

func TestMotionScore(t *testing.T) {
	cases := []struct {
		name string
		a, b models.MotionVector
		want float64
	}{
		{"both standing still", motion(0, 0), motion(0, 0), 1},
		{"identical", motion(90, 4), motion(90, 4), 1},
		{"opposite same magnitude", motion(0, 2), motion(180, 2), 0.5},
		{"wraps around 360", motion(350, 1), motion(10, 1), 1 - (20.0/180)/2},
		{"magnitude only", motion(0, 4), motion(0, 2), 0.75},
		{"small magnitudes floor at 1", motion(0, 0.5), motion(0, 0), 0.75},
		{"both undefined", models.MotionVector{}, models.MotionVector{}, 0},
		{"one undefined", motion(0, 0), models.MotionVector{}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := matching.MotionScore(tc.a, tc.b)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("MotionScore = %v, want %v", got, tc.want)
			}
		})
	}
}

func motion(direction, magnitude float64) models.MotionVector {
	return models.MotionVector{Direction: direction, Magnitude: magnitude, Defined: true}
}

func TestMissingSignalsContributeNothing(t *testing.T) {
	a := models.FrameSignals{KeyframeHash: strings.Repeat("0", 64)}
	b := models.FrameSignals{KeyframeHash: strings.Repeat("1", 64)}

	got := matching.Compare(a, b, matching.DefaultWeights())
	if got.KeyframeScore != 0 || got.OCRScore != 0 || got.FaceScore != 0 || got.MotionScore != 0 || got.OverallScore != 0 {
		t.Fatalf("unrelated frames without other signals = %+v, want all zero", got)
	}
}
