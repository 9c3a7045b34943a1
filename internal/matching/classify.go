package matching

import (
	"fmt"

	"github.com/creatorhub/copyscan/internal/models"
)

// Policy is the tunable part of matching.
type Policy struct {
	Weights Weights
	// Tolerance is the widest timestamp gap, in seconds, for an aligned pair.
	Tolerance float64
	// MinAlignedPairs is the pair count below which a match is only "limited".
	MinAlignedPairs int
}

func DefaultPolicy() Policy {
	return Policy{
		Weights:         DefaultWeights(),
		Tolerance:       2,
		MinAlignedPairs: 3,
	}
}

func (p Policy) Validate() error {
	if err := p.Weights.Validate(); err != nil {
		return err
	}
	if p.Tolerance < 0 {
		return fmt.Errorf("%w: negative tolerance %v", ErrInvalidPolicy, p.Tolerance)
	}
	if p.MinAlignedPairs < 1 {
		return fmt.Errorf("%w: min aligned pairs must be at least 1", ErrInvalidPolicy)
	}
	return nil
}

// Assessment is the match-level result of comparing two sampled sequences.
type Assessment struct {
	SimilarityScore float64
	DataQuality     models.DataQuality
	AlignedPairs    int
	// Breakdown holds the mean of each comparator across aligned pairs.
	Breakdown models.SignalComparison
}

// ComparePairs scores every aligned pair.
func (p Policy) ComparePairs(pairs []Pair) []models.SignalComparison {
	out := make([]models.SignalComparison, len(pairs))
	for i, pr := range pairs {
		out[i] = Compare(pr.Original, pr.Candidate, p.Weights)
	}
	return out
}

// Assess aggregates per-pair comparisons: the similarity score is the mean
// overall score and the data quality follows from the pair count alone.
func (p Policy) Assess(comparisons []models.SignalComparison) Assessment {
	a := Assessment{
		AlignedPairs: len(comparisons),
		DataQuality:  p.Quality(len(comparisons)),
	}
	if len(comparisons) == 0 {
		return a
	}

	var sum models.SignalComparison
	for _, c := range comparisons {
		sum.KeyframeScore += c.KeyframeScore
		sum.OCRScore += c.OCRScore
		sum.FaceScore += c.FaceScore
		sum.MotionScore += c.MotionScore
		sum.OverallScore += c.OverallScore
	}
	n := float64(len(comparisons))
	a.Breakdown = models.SignalComparison{
		KeyframeScore: clamp01(sum.KeyframeScore / n),
		OCRScore:      clamp01(sum.OCRScore / n),
		FaceScore:     clamp01(sum.FaceScore / n),
		MotionScore:   clamp01(sum.MotionScore / n),
		OverallScore:  clamp01(sum.OverallScore / n),
	}
	a.SimilarityScore = a.Breakdown.OverallScore
	return a
}

// Quality maps an aligned pair count to a data quality label.
func (p Policy) Quality(pairs int) models.DataQuality {
	switch {
	case pairs <= 0:
		return models.DataQualityInsufficient
	case pairs < p.MinAlignedPairs:
		return models.DataQualityLimited
	default:
		return models.DataQualityVerified
	}
}

// Evaluate aligns each (original, candidate) sequence pair, scores the pairs
// and aggregates them all into one Assessment.
func (p Policy) Evaluate(sequences ...SequencePair) Assessment {
	var comparisons []models.SignalComparison
	for _, sp := range sequences {
		pairs := Align(sp.Original, sp.Candidate, p.Tolerance)
		comparisons = append(comparisons, p.ComparePairs(pairs)...)
	}
	return p.Assess(comparisons)
}

// SequencePair holds the original and candidate signals sampled at the same
// interval.
type SequencePair struct {
	Interval  float64
	Original  []models.FrameSignals
	Candidate []models.FrameSignals
}
