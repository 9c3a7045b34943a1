package matching

import (
	"math"
	"sort"

	"github.com/creatorhub/copyscan/internal/models"
)

// Pair is one original frame aligned with its nearest candidate frame.
type Pair struct {
	Original  models.FrameSignals
	Candidate models.FrameSignals
	Gap       float64 // |original.Timestamp - candidate.Timestamp|
}

// Align pairs every original frame with the candidate frame closest in time.
// Pairs further apart than tolerance seconds are dropped, not scored, so a
// candidate with a different start offset or trimmed intro is not penalized.
// On equal gaps the earlier candidate frame wins.
func Align(original, candidate []models.FrameSignals, tolerance float64) []Pair {
	if len(original) == 0 || len(candidate) == 0 || tolerance < 0 {
		return nil
	}

	sorted := make([]models.FrameSignals, len(candidate))
	copy(sorted, candidate)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	pairs := make([]Pair, 0, len(original))
	for _, of := range original {
		idx := sort.Search(len(sorted), func(i int) bool {
			return sorted[i].Timestamp >= of.Timestamp
		})

		best := -1
		bestGap := math.Inf(1)
		for _, i := range []int{idx - 1, idx} {
			if i < 0 || i >= len(sorted) {
				continue
			}
			if gap := math.Abs(sorted[i].Timestamp - of.Timestamp); gap < bestGap {
				best = i
				bestGap = gap
			}
		}
		if best < 0 || bestGap > tolerance {
			continue
		}
		pairs = append(pairs, Pair{Original: of, Candidate: sorted[best], Gap: bestGap})
	}
	return pairs
}
