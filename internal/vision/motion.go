package vision

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/creatorhub/copyscan/internal/models"
)

// BlockMotionEstimator finds the global shift between two frames by
// exhaustive search over a downscaled grayscale grid. Magnitude is measured in
// grid cells; direction is in degrees, 0 pointing right and 90 pointing up.
type BlockMotionEstimator struct {
	Grid   int // side of the square sampling grid
	Search int // largest shift tried on each axis
}

func NewBlockMotionEstimator(grid, search int) BlockMotionEstimator {
	if grid <= 0 {
		grid = 64
	}
	if search <= 0 || search >= grid {
		search = grid / 8
	}
	return BlockMotionEstimator{Grid: grid, Search: search}
}

func (m BlockMotionEstimator) Estimate(prev, cur image.Image) (models.MotionVector, error) {
	if prev == nil || cur == nil {
		return models.MotionVector{}, nil
	}
	if prev.Bounds().Empty() || cur.Bounds().Empty() {
		return models.MotionVector{}, fmt.Errorf("estimate motion: empty frame")
	}

	a := grayGrid(prev, m.Grid)
	b := grayGrid(cur, m.Grid)

	bestDX, bestDY := 0, 0
	best := m.cost(a, b, 0, 0)
	for dy := -m.Search; dy <= m.Search; dy++ {
		for dx := -m.Search; dx <= m.Search; dx++ {
			if c := m.cost(a, b, dx, dy); c < best {
				best, bestDX, bestDY = c, dx, dy
			}
		}
	}

	if bestDX == 0 && bestDY == 0 {
		return models.MotionVector{Defined: true}, nil
	}
	// Image rows grow downward, so negate dy for a conventional angle.
	deg := math.Atan2(float64(-bestDY), float64(bestDX)) * 180 / math.Pi
	if deg < 0 {
		deg += 360
	}
	return models.MotionVector{
		Direction: deg,
		Magnitude: math.Hypot(float64(bestDX), float64(bestDY)),
		Defined:   true,
	}, nil
}

// cost is the mean absolute difference between prev and cur shifted back by
// (dx, dy), over the overlapping region.
func (m BlockMotionEstimator) cost(prev, cur []float64, dx, dy int) float64 {
	n := m.Grid
	var sum float64
	var count int
	for y := max(0, -dy); y < min(n, n-dy); y++ {
		for x := max(0, -dx); x < min(n, n-dx); x++ {
			sum += math.Abs(cur[(y+dy)*n+x+dx] - prev[y*n+x])
			count++
		}
	}
	if count == 0 {
		return math.Inf(1)
	}
	return sum / float64(count)
}

// grayGrid samples img on an n x n grid with nearest-neighbour lookup.
func grayGrid(img image.Image, n int) []float64 {
	b := img.Bounds()
	out := make([]float64, n*n)
	for y := 0; y < n; y++ {
		sy := b.Min.Y + y*b.Dy()/n
		for x := 0; x < n; x++ {
			sx := b.Min.X + x*b.Dx()/n
			g := color.GrayModel.Convert(img.At(sx, sy)).(color.Gray)
			out[y*n+x] = float64(g.Y)
		}
	}
	return out
}
