package vision

import (
	"math"
	"sort"

	"pickpoint/config"
)

// Centroid is a detected insertion target in image coordinates. Index is
// the 0-based position in the final visiting order; Group is the row it was
// assigned to. Both are meaningful only on sequencer output.
type Centroid struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Index int     `json:"index"`
	Group int     `json:"group"`
}

// Sequencer imposes a stable row-major visiting order on an unordered
// point set using a directed proximity graph: a point is a right-neighbor
// of another when it falls in the bounding window to its right.
type Sequencer struct {
	XRange     float64
	YTolerance float64
}

// NewSequencer creates a sequencer with the given right-neighbor window.
func NewSequencer(cfg config.SequencerConfig) *Sequencer {
	return &Sequencer{XRange: cfg.XRange, YTolerance: cfg.YTolerance}
}

// Sequence relabels points with Index/Group in deterministic visiting
// order. Rows start at seeds (points with no left-neighbor), top row
// first, and walk right through the closest unvisited right-neighbor.
// Points with no forward path from any seed are dropped: the output can be
// shorter than the input for degenerate layouts.
func (s *Sequencer) Sequence(points []Centroid) []Centroid {
	n := len(points)
	if n == 0 {
		return nil
	}

	right := make([][]int, n)
	left := make([][]int, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			dx := points[j].X - points[i].X
			dy := points[j].Y - points[i].Y
			if dx >= 0 && dx <= s.XRange && math.Abs(dy) <= s.YTolerance {
				right[i] = append(right[i], j)
				left[j] = append(left[j], i)
			}
		}
	}

	// Closest neighbor first; stable so coincident distances keep
	// registration order.
	for i := 0; i < n; i++ {
		sortByDistance(points, i, right[i])
		sortByDistance(points, i, left[i])
	}

	var seeds []int
	for i := 0; i < n; i++ {
		if len(left[i]) == 0 {
			seeds = append(seeds, i)
		}
	}
	sort.SliceStable(seeds, func(a, b int) bool {
		return points[seeds[a]].Y < points[seeds[b]].Y
	})

	visited := make([]bool, n)
	out := make([]Centroid, 0, n)
	group := 0
	for _, seed := range seeds {
		if visited[seed] {
			continue
		}
		cur := seed
		for cur >= 0 {
			visited[cur] = true
			out = append(out, Centroid{
				X:     points[cur].X,
				Y:     points[cur].Y,
				Index: len(out),
				Group: group,
			})
			next := -1
			for _, j := range right[cur] {
				if !visited[j] {
					next = j
					break
				}
			}
			cur = next
		}
		group++
	}
	return out
}

func sortByDistance(points []Centroid, from int, neighbors []int) {
	sort.SliceStable(neighbors, func(a, b int) bool {
		return sqDist(points[from], points[neighbors[a]]) < sqDist(points[from], points[neighbors[b]])
	})
}

func sqDist(a, b Centroid) float64 {
	dx := b.X - a.X
	dy := b.Y - a.Y
	return dx*dx + dy*dy
}

// FilterBoundary keeps only points strictly inside the configured box.
func FilterBoundary(points []Centroid, b config.Boundary) []Centroid {
	out := make([]Centroid, 0, len(points))
	for _, p := range points {
		if p.X > b.XMin && p.X < b.XMax && p.Y > b.YMin && p.Y < b.YMax {
			out = append(out, p)
		}
	}
	return out
}

// Subsample keeps every interval-th point of a sequenced list and renumbers
// Index consecutively. Group assignments are preserved. An interval of 1 or
// less returns the input unchanged.
func Subsample(points []Centroid, interval int) []Centroid {
	if interval <= 1 {
		return points
	}
	out := make([]Centroid, 0, (len(points)+interval-1)/interval)
	for i, p := range points {
		if i%interval != 0 {
			continue
		}
		p.Index = len(out)
		out = append(out, p)
	}
	return out
}
