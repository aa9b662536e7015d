// README: Matching candidates and selection policies.
package matching

import (
	"math/rand"
	"sort"

	"dispatch/internal/modules/ride"
)

// Candidate is a pending ride within reach of a driver.
type Candidate struct {
	Ride           *ride.Ride `json:"ride"`
	DistanceMeters float64    `json:"distance_meters"`
}

// Policy picks one ride out of a non-empty candidate list ordered nearest first.
type Policy interface {
	Select(cands []Candidate) Candidate
}

// NearestFirst picks the closest pickup, breaking ties by ride id.
type NearestFirst struct{}

func (NearestFirst) Select(cands []Candidate) Candidate {
	best := cands[0]
	for _, c := range cands[1:] {
		if less(c, best) {
			best = c
		}
	}
	return best
}

// RandomNearest picks uniformly among the Pool closest candidates so that
// drivers polling from the same spot do not all race for one ride.
type RandomNearest struct {
	Pool int
	// Intn returns a value in [0, n). Defaults to math/rand.
	Intn func(n int) int
}

func (p RandomNearest) Select(cands []Candidate) Candidate {
	n := p.Pool
	if n <= 0 || n > len(cands) {
		n = len(cands)
	}
	intn := p.Intn
	if intn == nil {
		intn = rand.Intn
	}
	return cands[intn(n)]
}

func less(a, b Candidate) bool {
	if a.DistanceMeters != b.DistanceMeters {
		return a.DistanceMeters < b.DistanceMeters
	}
	return a.Ride.ID < b.Ride.ID
}

func sortCandidates(cands []Candidate) {
	sort.Slice(cands, func(i, j int) bool { return less(cands[i], cands[j]) })
}
