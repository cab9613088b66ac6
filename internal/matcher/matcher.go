// Package matcher turns a face feature vector into an identity decision by
// nearest-neighbour search over the registered vectors.
package matcher

import "math"

// NoMatchReason explains why a query was not accepted.
type NoMatchReason string

const (
	ReasonNoQuery        NoMatchReason = "no_query"
	ReasonEmptyRegistry  NoMatchReason = "empty_registry"
	ReasonIntegrity      NoMatchReason = "integrity"
	ReasonDimension      NoMatchReason = "dimension"
	ReasonAboveThreshold NoMatchReason = "above_threshold"
)

// Outcome is either Matched or NoMatch.
type Outcome interface {
	outcome()
}

// Matched is returned when the nearest registered vector is within the threshold.
type Matched struct {
	Index      int
	Name       string
	Distance   float64
	Confidence float64
}

// NoMatch carries the best distance seen (+Inf when nothing was compared).
type NoMatch struct {
	Distance float64
	Reason   NoMatchReason
}

func (Matched) outcome() {}
func (NoMatch) outcome() {}

// Matcher is stateless apart from its threshold and safe for concurrent use.
type Matcher struct {
	threshold float64
}

func New(threshold float64) *Matcher {
	return &Matcher{threshold: threshold}
}

func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Match compares query against vectors (parallel to names). Ties are broken
// by the lowest index.
func (m *Matcher) Match(query []float32, names []string, vectors [][]float32) Outcome {
	if len(query) == 0 {
		return NoMatch{Distance: math.Inf(1), Reason: ReasonNoQuery}
	}
	if len(names) != len(vectors) {
		return NoMatch{Distance: math.Inf(1), Reason: ReasonIntegrity}
	}
	if len(vectors) == 0 {
		return NoMatch{Distance: math.Inf(1), Reason: ReasonEmptyRegistry}
	}

	best := -1
	bestDist := math.Inf(1)
	for i, v := range vectors {
		if len(v) != len(query) {
			return NoMatch{Distance: math.Inf(1), Reason: ReasonDimension}
		}
		d := EuclideanDistance(query, v)
		if d < bestDist {
			best = i
			bestDist = d
		}
	}

	if best < 0 || bestDist > m.threshold {
		return NoMatch{Distance: bestDist, Reason: ReasonAboveThreshold}
	}

	return Matched{
		Index:      best,
		Name:       names[best],
		Distance:   bestDist,
		Confidence: Confidence(bestDist, m.threshold),
	}
}

// Confidence maps a distance inside the threshold linearly onto [0,1].
func Confidence(distance, threshold float64) float64 {
	if threshold <= 0 {
		if distance == 0 {
			return 1
		}
		return 0
	}
	return math.Max(0, 1-distance/threshold)
}

// EuclideanDistance returns the L2 distance between a and b. Callers must
// pass vectors of equal length.
func EuclideanDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
