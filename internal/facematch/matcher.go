package facematch

import (
	"fmt"
	"math"

	"github.com/coder/hnsw"

	"github.com/kozaktomas/facechain/internal/constants"
)

// LabeledDescriptor is one stored face. Labels need not be unique.
type LabeledDescriptor struct {
	Label      string
	Descriptor Descriptor
}

// Matcher finds the nearest stored descriptor for a query.
// It is immutable once built: a changed face set means a new Matcher.
type Matcher struct {
	entries   []LabeledDescriptor
	threshold float64
	index     *hnsw.Graph[int] // optional seed index, keys are positions in entries
}

// MatcherOption configures NewMatcher
type MatcherOption func(*matcherOptions)

type matcherOptions struct {
	hnsw bool
}

// WithHNSW enables the HNSW index for face sets of at least constants.HNSWMinFaces.
// The index only seeds the search; results are always the exact nearest entry.
func WithHNSW(enabled bool) MatcherOption {
	return func(o *matcherOptions) {
		o.hnsw = enabled
	}
}

// NewMatcher builds a matcher from the full face set in a single pass.
// A non-positive threshold falls back to constants.DefaultDistanceThreshold.
func NewMatcher(faces []LabeledDescriptor, threshold float64, opts ...MatcherOption) (*Matcher, error) {
	var o matcherOptions
	for _, opt := range opts {
		opt(&o)
	}
	if threshold <= 0 {
		threshold = constants.DefaultDistanceThreshold
	}

	entries := make([]LabeledDescriptor, len(faces))
	for i, f := range faces {
		if len(f.Descriptor) != constants.DescriptorDim {
			return nil, fmt.Errorf("face %d (%s): descriptor has %d values, expected %d",
				i, f.Label, len(f.Descriptor), constants.DescriptorDim)
		}
		entries[i] = LabeledDescriptor{Label: f.Label, Descriptor: append(Descriptor(nil), f.Descriptor...)}
	}

	m := &Matcher{entries: entries, threshold: threshold}

	if o.hnsw && len(entries) >= constants.HNSWMinFaces {
		m.index = buildIndex(entries)
	}

	return m, nil
}

func buildIndex(entries []LabeledDescriptor) *hnsw.Graph[int] {
	g := hnsw.NewGraph[int]()
	g.M = constants.HNSWM
	g.Ml = 1.0 / float64(constants.HNSWM)
	g.EfSearch = constants.HNSWEfSearch
	g.Distance = hnsw.EuclideanDistance

	nodes := make([]hnsw.Node[int], len(entries))
	for i, e := range entries {
		nodes[i] = hnsw.MakeNode(i, []float32(e.Descriptor))
	}
	g.Add(nodes...)
	return g
}

// Len returns the number of stored descriptors.
func (m *Matcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// Threshold returns the distance cutoff.
func (m *Matcher) Threshold() float64 {
	if m == nil {
		return constants.DefaultDistanceThreshold
	}
	return m.threshold
}

// Indexed reports whether queries are seeded from the HNSW index.
func (m *Matcher) Indexed() bool {
	return m != nil && m.index != nil
}

// FindBestMatch returns the label of the closest stored descriptor and its distance.
// If the closest distance exceeds the threshold the label is constants.UnknownLabel.
// Equal distances resolve to the entry that comes first in the face set.
func (m *Matcher) FindBestMatch(query Descriptor) Match {
	if m == nil {
		return Match{Label: constants.UnknownLabel, Distance: math.Inf(1)}
	}

	bestIdx, bestSq := -1, math.Inf(1)
	if m.index != nil {
		bestIdx, bestSq = m.searchIndex(query)
	}
	bestIdx, bestSq = m.scan(query, bestIdx, bestSq)

	bestDist := math.Sqrt(bestSq)
	if bestIdx < 0 || bestDist > m.threshold {
		return Match{Label: constants.UnknownLabel, Distance: bestDist}
	}
	return Match{Label: m.entries[bestIdx].Label, Distance: bestDist}
}

// scan visits every entry starting from a known best squared distance (bestIdx -1 for none).
// An entry is abandoned once its partial sum exceeds the bound; ties go to the earlier entry.
func (m *Matcher) scan(query Descriptor, bestIdx int, bestSq float64) (int, float64) {
	if len(query) != constants.DescriptorDim {
		return -1, math.Inf(1)
	}
	for i, e := range m.entries {
		sq, ok := squaredDistanceWithin(query, e.Descriptor, bestSq)
		if !ok {
			continue
		}
		if sq < bestSq || (sq == bestSq && (bestIdx < 0 || i < bestIdx)) {
			bestIdx, bestSq = i, sq
		}
	}
	if bestIdx < 0 {
		return -1, math.Inf(1)
	}
	return bestIdx, bestSq
}

// squaredDistanceWithin sums squared differences in the same order as
// EuclideanDistance and stops as soon as the sum exceeds bound.
func squaredDistanceWithin(a, b Descriptor, bound float64) (float64, bool) {
	var sum float64
	for i := range a {
		diff := float64(a[i]) - float64(b[i])
		sum += diff * diff
		if sum > bound {
			return sum, false
		}
	}
	return sum, true
}

// searchIndex returns the closest HNSW candidate and its squared distance,
// used as the starting bound for scan.
func (m *Matcher) searchIndex(query Descriptor) (int, float64) {
	if len(query) != constants.DescriptorDim {
		return -1, math.Inf(1)
	}
	k := min(constants.HNSWCandidates, len(m.entries))
	bestIdx, bestSq := -1, math.Inf(1)
	for _, n := range m.index.Search([]float32(query), k) {
		sq, _ := squaredDistanceWithin(query, m.entries[n.Key].Descriptor, math.Inf(1))
		if sq < bestSq || (sq == bestSq && n.Key < bestIdx) {
			bestIdx, bestSq = n.Key, sq
		}
	}
	return bestIdx, bestSq
}

// MatchAll matches every detection. A nil matcher leaves all matches nil.
func (m *Matcher) MatchAll(detections []Detection) []RecognizedFace {
	faces := make([]RecognizedFace, len(detections))
	for i, det := range detections {
		faces[i].Detection = det
		if m != nil && len(det.Descriptor) > 0 {
			match := m.FindBestMatch(det.Descriptor)
			faces[i].Match = &match
		}
	}
	return faces
}
