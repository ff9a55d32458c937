package facematch

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/kozaktomas/facechain/internal/constants"
)

// descriptorAt returns a descriptor whose first component is v and the rest zero,
// so distances between such descriptors are |v1 - v2|.
func descriptorAt(v float32) Descriptor {
	d := make(Descriptor, constants.DescriptorDim)
	d[0] = v
	return d
}

func randomDescriptor(r *rand.Rand) Descriptor {
	d := make(Descriptor, constants.DescriptorDim)
	for i := range d {
		d[i] = float32(r.NormFloat64() * 0.1)
	}
	return d
}

func TestEuclideanDistance(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	a, b := randomDescriptor(r), randomDescriptor(r)

	if d := EuclideanDistance(a, a); d != 0 {
		t.Errorf("distance(a, a) = %v, want 0", d)
	}
	if EuclideanDistance(a, b) != EuclideanDistance(b, a) {
		t.Error("distance must be symmetric")
	}
	if d := EuclideanDistance(descriptorAt(0), descriptorAt(0.25)); math.Abs(d-0.25) > 1e-6 {
		t.Errorf("expected 0.25, got %v", d)
	}
	if !math.IsInf(EuclideanDistance(a, a[:10]), 1) {
		t.Error("expected +Inf for mismatched lengths")
	}
}

func TestNewDescriptor(t *testing.T) {
	values := make([]float64, constants.DescriptorDim)
	values[3] = 0.5

	d, err := NewDescriptor(values)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	values[3] = 9
	if d[3] != 0.5 {
		t.Error("descriptor must copy its input")
	}

	if _, err := NewDescriptor(values[:127]); err == nil {
		t.Error("expected error for 127 values")
	}

	values[0] = math.NaN()
	if _, err := NewDescriptor(values); err == nil {
		t.Error("expected error for NaN value")
	}
}

func TestFindBestMatch(t *testing.T) {
	alice := descriptorAt(0)
	bob := descriptorAt(1)

	m, err := NewMatcher([]LabeledDescriptor{
		{Label: "alice", Descriptor: alice},
		{Label: "bob", Descriptor: bob},
	}, constants.DefaultDistanceThreshold)
	if err != nil {
		t.Fatalf("NewMatcher failed: %v", err)
	}

	tests := []struct {
		name     string
		query    Descriptor
		label    string
		distance float64
	}{
		{"exact alice", alice, "alice", 0},
		{"exact bob", bob, "bob", 0},
		{"near alice", descriptorAt(0.3), "alice", 0.3},
		{"within threshold", descriptorAt(-0.5), "alice", 0.5},
		{"too far", descriptorAt(-0.8), constants.UnknownLabel, 0.8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.FindBestMatch(tt.query)
			if got.Label != tt.label {
				t.Errorf("label = %q, want %q", got.Label, tt.label)
			}
			if math.Abs(got.Distance-tt.distance) > 1e-6 {
				t.Errorf("distance = %v, want %v", got.Distance, tt.distance)
			}
		})
	}
}

func TestFindBestMatch_TieGoesToFirst(t *testing.T) {
	m, err := NewMatcher([]LabeledDescriptor{
		{Label: "first", Descriptor: descriptorAt(0)},
		{Label: "second", Descriptor: descriptorAt(0.4)},
	}, 0.6)
	if err != nil {
		t.Fatalf("NewMatcher failed: %v", err)
	}

	got := m.FindBestMatch(descriptorAt(0.2))
	if got.Label != "first" {
		t.Errorf("expected tie to resolve to first entry, got %q", got.Label)
	}
}

func TestFindBestMatch_DuplicateLabels(t *testing.T) {
	m, err := NewMatcher([]LabeledDescriptor{
		{Label: "alice", Descriptor: descriptorAt(0)},
		{Label: "alice", Descriptor: descriptorAt(2)},
	}, 0.6)
	if err != nil {
		t.Fatalf("NewMatcher failed: %v", err)
	}

	if got := m.FindBestMatch(descriptorAt(1.9)); got.Label != "alice" || math.Abs(got.Distance-0.1) > 1e-6 {
		t.Errorf("expected second alice entry at 0.1, got %v", got)
	}
}

func TestFindBestMatch_Empty(t *testing.T) {
	m, err := NewMatcher(nil, 0.6)
	if err != nil {
		t.Fatalf("NewMatcher failed: %v", err)
	}

	got := m.FindBestMatch(descriptorAt(0))
	if !got.Unknown() || !math.IsInf(got.Distance, 1) {
		t.Errorf("expected unknown at +Inf, got %v", got)
	}

	var nilMatcher *Matcher
	if got := nilMatcher.FindBestMatch(descriptorAt(0)); !got.Unknown() {
		t.Errorf("expected unknown from nil matcher, got %v", got)
	}
}

func TestNewMatcher_RejectsWrongLength(t *testing.T) {
	_, err := NewMatcher([]LabeledDescriptor{{Label: "x", Descriptor: make(Descriptor, 64)}}, 0.6)
	if err == nil {
		t.Error("expected error for 64-dim descriptor")
	}
}

func TestNewMatcher_CopiesDescriptors(t *testing.T) {
	d := descriptorAt(0)
	m, err := NewMatcher([]LabeledDescriptor{{Label: "alice", Descriptor: d}}, 0.6)
	if err != nil {
		t.Fatalf("NewMatcher failed: %v", err)
	}

	d[0] = 5
	if got := m.FindBestMatch(descriptorAt(0)); got.Label != "alice" {
		t.Error("matcher must not observe changes to the input slice")
	}
}

func TestNewMatcher_DefaultThreshold(t *testing.T) {
	m, err := NewMatcher(nil, 0)
	if err != nil {
		t.Fatalf("NewMatcher failed: %v", err)
	}
	if m.Threshold() != constants.DefaultDistanceThreshold {
		t.Errorf("expected default threshold, got %v", m.Threshold())
	}
}

func TestNewMatcher_HNSWNeedsLargeSet(t *testing.T) {
	r := rand.New(rand.NewSource(3))

	small := []LabeledDescriptor{{Label: "alice", Descriptor: randomDescriptor(r)}}
	m, err := NewMatcher(small, 0.6, WithHNSW(true))
	if err != nil {
		t.Fatalf("NewMatcher failed: %v", err)
	}
	if m.Indexed() {
		t.Error("expected no index below HNSWMinFaces")
	}

	large := make([]LabeledDescriptor, constants.HNSWMinFaces)
	for i := range large {
		large[i] = LabeledDescriptor{Label: "x", Descriptor: randomDescriptor(r)}
	}
	if m, _ := NewMatcher(large, 0.6); m.Indexed() {
		t.Error("expected no index without WithHNSW")
	}
	if m, _ := NewMatcher(large, 0.6, WithHNSW(true)); !m.Indexed() {
		t.Error("expected index with WithHNSW on a large set")
	}
}

func TestFindBestMatch_HNSWIsExact(t *testing.T) {
	if testing.Short() {
		t.Skip("builds a 3000 face index")
	}
	r := rand.New(rand.NewSource(42))

	faces := make([]LabeledDescriptor, 3000)
	for i := range faces {
		faces[i] = LabeledDescriptor{Label: fmt.Sprintf("face-%d", i), Descriptor: randomDescriptor(r)}
	}

	indexed, err := NewMatcher(faces, 0.6, WithHNSW(true))
	if err != nil {
		t.Fatalf("NewMatcher failed: %v", err)
	}
	if !indexed.Indexed() {
		t.Fatal("expected an indexed matcher")
	}

	// Each query is a stored face plus noise, about 0.34 away from its owner
	// and well over 1 from everyone else.
	for q := 0; q < 300; q++ {
		owner := r.Intn(len(faces))
		query := append(Descriptor(nil), faces[owner].Descriptor...)
		for k := range query {
			query[k] += float32(r.NormFloat64() * 0.03)
		}

		wantIdx, wantDist := -1, math.Inf(1)
		for i, f := range faces {
			if d := EuclideanDistance(query, f.Descriptor); d < wantDist {
				wantIdx, wantDist = i, d
			}
		}

		got := indexed.FindBestMatch(query)
		if got.Label != faces[wantIdx].Label || got.Distance != wantDist {
			t.Fatalf("query %d (owner %s): got %v, want %s (%.4f)", q, faces[owner].Label, got, faces[wantIdx].Label, wantDist)
		}
	}
}

func TestThreshold_NilMatcher(t *testing.T) {
	var m *Matcher
	if got := m.Threshold(); got != constants.DefaultDistanceThreshold {
		t.Errorf("expected default threshold from nil matcher, got %v", got)
	}
}

func TestMatchAll(t *testing.T) {
	m, err := NewMatcher([]LabeledDescriptor{{Label: "alice", Descriptor: descriptorAt(0)}}, 0.6)
	if err != nil {
		t.Fatalf("NewMatcher failed: %v", err)
	}

	dets := []Detection{
		{Descriptor: descriptorAt(0.1)},
		{Descriptor: descriptorAt(3)},
		{},
	}

	faces := m.MatchAll(dets)
	if faces[0].Match == nil || faces[0].Match.Label != "alice" {
		t.Errorf("expected alice for first face, got %+v", faces[0].Match)
	}
	if faces[1].Match == nil || !faces[1].Match.Unknown() {
		t.Errorf("expected unknown for second face, got %+v", faces[1].Match)
	}
	if faces[2].Match != nil {
		t.Error("expected no match for a detection without descriptor")
	}

	var nilMatcher *Matcher
	for _, f := range nilMatcher.MatchAll(dets) {
		if f.Match != nil {
			t.Error("nil matcher must leave matches empty")
		}
	}
}

func TestMatchString(t *testing.T) {
	tests := []struct {
		match    Match
		expected string
	}{
		{Match{Label: "alice", Distance: 0.4213}, "alice (0.42)"},
		{Match{Label: "unknown", Distance: 0.8}, "unknown (0.80)"},
		{Match{Label: "unknown", Distance: math.Inf(1)}, "unknown"},
	}

	for _, tt := range tests {
		if got := tt.match.String(); got != tt.expected {
			t.Errorf("String() = %q, want %q", got, tt.expected)
		}
	}
}

func TestMatchJSON_InfiniteDistance(t *testing.T) {
	data, err := json.Marshal(RecognizedFace{Match: &Match{Label: "unknown", Distance: math.Inf(1)}})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(data), `"match":{"label":"unknown","distance":null}`) {
		t.Errorf("unexpected JSON %s", data)
	}

	data, _ = json.Marshal(Match{Label: "alice", Distance: 0.25})
	if string(data) != `{"label":"alice","distance":0.25}` {
		t.Errorf("unexpected JSON %s", data)
	}
}

func TestTopExpression(t *testing.T) {
	det := Detection{Expressions: map[string]float64{"happy": 0.7, "neutral": 0.2, "sad": 0.1}}

	name, score, ok := det.TopExpression()
	if !ok || name != "happy" || score != 0.7 {
		t.Errorf("TopExpression() = %q, %v, %v", name, score, ok)
	}

	tie := Detection{Expressions: map[string]float64{"sad": 0.5, "angry": 0.5}}
	if name, _, _ := tie.TopExpression(); name != "angry" {
		t.Errorf("expected ties to resolve by name, got %q", name)
	}

	if _, _, ok := (Detection{}).TopExpression(); ok {
		t.Error("expected no expression for empty map")
	}
}
