package facematch

import (
	"math"
	"testing"
)

func TestComputeIoU(t *testing.T) {
	tests := []struct {
		name     string
		a        Box
		b        Box
		expected float64
	}{
		{
			name:     "identical boxes",
			a:        Box{0, 0, 10, 10},
			b:        Box{0, 0, 10, 10},
			expected: 1.0,
		},
		{
			name:     "no overlap",
			a:        Box{0, 0, 10, 10},
			b:        Box{20, 20, 10, 10},
			expected: 0.0,
		},
		{
			name:     "partial overlap",
			a:        Box{0, 0, 10, 10},
			b:        Box{5, 5, 10, 10},
			expected: 25.0 / 175.0, // intersection=25, union=100+100-25=175
		},
		{
			name:     "one inside other",
			a:        Box{0, 0, 20, 20},
			b:        Box{5, 5, 10, 10},
			expected: 100.0 / 400.0,
		},
		{
			name:     "zero size",
			a:        Box{},
			b:        Box{},
			expected: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ComputeIoU(tt.a, tt.b)
			if math.Abs(result-tt.expected) > 0.0001 {
				t.Errorf("ComputeIoU(%v, %v) = %v, want %v", tt.a, tt.b, result, tt.expected)
			}
		})
	}
}

func TestBoxFromCorners(t *testing.T) {
	b := BoxFromCorners([]float64{10, 20, 110, 220})
	if b != (Box{10, 20, 100, 200}) {
		t.Errorf("unexpected box %+v", b)
	}

	corners := b.Corners()
	for i, want := range []float64{10, 20, 110, 220} {
		if corners[i] != want {
			t.Errorf("corner %d = %v, want %v", i, corners[i], want)
		}
	}

	if BoxFromCorners([]float64{1, 2, 3}) != (Box{}) {
		t.Error("expected zero box for invalid input")
	}
}

func TestResizeDetection(t *testing.T) {
	det := Detection{
		Box:       Box{X: 100, Y: 50, Width: 200, Height: 100},
		Landmarks: []Point{{X: 100, Y: 100}, {X: 300, Y: 150}},
		Score:     0.9,
	}

	tests := []struct {
		name     string
		media    Size
		display  Size
		expected Box
		firstPt  Point
	}{
		{
			name:     "half size",
			media:    Size{640, 480},
			display:  Size{320, 240},
			expected: Box{50, 25, 100, 50},
			firstPt:  Point{50, 50},
		},
		{
			name:     "non uniform",
			media:    Size{640, 480},
			display:  Size{1280, 240},
			expected: Box{200, 25, 400, 50},
			firstPt:  Point{200, 50},
		},
		{
			name:     "same size",
			media:    Size{640, 480},
			display:  Size{640, 480},
			expected: det.Box,
			firstPt:  Point{100, 100},
		},
		{
			name:     "unknown display size",
			media:    Size{640, 480},
			display:  Size{},
			expected: det.Box,
			firstPt:  Point{100, 100},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResizeDetection(det, tt.media, tt.display)
			if got.Box != tt.expected {
				t.Errorf("box = %+v, want %+v", got.Box, tt.expected)
			}
			if got.Landmarks[0] != tt.firstPt {
				t.Errorf("first landmark = %+v, want %+v", got.Landmarks[0], tt.firstPt)
			}
			if got.Score != det.Score {
				t.Error("score must be preserved")
			}
		})
	}

	if det.Landmarks[0] != (Point{100, 100}) {
		t.Error("ResizeDetection must not modify the input landmarks")
	}
}

func TestSuppressOverlaps(t *testing.T) {
	dets := []Detection{
		{Box: Box{0, 0, 100, 100}, Score: 0.7},
		{Box: Box{5, 5, 100, 100}, Score: 0.9},
		{Box: Box{300, 300, 50, 50}, Score: 0.8},
	}

	got := SuppressOverlaps(dets, 0.5)

	if len(got) != 2 {
		t.Fatalf("expected 2 detections, got %d", len(got))
	}
	if got[0].Score != 0.9 || got[1].Score != 0.8 {
		t.Errorf("unexpected survivors %+v", got)
	}
}
