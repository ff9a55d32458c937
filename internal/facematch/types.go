// Package facematch holds the face recognition data model and the descriptor matcher
// shared by the CLI, the capture loop and the web handlers.
package facematch

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/kozaktomas/facechain/internal/constants"
)

// Point is a 2D coordinate in pixels
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Box is an axis-aligned bounding box in pixels
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Size is the pixel size of a frame or of the element it is displayed in
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Empty reports whether either dimension is non-positive.
func (s Size) Empty() bool {
	return s.Width <= 0 || s.Height <= 0
}

// Detection is one face found in a frame. It is never persisted.
type Detection struct {
	Box         Box                `json:"box"`
	Score       float64            `json:"score"`
	Landmarks   []Point            `json:"landmarks,omitempty"`
	Descriptor  Descriptor         `json:"descriptor,omitempty"`
	Expressions map[string]float64 `json:"expressions,omitempty"`
}

// TopExpression returns the highest scoring expression. Equal scores resolve by name.
func (d Detection) TopExpression() (string, float64, bool) {
	if len(d.Expressions) == 0 {
		return "", 0, false
	}
	best, bestScore := "", math.Inf(-1)
	for _, name := range slices.Sorted(maps.Keys(d.Expressions)) {
		if score := d.Expressions[name]; score > bestScore {
			best, bestScore = name, score
		}
	}
	return best, bestScore, true
}

// Match is the matcher's answer for one descriptor
type Match struct {
	Label    string  `json:"label"`
	Distance float64 `json:"distance"`
}

// Unknown reports whether no stored descriptor was within the threshold.
func (m Match) Unknown() bool {
	return m.Label == constants.UnknownLabel
}

// String renders the overlay caption, e.g. "alice (0.42)".
func (m Match) String() string {
	if math.IsInf(m.Distance, 0) || math.IsNaN(m.Distance) {
		return m.Label
	}
	return fmt.Sprintf("%s (%.2f)", m.Label, m.Distance)
}

// MarshalJSON writes a non-finite distance, as returned by an empty matcher, as null.
func (m Match) MarshalJSON() ([]byte, error) {
	var distance *float64
	if !math.IsInf(m.Distance, 0) && !math.IsNaN(m.Distance) {
		distance = &m.Distance
	}
	return json.Marshal(struct { //nolint:wrapcheck // plain struct encoding
		Label    string   `json:"label"`
		Distance *float64 `json:"distance"`
	}{m.Label, distance})
}

// RecognizedFace pairs a detection with its match. Match is nil when no matcher was available.
type RecognizedFace struct {
	Detection
	Match *Match `json:"match,omitempty"`
}
