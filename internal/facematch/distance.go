package facematch

import (
	"fmt"
	"math"

	"github.com/kozaktomas/facechain/internal/constants"
)

// Descriptor is a face recognition vector of constants.DescriptorDim values.
// Treat it as immutable; constructors copy their input.
type Descriptor []float32

// NewDescriptor validates the length and copies values into a Descriptor.
func NewDescriptor(values []float64) (Descriptor, error) {
	if len(values) != constants.DescriptorDim {
		return nil, fmt.Errorf("descriptor has %d values, expected %d", len(values), constants.DescriptorDim)
	}
	d := make(Descriptor, len(values))
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("descriptor value %d is not finite", i)
		}
		d[i] = float32(v)
	}
	return d, nil
}

// DescriptorFrom copies a float32 vector, validating its length.
func DescriptorFrom(values []float32) (Descriptor, error) {
	if len(values) != constants.DescriptorDim {
		return nil, fmt.Errorf("descriptor has %d values, expected %d", len(values), constants.DescriptorDim)
	}
	return append(Descriptor(nil), values...), nil
}

// Float64s returns the descriptor widened to float64, the JSON shape the backend stores.
func (d Descriptor) Float64s() []float64 {
	out := make([]float64, len(d))
	for i, v := range d {
		out[i] = float64(v)
	}
	return out
}

// EuclideanDistance returns the L2 distance between two descriptors.
// Vectors of different length are infinitely far apart.
func EuclideanDistance(a, b Descriptor) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		diff := float64(a[i]) - float64(b[i])
		sum += diff * diff
	}
	return math.Sqrt(sum)
}
