// Package detector is the port to the face detection runtime. It turns a frame into
// detections carrying box, landmarks, descriptor and expression scores.
package detector

import (
	"context"
	"image"
	"time"

	"github.com/kozaktomas/facechain/internal/facematch"
)

// Frame is one sampled video frame or a still image.
// Raw holds the original encoded bytes when they exist (still images, uploads).
type Frame struct {
	Image      image.Image
	Raw        []byte
	Seq        uint64
	CapturedAt time.Time
}

// Size returns the pixel size of the frame.
func (f Frame) Size() facematch.Size {
	if f.Image == nil {
		return facematch.Size{}
	}
	b := f.Image.Bounds()
	return facematch.Size{Width: b.Dx(), Height: b.Dy()}
}

// Result is every face found in a frame, in frame pixel coordinates
type Result struct {
	Faces []facematch.Detection `json:"faces"`
	Size  facematch.Size        `json:"size"`
}

// Detector runs face detection with landmarks, descriptors and expressions.
type Detector interface {
	// DetectAll returns every face in the frame.
	DetectAll(ctx context.Context, frame Frame) (*Result, error)
	// DetectSingle returns the single best face or faceerr.ErrNoFace.
	DetectSingle(ctx context.Context, frame Frame) (*facematch.Detection, error)
}

// ReadyChecker reports whether the models needed by a detector are loaded
type ReadyChecker interface {
	Ready() bool
}

// Best returns the highest scoring detection, the first one on equal scores.
func Best(faces []facematch.Detection) (facematch.Detection, bool) {
	if len(faces) == 0 {
		return facematch.Detection{}, false
	}
	best := faces[0]
	for _, f := range faces[1:] {
		if f.Score > best.Score {
			best = f
		}
	}
	return best, true
}
