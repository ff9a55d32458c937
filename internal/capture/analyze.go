package capture

import (
	"context"
	"time"

	"github.com/kozaktomas/facechain/internal/detector"
	"github.com/kozaktomas/facechain/internal/facematch"
)

// Tick is the outcome of processing one frame. Face coordinates are in display space.
type Tick struct {
	SessionID   string                     `json:"session_id,omitempty"`
	Seq         uint64                     `json:"seq"`
	At          time.Time                  `json:"at"`
	Duration    time.Duration              `json:"duration_ns"`
	MediaSize   facematch.Size             `json:"media_size"`
	DisplaySize facematch.Size             `json:"display_size"`
	Faces       []facematch.RecognizedFace `json:"faces"`
	Error       string                     `json:"error,omitempty"`

	Frame detector.Frame `json:"-"`
	Err   error          `json:"-"`
}

// MatcherFunc returns the current matcher; nil disables labels.
type MatcherFunc func() *facematch.Matcher

// Analyze detects every face in the frame, resizes the detections to the display size
// and matches each face when a matcher is available. An empty display size means the
// frame is shown at its natural size.
func Analyze(ctx context.Context, det detector.Detector, matcher *facematch.Matcher, frame detector.Frame, display facematch.Size) (*Tick, error) {
	start := time.Now()

	result, err := det.DetectAll(ctx, frame)
	if err != nil {
		return nil, err //nolint:wrapcheck // detector errors carry their own context
	}

	media := result.Size
	if media.Empty() {
		media = frame.Size()
	}
	if display.Empty() {
		display = media
	}

	resized := facematch.ResizeDetections(result.Faces, media, display)

	var faces []facematch.RecognizedFace
	if matcher != nil {
		faces = matcher.MatchAll(resized)
	} else {
		faces = make([]facematch.RecognizedFace, len(resized))
		for i, d := range resized {
			faces[i] = facematch.RecognizedFace{Detection: d}
		}
	}

	return &Tick{
		Seq:         frame.Seq,
		At:          start,
		Duration:    time.Since(start),
		MediaSize:   media,
		DisplaySize: display,
		Faces:       faces,
		Frame:       frame,
	}, nil
}

// ProcessStill runs a single detection pass over a still image.
func ProcessStill(ctx context.Context, det detector.Detector, matcher *facematch.Matcher, img *StillImage, display facematch.Size) (*Tick, error) {
	frame := img.Frame()
	if err := emptyFrame(frame); err != nil {
		return nil, err
	}
	return Analyze(ctx, det, matcher, frame, display)
}
