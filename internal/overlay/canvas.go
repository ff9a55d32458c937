// Package overlay draws detection results onto a transparent canvas sized and
// positioned exactly over the displayed video or image.
package overlay

import (
	"image"

	"github.com/kozaktomas/facechain/internal/facematch"
)

// Canvas is the placement of the overlay relative to its container
type Canvas struct {
	Width   int `json:"width"`
	Height  int `json:"height"`
	OffsetX int `json:"offset_x"`
	OffsetY int `json:"offset_y"`
}

// Size returns the canvas dimensions.
func (c Canvas) Size() facematch.Size {
	return facematch.Size{Width: c.Width, Height: c.Height}
}

// Bounds returns the canvas rectangle in its own coordinates.
func (c Canvas) Bounds() image.Rectangle {
	return image.Rect(0, 0, c.Width, c.Height)
}

// Empty reports whether the canvas has no drawable area.
func (c Canvas) Empty() bool {
	return c.Width <= 0 || c.Height <= 0
}

// Layout places a canvas over media with the given natural size shown inside a
// container, scaled to fit while keeping the aspect ratio and centered. An empty
// container means the media is shown at its natural size.
func Layout(media, container facematch.Size) Canvas {
	if media.Empty() {
		return Canvas{Width: container.Width, Height: container.Height}
	}
	if container.Empty() {
		return Canvas{Width: media.Width, Height: media.Height}
	}

	scale := min(float64(container.Width)/float64(media.Width), float64(container.Height)/float64(media.Height))
	w := int(float64(media.Width)*scale + 0.5)
	h := int(float64(media.Height)*scale + 0.5)

	return Canvas{
		Width:   w,
		Height:  h,
		OffsetX: (container.Width - w) / 2,
		OffsetY: (container.Height - h) / 2,
	}
}
