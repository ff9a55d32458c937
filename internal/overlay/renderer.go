package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"slices"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/kozaktomas/facechain/internal/facematch"
)

// Style controls colors and sizes of the overlay
type Style struct {
	BoxColor        color.RGBA
	UnknownColor    color.RGBA
	LandmarkColor   color.RGBA
	TextColor       color.RGBA
	LabelBackground color.RGBA
	LineWidth       int
	LandmarkRadius  int
	// MinExpressionScore hides expressions below this probability
	MinExpressionScore float64
}

// DefaultStyle mirrors the usual face-api look: blue boxes, green landmarks.
func DefaultStyle() Style {
	return Style{
		BoxColor:           color.RGBA{R: 0, G: 0, B: 255, A: 255},
		UnknownColor:       color.RGBA{R: 255, G: 64, B: 64, A: 255},
		LandmarkColor:      color.RGBA{R: 0, G: 255, B: 0, A: 255},
		TextColor:          color.RGBA{R: 255, G: 255, B: 255, A: 255},
		LabelBackground:    color.RGBA{R: 0, G: 0, B: 0, A: 160},
		LineWidth:          2,
		LandmarkRadius:     1,
		MinExpressionScore: 0.1,
	}
}

// Renderer draws faces onto a canvas that follows the displayed media size.
type Renderer struct {
	style Style
	face  font.Face

	mu     sync.RWMutex
	canvas Canvas
}

// NewRenderer creates a renderer with an empty canvas; call Resize before Render.
func NewRenderer(style Style) *Renderer {
	if style.LineWidth <= 0 {
		style.LineWidth = 1
	}
	return &Renderer{style: style, face: basicfont.Face7x13}
}

// Resize recomputes the canvas for media of the given natural size displayed in container.
// It reports whether the canvas changed.
func (r *Renderer) Resize(media, container facematch.Size) (Canvas, bool) {
	c := Layout(media, container)
	r.mu.Lock()
	defer r.mu.Unlock()
	changed := c != r.canvas
	r.canvas = c
	return c, changed
}

// Canvas returns the current placement.
func (r *Renderer) Canvas() Canvas {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.canvas
}

// Render draws faces, already in display coordinates, onto a fresh transparent canvas.
func (r *Renderer) Render(faces []facematch.RecognizedFace) (*image.RGBA, error) {
	return r.RenderOn(r.Canvas(), faces)
}

// RenderOn draws faces onto a fresh canvas of the given placement without touching
// the renderer's own canvas, so one renderer can serve concurrent requests.
func (r *Renderer) RenderOn(c Canvas, faces []facematch.RecognizedFace) (*image.RGBA, error) {
	if c.Empty() {
		return nil, fmt.Errorf("canvas has no size (%dx%d)", c.Width, c.Height)
	}
	dst := image.NewRGBA(c.Bounds())
	for _, f := range faces {
		r.drawFace(dst, f)
	}
	return dst, nil
}

func (r *Renderer) drawFace(dst *image.RGBA, f facematch.RecognizedFace) {
	boxColor := r.style.BoxColor
	if f.Match != nil && f.Match.Unknown() {
		boxColor = r.style.UnknownColor
	}

	rect := image.Rect(
		int(f.Box.X), int(f.Box.Y),
		int(f.Box.X+f.Box.Width), int(f.Box.Y+f.Box.Height),
	)
	strokeRect(dst, rect, r.style.LineWidth, boxColor)

	for _, p := range f.Landmarks {
		fillDot(dst, int(p.X), int(p.Y), r.style.LandmarkRadius, r.style.LandmarkColor)
	}

	// Caption above the box: "label (0.42)" when matched, detector score otherwise
	caption := fmt.Sprintf("%.2f", f.Score)
	if f.Match != nil {
		caption = f.Match.String()
	}
	r.drawLabel(dst, rect.Min.X, rect.Min.Y, caption, boxColor, true)

	// Expressions stacked below the box
	y := rect.Max.Y
	for _, line := range r.expressionLines(f.Detection) {
		y += r.drawLabel(dst, rect.Min.X, y, line, r.style.LabelBackground, false)
	}
}

func (r *Renderer) expressionLines(det facematch.Detection) []string {
	name, score, ok := det.TopExpression()
	if !ok || score < r.style.MinExpressionScore {
		return nil
	}
	lines := []string{fmt.Sprintf("%s (%.2f)", name, score)}

	// Other confident expressions follow in descending order
	type scored struct {
		name  string
		score float64
	}
	var rest []scored
	for n, s := range det.Expressions {
		if n != name && s >= r.style.MinExpressionScore {
			rest = append(rest, scored{n, s})
		}
	}
	slices.SortFunc(rest, func(a, b scored) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		case a.name < b.name:
			return -1
		case a.name > b.name:
			return 1
		}
		return 0
	})
	for _, s := range rest {
		lines = append(lines, fmt.Sprintf("%s (%.2f)", s.name, s.score))
	}
	return lines
}

// drawLabel draws text on a filled background anchored at (x, y). With above set the
// label sits on top of y, otherwise below it. It returns the label height.
func (r *Renderer) drawLabel(dst *image.RGBA, x, y int, text string, bg color.RGBA, above bool) int {
	const pad = 2
	metrics := r.face.Metrics()
	textW := font.MeasureString(r.face, text).Ceil()
	textH := (metrics.Ascent + metrics.Descent).Ceil()
	h := textH + 2*pad

	top := y
	if above {
		top = y - h
		if top < 0 {
			top = y // no room above, draw inside the box
		}
	}

	bgRect := image.Rect(x, top, x+textW+2*pad, top+h).Intersect(dst.Bounds())
	draw.Draw(dst, bgRect, image.NewUniform(bg), image.Point{}, draw.Over)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(r.style.TextColor),
		Face: r.face,
		Dot:  fixed.P(x+pad, top+pad+metrics.Ascent.Ceil()),
	}
	d.DrawString(text)
	return h
}

func strokeRect(dst *image.RGBA, rect image.Rectangle, width int, c color.Color) {
	src := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(rect.Min.X, rect.Min.Y, rect.Max.X, rect.Min.Y+width),
		image.Rect(rect.Min.X, rect.Max.Y-width, rect.Max.X, rect.Max.Y),
		image.Rect(rect.Min.X, rect.Min.Y, rect.Min.X+width, rect.Max.Y),
		image.Rect(rect.Max.X-width, rect.Min.Y, rect.Max.X, rect.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(dst.Bounds()), src, image.Point{}, draw.Over)
	}
}

func fillDot(dst *image.RGBA, x, y, radius int, c color.Color) {
	rect := image.Rect(x-radius, y-radius, x+radius+1, y+radius+1).Intersect(dst.Bounds())
	draw.Draw(dst, rect, image.NewUniform(c), image.Point{}, draw.Over)
}

// Composite scales the media to the overlay size and draws the overlay on top.
func Composite(media image.Image, overlay *image.RGBA) *image.RGBA {
	out := image.NewRGBA(overlay.Bounds())
	if media != nil {
		draw.CatmullRom.Scale(out, out.Bounds(), media, media.Bounds(), draw.Over, nil)
	}
	draw.Draw(out, out.Bounds(), overlay, image.Point{}, draw.Over)
	return out
}

// EncodePNG writes the image as PNG, keeping transparency.
func EncodePNG(w io.Writer, img image.Image) error {
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("failed to encode png: %w", err)
	}
	return nil
}

// EncodeJPEG writes the image as JPEG.
func EncodeJPEG(w io.Writer, img image.Image, quality int) error {
	if err := jpeg.Encode(w, img, &jpeg.Options{Quality: quality}); err != nil {
		return fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return nil
}
