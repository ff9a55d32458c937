package facematch

import "slices"

// BoxFromCorners converts an [x1, y1, x2, y2] corner box into a Box.
// Anything other than four values yields the zero Box.
func BoxFromCorners(bbox []float64) Box {
	if len(bbox) != 4 {
		return Box{}
	}
	return Box{X: bbox[0], Y: bbox[1], Width: bbox[2] - bbox[0], Height: bbox[3] - bbox[1]}
}

// Corners returns the box as [x1, y1, x2, y2].
func (b Box) Corners() []float64 {
	return []float64{b.X, b.Y, b.X + b.Width, b.Y + b.Height}
}

// Scale multiplies position and size by the given factors.
func (b Box) Scale(sx, sy float64) Box {
	return Box{X: b.X * sx, Y: b.Y * sy, Width: b.Width * sx, Height: b.Height * sy}
}

// ComputeIoU calculates Intersection over Union between two boxes.
func ComputeIoU(a, b Box) float64 {
	x1 := max(a.X, b.X)
	y1 := max(a.Y, b.Y)
	x2 := min(a.X+a.Width, b.X+b.Width)
	y2 := min(a.Y+a.Height, b.Y+b.Height)

	if x2 <= x1 || y2 <= y1 {
		return 0
	}

	intersection := (x2 - x1) * (y2 - y1)
	union := a.Width*a.Height + b.Width*b.Height - intersection
	if union <= 0 {
		return 0
	}

	return intersection / union
}

// ResizeDetection maps a detection from media pixel space into display space.
// Box and landmarks are scaled; descriptor and expressions are shared, not copied.
func ResizeDetection(det Detection, media, display Size) Detection {
	if media.Empty() || display.Empty() || media == display {
		return det
	}
	sx := float64(display.Width) / float64(media.Width)
	sy := float64(display.Height) / float64(media.Height)

	out := det
	out.Box = det.Box.Scale(sx, sy)
	if len(det.Landmarks) > 0 {
		out.Landmarks = make([]Point, len(det.Landmarks))
		for i, p := range det.Landmarks {
			out.Landmarks[i] = Point{X: p.X * sx, Y: p.Y * sy}
		}
	}
	return out
}

// ResizeDetections applies ResizeDetection to every detection.
func ResizeDetections(dets []Detection, media, display Size) []Detection {
	out := make([]Detection, len(dets))
	for i, d := range dets {
		out[i] = ResizeDetection(d, media, display)
	}
	return out
}

// SuppressOverlaps drops detections that overlap a higher-scoring one by more than
// iouThreshold. The survivors keep their original order.
func SuppressOverlaps(dets []Detection, iouThreshold float64) []Detection {
	if len(dets) < 2 {
		return dets
	}

	order := make([]int, len(dets))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case dets[a].Score > dets[b].Score:
			return -1
		case dets[a].Score < dets[b].Score:
			return 1
		default:
			return 0
		}
	})

	keep := make([]bool, len(dets))
	var kept []int
	for _, i := range order {
		suppressed := false
		for _, k := range kept {
			if ComputeIoU(dets[i].Box, dets[k].Box) > iouThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			keep[i] = true
			kept = append(kept, i)
		}
	}

	out := make([]Detection, 0, len(kept))
	for i, d := range dets {
		if keep[i] {
			out = append(out, d)
		}
	}
	return out
}
