package visual

import "math"

// Geometry is the drawing surface in CSS-style units plus its pixel ratio.
type Geometry struct {
	Width  float64
	Height float64
	DPR    float64
}

func (g Geometry) ratio() float64 {
	if g.DPR <= 0 {
		return 1
	}
	return g.DPR
}

type Progress struct {
	Position float64
	Duration float64
	Show     bool
}

type Rect struct {
	X, Y, W, H float64
}

type Frame struct {
	Levels []byte
	Bars   []Rect
	Marker *Rect
	Mode   Mode
}

// Layout places one bar per level across the surface in device pixels and,
// when a finite duration is known, a two-pixel-wide progress marker.
func Layout(levels []byte, g Geometry, p Progress) Frame {
	dpr := g.ratio()
	w := g.Width * dpr
	h := g.Height * dpr

	frame := Frame{Levels: levels, Bars: make([]Rect, len(levels))}
	if len(levels) == 0 || w <= 0 || h <= 0 {
		frame.Bars = frame.Bars[:0]
		return frame
	}

	n := float64(len(levels))
	barW := math.Max(w/n-1, 0)
	for i, level := range levels {
		barH := float64(level) / 255 * h
		frame.Bars[i] = Rect{
			X: float64(i) * w / n,
			Y: h - barH,
			W: barW,
			H: barH,
		}
	}

	if p.Show && p.Duration > 0 && !math.IsInf(p.Duration, 0) && !math.IsNaN(p.Duration) {
		pos := math.Min(math.Max(p.Position, 0), p.Duration)
		frame.Marker = &Rect{X: pos / p.Duration * w, Y: 0, W: 2 * dpr, H: h}
	}
	return frame
}

// SeekFromClick maps a horizontal offset on a surface of the given width to
// a position in [0, duration]. It reports false when no seek applies.
func SeekFromClick(x, width, duration float64) (float64, bool) {
	if width <= 0 || duration <= 0 || math.IsNaN(duration) || math.IsInf(duration, 0) {
		return 0, false
	}
	at := x / width * duration
	return math.Min(math.Max(at, 0), duration), true
}
