package tracking

import "math"

// Smoother is a per-axis exponential moving average over pixel coordinates.
type Smoother struct {
	AlphaX float64
	AlphaY float64
}

// Smooth blends raw into prev: s = round(α·raw + (1-α)·prev) on each axis.
func (s Smoother) Smooth(prev, raw Point) Point {
	return Point{
		X: blend(s.AlphaX, raw.X, prev.X),
		Y: blend(s.AlphaY, raw.Y, prev.Y),
	}
}

func blend(alpha float64, raw, prev int) int {
	return int(math.Round(alpha*float64(raw) + (1-alpha)*float64(prev)))
}
