// internal/game/geometry.go
package game

import "math"

// Vec is a 2D point or vector in board units.
type Vec struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (v Vec) Add(o Vec) Vec       { return Vec{v.X + o.X, v.Y + o.Y} }
func (v Vec) Sub(o Vec) Vec       { return Vec{v.X - o.X, v.Y - o.Y} }
func (v Vec) Scale(k float64) Vec { return Vec{v.X * k, v.Y * k} }
func (v Vec) Len() float64        { return math.Hypot(v.X, v.Y) }
func (v Vec) IsZero() bool        { return v.X == 0 && v.Y == 0 }
func (v Vec) Dist(o Vec) float64  { return v.Sub(o).Len() }

// Unit returns v scaled to length 1, or the zero vector.
func (v Vec) Unit() Vec {
	l := v.Len()
	if l == 0 {
		return Vec{}
	}
	return v.Scale(1 / l)
}

// Rect is an axis-aligned rectangle anchored at its top-left corner.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// CircleIntersects reports whether a circle overlaps r, using the point of r
// closest to the circle's center.
func (r Rect) CircleIntersects(c Vec, radius float64) bool {
	closest := Vec{clamp(c.X, r.X, r.X+r.W), clamp(c.Y, r.Y, r.Y+r.H)}
	return c.Dist(closest) < radius
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
