package spatialmath

import (
	"math"

	"github.com/golang/geo/r2"
)

// SE2 is a planar rigid transform, a translation plus a heading in radians normalized to [-pi, pi).
type SE2 struct {
	Translation r2.Point
	Theta       float64
}

// NewSE2 returns the transform with the given components.
func NewSE2(x, y, theta float64) SE2 {
	return SE2{Translation: r2.Point{X: x, Y: y}, Theta: NormalizeTheta(theta)}
}

// NewSE2FromVector builds a transform from [x y theta] without touching the angle, so parsing
// reproduces written values exactly.
func NewSE2FromVector(v []float64) SE2 {
	return SE2{Translation: r2.Point{X: v[0], Y: v[1]}, Theta: v[2]}
}

// Vector returns [x y theta].
func (p SE2) Vector() []float64 {
	return []float64{p.Translation.X, p.Translation.Y, p.Theta}
}

// Compose returns p*o.
func (p SE2) Compose(o SE2) SE2 {
	return SE2{
		Translation: p.Translation.Add(RotatePoint(p.Theta, o.Translation)),
		Theta:       NormalizeTheta(p.Theta + o.Theta),
	}
}

// Inverse returns the inverse transform.
func (p SE2) Inverse() SE2 {
	return SE2{
		Translation: RotatePoint(-p.Theta, p.Translation).Mul(-1),
		Theta:       NormalizeTheta(-p.Theta),
	}
}

// Between returns p^-1 * o.
func (p SE2) Between(o SE2) SE2 {
	return p.Inverse().Compose(o)
}

// Transform applies the transform to a point.
func (p SE2) Transform(pt r2.Point) r2.Point {
	return p.Translation.Add(RotatePoint(p.Theta, pt))
}

// AlmostEqual compares translation and heading within tol.
func (p SE2) AlmostEqual(o SE2, tol float64) bool {
	return p.Translation.Sub(o.Translation).Norm() <= tol &&
		math.Abs(NormalizeTheta(p.Theta-o.Theta)) <= tol
}

// RotatePoint rotates pt counterclockwise by theta.
func RotatePoint(theta float64, pt r2.Point) r2.Point {
	s, c := math.Sincos(theta)
	return r2.Point{X: c*pt.X - s*pt.Y, Y: s*pt.X + c*pt.Y}
}

// NormalizeTheta wraps an angle into [-pi, pi).
func NormalizeTheta(theta float64) float64 {
	if theta >= -math.Pi && theta < math.Pi {
		return theta
	}
	multiplier := math.Floor(theta / (2 * math.Pi))
	theta -= multiplier * 2 * math.Pi
	if theta >= math.Pi {
		theta -= 2 * math.Pi
	}
	if theta < -math.Pi {
		theta += 2 * math.Pi
	}
	return theta
}
