package spatialmath

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// SE3Quat is a rigid transform in 3D made of a translation and a unit quaternion rotation.
// Points are mapped as p' = R*p + t.
type SE3Quat struct {
	Translation r3.Vector
	Rotation    quat.Number
}

// NewSE3Quat returns the identity transform.
func NewSE3Quat() SE3Quat {
	return SE3Quat{Rotation: quat.Number{Real: 1}}
}

// NewSE3QuatFromTranslation returns a pure translation.
func NewSE3QuatFromTranslation(x, y, z float64) SE3Quat {
	return SE3Quat{Translation: r3.Vector{X: x, Y: y, Z: z}, Rotation: quat.Number{Real: 1}}
}

// NewSE3QuatFromAxisAngle returns a transform rotating by the given axis angle followed by the translation.
func NewSE3QuatFromAxisAngle(t r3.Vector, aa *R4AA) SE3Quat {
	return SE3Quat{Translation: t, Rotation: aa.ToQuat()}
}

// NewSE3QuatFromVector builds a transform from [tx ty tz qx qy qz qw]. The quaternion is taken as
// is so that parsing a written vector reproduces it exactly; call Normalize if the input may drift.
func NewSE3QuatFromVector(v []float64) SE3Quat {
	return SE3Quat{
		Translation: r3.Vector{X: v[0], Y: v[1], Z: v[2]},
		Rotation:    quat.Number{Real: v[6], Imag: v[3], Jmag: v[4], Kmag: v[5]},
	}
}

// NewSE3QuatFromMinimal builds a transform from the 6-vector [tx ty tz qx qy qz] where the rotation
// is given by the vector part of a unit quaternion with non-negative real part.
func NewSE3QuatFromMinimal(v []float64) SE3Quat {
	qx, qy, qz := v[3], v[4], v[5]
	n := qx*qx + qy*qy + qz*qz
	var w float64
	if n > 1 {
		s := 1 / math.Sqrt(n)
		qx, qy, qz = qx*s, qy*s, qz*s
	} else {
		w = math.Sqrt(1 - n)
	}
	return SE3Quat{
		Translation: r3.Vector{X: v[0], Y: v[1], Z: v[2]},
		Rotation:    quat.Number{Real: w, Imag: qx, Jmag: qy, Kmag: qz},
	}
}

// Vector returns [tx ty tz qx qy qz qw].
func (p SE3Quat) Vector() []float64 {
	return []float64{
		p.Translation.X, p.Translation.Y, p.Translation.Z,
		p.Rotation.Imag, p.Rotation.Jmag, p.Rotation.Kmag, p.Rotation.Real,
	}
}

// MinimalVector returns [tx ty tz qx qy qz] with the quaternion sign chosen so that qw >= 0.
func (p SE3Quat) MinimalVector() []float64 {
	q := p.Rotation
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	return []float64{p.Translation.X, p.Translation.Y, p.Translation.Z, q.Imag, q.Jmag, q.Kmag}
}

// Normalize rescales the rotation to unit length and returns the result.
func (p SE3Quat) Normalize() SE3Quat {
	n := quat.Abs(p.Rotation)
	if n == 0 {
		p.Rotation = quat.Number{Real: 1}
		return p
	}
	p.Rotation = quat.Scale(1/n, p.Rotation)
	return p
}

// Compose returns p*o, the transform applying o first and then p.
func (p SE3Quat) Compose(o SE3Quat) SE3Quat {
	return SE3Quat{
		Translation: p.Transform(o.Translation),
		Rotation:    quat.Mul(p.Rotation, o.Rotation),
	}
}

// Inverse returns the inverse transform.
func (p SE3Quat) Inverse() SE3Quat {
	inv := quat.Conj(p.Rotation)
	t := RotateVector(inv, p.Translation)
	return SE3Quat{Translation: t.Mul(-1), Rotation: inv}
}

// Between returns p^-1 * o, the pose of o expressed in the frame of p.
func (p SE3Quat) Between(o SE3Quat) SE3Quat {
	return p.Inverse().Compose(o)
}

// Transform applies the transform to a point.
func (p SE3Quat) Transform(pt r3.Vector) r3.Vector {
	return RotateVector(p.Rotation, pt).Add(p.Translation)
}

// Mat4 returns the homogeneous matrix of the transform.
func (p SE3Quat) Mat4() mgl64.Mat4 {
	r := mgl64.Quat{W: p.Rotation.Real, V: mgl64.Vec3{p.Rotation.Imag, p.Rotation.Jmag, p.Rotation.Kmag}}
	m := r.Normalize().Mat4()
	m.SetCol(3, mgl64.Vec4{p.Translation.X, p.Translation.Y, p.Translation.Z, 1})
	return m
}

// AlmostEqual reports whether both transforms agree within tol on translation and on the rotation
// (quaternions q and -q are the same rotation).
func (p SE3Quat) AlmostEqual(o SE3Quat, tol float64) bool {
	if p.Translation.Sub(o.Translation).Norm() > tol {
		return false
	}
	d := p.Rotation.Real*o.Rotation.Real + p.Rotation.Imag*o.Rotation.Imag +
		p.Rotation.Jmag*o.Rotation.Jmag + p.Rotation.Kmag*o.Rotation.Kmag
	return 1-math.Abs(d) <= tol
}

// RotateVector rotates v by the unit quaternion q.
func RotateVector(q quat.Number, v r3.Vector) r3.Vector {
	u := r3.Vector{X: q.Imag, Y: q.Jmag, Z: q.Kmag}
	t := u.Cross(v).Mul(2)
	return v.Add(t.Mul(q.Real)).Add(u.Cross(t))
}

// TransformPoint applies a homogeneous transform to a point.
func TransformPoint(m mgl64.Mat4, pt r3.Vector) r3.Vector {
	out := m.Mul4x1(mgl64.Vec4{pt.X, pt.Y, pt.Z, 1})
	return r3.Vector{X: out[0], Y: out[1], Z: out[2]}
}
