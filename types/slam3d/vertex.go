// Package slam3d provides 3D pose graph elements: SE3 poses with quaternion rotations, point
// tracks, relative pose, prior and point observation edges.
package slam3d

import (
	"io"

	"github.com/golang/geo/r3"

	"go.viam.com/posegraph/graph"
	"go.viam.com/posegraph/spatialmath"
)

// VertexSE3 is a 3D pose. Its tangent space is [dt, dq] where dq is the vector part of a unit
// quaternion, applied on the right of the estimate.
type VertexSE3 struct {
	graph.BaseVertex
	estimate spatialmath.SE3Quat
}

// NewVertexSE3 returns a vertex at the identity pose.
func NewVertexSE3() *VertexSE3 {
	return &VertexSE3{estimate: spatialmath.NewSE3Quat()}
}

// Estimate returns the current pose.
func (v *VertexSE3) Estimate() spatialmath.SE3Quat {
	return v.estimate
}

// SetEstimate replaces the pose without going through Oplus.
func (v *VertexSE3) SetEstimate(p spatialmath.SE3Quat) {
	v.estimate = p
	v.Caches().Update(v)
}

// Dimension implements graph.Vertex.
func (v *VertexSE3) Dimension() int { return 6 }

// EstimateDimension implements graph.Vertex.
func (v *VertexSE3) EstimateDimension() int { return 7 }

// Oplus implements graph.Vertex.
func (v *VertexSE3) Oplus(delta []float64) {
	v.estimate = v.estimate.Compose(spatialmath.NewSE3QuatFromMinimal(delta)).Normalize()
	v.Caches().Update(v)
}

// EstimateData returns [tx ty tz qx qy qz qw].
func (v *VertexSE3) EstimateData() []float64 {
	return v.estimate.Vector()
}

// SetEstimateData implements graph.Vertex.
func (v *VertexSE3) SetEstimateData(data []float64) error {
	if len(data) != 7 {
		return graph.ErrBadEstimateData
	}
	v.SetEstimate(spatialmath.NewSE3QuatFromVector(data))
	return nil
}

// Clone implements graph.Vertex.
func (v *VertexSE3) Clone() graph.Vertex {
	return &VertexSE3{BaseVertex: v.CloneBase(), estimate: v.estimate}
}

func (v *VertexSE3) Read(tok *graph.Tokens) error {
	vals, err := tok.Floats(7)
	if err != nil {
		return err
	}
	return v.SetEstimateData(vals)
}

func (v *VertexSE3) Write(w io.Writer) error {
	return graph.WriteFloats(w, v.EstimateData()...)
}

// VertexPointXYZ is a 3D point.
type VertexPointXYZ struct {
	graph.BaseVertex
	estimate r3.Vector
}

// NewVertexPointXYZ returns a vertex at the origin.
func NewVertexPointXYZ() *VertexPointXYZ {
	return &VertexPointXYZ{}
}

// Estimate returns the current point.
func (v *VertexPointXYZ) Estimate() r3.Vector {
	return v.estimate
}

// SetEstimate replaces the point.
func (v *VertexPointXYZ) SetEstimate(p r3.Vector) {
	v.estimate = p
	v.Caches().Update(v)
}

func (v *VertexPointXYZ) Dimension() int         { return 3 }
func (v *VertexPointXYZ) EstimateDimension() int { return 3 }

// Oplus implements graph.Vertex.
func (v *VertexPointXYZ) Oplus(delta []float64) {
	v.estimate = v.estimate.Add(r3.Vector{X: delta[0], Y: delta[1], Z: delta[2]})
	v.Caches().Update(v)
}

func (v *VertexPointXYZ) EstimateData() []float64 {
	return []float64{v.estimate.X, v.estimate.Y, v.estimate.Z}
}

func (v *VertexPointXYZ) SetEstimateData(data []float64) error {
	if len(data) != 3 {
		return graph.ErrBadEstimateData
	}
	v.SetEstimate(r3.Vector{X: data[0], Y: data[1], Z: data[2]})
	return nil
}

func (v *VertexPointXYZ) Clone() graph.Vertex {
	return &VertexPointXYZ{BaseVertex: v.CloneBase(), estimate: v.estimate}
}

func (v *VertexPointXYZ) Read(tok *graph.Tokens) error {
	vals, err := tok.Floats(3)
	if err != nil {
		return err
	}
	return v.SetEstimateData(vals)
}

func (v *VertexPointXYZ) Write(w io.Writer) error {
	return graph.WriteFloats(w, v.EstimateData()...)
}
