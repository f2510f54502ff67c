// Package slam2d provides planar pose graph elements: SE2 poses, 2D points, odometry and loop
// closure edges, pose priors and point observations. Every edge has closed-form Jacobians.
package slam2d

import (
	"io"

	"github.com/golang/geo/r2"

	"go.viam.com/posegraph/graph"
	"go.viam.com/posegraph/spatialmath"
)

// VertexSE2 is a planar pose [x y theta]. Increments are added in the world frame and the
// heading is wrapped into [-pi, pi).
type VertexSE2 struct {
	graph.BaseVertex
	estimate spatialmath.SE2
}

// NewVertexSE2 returns a vertex at the origin.
func NewVertexSE2() *VertexSE2 {
	return &VertexSE2{}
}

func (v *VertexSE2) Estimate() spatialmath.SE2 {
	return v.estimate
}

func (v *VertexSE2) SetEstimate(p spatialmath.SE2) {
	v.estimate = p
	v.Caches().Update(v)
}

func (v *VertexSE2) Dimension() int         { return 3 }
func (v *VertexSE2) EstimateDimension() int { return 3 }

// Oplus implements graph.Vertex.
func (v *VertexSE2) Oplus(delta []float64) {
	v.estimate = spatialmath.SE2{
		Translation: v.estimate.Translation.Add(r2.Point{X: delta[0], Y: delta[1]}),
		Theta:       spatialmath.NormalizeTheta(v.estimate.Theta + delta[2]),
	}
	v.Caches().Update(v)
}

func (v *VertexSE2) EstimateData() []float64 {
	return v.estimate.Vector()
}

func (v *VertexSE2) SetEstimateData(data []float64) error {
	if len(data) != 3 {
		return graph.ErrBadEstimateData
	}
	v.SetEstimate(spatialmath.NewSE2FromVector(data))
	return nil
}

func (v *VertexSE2) Clone() graph.Vertex {
	return &VertexSE2{BaseVertex: v.CloneBase(), estimate: v.estimate}
}

func (v *VertexSE2) Read(tok *graph.Tokens) error {
	vals, err := tok.Floats(3)
	if err != nil {
		return err
	}
	return v.SetEstimateData(vals)
}

func (v *VertexSE2) Write(w io.Writer) error {
	return graph.WriteFloats(w, v.EstimateData()...)
}

// VertexPointXY is a 2D point.
type VertexPointXY struct {
	graph.BaseVertex
	estimate r2.Point
}

// NewVertexPointXY returns a vertex at the origin.
func NewVertexPointXY() *VertexPointXY {
	return &VertexPointXY{}
}

func (v *VertexPointXY) Estimate() r2.Point {
	return v.estimate
}

func (v *VertexPointXY) SetEstimate(p r2.Point) {
	v.estimate = p
	v.Caches().Update(v)
}

func (v *VertexPointXY) Dimension() int         { return 2 }
func (v *VertexPointXY) EstimateDimension() int { return 2 }

func (v *VertexPointXY) Oplus(delta []float64) {
	v.estimate = v.estimate.Add(r2.Point{X: delta[0], Y: delta[1]})
	v.Caches().Update(v)
}

func (v *VertexPointXY) EstimateData() []float64 {
	return []float64{v.estimate.X, v.estimate.Y}
}

func (v *VertexPointXY) SetEstimateData(data []float64) error {
	if len(data) != 2 {
		return graph.ErrBadEstimateData
	}
	v.SetEstimate(r2.Point{X: data[0], Y: data[1]})
	return nil
}

func (v *VertexPointXY) Clone() graph.Vertex {
	return &VertexPointXY{BaseVertex: v.CloneBase(), estimate: v.estimate}
}

func (v *VertexPointXY) Read(tok *graph.Tokens) error {
	vals, err := tok.Floats(2)
	if err != nil {
		return err
	}
	return v.SetEstimateData(vals)
}

func (v *VertexPointXY) Write(w io.Writer) error {
	return graph.WriteFloats(w, v.EstimateData()...)
}
