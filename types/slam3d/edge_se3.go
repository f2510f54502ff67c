package slam3d

import (
	"io"

	"github.com/pkg/errors"

	"go.viam.com/posegraph/graph"
	"go.viam.com/posegraph/spatialmath"
	"go.viam.com/posegraph/utils"
)

func readSE3(tok *graph.Tokens) (spatialmath.SE3Quat, error) {
	vals, err := tok.Floats(7)
	if err != nil {
		return spatialmath.SE3Quat{}, err
	}
	return spatialmath.NewSE3QuatFromVector(vals), nil
}

// writeRecord writes the given values followed by the upper triangle of info.
func writeRecord(w io.Writer, e graph.Edge, vals ...float64) error {
	return graph.WriteFloats(w, append(vals, graph.UpperTriangle(e.Information())...)...)
}

func readInformation(tok *graph.Tokens, e graph.Edge) error {
	info, err := graph.ReadInformation(tok, e.Dimension())
	if err != nil {
		return err
	}
	e.SetInformation(info)
	return nil
}

// EdgeSE3 is the relative pose of its second vertex as observed from its first. The error is the
// minimal vector of meas^-1 * (vi^-1 * vj).
type EdgeSE3 struct {
	graph.BaseEdge
	measurement spatialmath.SE3Quat
	inverse     spatialmath.SE3Quat
}

// NewEdgeSE3 returns an edge with an identity measurement and information.
func NewEdgeSE3() *EdgeSE3 {
	e := &EdgeSE3{BaseEdge: graph.NewBaseEdge(6, 6, 6)}
	e.SetMeasurement(spatialmath.NewSE3Quat())
	return e
}

// Measurement returns the measured relative pose.
func (e *EdgeSE3) Measurement() spatialmath.SE3Quat {
	return e.measurement
}

// SetMeasurement sets the measured relative pose.
func (e *EdgeSE3) SetMeasurement(m spatialmath.SE3Quat) {
	e.measurement = m
	e.inverse = m.Inverse()
}

// MeasurementData returns the measurement as [tx ty tz qx qy qz qw].
func (e *EdgeSE3) MeasurementData() []float64 {
	return e.measurement.Vector()
}

// SetMeasurementData sets the measurement from [tx ty tz qx qy qz qw].
func (e *EdgeSE3) SetMeasurementData(d []float64) error {
	if len(d) != 7 {
		return errors.Errorf("SE3 measurement needs 7 values, got %d", len(d))
	}
	e.SetMeasurement(spatialmath.NewSE3QuatFromVector(d))
	return nil
}

// SetMeasurementFromState sets the measurement to the current relative pose of the vertices.
func (e *EdgeSE3) SetMeasurementFromState(vs []graph.Vertex) {
	from := utils.MustAssertType[*VertexSE3](vs[0])
	to := utils.MustAssertType[*VertexSE3](vs[1])
	e.SetMeasurement(from.Estimate().Between(to.Estimate()))
}

// ComputeError implements graph.Edge.
func (e *EdgeSE3) ComputeError(vs []graph.Vertex) {
	from := utils.MustAssertType[*VertexSE3](vs[0])
	to := utils.MustAssertType[*VertexSE3](vs[1])
	delta := e.inverse.Compose(from.Estimate().Between(to.Estimate()))
	copy(e.Error(), delta.MinimalVector())
}

// InitialEstimatePossible implements graph.InitialEstimator.
func (e *EdgeSE3) InitialEstimatePossible(from map[int]bool, to int) float64 {
	ids := e.Vertices()
	switch to {
	case ids[1]:
		if from[ids[0]] {
			return 1
		}
	case ids[0]:
		if from[ids[1]] {
			return 1
		}
	}
	return -1
}

// InitialEstimate implements graph.InitialEstimator.
func (e *EdgeSE3) InitialEstimate(vs []graph.Vertex, from map[int]bool, to int) {
	v0 := utils.MustAssertType[*VertexSE3](vs[0])
	v1 := utils.MustAssertType[*VertexSE3](vs[1])
	if to == e.Vertices()[1] {
		v1.SetEstimate(v0.Estimate().Compose(e.measurement))
		return
	}
	v0.SetEstimate(v1.Estimate().Compose(e.inverse))
}

func (e *EdgeSE3) Read(tok *graph.Tokens) error {
	m, err := readSE3(tok)
	if err != nil {
		return err
	}
	e.SetMeasurement(m)
	return readInformation(tok, e)
}

func (e *EdgeSE3) Write(w io.Writer) error {
	return writeRecord(w, e, e.measurement.Vector()...)
}

// EdgeSE3Prior is a unary edge pinning a pose to an absolute measurement.
type EdgeSE3Prior struct {
	graph.BaseEdge
	measurement spatialmath.SE3Quat
	inverse     spatialmath.SE3Quat
}

// NewEdgeSE3Prior returns a prior at the identity pose.
func NewEdgeSE3Prior() *EdgeSE3Prior {
	e := &EdgeSE3Prior{BaseEdge: graph.NewBaseEdge(6, 6)}
	e.SetMeasurement(spatialmath.NewSE3Quat())
	return e
}

func (e *EdgeSE3Prior) Measurement() spatialmath.SE3Quat {
	return e.measurement
}

func (e *EdgeSE3Prior) SetMeasurement(m spatialmath.SE3Quat) {
	e.measurement = m
	e.inverse = m.Inverse()
}

func (e *EdgeSE3Prior) MeasurementData() []float64 {
	return e.measurement.Vector()
}

func (e *EdgeSE3Prior) SetMeasurementData(d []float64) error {
	if len(d) != 7 {
		return errors.Errorf("SE3 measurement needs 7 values, got %d", len(d))
	}
	e.SetMeasurement(spatialmath.NewSE3QuatFromVector(d))
	return nil
}

// SetMeasurementFromState sets the measurement to the vertex's current pose.
func (e *EdgeSE3Prior) SetMeasurementFromState(vs []graph.Vertex) {
	e.SetMeasurement(utils.MustAssertType[*VertexSE3](vs[0]).Estimate())
}

// ComputeError implements graph.Edge.
func (e *EdgeSE3Prior) ComputeError(vs []graph.Vertex) {
	v := utils.MustAssertType[*VertexSE3](vs[0])
	copy(e.Error(), e.inverse.Compose(v.Estimate()).MinimalVector())
}

// InitialEstimatePossible implements graph.InitialEstimator. A prior can always place its vertex.
func (e *EdgeSE3Prior) InitialEstimatePossible(from map[int]bool, to int) float64 {
	if to != e.Vertices()[0] {
		return -1
	}
	return 1
}

// InitialEstimate implements graph.InitialEstimator.
func (e *EdgeSE3Prior) InitialEstimate(vs []graph.Vertex, from map[int]bool, to int) {
	utils.MustAssertType[*VertexSE3](vs[0]).SetEstimate(e.measurement)
}

func (e *EdgeSE3Prior) Read(tok *graph.Tokens) error {
	m, err := readSE3(tok)
	if err != nil {
		return err
	}
	e.SetMeasurement(m)
	return readInformation(tok, e)
}

func (e *EdgeSE3Prior) Write(w io.Writer) error {
	return writeRecord(w, e, e.measurement.Vector()...)
}
