package slam2d

import (
	"io"
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/posegraph/graph"
	"go.viam.com/posegraph/spatialmath"
	"go.viam.com/posegraph/utils"
)

func readInformation(tok *graph.Tokens, e graph.Edge) error {
	info, err := graph.ReadInformation(tok, e.Dimension())
	if err != nil {
		return err
	}
	e.SetInformation(info)
	return nil
}

func writeRecord(w io.Writer, e graph.Edge, vals ...float64) error {
	return graph.WriteFloats(w, append(vals, graph.UpperTriangle(e.Information())...)...)
}

func readSE2(tok *graph.Tokens) (spatialmath.SE2, error) {
	vals, err := tok.Floats(3)
	if err != nil {
		return spatialmath.SE2{}, err
	}
	return spatialmath.NewSE2FromVector(vals), nil
}

func setSE2Error(dst []float64, delta spatialmath.SE2) {
	dst[0], dst[1], dst[2] = delta.Translation.X, delta.Translation.Y, spatialmath.NormalizeTheta(delta.Theta)
}

// rotateRows left-multiplies the first two rows of j by the rotation R(theta).
func rotateRows(j *mat.Dense, theta float64) {
	s, c := math.Sincos(theta)
	_, cols := j.Dims()
	for k := 0; k < cols; k++ {
		a, b := j.At(0, k), j.At(1, k)
		j.Set(0, k, c*a-s*b)
		j.Set(1, k, s*a+c*b)
	}
}

// EdgeSE2 is the relative pose of its second vertex seen from its first, as produced by odometry
// or scan matching. The error is meas^-1 * (vi^-1 * vj) with the heading wrapped.
type EdgeSE2 struct {
	graph.BaseEdge
	measurement spatialmath.SE2
	inverse     spatialmath.SE2
}

// NewEdgeSE2 returns an edge with an identity measurement and information.
func NewEdgeSE2() *EdgeSE2 {
	e := &EdgeSE2{BaseEdge: graph.NewBaseEdge(3, 3, 3)}
	e.SetMeasurement(spatialmath.SE2{})
	return e
}

func (e *EdgeSE2) Measurement() spatialmath.SE2 {
	return e.measurement
}

func (e *EdgeSE2) SetMeasurement(m spatialmath.SE2) {
	e.measurement = m
	e.inverse = m.Inverse()
}

func (e *EdgeSE2) MeasurementData() []float64 {
	return e.measurement.Vector()
}

func (e *EdgeSE2) SetMeasurementData(d []float64) error {
	if len(d) != 3 {
		return errors.Errorf("SE2 measurement needs 3 values, got %d", len(d))
	}
	e.SetMeasurement(spatialmath.NewSE2FromVector(d))
	return nil
}

func (e *EdgeSE2) SetMeasurementFromState(vs []graph.Vertex) {
	vi := utils.MustAssertType[*VertexSE2](vs[0])
	vj := utils.MustAssertType[*VertexSE2](vs[1])
	e.SetMeasurement(vi.Estimate().Between(vj.Estimate()))
}

// ComputeError implements graph.Edge.
func (e *EdgeSE2) ComputeError(vs []graph.Vertex) {
	vi := utils.MustAssertType[*VertexSE2](vs[0])
	vj := utils.MustAssertType[*VertexSE2](vs[1])
	setSE2Error(e.Error(), e.inverse.Compose(vi.Estimate().Between(vj.Estimate())))
}

// LinearizeOplus implements graph.AnalyticJacobian.
func (e *EdgeSE2) LinearizeOplus(vs []graph.Vertex) {
	pi := utils.MustAssertType[*VertexSE2](vs[0]).Estimate()
	pj := utils.MustAssertType[*VertexSE2](vs[1]).Estimate()
	s, c := math.Sincos(pi.Theta)
	dt := pj.Translation.Sub(pi.Translation)

	ji := e.Jacobian(0)
	ji.Copy(mat.NewDense(3, 3, []float64{
		-c, -s, -s*dt.X + c*dt.Y,
		s, -c, -c*dt.X - s*dt.Y,
		0, 0, -1,
	}))
	jj := e.Jacobian(1)
	jj.Copy(mat.NewDense(3, 3, []float64{
		c, s, 0,
		-s, c, 0,
		0, 0, 1,
	}))
	rotateRows(ji, -e.measurement.Theta)
	rotateRows(jj, -e.measurement.Theta)
}

// InitialEstimatePossible implements graph.InitialEstimator.
func (e *EdgeSE2) InitialEstimatePossible(from map[int]bool, to int) float64 {
	ids := e.Vertices()
	if (to == ids[1] && from[ids[0]]) || (to == ids[0] && from[ids[1]]) {
		return 1
	}
	return -1
}

// InitialEstimate implements graph.InitialEstimator.
func (e *EdgeSE2) InitialEstimate(vs []graph.Vertex, from map[int]bool, to int) {
	vi := utils.MustAssertType[*VertexSE2](vs[0])
	vj := utils.MustAssertType[*VertexSE2](vs[1])
	if to == e.Vertices()[1] {
		vj.SetEstimate(vi.Estimate().Compose(e.measurement))
		return
	}
	vi.SetEstimate(vj.Estimate().Compose(e.inverse))
}

func (e *EdgeSE2) Read(tok *graph.Tokens) error {
	m, err := readSE2(tok)
	if err != nil {
		return err
	}
	e.SetMeasurement(m)
	return readInformation(tok, e)
}

func (e *EdgeSE2) Write(w io.Writer) error {
	return writeRecord(w, e, e.measurement.Vector()...)
}

// EdgeSE2Prior pins a pose to an absolute measurement.
type EdgeSE2Prior struct {
	graph.BaseEdge
	measurement spatialmath.SE2
	inverse     spatialmath.SE2
}

// NewEdgeSE2Prior returns a prior at the origin.
func NewEdgeSE2Prior() *EdgeSE2Prior {
	e := &EdgeSE2Prior{BaseEdge: graph.NewBaseEdge(3, 3)}
	e.SetMeasurement(spatialmath.SE2{})
	return e
}

func (e *EdgeSE2Prior) Measurement() spatialmath.SE2 {
	return e.measurement
}

func (e *EdgeSE2Prior) SetMeasurement(m spatialmath.SE2) {
	e.measurement = m
	e.inverse = m.Inverse()
}

func (e *EdgeSE2Prior) MeasurementData() []float64 {
	return e.measurement.Vector()
}

func (e *EdgeSE2Prior) SetMeasurementData(d []float64) error {
	if len(d) != 3 {
		return errors.Errorf("SE2 measurement needs 3 values, got %d", len(d))
	}
	e.SetMeasurement(spatialmath.NewSE2FromVector(d))
	return nil
}

func (e *EdgeSE2Prior) SetMeasurementFromState(vs []graph.Vertex) {
	e.SetMeasurement(utils.MustAssertType[*VertexSE2](vs[0]).Estimate())
}

func (e *EdgeSE2Prior) ComputeError(vs []graph.Vertex) {
	v := utils.MustAssertType[*VertexSE2](vs[0])
	setSE2Error(e.Error(), e.inverse.Compose(v.Estimate()))
}

// LinearizeOplus implements graph.AnalyticJacobian.
func (e *EdgeSE2Prior) LinearizeOplus(vs []graph.Vertex) {
	j := e.Jacobian(0)
	j.Copy(mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}))
	rotateRows(j, -e.measurement.Theta)
}

func (e *EdgeSE2Prior) InitialEstimatePossible(from map[int]bool, to int) float64 {
	if to != e.Vertices()[0] {
		return -1
	}
	return 1
}

func (e *EdgeSE2Prior) InitialEstimate(vs []graph.Vertex, from map[int]bool, to int) {
	utils.MustAssertType[*VertexSE2](vs[0]).SetEstimate(e.measurement)
}

func (e *EdgeSE2Prior) Read(tok *graph.Tokens) error {
	m, err := readSE2(tok)
	if err != nil {
		return err
	}
	e.SetMeasurement(m)
	return readInformation(tok, e)
}

func (e *EdgeSE2Prior) Write(w io.Writer) error {
	return writeRecord(w, e, e.measurement.Vector()...)
}

// EdgeSE2PointXY is a point observed in the frame of a pose. The error is vi^-1 * p - meas.
type EdgeSE2PointXY struct {
	graph.BaseEdge
	measurement r2.Point
}

// NewEdgeSE2PointXY returns an edge with a zero measurement.
func NewEdgeSE2PointXY() *EdgeSE2PointXY {
	return &EdgeSE2PointXY{BaseEdge: graph.NewBaseEdge(2, 3, 2)}
}

func (e *EdgeSE2PointXY) Measurement() r2.Point {
	return e.measurement
}

func (e *EdgeSE2PointXY) SetMeasurement(m r2.Point) {
	e.measurement = m
}

func (e *EdgeSE2PointXY) MeasurementData() []float64 {
	return []float64{e.measurement.X, e.measurement.Y}
}

func (e *EdgeSE2PointXY) SetMeasurementData(d []float64) error {
	if len(d) != 2 {
		return errors.Errorf("point measurement needs 2 values, got %d", len(d))
	}
	e.measurement = r2.Point{X: d[0], Y: d[1]}
	return nil
}

func (e *EdgeSE2PointXY) SetMeasurementFromState(vs []graph.Vertex) {
	pose := utils.MustAssertType[*VertexSE2](vs[0]).Estimate()
	e.measurement = pose.Inverse().Transform(utils.MustAssertType[*VertexPointXY](vs[1]).Estimate())
}

func (e *EdgeSE2PointXY) ComputeError(vs []graph.Vertex) {
	pose := utils.MustAssertType[*VertexSE2](vs[0]).Estimate()
	p := utils.MustAssertType[*VertexPointXY](vs[1]).Estimate()
	local := spatialmath.RotatePoint(-pose.Theta, p.Sub(pose.Translation)).Sub(e.measurement)
	out := e.Error()
	out[0], out[1] = local.X, local.Y
}

// LinearizeOplus implements graph.AnalyticJacobian.
func (e *EdgeSE2PointXY) LinearizeOplus(vs []graph.Vertex) {
	pose := utils.MustAssertType[*VertexSE2](vs[0]).Estimate()
	p := utils.MustAssertType[*VertexPointXY](vs[1]).Estimate()
	s, c := math.Sincos(pose.Theta)
	x1, y1 := pose.Translation.X, pose.Translation.Y
	x2, y2 := p.X, p.Y

	e.Jacobian(0).Copy(mat.NewDense(2, 3, []float64{
		-c, -s, c*y2 - c*y1 - s*x2 + s*x1,
		s, -c, s*y1 - s*y2 - c*x2 + c*x1,
	}))
	e.Jacobian(1).Copy(mat.NewDense(2, 2, []float64{
		c, s,
		-s, c,
	}))
}

// InitialEstimatePossible implements graph.InitialEstimator. Only the point can be placed.
func (e *EdgeSE2PointXY) InitialEstimatePossible(from map[int]bool, to int) float64 {
	ids := e.Vertices()
	if to == ids[1] && from[ids[0]] {
		return 1
	}
	return -1
}

func (e *EdgeSE2PointXY) InitialEstimate(vs []graph.Vertex, from map[int]bool, to int) {
	pose := utils.MustAssertType[*VertexSE2](vs[0]).Estimate()
	utils.MustAssertType[*VertexPointXY](vs[1]).SetEstimate(pose.Transform(e.measurement))
}

func (e *EdgeSE2PointXY) Read(tok *graph.Tokens) error {
	m, err := tok.Floats(2)
	if err != nil {
		return err
	}
	if err := e.SetMeasurementData(m); err != nil {
		return err
	}
	return readInformation(tok, e)
}

func (e *EdgeSE2PointXY) Write(w io.Writer) error {
	return writeRecord(w, e, e.MeasurementData()...)
}
