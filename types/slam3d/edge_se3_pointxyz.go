package slam3d

import (
	"io"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/posegraph/graph"
	"go.viam.com/posegraph/spatialmath"
	"go.viam.com/posegraph/utils"
)

// OffsetCache holds the sensor pose v*offset of a VertexSE3 as homogeneous matrices, shared by
// every edge observing through the same offset.
type OffsetCache struct {
	vertexID      int
	offset        spatialmath.SE3Quat
	sensorToWorld mgl64.Mat4
	worldToSensor mgl64.Mat4
}

// VertexID implements graph.Cache.
func (c *OffsetCache) VertexID() int {
	return c.vertexID
}

// Update implements graph.Cache.
func (c *OffsetCache) Update(v graph.Vertex) {
	pose := utils.MustAssertType[*VertexSE3](v).Estimate().Compose(c.offset)
	n2w := pose.Mat4()
	c.sensorToWorld, c.worldToSensor = n2w, n2w.Inv()
}

// Clone implements graph.Cache.
func (c *OffsetCache) Clone() graph.Cache {
	cp := *c
	return &cp
}

// WorldToSensor returns the transform taking world points into the sensor frame.
func (c *OffsetCache) WorldToSensor() mgl64.Mat4 {
	return c.worldToSensor
}

// SensorToWorld returns the sensor pose in the world frame.
func (c *OffsetCache) SensorToWorld() mgl64.Mat4 {
	return c.sensorToWorld
}

func offsetCacheKey(offset spatialmath.SE3Quat) string {
	var sb strings.Builder
	sb.WriteString("se3offset")
	for _, x := range offset.Vector() {
		sb.WriteByte(' ')
		sb.WriteString(graph.FormatFloat(x))
	}
	return sb.String()
}

// EdgeSE3PointXYZ is the position of a point observed from a sensor mounted at Offset on a pose.
// The error is (v*offset)^-1 * p - meas.
type EdgeSE3PointXYZ struct {
	graph.BaseEdge
	measurement r3.Vector
	offset      spatialmath.SE3Quat
	cacheKey    string
}

// NewEdgeSE3PointXYZ returns an edge with the sensor at the pose origin.
func NewEdgeSE3PointXYZ() *EdgeSE3PointXYZ {
	e := &EdgeSE3PointXYZ{BaseEdge: graph.NewBaseEdge(3, 6, 3)}
	e.SetOffset(spatialmath.NewSE3Quat())
	return e
}

// Offset returns the sensor pose relative to the vertex.
func (e *EdgeSE3PointXYZ) Offset() spatialmath.SE3Quat {
	return e.offset
}

// SetOffset sets the sensor pose relative to the vertex. It must be set before the edge is added
// to a graph, since the cache is attached at that time.
func (e *EdgeSE3PointXYZ) SetOffset(offset spatialmath.SE3Quat) {
	e.offset = offset
	e.cacheKey = offsetCacheKey(offset)
}

func (e *EdgeSE3PointXYZ) Measurement() r3.Vector {
	return e.measurement
}

func (e *EdgeSE3PointXYZ) SetMeasurement(m r3.Vector) {
	e.measurement = m
}

func (e *EdgeSE3PointXYZ) MeasurementData() []float64 {
	return []float64{e.measurement.X, e.measurement.Y, e.measurement.Z}
}

func (e *EdgeSE3PointXYZ) SetMeasurementData(d []float64) error {
	if len(d) != 3 {
		return errors.Errorf("point measurement needs 3 values, got %d", len(d))
	}
	e.measurement = r3.Vector{X: d[0], Y: d[1], Z: d[2]}
	return nil
}

// SetMeasurementFromState sets the measurement to the point as currently seen by the sensor.
func (e *EdgeSE3PointXYZ) SetMeasurementFromState(vs []graph.Vertex) {
	e.measurement = spatialmath.TransformPoint(e.worldToSensor(vs[0]), utils.MustAssertType[*VertexPointXYZ](vs[1]).Estimate())
}

// CreateCaches implements graph.CacheCreator.
func (e *EdgeSE3PointXYZ) CreateCaches(vs []graph.Vertex) {
	pose := vs[0]
	offset := e.offset
	pose.Caches().GetOrCreate(e.cacheKey, pose, func() graph.Cache {
		return &OffsetCache{vertexID: pose.ID(), offset: offset}
	})
}

func (e *EdgeSE3PointXYZ) worldToSensor(v graph.Vertex) mgl64.Mat4 {
	if c, ok := v.Caches().Get(e.cacheKey); ok {
		return c.(*OffsetCache).worldToSensor
	}
	pose := utils.MustAssertType[*VertexSE3](v).Estimate().Compose(e.offset)
	return pose.Mat4().Inv()
}

// ComputeError implements graph.Edge.
func (e *EdgeSE3PointXYZ) ComputeError(vs []graph.Vertex) {
	p := utils.MustAssertType[*VertexPointXYZ](vs[1]).Estimate()
	local := spatialmath.TransformPoint(e.worldToSensor(vs[0]), p).Sub(e.measurement)
	out := e.Error()
	out[0], out[1], out[2] = local.X, local.Y, local.Z
}

// InitialEstimatePossible implements graph.InitialEstimator. Only the point can be placed.
func (e *EdgeSE3PointXYZ) InitialEstimatePossible(from map[int]bool, to int) float64 {
	ids := e.Vertices()
	if to == ids[1] && from[ids[0]] {
		return 1
	}
	return -1
}

// InitialEstimate implements graph.InitialEstimator.
func (e *EdgeSE3PointXYZ) InitialEstimate(vs []graph.Vertex, from map[int]bool, to int) {
	pose := utils.MustAssertType[*VertexSE3](vs[0]).Estimate().Compose(e.offset)
	utils.MustAssertType[*VertexPointXYZ](vs[1]).SetEstimate(pose.Transform(e.measurement))
}

// Read parses offset, measurement and information.
func (e *EdgeSE3PointXYZ) Read(tok *graph.Tokens) error {
	offset, err := readSE3(tok)
	if err != nil {
		return err
	}
	e.SetOffset(offset)
	m, err := tok.Floats(3)
	if err != nil {
		return err
	}
	if err := e.SetMeasurementData(m); err != nil {
		return err
	}
	return readInformation(tok, e)
}

func (e *EdgeSE3PointXYZ) Write(w io.Writer) error {
	return writeRecord(w, e, append(e.offset.Vector(), e.MeasurementData()...)...)
}
