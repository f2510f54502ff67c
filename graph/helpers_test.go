package graph

import (
	"io"
	"math"
)

// vectorVertex is a point in R^n with plain addition as its retraction.
type vectorVertex struct {
	BaseVertex
	est []float64
}

func newVectorVertex(id int, est ...float64) *vectorVertex {
	v := &vectorVertex{est: est}
	v.SetID(id)
	return v
}

func (v *vectorVertex) Dimension() int         { return len(v.est) }
func (v *vectorVertex) EstimateDimension() int { return len(v.est) }

func (v *vectorVertex) Oplus(delta []float64) {
	for i := range v.est {
		v.est[i] += delta[i]
	}
	v.Caches().Update(v)
}

func (v *vectorVertex) EstimateData() []float64 { return append([]float64(nil), v.est...) }

func (v *vectorVertex) SetEstimateData(data []float64) error {
	if len(data) != len(v.est) {
		return ErrBadEstimateData
	}
	copy(v.est, data)
	v.Caches().Update(v)
	return nil
}

func (v *vectorVertex) Clone() Vertex {
	return &vectorVertex{BaseVertex: v.CloneBase(), est: v.EstimateData()}
}

func (v *vectorVertex) Read(tok *Tokens) error {
	vals, err := tok.Floats(len(v.est))
	if err != nil {
		return err
	}
	return v.SetEstimateData(vals)
}

func (v *vectorVertex) Write(w io.Writer) error { return WriteFloats(w, v.est...) }

// squareEdge measures x^2 of a 1-d vertex so that its Jacobian is not constant.
type squareEdge struct {
	BaseEdge
	meas float64
}

func newSquareEdge(id int, meas float64) *squareEdge {
	e := &squareEdge{BaseEdge: NewBaseEdge(1, 1), meas: meas}
	e.SetVertices(id)
	return e
}

func (e *squareEdge) ComputeError(vs []Vertex) {
	x := vs[0].(*vectorVertex).est[0]
	e.Error()[0] = x*x - e.meas
}

func (e *squareEdge) Read(tok *Tokens) error {
	var err error
	e.meas, err = tok.Float()
	return err
}

func (e *squareEdge) Write(w io.Writer) error { return WriteFloats(w, e.meas) }

// diffEdge measures vj - vi for n-d vertices.
type diffEdge struct {
	BaseEdge
	meas []float64
}

func newDiffEdge(i, j int, meas ...float64) *diffEdge {
	n := len(meas)
	e := &diffEdge{BaseEdge: NewBaseEdge(n, n, n), meas: meas}
	e.SetVertices(i, j)
	return e
}

func (e *diffEdge) ComputeError(vs []Vertex) {
	a, b := vs[0].(*vectorVertex), vs[1].(*vectorVertex)
	for k := range e.meas {
		e.Error()[k] = b.est[k] - a.est[k] - e.meas[k]
	}
}

func (e *diffEdge) Read(tok *Tokens) error {
	vals, err := tok.Floats(len(e.meas))
	if err != nil {
		return err
	}
	e.meas = vals
	info, err := ReadInformation(tok, len(e.meas))
	if err != nil {
		return err
	}
	e.SetInformation(info)
	return nil
}

func (e *diffEdge) Write(w io.Writer) error {
	return WriteFloats(w, append(append([]float64(nil), e.meas...), UpperTriangle(e.Information())...)...)
}

// centroidEdge constrains the mean of any number of 1-d vertices.
type centroidEdge struct {
	BaseEdge
	meas float64
}

func newCentroidEdge(meas float64, ids ...int) *centroidEdge {
	e := &centroidEdge{BaseEdge: NewBaseMultiEdge(1), meas: meas}
	e.SetVertices(ids...)
	return e
}

func (e *centroidEdge) ComputeError(vs []Vertex) {
	var sum float64
	for _, v := range vs {
		sum += v.(*vectorVertex).est[0]
	}
	e.Error()[0] = sum/float64(len(vs)) - e.meas
}

func (e *centroidEdge) Read(tok *Tokens) error {
	var err error
	e.meas, err = tok.Float()
	return err
}

func (e *centroidEdge) Write(w io.Writer) error { return WriteFloats(w, e.meas) }

// normCache stores the euclidean norm of a vector vertex.
type normCache struct {
	vertexID int
	norm     float64
	updates  int
}

func (c *normCache) VertexID() int { return c.vertexID }

func (c *normCache) Update(v Vertex) {
	var sum float64
	for _, x := range v.EstimateData() {
		sum += x * x
	}
	n := math.Sqrt(sum)
	c.norm = n
	c.updates++
}

func (c *normCache) Clone() Cache {
	cp := *c
	return &cp
}

// normEdge measures the norm of a vertex through its cache.
type normEdge struct {
	BaseEdge
	meas float64
}

func newNormEdge(id, dim int, meas float64) *normEdge {
	e := &normEdge{BaseEdge: NewBaseEdge(1, dim), meas: meas}
	e.SetVertices(id)
	return e
}

func (e *normEdge) CreateCaches(vs []Vertex) {
	vs[0].Caches().GetOrCreate("norm", vs[0], func() Cache { return &normCache{vertexID: vs[0].ID()} })
}

func (e *normEdge) ComputeError(vs []Vertex) {
	c, _ := vs[0].Caches().Get("norm")
	e.Error()[0] = c.(*normCache).norm - e.meas
}

func (e *normEdge) Read(tok *Tokens) error {
	var err error
	e.meas, err = tok.Float()
	return err
}

func (e *normEdge) Write(w io.Writer) error { return WriteFloats(w, e.meas) }
