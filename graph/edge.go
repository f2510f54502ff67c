package graph

import (
	"gonum.org/v1/gonum/mat"
)

// Edge is a measurement constraining one or more vertices.
//
// ComputeError receives the incident vertices in slot order and must only write the edge's own
// error vector. Jacobian blocks are written either by an AnalyticJacobian implementation or by
// NumericJacobian.
type Edge interface {
	Element

	// InternalID is the insertion sequence number assigned by the owning graph, -1 before insertion.
	InternalID() int

	// Vertices returns the referenced vertex ids in slot order.
	Vertices() []int
	// SetVertices sets the referenced vertex ids. Multi edges resize to the given count.
	SetVertices(ids ...int)
	// VertexDimensions returns the expected tangent dimension per slot; 0 accepts any vertex.
	VertexDimensions() []int
	// Multi reports whether the edge accepts a variable number of vertices.
	Multi() bool

	// Dimension is the size of the error vector.
	Dimension() int
	Information() *mat.SymDense
	SetInformation(info *mat.SymDense)

	Error() []float64
	// Jacobian returns the block of the error with respect to the vertex in slot i.
	Jacobian(i int) *mat.Dense
	ComputeError(vs []Vertex)

	RobustKernel() RobustKernel
	SetRobustKernel(k RobustKernel)

	// Level selects the edges taking part in an optimization.
	Level() int
	SetLevel(level int)

	baseEdge() *BaseEdge
}

// AnalyticJacobian is implemented by edges with closed-form Jacobians.
type AnalyticJacobian interface {
	// LinearizeOplus fills every Jacobian block at the current estimates of vs.
	LinearizeOplus(vs []Vertex)
}

// InitialEstimator is implemented by edges that can seed one incident vertex from the others.
type InitialEstimator interface {
	// InitialEstimatePossible returns the cost of initializing vertex to from the initialized
	// vertices in from, or a negative value when the edge cannot do it.
	InitialEstimatePossible(from map[int]bool, to int) float64
	// InitialEstimate sets the estimate of vertex to. vs holds the incident vertices in slot order.
	InitialEstimate(vs []Vertex, from map[int]bool, to int)
}

// CacheCreator is implemented by edges that attach caches to their vertices when added to a graph.
type CacheCreator interface {
	CreateCaches(vs []Vertex)
}

// BaseEdge carries the storage shared by all edges.
type BaseEdge struct {
	dim        int
	multi      bool
	vertexDims []int
	vertices   []int
	info       *mat.SymDense
	err        []float64
	jacobians  []*mat.Dense
	kernel     RobustKernel
	level      int
	internalID int
	graphID    uint64
}

// NewBaseEdge returns storage for an edge with an error of size dim connecting exactly
// len(vertexDims) vertices of the given tangent dimensions.
func NewBaseEdge(dim int, vertexDims ...int) BaseEdge {
	e := BaseEdge{
		dim:        dim,
		vertexDims: append([]int(nil), vertexDims...),
		vertices:   make([]int, len(vertexDims)),
		info:       identity(dim),
		err:        make([]float64, dim),
		jacobians:  make([]*mat.Dense, len(vertexDims)),
		internalID: -1,
	}
	for i, d := range vertexDims {
		e.jacobians[i] = mat.NewDense(dim, d, nil)
	}
	return e
}

// NewBaseMultiEdge returns storage for an edge with an error of size dim and a variable number
// of vertices, sized by SetVertices.
func NewBaseMultiEdge(dim int) BaseEdge {
	return BaseEdge{
		dim:        dim,
		multi:      true,
		info:       identity(dim),
		err:        make([]float64, dim),
		internalID: -1,
	}
}

func identity(n int) *mat.SymDense {
	m := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		m.SetSym(i, i, 1)
	}
	return m
}

// InternalID returns the graph assigned insertion number.
func (e *BaseEdge) InternalID() int {
	return e.internalID
}

// Vertices returns the referenced vertex ids.
func (e *BaseEdge) Vertices() []int {
	return e.vertices
}

// SetVertices sets the referenced vertex ids. A fixed arity edge keeps its slots and the graph
// rejects the edge if the counts differ.
func (e *BaseEdge) SetVertices(ids ...int) {
	e.vertices = append(e.vertices[:0], ids...)
	if e.multi {
		e.vertexDims = make([]int, len(ids))
		e.jacobians = make([]*mat.Dense, len(ids))
	}
}

// VertexDimensions returns the expected tangent dimension per slot.
func (e *BaseEdge) VertexDimensions() []int {
	return e.vertexDims
}

// Multi reports whether the edge has variable arity.
func (e *BaseEdge) Multi() bool {
	return e.multi
}

// Dimension returns the error dimension.
func (e *BaseEdge) Dimension() int {
	return e.dim
}

// Information returns the weight matrix of the error.
func (e *BaseEdge) Information() *mat.SymDense {
	return e.info
}

// SetInformation replaces the weight matrix. Symmetry and positive semi-definiteness are the
// caller's responsibility.
func (e *BaseEdge) SetInformation(info *mat.SymDense) {
	e.info = info
}

// Error returns the error vector computed by the last ComputeError.
func (e *BaseEdge) Error() []float64 {
	return e.err
}

// Jacobian returns the block for slot i.
func (e *BaseEdge) Jacobian(i int) *mat.Dense {
	return e.jacobians[i]
}

// RobustKernel returns the kernel applied to the chi2 of this edge, nil for plain least squares.
func (e *BaseEdge) RobustKernel() RobustKernel {
	return e.kernel
}

// SetRobustKernel sets or clears (nil) the robust kernel.
func (e *BaseEdge) SetRobustKernel(k RobustKernel) {
	e.kernel = k
}

// Level returns the optimization level of the edge.
func (e *BaseEdge) Level() int {
	return e.level
}

// SetLevel sets the optimization level of the edge.
func (e *BaseEdge) SetLevel(level int) {
	e.level = level
}

func (e *BaseEdge) baseEdge() *BaseEdge {
	return e
}

// allocJacobians sizes the blocks of slots whose dimension is only known from the vertex.
func (e *BaseEdge) allocJacobians(vs []Vertex) {
	for i, v := range vs {
		if j := e.jacobians[i]; j != nil {
			if _, c := j.Dims(); c == v.Dimension() {
				continue
			}
		}
		e.jacobians[i] = mat.NewDense(e.dim, v.Dimension(), nil)
	}
}

// Chi2 returns e^T * Omega * e for the last computed error.
func Chi2(e Edge) float64 {
	ev := mat.NewVecDense(e.Dimension(), e.Error())
	return mat.Inner(ev, e.Information(), ev)
}

// RobustChi2 returns the chi2 passed through the edge's robust kernel.
func RobustChi2(e Edge) float64 {
	c := Chi2(e)
	if k := e.RobustKernel(); k != nil {
		rho, _ := k.Robustify(c)
		return rho
	}
	return c
}
