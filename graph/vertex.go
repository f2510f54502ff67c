package graph

// Vertex is a node of the graph holding one state estimate on a manifold.
//
// Concrete vertices embed BaseVertex and implement the estimate specific methods. Oplus,
// SetEstimateData and any typed SetEstimate must refresh the vertex caches.
type Vertex interface {
	Element

	ID() int
	SetID(id int)

	// Dimension is the size of the tangent space increment accepted by Oplus.
	Dimension() int
	// EstimateDimension is the number of values in the ambient representation.
	EstimateDimension() int

	// Fixed vertices are held constant by the optimizer.
	Fixed() bool
	SetFixed(fixed bool)

	// Oplus applies a tangent space increment of length Dimension() through the retraction.
	Oplus(delta []float64)
	// EstimateData returns a copy of the ambient representation.
	EstimateData() []float64
	// SetEstimateData replaces the estimate from its ambient representation, bypassing Oplus.
	SetEstimateData(data []float64) error

	// Clone returns a detached deep copy, not owned by any graph.
	Clone() Vertex

	UserData() interface{}
	SetUserData(data interface{})

	Caches() *CacheContainer

	baseVertex() *BaseVertex
}

// BaseVertex carries the bookkeeping shared by all vertices.
type BaseVertex struct {
	id       int
	fixed    bool
	userData interface{}
	caches   CacheContainer
	graphID  uint64
}

// ID returns the vertex id.
func (v *BaseVertex) ID() int {
	return v.id
}

// SetID sets the vertex id. Changing the id of a vertex already in a graph corrupts the graph.
func (v *BaseVertex) SetID(id int) {
	v.id = id
}

// Fixed reports whether the estimate is held constant.
func (v *BaseVertex) Fixed() bool {
	return v.fixed
}

// SetFixed marks the vertex as constant or free.
func (v *BaseVertex) SetFixed(fixed bool) {
	v.fixed = fixed
}

// UserData returns the opaque payload attached to the vertex.
func (v *BaseVertex) UserData() interface{} {
	return v.userData
}

// SetUserData attaches an opaque payload the optimizer never interprets.
func (v *BaseVertex) SetUserData(data interface{}) {
	v.userData = data
}

// Caches returns the caches attached to the vertex.
func (v *BaseVertex) Caches() *CacheContainer {
	return &v.caches
}

// CloneBase copies the bookkeeping for a Clone implementation. The copy is detached from any graph.
func (v *BaseVertex) CloneBase() BaseVertex {
	return BaseVertex{
		id:       v.id,
		fixed:    v.fixed,
		userData: v.userData,
		caches:   v.caches.clone(),
	}
}

func (v *BaseVertex) baseVertex() *BaseVertex {
	return v
}
