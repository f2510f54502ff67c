package graph

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/atomic"
)

var graphSerial atomic.Uint64

// Graph owns a set of vertices keyed by id and a list of edges in insertion order.
type Graph struct {
	serial      uint64
	vertices    map[int]Vertex
	edges       []Edge
	vertexEdges map[int][]Edge
	nextEdgeID  int
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		serial:      graphSerial.Inc(),
		vertices:    map[int]Vertex{},
		vertexEdges: map[int][]Edge{},
	}
}

// AddVertex takes ownership of v. It fails without modifying the graph if the id is taken or v
// already belongs to a graph.
func (g *Graph) AddVertex(v Vertex) error {
	base := v.baseVertex()
	if base.graphID != 0 {
		return errors.Wrapf(ErrAlreadyOwned, "vertex %d", v.ID())
	}
	if _, ok := g.vertices[v.ID()]; ok {
		return errors.Wrapf(ErrDuplicateVertex, "id %d", v.ID())
	}
	base.graphID = g.serial
	g.vertices[v.ID()] = v
	return nil
}

// AddEdge takes ownership of e after checking that every referenced vertex exists and that the
// reference count matches the edge's arity. A slot connected to a vertex of the wrong dimension
// is a wiring bug and panics.
func (g *Graph) AddEdge(e Edge) error {
	base := e.baseEdge()
	if base.graphID != 0 {
		return errors.Wrap(ErrAlreadyOwned, "edge")
	}
	ids := e.Vertices()
	dims := e.VertexDimensions()
	if len(ids) == 0 || len(ids) != len(dims) {
		return errors.Wrapf(ErrArity, "edge has %d slots but references %d vertices", len(dims), len(ids))
	}
	vs := make([]Vertex, len(ids))
	for i, id := range ids {
		v, ok := g.vertices[id]
		if !ok {
			return NewVertexNotFoundError(id)
		}
		vs[i] = v
	}
	for i, v := range vs {
		if dims[i] != 0 && dims[i] != v.Dimension() {
			panic(NewDimensionMismatchError(i, dims[i], v.Dimension()))
		}
	}
	base.allocJacobians(vs)
	base.graphID = g.serial
	base.internalID = g.nextEdgeID
	g.nextEdgeID++
	g.edges = append(g.edges, e)
	for _, id := range lo.Uniq(ids) {
		g.vertexEdges[id] = append(g.vertexEdges[id], e)
	}
	if cc, ok := e.(CacheCreator); ok {
		cc.CreateCaches(vs)
	}
	return nil
}

// RemoveEdge releases e from the graph.
func (g *Graph) RemoveEdge(e Edge) error {
	base := e.baseEdge()
	if base.graphID != g.serial {
		return ErrEdgeNotFound
	}
	idx := -1
	for i, other := range g.edges {
		if other == e {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrEdgeNotFound
	}
	g.edges = append(g.edges[:idx], g.edges[idx+1:]...)
	for _, id := range lo.Uniq(e.Vertices()) {
		g.vertexEdges[id] = lo.Without(g.vertexEdges[id], e)
		if len(g.vertexEdges[id]) == 0 {
			delete(g.vertexEdges, id)
		}
	}
	base.graphID = 0
	base.internalID = -1
	return nil
}

// RemoveVertex releases the vertex with the given id and every edge incident to it.
func (g *Graph) RemoveVertex(id int) error {
	v, ok := g.vertices[id]
	if !ok {
		return NewVertexNotFoundError(id)
	}
	for _, e := range append([]Edge(nil), g.vertexEdges[id]...) {
		if err := g.RemoveEdge(e); err != nil {
			return err
		}
	}
	delete(g.vertices, id)
	v.baseVertex().graphID = 0
	return nil
}

// Vertex returns the vertex with the given id or nil.
func (g *Graph) Vertex(id int) Vertex {
	return g.vertices[id]
}

// Vertices returns all vertices sorted by id.
func (g *Graph) Vertices() []Vertex {
	ids := lo.Keys(g.vertices)
	sort.Ints(ids)
	out := make([]Vertex, len(ids))
	for i, id := range ids {
		out[i] = g.vertices[id]
	}
	return out
}

// Edges returns all edges in insertion order.
func (g *Graph) Edges() []Edge {
	return append([]Edge(nil), g.edges...)
}

// EdgesOf returns the edges incident to the vertex with the given id, in insertion order.
func (g *Graph) EdgesOf(id int) []Edge {
	return append([]Edge(nil), g.vertexEdges[id]...)
}

// NumVertices returns the vertex count.
func (g *Graph) NumVertices() int {
	return len(g.vertices)
}

// NumEdges returns the edge count.
func (g *Graph) NumEdges() int {
	return len(g.edges)
}

// Resolve returns the vertices referenced by e in slot order. The edge must belong to g.
func (g *Graph) Resolve(e Edge) []Vertex {
	ids := e.Vertices()
	vs := make([]Vertex, len(ids))
	for i, id := range ids {
		vs[i] = g.vertices[id]
	}
	return vs
}

// SetFixed fixes or frees the vertex with the given id.
func (g *Graph) SetFixed(id int, fixed bool) error {
	v, ok := g.vertices[id]
	if !ok {
		return NewVertexNotFoundError(id)
	}
	v.SetFixed(fixed)
	return nil
}

// Chi2 recomputes every edge error and returns the sum of the chi2 values.
func (g *Graph) Chi2() float64 {
	var sum float64
	for _, e := range g.edges {
		e.ComputeError(g.Resolve(e))
		sum += Chi2(e)
	}
	return sum
}

// Clear releases every element.
func (g *Graph) Clear() {
	for _, e := range g.edges {
		b := e.baseEdge()
		b.graphID = 0
		b.internalID = -1
	}
	for _, v := range g.vertices {
		v.baseVertex().graphID = 0
	}
	g.vertices = map[int]Vertex{}
	g.vertexEdges = map[int][]Edge{}
	g.edges = nil
	g.nextEdgeID = 0
}
