package graph

import (
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

func newChainGraph(t *testing.T) *Graph {
	t.Helper()
	g := New()
	for id := 0; id < 3; id++ {
		test.That(t, g.AddVertex(newVectorVertex(id, 0, 0)), test.ShouldBeNil)
	}
	test.That(t, g.AddEdge(newDiffEdge(0, 1, 1, 0)), test.ShouldBeNil)
	test.That(t, g.AddEdge(newDiffEdge(1, 2, 1, 0)), test.ShouldBeNil)
	return g
}

func TestAddVertex(t *testing.T) {
	g := New()
	v := newVectorVertex(4, 1)
	test.That(t, g.AddVertex(v), test.ShouldBeNil)
	test.That(t, g.Vertex(4), test.ShouldEqual, v)
	test.That(t, g.Vertex(5), test.ShouldBeNil)

	dup := newVectorVertex(4, 2)
	err := g.AddVertex(dup)
	test.That(t, errors.Is(err, ErrDuplicateVertex), test.ShouldBeTrue)
	test.That(t, g.NumVertices(), test.ShouldEqual, 1)
	test.That(t, g.Vertex(4), test.ShouldEqual, v)

	other := New()
	err = other.AddVertex(v)
	test.That(t, errors.Is(err, ErrAlreadyOwned), test.ShouldBeTrue)
	test.That(t, other.NumVertices(), test.ShouldEqual, 0)
}

func TestAddEdgeMissingVertex(t *testing.T) {
	g := newChainGraph(t)
	before := g.NumEdges()
	err := g.AddEdge(newDiffEdge(1, 42, 1, 0))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, errors.Is(err, ErrVertexNotFound), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "42")
	test.That(t, g.NumEdges(), test.ShouldEqual, before)
	test.That(t, g.EdgesOf(1), test.ShouldHaveLength, 2)
}

func TestAddEdgeArity(t *testing.T) {
	g := newChainGraph(t)
	e := newDiffEdge(0, 1, 1, 0)
	e.SetVertices(0)
	test.That(t, errors.Is(g.AddEdge(e), ErrArity), test.ShouldBeTrue)

	empty := newCentroidEdge(0)
	test.That(t, errors.Is(g.AddEdge(empty), ErrArity), test.ShouldBeTrue)
	test.That(t, g.NumEdges(), test.ShouldEqual, 2)
}

func TestAddEdgeDimensionMismatchPanics(t *testing.T) {
	g := New()
	test.That(t, g.AddVertex(newVectorVertex(0, 0, 0, 0)), test.ShouldBeNil)
	test.That(t, g.AddVertex(newVectorVertex(1, 0, 0)), test.ShouldBeNil)
	test.That(t, func() { g.AddEdge(newDiffEdge(0, 1, 1, 0)) }, test.ShouldPanic)
}

func TestEdgeOwnership(t *testing.T) {
	g := newChainGraph(t)
	edges := g.Edges()
	test.That(t, edges, test.ShouldHaveLength, 2)
	test.That(t, edges[0].InternalID(), test.ShouldEqual, 0)
	test.That(t, edges[1].InternalID(), test.ShouldEqual, 1)
	test.That(t, errors.Is(g.AddEdge(edges[0]), ErrAlreadyOwned), test.ShouldBeTrue)

	fresh := newDiffEdge(0, 1, 1, 0)
	test.That(t, fresh.InternalID(), test.ShouldEqual, -1)
	test.That(t, g.RemoveEdge(fresh), test.ShouldBeError, ErrEdgeNotFound)
}

func TestMultiEdge(t *testing.T) {
	g := New()
	for id := 0; id < 4; id++ {
		test.That(t, g.AddVertex(newVectorVertex(id, float64(id))), test.ShouldBeNil)
	}
	e := newCentroidEdge(1, 0, 1, 2, 3)
	test.That(t, g.AddEdge(e), test.ShouldBeNil)
	test.That(t, e.Multi(), test.ShouldBeTrue)
	test.That(t, e.Vertices(), test.ShouldResemble, []int{0, 1, 2, 3})
	for i := 0; i < 4; i++ {
		r, c := e.Jacobian(i).Dims()
		test.That(t, r, test.ShouldEqual, 1)
		test.That(t, c, test.ShouldEqual, 1)
	}
	e.ComputeError(g.Resolve(e))
	test.That(t, e.Error()[0], test.ShouldAlmostEqual, 0.5)
	test.That(t, Chi2(e), test.ShouldAlmostEqual, 0.25)
}

func TestRemoveVertex(t *testing.T) {
	g := newChainGraph(t)
	test.That(t, g.RemoveVertex(1), test.ShouldBeNil)
	test.That(t, g.NumVertices(), test.ShouldEqual, 2)
	test.That(t, g.NumEdges(), test.ShouldEqual, 0)
	test.That(t, g.EdgesOf(0), test.ShouldBeEmpty)
	test.That(t, errors.Is(g.RemoveVertex(1), ErrVertexNotFound), test.ShouldBeTrue)

	// explicit remove then add replaces a vertex
	test.That(t, g.AddVertex(newVectorVertex(1, 5, 5)), test.ShouldBeNil)
	test.That(t, g.Vertex(1).EstimateData(), test.ShouldResemble, []float64{5, 5})
}

func TestRemoveEdge(t *testing.T) {
	g := newChainGraph(t)
	first := g.Edges()[0]
	test.That(t, g.RemoveEdge(first), test.ShouldBeNil)
	test.That(t, g.NumEdges(), test.ShouldEqual, 1)
	test.That(t, g.EdgesOf(0), test.ShouldBeEmpty)
	test.That(t, g.EdgesOf(1), test.ShouldHaveLength, 1)

	// a released edge can join another graph
	other := New()
	test.That(t, other.AddVertex(newVectorVertex(0, 0, 0)), test.ShouldBeNil)
	test.That(t, other.AddVertex(newVectorVertex(1, 0, 0)), test.ShouldBeNil)
	test.That(t, other.AddEdge(first), test.ShouldBeNil)
}

func TestVerticesSortedAndClear(t *testing.T) {
	g := New()
	for _, id := range []int{7, 3, 5} {
		test.That(t, g.AddVertex(newVectorVertex(id, 0)), test.ShouldBeNil)
	}
	vs := g.Vertices()
	test.That(t, []int{vs[0].ID(), vs[1].ID(), vs[2].ID()}, test.ShouldResemble, []int{3, 5, 7})

	test.That(t, g.SetFixed(5, true), test.ShouldBeNil)
	test.That(t, g.Vertex(5).Fixed(), test.ShouldBeTrue)
	test.That(t, errors.Is(g.SetFixed(9, true), ErrVertexNotFound), test.ShouldBeTrue)

	g.Clear()
	test.That(t, g.NumVertices(), test.ShouldEqual, 0)
	test.That(t, g.Vertices(), test.ShouldBeEmpty)
	// released vertices may be added again
	test.That(t, New().AddVertex(vs[0]), test.ShouldBeNil)
}

func TestGraphChi2(t *testing.T) {
	g := newChainGraph(t)
	// every diff edge expects +1 in x, all vertices sit at the origin
	test.That(t, g.Chi2(), test.ShouldAlmostEqual, 2)
	test.That(t, g.Vertex(2).SetEstimateData([]float64{2, 0}), test.ShouldBeNil)
	test.That(t, g.Vertex(1).SetEstimateData([]float64{1, 0}), test.ShouldBeNil)
	test.That(t, g.Chi2(), test.ShouldAlmostEqual, 0)
}

func TestCaches(t *testing.T) {
	g := New()
	v := newVectorVertex(0, 3, 4)
	test.That(t, g.AddVertex(v), test.ShouldBeNil)
	e := newNormEdge(0, 2, 5)
	test.That(t, g.AddEdge(e), test.ShouldBeNil)
	test.That(t, v.Caches().Len(), test.ShouldEqual, 1)

	c, ok := v.Caches().Get("norm")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, c.VertexID(), test.ShouldEqual, 0)
	test.That(t, c.(*normCache).norm, test.ShouldAlmostEqual, 5)

	// a second edge reuses the cache
	test.That(t, g.AddEdge(newNormEdge(0, 2, 5)), test.ShouldBeNil)
	test.That(t, v.Caches().Len(), test.ShouldEqual, 1)

	v.Oplus([]float64{3, 4})
	test.That(t, c.(*normCache).norm, test.ShouldAlmostEqual, 10)

	clone := v.Clone()
	clone.Oplus([]float64{-6, -8})
	cloned, _ := clone.Caches().Get("norm")
	test.That(t, cloned.(*normCache).norm, test.ShouldAlmostEqual, 0)
	test.That(t, c.(*normCache).norm, test.ShouldAlmostEqual, 10)

	v.Caches().Clear()
	test.That(t, v.Caches().Len(), test.ShouldEqual, 0)
}

func TestUserData(t *testing.T) {
	v := newVectorVertex(0, 1)
	test.That(t, v.UserData(), test.ShouldBeNil)
	v.SetUserData("laser scan")
	test.That(t, v.UserData(), test.ShouldEqual, "laser scan")
	test.That(t, v.Clone().UserData(), test.ShouldEqual, "laser scan")
}
