// Package inject provides graph elements whose behavior is supplied by the test.
package inject

import (
	"io"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/posegraph/graph"
)

var errNotSerializable = errors.New("injected elements are not serializable")

// Edge is an injected edge.
type Edge struct {
	graph.BaseEdge
	ComputeErrorFunc   func(vs []graph.Vertex, out []float64)
	LinearizeOplusFunc func(vs []graph.Vertex, jacobians []*mat.Dense)
}

// NewEdge returns an injected edge with an error of size dim over vertices of the given
// dimensions. Without injected functions its error is zero.
func NewEdge(dim int, vertexDims ...int) *Edge {
	return &Edge{BaseEdge: graph.NewBaseEdge(dim, vertexDims...)}
}

// ComputeError calls the injected ComputeError or zeroes the error.
func (e *Edge) ComputeError(vs []graph.Vertex) {
	out := e.Error()
	if e.ComputeErrorFunc == nil {
		for i := range out {
			out[i] = 0
		}
		return
	}
	e.ComputeErrorFunc(vs, out)
}

// LinearizeOplus calls the injected LinearizeOplus or falls back to numeric differentiation.
func (e *Edge) LinearizeOplus(vs []graph.Vertex) {
	if e.LinearizeOplusFunc == nil {
		graph.NumericJacobian(e, vs)
		return
	}
	jacobians := make([]*mat.Dense, len(vs))
	for i := range vs {
		jacobians[i] = e.Jacobian(i)
	}
	e.LinearizeOplusFunc(vs, jacobians)
}

// Read always fails.
func (e *Edge) Read(tok *graph.Tokens) error {
	return errNotSerializable
}

// Write always fails.
func (e *Edge) Write(w io.Writer) error {
	return errNotSerializable
}
