package graph

import "github.com/pkg/errors"

var (
	// ErrDuplicateVertex is returned when a vertex id is already present in the graph.
	ErrDuplicateVertex = errors.New("vertex id already in graph")
	// ErrVertexNotFound is returned when an operation references a vertex id the graph does not hold.
	ErrVertexNotFound = errors.New("vertex not found")
	// ErrEdgeNotFound is returned when removing an edge the graph does not hold.
	ErrEdgeNotFound = errors.New("edge not found")
	// ErrArity is returned when an edge references a different number of vertices than it connects.
	ErrArity = errors.New("edge references wrong number of vertices")
	// ErrAlreadyOwned is returned when an element already belongs to a graph.
	ErrAlreadyOwned = errors.New("element already belongs to a graph")
	// ErrShortRecord is returned when a serialized element has fewer tokens than its type needs.
	ErrShortRecord = errors.New("record too short")
	// ErrBadEstimateData is returned when raw estimate data has the wrong size.
	ErrBadEstimateData = errors.New("estimate data has wrong size")
)

// NewVertexNotFoundError is used when an edge references a vertex id that is absent.
func NewVertexNotFoundError(id int) error {
	return errors.Wrapf(ErrVertexNotFound, "id %d", id)
}

// NewDimensionMismatchError describes an edge slot connected to a vertex of the wrong dimension.
func NewDimensionMismatchError(slot, expected, actual int) error {
	return errors.Errorf("edge slot %d expects a vertex of dimension %d but got %d", slot, expected, actual)
}
