package optimizer

import (
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/posegraph/utils"
)

var (
	// ErrNumeric is returned when an iteration meets a non-finite value or the linear solver fails.
	ErrNumeric = errors.New("numeric failure")
	// ErrNoActiveVertices is returned when the selected edges touch no vertex.
	ErrNoActiveVertices = errors.New("no active vertices")
	// ErrNotInitialized is returned when optimizing before InitializeOptimization.
	ErrNotInitialized = errors.New("optimization not initialized")
)

// newNumericError marks cause as a numeric failure while keeping it visible to errors.Is.
func newNumericError(cause error) error {
	return multierr.Combine(ErrNumeric, cause)
}

func newNonFiniteEdgeError(internalID int, what string) error {
	return newNumericError(utils.NewNonFiniteError(fmt.Sprintf("%s of edge %d", what, internalID)))
}
