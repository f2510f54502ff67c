// Package solver stores the normal equations of a least squares problem as a symmetric block
// sparse matrix and solves them.
package solver

import (
	"github.com/pkg/errors"
)

var (
	// ErrNotPositiveDefinite is returned when a factorization meets a non-positive pivot.
	ErrNotPositiveDefinite = errors.New("matrix is not positive definite")
	// ErrNotConverged is returned when an iterative solver runs out of iterations.
	ErrNotConverged = errors.New("iterative solver did not converge")
)

// Names accepted by New.
const (
	NameDenseCholesky  = "cholesky_dense"
	NameSparseCholesky = "cholesky_sparse"
	NamePCG            = "pcg"
)

// A LinearSolver solves H x = b for a symmetric positive definite H.
type LinearSolver interface {
	Solve(h *BlockMatrix, b []float64) ([]float64, error)
}

// New returns the solver registered under name.
func New(name string) (LinearSolver, error) {
	switch name {
	case NameDenseCholesky:
		return &DenseCholesky{}, nil
	case NameSparseCholesky:
		return &SparseCholesky{}, nil
	case NamePCG:
		return &PCG{}, nil
	default:
		return nil, errors.Errorf("unknown linear solver %q", name)
	}
}

// Names returns every name accepted by New.
func Names() []string {
	return []string{NameDenseCholesky, NameSparseCholesky, NamePCG}
}

func checkRHS(h *BlockMatrix, b []float64) error {
	if len(b) != h.Dim() {
		return errors.Errorf("right hand side has length %d, matrix dimension %d", len(b), h.Dim())
	}
	return nil
}
