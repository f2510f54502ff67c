package solver

import (
	"gonum.org/v1/gonum/mat"
)

// DenseCholesky expands H into a dense matrix and factorizes it. It suits small problems and
// serves as the reference for the sparse solvers.
type DenseCholesky struct{}

// Solve implements LinearSolver.
func (s *DenseCholesky) Solve(h *BlockMatrix, b []float64) ([]float64, error) {
	if err := checkRHS(h, b); err != nil {
		return nil, err
	}
	n := h.Dim()
	if n == 0 {
		return []float64{}, nil
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(h.ToSymDense()); !ok {
		return nil, ErrNotPositiveDefinite
	}
	x := mat.NewVecDense(n, nil)
	rhs := mat.NewVecDense(n, append([]float64(nil), b...))
	if err := chol.SolveVecTo(x, rhs); err != nil {
		// a poorly conditioned system still yields a usable step
		if _, ok := err.(mat.Condition); !ok {
			return nil, err
		}
	}
	return x.RawVector().Data, nil
}
