package solver

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// DefaultPCGTolerance is the relative residual norm at which PCG stops.
const DefaultPCGTolerance = 1e-9

// PCG is a conjugate gradient solver preconditioned with the inverses of the diagonal blocks.
type PCG struct {
	// MaxIterations bounds the iterations, 0 selects twice the dimension.
	MaxIterations int
	// Tolerance is the relative residual norm, 0 selects DefaultPCGTolerance.
	Tolerance float64

	lastIterations int
}

// Iterations returns the number of iterations used by the last Solve.
func (s *PCG) Iterations() int {
	return s.lastIterations
}

type blockJacobi struct {
	offsets []int
	inv     []*mat.Dense
}

func newBlockJacobi(h *BlockMatrix) (*blockJacobi, error) {
	pre := &blockJacobi{offsets: h.Offsets(), inv: make([]*mat.Dense, h.NumBlocks())}
	for i := range pre.inv {
		d := h.BlockDim(i)
		b, ok := h.Block(i, i)
		if !ok {
			return nil, errors.Wrapf(ErrNotPositiveDefinite, "diagonal block %d is empty", i)
		}
		sym := mat.NewSymDense(d, nil)
		for r := 0; r < d; r++ {
			for c := r; c < d; c++ {
				sym.SetSym(r, c, b.At(r, c))
			}
		}
		var chol mat.Cholesky
		if ok := chol.Factorize(sym); !ok {
			return nil, errors.Wrapf(ErrNotPositiveDefinite, "diagonal block %d", i)
		}
		inv := mat.NewDense(d, d, nil)
		var symInv mat.SymDense
		if err := chol.InverseTo(&symInv); err != nil {
			if _, ok := err.(mat.Condition); !ok {
				return nil, err
			}
		}
		inv.Copy(&symInv)
		pre.inv[i] = inv
	}
	return pre, nil
}

func (p *blockJacobi) apply(dst, r []float64) {
	for i, inv := range p.inv {
		lo, hi := p.offsets[i], p.offsets[i+1]
		out := mat.NewVecDense(hi-lo, dst[lo:hi])
		out.MulVec(inv, mat.NewVecDense(hi-lo, r[lo:hi]))
	}
}

// Solve implements LinearSolver.
func (s *PCG) Solve(h *BlockMatrix, b []float64) ([]float64, error) {
	if err := checkRHS(h, b); err != nil {
		return nil, err
	}
	n := h.Dim()
	x := make([]float64, n)
	s.lastIterations = 0
	bNorm := floats.Norm(b, 2)
	if n == 0 || bNorm == 0 {
		return x, nil
	}
	maxIter := s.MaxIterations
	if maxIter <= 0 {
		maxIter = 2 * n
	}
	tol := s.Tolerance
	if tol <= 0 {
		tol = DefaultPCGTolerance
	}

	pre, err := newBlockJacobi(h)
	if err != nil {
		return nil, err
	}
	r := append([]float64(nil), b...)
	z := make([]float64, n)
	pre.apply(z, r)
	p := append([]float64(nil), z...)
	rz := floats.Dot(r, z)

	for it := 1; it <= maxIter; it++ {
		s.lastIterations = it
		hp := h.MulVec(p)
		php := floats.Dot(p, hp)
		if php <= 0 || math.IsNaN(php) {
			return nil, errors.Wrapf(ErrNotPositiveDefinite, "curvature %g at iteration %d", php, it)
		}
		alpha := rz / php
		floats.AddScaled(x, alpha, p)
		floats.AddScaled(r, -alpha, hp)
		if floats.Norm(r, 2) <= tol*bNorm {
			return x, nil
		}
		pre.apply(z, r)
		rzNext := floats.Dot(r, z)
		beta := rzNext / rz
		rz = rzNext
		for i := range p {
			p[i] = z[i] + beta*p[i]
		}
	}
	return nil, errors.Wrapf(ErrNotConverged, "residual %g after %d iterations", floats.Norm(r, 2), maxIter)
}
