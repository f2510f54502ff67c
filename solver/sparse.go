package solver

import (
	"math"

	"github.com/pkg/errors"
)

// SparseCholesky factorizes H = L L^T with an up-looking sparse Cholesky over the upper triangle
// in natural order. Row k of L is found by walking the elimination tree from the nonzeros of
// column k of the upper triangle.
type SparseCholesky struct{}

// Solve implements LinearSolver.
func (s *SparseCholesky) Solve(h *BlockMatrix, b []float64) ([]float64, error) {
	if err := checkRHS(h, b); err != nil {
		return nil, err
	}
	l, err := FactorizeCSC(h.ToCSC())
	if err != nil {
		return nil, err
	}
	x := append([]float64(nil), b...)
	l.Solve(x)
	return x, nil
}

// Factor is a lower triangular Cholesky factor in compressed column form. The diagonal entry is
// the first one of every column.
type Factor struct {
	CSC
}

// NumNonzeros returns the number of stored entries of L.
func (f *Factor) NumNonzeros() int {
	return len(f.Values)
}

// Solve overwrites x with the solution of L L^T x = x.
func (f *Factor) Solve(x []float64) {
	n := f.N
	for j := 0; j < n; j++ {
		x[j] /= f.Values[f.ColPtr[j]]
		for p := f.ColPtr[j] + 1; p < f.ColPtr[j+1]; p++ {
			x[f.RowIdx[p]] -= f.Values[p] * x[j]
		}
	}
	for j := n - 1; j >= 0; j-- {
		for p := f.ColPtr[j] + 1; p < f.ColPtr[j+1]; p++ {
			x[j] -= f.Values[p] * x[f.RowIdx[p]]
		}
		x[j] /= f.Values[f.ColPtr[j]]
	}
}

// etree returns the elimination tree of the symmetric matrix whose upper triangle is a.
func etree(a *CSC) []int {
	n := a.N
	parent := make([]int, n)
	ancestor := make([]int, n)
	for k := 0; k < n; k++ {
		parent[k] = -1
		ancestor[k] = -1
		for p := a.ColPtr[k]; p < a.ColPtr[k+1]; p++ {
			for i := a.RowIdx[p]; i != -1 && i < k; {
				next := ancestor[i]
				ancestor[i] = k
				if next == -1 {
					parent[i] = k
				}
				i = next
			}
		}
	}
	return parent
}

// ereach writes the nonzero pattern of row k of L into stack[top:] in topological order and
// returns top. mark must hold values different from k on entry.
func ereach(a *CSC, k int, parent, stack, mark []int) int {
	n := a.N
	top := n
	mark[k] = k
	for p := a.ColPtr[k]; p < a.ColPtr[k+1]; p++ {
		i := a.RowIdx[p]
		if i > k {
			continue
		}
		depth := 0
		for ; mark[i] != k; i = parent[i] {
			stack[depth] = i
			depth++
			mark[i] = k
		}
		for depth > 0 {
			top--
			depth--
			stack[top] = stack[depth]
		}
	}
	return top
}

func newMarks(n int) []int {
	mark := make([]int, n)
	for i := range mark {
		mark[i] = -1
	}
	return mark
}

// FactorizeCSC computes the Cholesky factor of the symmetric matrix whose upper triangle is a.
func FactorizeCSC(a *CSC) (*Factor, error) {
	n := a.N
	parent := etree(a)
	stack := make([]int, n)

	// symbolic pass: column counts of L
	counts := make([]int, n)
	mark := newMarks(n)
	for k := 0; k < n; k++ {
		top := ereach(a, k, parent, stack, mark)
		for _, i := range stack[top:] {
			counts[i]++
		}
		counts[k]++
	}
	l := &Factor{CSC{N: n, ColPtr: make([]int, n+1)}}
	for j := 0; j < n; j++ {
		l.ColPtr[j+1] = l.ColPtr[j] + counts[j]
	}
	nnz := l.ColPtr[n]
	l.RowIdx = make([]int, nnz)
	l.Values = make([]float64, nnz)

	next := append([]int(nil), l.ColPtr[:n]...)
	x := make([]float64, n)
	mark = newMarks(n)
	for k := 0; k < n; k++ {
		top := ereach(a, k, parent, stack, mark)
		x[k] = 0
		for p := a.ColPtr[k]; p < a.ColPtr[k+1]; p++ {
			if i := a.RowIdx[p]; i <= k {
				x[i] = a.Values[p]
			}
		}
		d := x[k]
		x[k] = 0
		for ; top < n; top++ {
			i := stack[top]
			lki := x[i] / l.Values[l.ColPtr[i]]
			x[i] = 0
			for p := l.ColPtr[i] + 1; p < next[i]; p++ {
				x[l.RowIdx[p]] -= l.Values[p] * lki
			}
			d -= lki * lki
			p := next[i]
			next[i]++
			l.RowIdx[p] = k
			l.Values[p] = lki
		}
		if d <= 0 || math.IsNaN(d) || math.IsInf(d, 0) {
			return nil, errors.Wrapf(ErrNotPositiveDefinite, "pivot %d is %g", k, d)
		}
		p := next[k]
		next[k]++
		l.RowIdx[p] = k
		l.Values[p] = math.Sqrt(d)
	}
	return l, nil
}
