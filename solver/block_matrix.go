package solver

import (
	"fmt"

	"github.com/emirpasic/gods/trees/redblacktree"
	"gonum.org/v1/gonum/mat"
)

// BlockMatrix is a symmetric block sparse matrix. Only blocks on or above the block diagonal are
// stored, each block column keeping its blocks ordered by block row.
type BlockMatrix struct {
	offsets []int
	cols    []*redblacktree.Tree
}

// NewBlockMatrix returns an empty matrix whose i-th block row and column have size blockDims[i].
func NewBlockMatrix(blockDims []int) *BlockMatrix {
	offsets := make([]int, len(blockDims)+1)
	for i, d := range blockDims {
		offsets[i+1] = offsets[i] + d
	}
	cols := make([]*redblacktree.Tree, len(blockDims))
	for i := range cols {
		cols[i] = redblacktree.NewWithIntComparator()
	}
	return &BlockMatrix{offsets: offsets, cols: cols}
}

// NumBlocks returns the number of block rows.
func (m *BlockMatrix) NumBlocks() int {
	return len(m.cols)
}

// Dim returns the scalar dimension.
func (m *BlockMatrix) Dim() int {
	return m.offsets[len(m.offsets)-1]
}

// Offsets returns the scalar offset of every block followed by Dim.
func (m *BlockMatrix) Offsets() []int {
	return m.offsets
}

// BlockDim returns the size of block i.
func (m *BlockMatrix) BlockDim(i int) int {
	return m.offsets[i+1] - m.offsets[i]
}

// Block returns the stored block (i, j) with i <= j.
func (m *BlockMatrix) Block(i, j int) (*mat.Dense, bool) {
	if i > j {
		panic(fmt.Sprintf("block (%d, %d) is below the diagonal", i, j))
	}
	b, ok := m.cols[j].Get(i)
	if !ok {
		return nil, false
	}
	return b.(*mat.Dense), true
}

func (m *BlockMatrix) block(i, j int) *mat.Dense {
	if b, ok := m.cols[j].Get(i); ok {
		return b.(*mat.Dense)
	}
	b := mat.NewDense(m.BlockDim(i), m.BlockDim(j), nil)
	m.cols[j].Put(i, b)
	return b
}

// Add accumulates src into block (i, j). When i > j the transpose is added to block (j, i), so
// callers may add either half of a symmetric pair.
func (m *BlockMatrix) Add(i, j int, src mat.Matrix) {
	if i > j {
		i, j = j, i
		src = src.T()
	}
	r, c := src.Dims()
	if r != m.BlockDim(i) || c != m.BlockDim(j) {
		panic(fmt.Sprintf("block (%d, %d) is %dx%d, got %dx%d", i, j, m.BlockDim(i), m.BlockDim(j), r, c))
	}
	b := m.block(i, j)
	b.Add(b, src)
}

// blockOf returns the block index containing scalar index r.
func (m *BlockMatrix) blockOf(r int) int {
	lo, hi := 0, len(m.cols)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if m.offsets[mid] <= r {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

// At returns the scalar entry (r, c).
func (m *BlockMatrix) At(r, c int) float64 {
	if r > c {
		r, c = c, r
	}
	bi, bj := m.blockOf(r), m.blockOf(c)
	b, ok := m.Block(bi, bj)
	if !ok {
		return 0
	}
	return b.At(r-m.offsets[bi], c-m.offsets[bj])
}

// Diagonal returns a copy of the scalar diagonal.
func (m *BlockMatrix) Diagonal() []float64 {
	d := make([]float64, m.Dim())
	for i := range m.cols {
		b, ok := m.Block(i, i)
		if !ok {
			continue
		}
		for k := 0; k < m.BlockDim(i); k++ {
			d[m.offsets[i]+k] = b.At(k, k)
		}
	}
	return d
}

// SetDiagonal overwrites the scalar diagonal, typically with values saved by Diagonal.
func (m *BlockMatrix) SetDiagonal(d []float64) {
	for i := range m.cols {
		b := m.block(i, i)
		for k := 0; k < m.BlockDim(i); k++ {
			b.Set(k, k, d[m.offsets[i]+k])
		}
	}
}

// AddToDiagonal adds lambda to every diagonal entry.
func (m *BlockMatrix) AddToDiagonal(lambda float64) {
	for i := range m.cols {
		b := m.block(i, i)
		for k := 0; k < m.BlockDim(i); k++ {
			b.Set(k, k, b.At(k, k)+lambda)
		}
	}
}

// Zero clears every stored block while keeping the sparsity structure.
func (m *BlockMatrix) Zero() {
	m.Each(func(_, _ int, b *mat.Dense) {
		b.Zero()
	})
}

// Each calls fn for every stored block, column by column and by increasing row within a column.
func (m *BlockMatrix) Each(fn func(i, j int, b *mat.Dense)) {
	for j, col := range m.cols {
		it := col.Iterator()
		for it.Next() {
			fn(it.Key().(int), j, it.Value().(*mat.Dense))
		}
	}
}

// NumStoredBlocks returns the number of blocks on or above the diagonal.
func (m *BlockMatrix) NumStoredBlocks() int {
	n := 0
	for _, col := range m.cols {
		n += col.Size()
	}
	return n
}

// MulVec returns m * x.
func (m *BlockMatrix) MulVec(x []float64) []float64 {
	if len(x) != m.Dim() {
		panic(fmt.Sprintf("vector has length %d, matrix dimension %d", len(x), m.Dim()))
	}
	y := make([]float64, m.Dim())
	m.Each(func(i, j int, b *mat.Dense) {
		oi, oj := m.offsets[i], m.offsets[j]
		r, c := b.Dims()
		for p := 0; p < r; p++ {
			for q := 0; q < c; q++ {
				v := b.At(p, q)
				y[oi+p] += v * x[oj+q]
				if i != j {
					y[oj+q] += v * x[oi+p]
				}
			}
		}
	})
	return y
}

// ToSymDense expands the matrix into a dense symmetric matrix. The diagonal blocks contribute
// their upper triangles.
func (m *BlockMatrix) ToSymDense() *mat.SymDense {
	n := m.Dim()
	out := mat.NewSymDense(n, nil)
	m.Each(func(i, j int, b *mat.Dense) {
		oi, oj := m.offsets[i], m.offsets[j]
		r, c := b.Dims()
		for p := 0; p < r; p++ {
			for q := 0; q < c; q++ {
				if i == j && q < p {
					continue
				}
				out.SetSym(oi+p, oj+q, b.At(p, q))
			}
		}
	})
	return out
}

// CSC is a sparse matrix in compressed sparse column form with sorted row indices.
type CSC struct {
	N      int
	ColPtr []int
	RowIdx []int
	Values []float64
}

// ToCSC returns the scalar upper triangle, diagonal included, in compressed column form.
func (m *BlockMatrix) ToCSC() *CSC {
	n := m.Dim()
	out := &CSC{N: n, ColPtr: make([]int, n+1)}
	for j, col := range m.cols {
		oj := m.offsets[j]
		for q := 0; q < m.BlockDim(j); q++ {
			it := col.Iterator()
			for it.Next() {
				i := it.Key().(int)
				b := it.Value().(*mat.Dense)
				oi := m.offsets[i]
				rows := m.BlockDim(i)
				if i == j {
					rows = q + 1
				}
				for p := 0; p < rows; p++ {
					out.RowIdx = append(out.RowIdx, oi+p)
					out.Values = append(out.Values, b.At(p, q))
				}
			}
			out.ColPtr[oj+q+1] = len(out.RowIdx)
		}
	}
	return out
}
