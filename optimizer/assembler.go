package optimizer

import (
	"gonum.org/v1/gonum/mat"

	"go.viam.com/posegraph/graph"
	"go.viam.com/posegraph/solver"
)

// assembler accumulates the normal equations H = sum J^T W J and b = sum J^T W e of the active
// edges, W being the information matrix scaled by the robust kernel derivative. Only vertices
// with a hessian index get rows; fixed vertices enter through the error alone.
type assembler struct {
	h     *solver.BlockMatrix
	b     []float64
	index map[int]int
}

func newAssembler(free []graph.Vertex) *assembler {
	dims := make([]int, len(free))
	index := make(map[int]int, len(free))
	for i, v := range free {
		dims[i] = v.Dimension()
		index[v.ID()] = i
	}
	h := solver.NewBlockMatrix(dims)
	return &assembler{h: h, b: make([]float64, h.Dim()), index: index}
}

// reserve creates the blocks touched by e so the sparsity pattern is fixed before the first
// iteration.
func (a *assembler) reserve(e graph.Edge) {
	ids := e.Vertices()
	for k, idk := range ids {
		ik, ok := a.index[idk]
		if !ok {
			continue
		}
		for _, idl := range ids[k:] {
			il, ok := a.index[idl]
			if !ok {
				continue
			}
			a.h.Add(ik, il, mat.NewDense(a.h.BlockDim(ik), a.h.BlockDim(il), nil))
		}
	}
}

func (a *assembler) reset() {
	a.h.Zero()
	for i := range a.b {
		a.b[i] = 0
	}
}

func weight(e graph.Edge) *mat.SymDense {
	info := e.Information()
	k := e.RobustKernel()
	if k == nil {
		return info
	}
	_, rhoPrime := k.Robustify(graph.Chi2(e))
	var w mat.SymDense
	w.ScaleSym(rhoPrime, info)
	return &w
}

// add accumulates the linearization of e, whose error and Jacobians are current.
func (a *assembler) add(e graph.Edge) {
	w := weight(e)
	var we mat.VecDense
	we.MulVec(w, mat.NewVecDense(e.Dimension(), e.Error()))

	ids := e.Vertices()
	wj := make([]*mat.Dense, len(ids))
	for k, id := range ids {
		ik, ok := a.index[id]
		if !ok {
			continue
		}
		jk := e.Jacobian(k)
		var g mat.VecDense
		g.MulVec(jk.T(), &we)
		off := a.h.Offsets()[ik]
		for r := 0; r < g.Len(); r++ {
			a.b[off+r] += g.AtVec(r)
		}
		var tmp mat.Dense
		tmp.Mul(w, jk)
		wj[k] = &tmp
	}

	for k, idk := range ids {
		ik, ok := a.index[idk]
		if !ok {
			continue
		}
		jk := e.Jacobian(k)
		for l := k; l < len(ids); l++ {
			il, ok := a.index[ids[l]]
			if !ok {
				continue
			}
			var block mat.Dense
			block.Mul(jk.T(), wj[l])
			a.h.Add(ik, il, &block)
			if l != k && ik == il {
				// a vertex referenced by two slots also needs the mirrored cross term
				a.h.Add(ik, il, block.T())
			}
		}
	}
}
