package graph

// NumericDelta is the step used for central differences.
const NumericDelta = 1e-6

// NumericJacobian fills the Jacobian blocks of e by central differences around the estimates of
// vs. Each tangent coordinate of each non-fixed vertex is perturbed on a clone, so vs is never
// modified and edges sharing vertices may be linearized concurrently. The error vector of e is
// left as computed at the unperturbed estimates.
func NumericJacobian(e Edge, vs []Vertex) {
	dim := e.Dimension()
	e.ComputeError(vs)
	base := append([]float64(nil), e.Error()...)

	perturbed := append([]Vertex(nil), vs...)
	plus := make([]float64, dim)
	scale := 1 / (2 * NumericDelta)
	for i, v := range vs {
		jac := e.Jacobian(i)
		if v.Fixed() {
			jac.Zero()
			continue
		}
		vd := v.Dimension()
		delta := make([]float64, vd)
		for d := 0; d < vd; d++ {
			delta[d] = NumericDelta
			up := v.Clone()
			up.Oplus(delta)
			perturbed[i] = up
			e.ComputeError(perturbed)
			copy(plus, e.Error())

			delta[d] = -NumericDelta
			down := v.Clone()
			down.Oplus(delta)
			perturbed[i] = down
			e.ComputeError(perturbed)
			minus := e.Error()
			for r := 0; r < dim; r++ {
				jac.Set(r, d, scale*(plus[r]-minus[r]))
			}
			delta[d] = 0
		}
		perturbed[i] = v
	}
	copy(e.Error(), base)
}

// Linearize computes the error and the Jacobian blocks of e, preferring closed-form derivatives.
func Linearize(e Edge, vs []Vertex) {
	if a, ok := e.(AnalyticJacobian); ok {
		e.ComputeError(vs)
		a.LinearizeOplus(vs)
		return
	}
	NumericJacobian(e, vs)
}
