package graph

import "math"

// A RobustKernel reweights an edge's chi2 to reduce the influence of outliers.
type RobustKernel interface {
	// Robustify maps the squared error e2 to rho(e2) and its derivative rho'(e2).
	Robustify(e2 float64) (rho, rhoPrime float64)
}

// Huber is quadratic below Delta and linear above it. A non-positive Delta leaves errors unweighted.
type Huber struct {
	Delta float64
}

// Robustify implements RobustKernel.
func (h Huber) Robustify(e2 float64) (float64, float64) {
	d2 := h.Delta * h.Delta
	if h.Delta <= 0 || e2 <= d2 {
		return e2, 1
	}
	e := math.Sqrt(e2)
	return 2*h.Delta*e - d2, h.Delta / e
}

// Cauchy grows logarithmically, strongly down-weighting large errors. A non-positive Delta leaves
// errors unweighted.
type Cauchy struct {
	Delta float64
}

// Robustify implements RobustKernel.
func (c Cauchy) Robustify(e2 float64) (float64, float64) {
	if c.Delta <= 0 {
		return e2, 1
	}
	d2 := c.Delta * c.Delta
	aux := 1 + e2/d2
	return d2 * math.Log(aux), 1 / aux
}
