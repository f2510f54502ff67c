package optimizer

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"go.viam.com/posegraph/solver"
	"go.viam.com/posegraph/utils"
)

type levenbergState struct {
	lambda float64
	nu     float64
}

// init starts the damping at tau times the largest diagonal entry of h.
func (s *levenbergState) init(h *solver.BlockMatrix, tau float64) {
	maxDiag := 0.
	for _, d := range h.Diagonal() {
		maxDiag = math.Max(maxDiag, math.Abs(d))
	}
	s.lambda = tau * maxDiag
	if s.lambda == 0 {
		s.lambda = tau
	}
	s.nu = 2
}

// levenbergStep damps the system until a step lowers chi2 or the trials run out. A rejected
// iteration leaves the estimates unchanged and reports accepted=false. A linear solve failure
// rejects the trial; a non-finite error after a step restores the estimates and fails.
func (o *Optimizer) levenbergStep(s *levenbergState, chi2 float64) (step, error) {
	h := o.asm.h
	diag := h.Diagonal()
	defer h.SetDiagonal(diag)
	o.push()

	var lastErr error
	solved := false
	for trial := 1; trial <= o.cfg.MaxLambdaTrials; trial++ {
		h.SetDiagonal(diag)
		h.AddToDiagonal(s.lambda)
		delta, err := o.solve()
		if err == nil {
			solved = true
			o.applyIncrement(delta)
			newChi2, err := o.objective()
			if err != nil {
				// a solvable step that breaks an edge is a failure, not a rejection
				o.pop()
				return step{}, err
			}
			rho := (chi2 - newChi2) / o.predictedReduction(delta, s.lambda)
			if rho > 0 {
				alpha := 1 - math.Pow(2*rho-1, 3)
				s.lambda *= math.Max(1./3, math.Min(alpha, 2./3))
				s.nu = 2
				return step{accepted: true, chi2: newChi2, norm: utils.InfNorm(delta), lambda: s.lambda, trials: trial}, nil
			}
			o.pop()
		} else {
			lastErr = err
		}
		o.logger.Debugw("rejected step", "trial", trial, "lambda", s.lambda)
		s.lambda *= s.nu
		s.nu *= 2
	}
	if !solved {
		return step{}, lastErr
	}
	return step{chi2: chi2, lambda: s.lambda, trials: o.cfg.MaxLambdaTrials}, nil
}

// predictedReduction is the decrease of the quadratic model, delta^T (lambda delta - b), with b
// the gradient J^T W e. A small constant keeps it positive for vanishing steps.
func (o *Optimizer) predictedReduction(delta []float64, lambda float64) float64 {
	scaled := make([]float64, len(delta))
	floats.ScaleTo(scaled, lambda, delta)
	floats.Sub(scaled, o.asm.b)
	return floats.Dot(delta, scaled) + 1e-3
}
