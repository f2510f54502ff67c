// Package optimizer minimizes the chi2 of a pose graph with Gauss-Newton or Levenberg-Marquardt
// iterations over the sparse normal equations.
//
// A run selects its active edges with InitializeOptimization and then calls Optimize. The graph
// must not be mutated between the two calls or while Optimize runs.
package optimizer

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"go.viam.com/posegraph/graph"
	"go.viam.com/posegraph/solver"
	"go.viam.com/posegraph/utils"
)

// Reasons reported by Optimize.
const (
	ReasonChi2Threshold     = "chi2 below threshold"
	ReasonSmallChi2Change   = "small chi2 change"
	ReasonSmallIncrement    = "small increment"
	ReasonLocalMinimum      = "local minimum"
	ReasonNothingToOptimize = "nothing to optimize"
	ReasonMaxIterations     = "max iterations"
	ReasonTimeout           = "timeout"
	ReasonCanceled          = "canceled"
	ReasonNumericFailure    = "numeric failure"
)

// chi2Floor ends the loop once the problem is solved to machine precision.
const chi2Floor = 1e-12

// IterationStats describes one accepted or final iteration.
type IterationStats struct {
	Iteration       int
	Chi2            float64
	Lambda          float64
	LevenbergTrials int
	StepNorm        float64
	Duration        time.Duration
}

// Result is the outcome of Optimize. Chi2 values include robust kernels.
type Result struct {
	Converged   bool
	Chi2        float64
	InitialChi2 float64
	Iterations  int
	Reason      string
	Stats       []IterationStats
}

// Optimizer runs iterative least squares over a subset of a graph.
type Optimizer struct {
	g      *graph.Graph
	cfg    Config
	logger golog.Logger
	clock  clock.Clock
	linear solver.LinearSolver

	activeEdges    []graph.Edge
	edgeVertices   [][]graph.Vertex
	activeVertices []graph.Vertex
	free           []graph.Vertex
	asm            *assembler
	backup         [][]float64
}

// New returns an optimizer for g. A nil cfg selects DefaultConfig.
func New(g *graph.Graph, cfg *Config, logger golog.Logger) (*Optimizer, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate("optimizer"); err != nil {
		return nil, err
	}
	linear, err := solver.New(cfg.LinearSolver)
	if err != nil {
		return nil, err
	}
	return &Optimizer{
		g:      g,
		cfg:    *cfg,
		logger: logger,
		clock:  clock.New(),
		linear: linear,
	}, nil
}

// SetClock replaces the clock used for timing and the deadline.
func (o *Optimizer) SetClock(c clock.Clock) {
	o.clock = c
}

// Config returns a copy of the configuration.
func (o *Optimizer) Config() Config {
	return o.cfg
}

// InitializeOptimization selects the edges taking part in the next Optimize calls. With no
// arguments every edge at the configured level is used. The active vertices are the vertices
// incident to those edges; the non-fixed ones receive rows in the linear system by increasing id.
func (o *Optimizer) InitializeOptimization(edges ...graph.Edge) error {
	if len(edges) == 0 {
		for _, e := range o.g.Edges() {
			if e.Level() == o.cfg.Level {
				edges = append(edges, e)
			}
		}
	}

	byID := map[int]graph.Vertex{}
	resolved := make([][]graph.Vertex, len(edges))
	for i, e := range edges {
		for _, id := range e.Vertices() {
			if o.g.Vertex(id) == nil {
				return graph.NewVertexNotFoundError(id)
			}
		}
		vs := o.g.Resolve(e)
		for _, v := range vs {
			byID[v.ID()] = v
		}
		resolved[i] = vs
	}
	if len(byID) == 0 {
		return ErrNoActiveVertices
	}

	ids := make([]int, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	vertices := make([]graph.Vertex, len(ids))
	var free []graph.Vertex
	for i, id := range ids {
		vertices[i] = byID[id]
		if !vertices[i].Fixed() {
			free = append(free, vertices[i])
		}
	}
	if len(free) == len(vertices) {
		o.logger.Warnw("no active vertex is fixed, the solution is only defined up to a gauge transformation",
			"vertices", len(vertices))
	}

	asm := newAssembler(free)
	for _, e := range edges {
		asm.reserve(e)
	}
	o.activeEdges = append([]graph.Edge(nil), edges...)
	o.edgeVertices = resolved
	o.activeVertices = vertices
	o.free = free
	o.asm = asm
	o.backup = make([][]float64, len(free))
	o.logger.Debugw("initialized optimization",
		"edges", len(edges), "vertices", len(vertices), "free", len(free), "dim", asm.h.Dim(),
		"blocks", asm.h.NumStoredBlocks())

	if o.cfg.ComputeInitialGuess {
		return o.ComputeInitialGuess()
	}
	return nil
}

// ActiveEdges returns the edges selected by the last InitializeOptimization.
func (o *Optimizer) ActiveEdges() []graph.Edge {
	return append([]graph.Edge(nil), o.activeEdges...)
}

// ActiveVertices returns the vertices incident to the active edges, sorted by id.
func (o *Optimizer) ActiveVertices() []graph.Vertex {
	return append([]graph.Vertex(nil), o.activeVertices...)
}

// ActiveChi2 recomputes the active errors and returns their plain chi2 sum.
func (o *Optimizer) ActiveChi2() float64 {
	o.computeErrors()
	var sum float64
	for _, e := range o.activeEdges {
		sum += graph.Chi2(e)
	}
	return sum
}

// ActiveRobustChi2 recomputes the active errors and returns their robustified chi2 sum.
func (o *Optimizer) ActiveRobustChi2() float64 {
	o.computeErrors()
	return o.robustChi2()
}

func (o *Optimizer) computeErrors() {
	for i, e := range o.activeEdges {
		e.ComputeError(o.edgeVertices[i])
	}
}

func (o *Optimizer) robustChi2() float64 {
	var sum float64
	for _, e := range o.activeEdges {
		sum += graph.RobustChi2(e)
	}
	return sum
}

// objective recomputes the errors and fails if any of them is not finite.
func (o *Optimizer) objective() (float64, error) {
	o.computeErrors()
	for _, e := range o.activeEdges {
		if !utils.AllFinite(e.Error()) {
			return 0, newNonFiniteEdgeError(e.InternalID(), "error")
		}
	}
	chi2 := o.robustChi2()
	if !utils.IsFinite(chi2) {
		return 0, newNumericError(utils.NewNonFiniteError("chi2"))
	}
	return chi2, nil
}

func (o *Optimizer) linearizeEdge(i int) error {
	e := o.activeEdges[i]
	vs := o.edgeVertices[i]
	graph.Linearize(e, vs)
	if !utils.AllFinite(e.Error()) {
		return newNonFiniteEdgeError(e.InternalID(), "error")
	}
	for k, v := range vs {
		if !v.Fixed() && !utils.MatrixFinite(e.Jacobian(k)) {
			return newNonFiniteEdgeError(e.InternalID(), "jacobian")
		}
	}
	return nil
}

func (o *Optimizer) linearize(ctx context.Context) error {
	if o.cfg.Workers <= 1 {
		for i := range o.activeEdges {
			if err := o.linearizeEdge(i); err != nil {
				return err
			}
		}
		return nil
	}
	return utils.GroupWorkParallelN(ctx, o.cfg.Workers, len(o.activeEdges), nil,
		func(groupNum, groupSize, from, to int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
			return func(memberNum, workNum int) error {
				return o.linearizeEdge(workNum)
			}, nil
		})
}

func (o *Optimizer) buildSystem() {
	o.asm.reset()
	for _, e := range o.activeEdges {
		o.asm.add(e)
	}
}

func (o *Optimizer) solve() ([]float64, error) {
	rhs := make([]float64, len(o.asm.b))
	floats.ScaleTo(rhs, -1, o.asm.b)
	delta, err := o.linear.Solve(o.asm.h, rhs)
	if err != nil {
		return nil, newNumericError(errors.Wrap(err, "linear solve"))
	}
	if !utils.AllFinite(delta) {
		return nil, newNumericError(utils.NewNonFiniteError("increment"))
	}
	return delta, nil
}

func (o *Optimizer) push() {
	for i, v := range o.free {
		o.backup[i] = v.EstimateData()
	}
}

func (o *Optimizer) pop() {
	for i, v := range o.free {
		if err := v.SetEstimateData(o.backup[i]); err != nil {
			// the data came from the same vertex
			panic(err)
		}
	}
}

func (o *Optimizer) applyIncrement(delta []float64) {
	offsets := o.asm.h.Offsets()
	for i, v := range o.free {
		v.Oplus(delta[offsets[i]:offsets[i+1]])
	}
}

// Optimize runs at most maxIterations iterations, or the configured count when maxIterations is
// not positive. On failure the vertices hold the estimates of the last accepted step.
func (o *Optimizer) Optimize(ctx context.Context, maxIterations int) (*Result, error) {
	if o.asm == nil {
		return nil, ErrNotInitialized
	}
	if maxIterations <= 0 {
		maxIterations = o.cfg.MaxIterations
	}
	var deadline time.Time
	if timeout := o.cfg.Timeout(); timeout > 0 {
		deadline = o.clock.Now().Add(timeout)
	}

	chi2, err := o.objective()
	if err != nil {
		return &Result{Reason: ReasonNumericFailure}, err
	}
	res := &Result{Chi2: chi2, InitialChi2: chi2}
	if len(o.free) == 0 {
		res.Converged = true
		res.Reason = ReasonNothingToOptimize
		return res, nil
	}

	lm := o.cfg.Algorithm == AlgorithmLevenberg
	var state levenbergState
	for iteration := 0; iteration < maxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			res.Reason = ReasonCanceled
			return res, err
		}
		if !deadline.IsZero() && !o.clock.Now().Before(deadline) {
			res.Reason = ReasonTimeout
			return res, nil
		}

		started := o.clock.Now()
		if err := o.linearize(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				res.Reason = ReasonCanceled
				return res, ctxErr
			}
			res.Reason = ReasonNumericFailure
			return res, err
		}
		o.buildSystem()

		var st step
		if lm {
			if iteration == 0 {
				state.init(o.asm.h, o.cfg.InitialLambdaFactor)
			}
			st, err = o.levenbergStep(&state, chi2)
		} else {
			st, err = o.gaussNewtonStep()
		}
		if err != nil {
			res.Reason = ReasonNumericFailure
			return res, err
		}

		res.Iterations++
		stats := IterationStats{
			Iteration:       iteration,
			Chi2:            st.chi2,
			Lambda:          st.lambda,
			LevenbergTrials: st.trials,
			StepNorm:        st.norm,
			Duration:        o.clock.Since(started),
		}
		res.Stats = append(res.Stats, stats)
		o.logIteration(stats)

		if !st.accepted {
			res.Converged = true
			res.Reason = ReasonLocalMinimum
			break
		}
		prev := chi2
		chi2 = st.chi2
		res.Chi2 = chi2
		if reason := convergence(prev, chi2, st.norm, &o.cfg); reason != "" {
			res.Converged = true
			res.Reason = reason
			break
		}
	}
	if res.Reason == "" {
		res.Reason = ReasonMaxIterations
	}
	return res, nil
}

func (o *Optimizer) logIteration(s IterationStats) {
	fields := []interface{}{
		"iteration", s.Iteration, "chi2", s.Chi2, "lambda", s.Lambda,
		"trials", s.LevenbergTrials, "step", s.StepNorm, "time", s.Duration,
	}
	if o.cfg.Verbose {
		o.logger.Infow("iteration", fields...)
		return
	}
	o.logger.Debugw("iteration", fields...)
}

func convergence(prev, cur, stepNorm float64, cfg *Config) string {
	switch {
	case cur < chi2Floor:
		return ReasonChi2Threshold
	case stepNorm < cfg.IncrementEpsilon:
		return ReasonSmallIncrement
	case math.Abs(prev-cur) <= cfg.Epsilon*prev:
		return ReasonSmallChi2Change
	default:
		return ""
	}
}

type step struct {
	accepted bool
	chi2     float64
	norm     float64
	lambda   float64
	trials   int
}

func (o *Optimizer) gaussNewtonStep() (step, error) {
	delta, err := o.solve()
	if err != nil {
		return step{}, err
	}
	o.push()
	o.applyIncrement(delta)
	chi2, err := o.objective()
	if err != nil {
		o.pop()
		return step{}, err
	}
	return step{accepted: true, chi2: chi2, norm: utils.InfNorm(delta)}, nil
}
