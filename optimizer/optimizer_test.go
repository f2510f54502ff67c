package optimizer

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/posegraph/graph"
	"go.viam.com/posegraph/solver"
	"go.viam.com/posegraph/spatialmath"
	"go.viam.com/posegraph/testutils"
	"go.viam.com/posegraph/testutils/inject"
	"go.viam.com/posegraph/types/slam2d"
	"go.viam.com/posegraph/types/slam3d"
)

func TestMain(m *testing.M) {
	testutils.VerifyTestMain(m)
}

func newTestOptimizer(t *testing.T, g *graph.Graph, cfg *Config) *Optimizer {
	t.Helper()
	o, err := New(g, cfg, testutils.NewLogger(t))
	test.That(t, err, test.ShouldBeNil)
	return o
}

func tightConfig(algorithm string) *Config {
	cfg := DefaultConfig()
	cfg.Algorithm = algorithm
	cfg.Epsilon = 1e-12
	cfg.MaxIterations = 100
	return cfg
}

func noisySE2() *testutils.SE2Problem {
	return testutils.NewSE2Problem(testutils.ProblemOptions{
		Poses:            20,
		Loops:            true,
		TranslationSigma: 0.01,
		RotationSigma:    0.005,
		Seed:             7,
	})
}

func snapshot(vs []graph.Vertex) [][]float64 {
	out := make([][]float64, len(vs))
	for i, v := range vs {
		out[i] = v.EstimateData()
	}
	return out
}

func TestRailwayChain(t *testing.T) {
	for _, algorithm := range []string{AlgorithmGaussNewton, AlgorithmLevenberg} {
		t.Run(algorithm, func(t *testing.T) {
			g := graph.New()
			vs := make([]*slam3d.VertexSE3, 3)
			for i := range vs {
				vs[i] = slam3d.NewVertexSE3()
				vs[i].SetID(i)
				test.That(t, g.AddVertex(vs[i]), test.ShouldBeNil)
			}
			vs[0].SetFixed(true)
			for i := 0; i < 2; i++ {
				e := slam3d.NewEdgeSE3()
				e.SetVertices(i, i+1)
				e.SetMeasurement(spatialmath.NewSE3QuatFromTranslation(1, 0, 0))
				test.That(t, g.AddEdge(e), test.ShouldBeNil)
			}

			cfg := DefaultConfig()
			cfg.Algorithm = algorithm
			o := newTestOptimizer(t, g, cfg)
			test.That(t, o.InitializeOptimization(), test.ShouldBeNil)
			test.That(t, o.ActiveVertices(), test.ShouldHaveLength, 3)
			test.That(t, o.ActiveEdges(), test.ShouldHaveLength, 2)

			res, err := o.Optimize(context.Background(), 10)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, res.Converged, test.ShouldBeTrue)
			test.That(t, res.Iterations, test.ShouldBeLessThanOrEqualTo, 10)
			test.That(t, res.InitialChi2, test.ShouldAlmostEqual, 2)
			test.That(t, res.Chi2, test.ShouldBeLessThan, 1e-9)
			test.That(t, res.Stats, test.ShouldHaveLength, res.Iterations)

			for i, x := range []float64{0, 1, 2} {
				p := vs[i].Estimate()
				test.That(t, p.Translation.X, test.ShouldAlmostEqual, x, 1e-6)
				test.That(t, p.Translation.Y, test.ShouldAlmostEqual, 0, 1e-6)
				test.That(t, p.Translation.Z, test.ShouldAlmostEqual, 0, 1e-6)
				test.That(t, p.AlmostEqual(spatialmath.NewSE3QuatFromTranslation(x, 0, 0), 1e-6), test.ShouldBeTrue)
			}
		})
	}
}

func TestRecoversGroundTruth(t *testing.T) {
	for _, name := range solver.Names() {
		t.Run(name, func(t *testing.T) {
			p2 := testutils.NewSE2Problem(testutils.ProblemOptions{Poses: 12, Loops: true, InitialSigma: 0.05, Seed: 1})
			cfg := DefaultConfig()
			cfg.LinearSolver = name
			o := newTestOptimizer(t, p2.Graph, cfg)
			test.That(t, o.InitializeOptimization(), test.ShouldBeNil)
			test.That(t, p2.MaxTranslationError(), test.ShouldBeGreaterThan, 1e-3)
			res, err := o.Optimize(context.Background(), 0)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, res.Converged, test.ShouldBeTrue)
			test.That(t, p2.MaxTranslationError(), test.ShouldBeLessThan, 1e-4)

			p3 := testutils.NewSE3Problem(testutils.ProblemOptions{Poses: 10, Loops: true, InitialSigma: 0.05, Seed: 2})
			o = newTestOptimizer(t, p3.Graph, cfg)
			test.That(t, o.InitializeOptimization(), test.ShouldBeNil)
			res, err = o.Optimize(context.Background(), 0)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, res.Converged, test.ShouldBeTrue)
			test.That(t, p3.MaxTranslationError(), test.ShouldBeLessThan, 1e-4)
		})
	}
}

func TestNoisyProblem(t *testing.T) {
	p := noisySE2()
	o := newTestOptimizer(t, p.Graph, nil)
	test.That(t, o.InitializeOptimization(), test.ShouldBeNil)
	res, err := o.Optimize(context.Background(), 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Converged, test.ShouldBeTrue)
	test.That(t, res.Chi2, test.ShouldBeLessThan, res.InitialChi2)
	test.That(t, res.Chi2, test.ShouldBeLessThan, 200.)
	test.That(t, p.MaxTranslationError(), test.ShouldBeLessThan, 0.2)
	test.That(t, o.ActiveChi2(), test.ShouldAlmostEqual, res.Chi2, 1e-9)

	summary, err := o.Summary()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, summary.Count, test.ShouldEqual, len(o.ActiveEdges()))
	test.That(t, summary.Total, test.ShouldAlmostEqual, res.Chi2, 1e-9)
	test.That(t, summary.Max, test.ShouldBeGreaterThanOrEqualTo, summary.Median)
}

func TestIdempotent(t *testing.T) {
	p := noisySE2()
	o := newTestOptimizer(t, p.Graph, tightConfig(AlgorithmGaussNewton))
	test.That(t, o.InitializeOptimization(), test.ShouldBeNil)
	first, err := o.Optimize(context.Background(), 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, first.Converged, test.ShouldBeTrue)
	before := snapshot(o.ActiveVertices())

	second, err := o.Optimize(context.Background(), 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, second.Converged, test.ShouldBeTrue)
	test.That(t, second.Chi2, test.ShouldAlmostEqual, first.Chi2, 1e-6*first.Chi2)
	for i, v := range o.ActiveVertices() {
		for k, x := range v.EstimateData() {
			test.That(t, x, test.ShouldAlmostEqual, before[i][k], 1e-6)
		}
	}
}

func TestGaugeInvariance(t *testing.T) {
	p := noisySE2()
	initial := snapshot(p.Graph.Vertices())
	relative := func() []spatialmath.SE2 {
		out := make([]spatialmath.SE2, len(p.Vertices)-1)
		for i := range out {
			out[i] = p.Vertices[i].Estimate().Between(p.Vertices[i+1].Estimate())
		}
		return out
	}
	run := func() {
		o := newTestOptimizer(t, p.Graph, tightConfig(AlgorithmGaussNewton))
		test.That(t, o.InitializeOptimization(), test.ShouldBeNil)
		res, err := o.Optimize(context.Background(), 0)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, res.Chi2, test.ShouldBeLessThan, res.InitialChi2)
	}

	run()
	want := relative()

	for i, v := range p.Graph.Vertices() {
		test.That(t, v.SetEstimateData(initial[i]), test.ShouldBeNil)
	}
	test.That(t, p.Graph.SetFixed(0, false), test.ShouldBeNil)
	test.That(t, p.Graph.SetFixed(7, true), test.ShouldBeNil)
	fixed := p.Vertices[7].Estimate()
	run()
	test.That(t, p.Vertices[7].Estimate(), test.ShouldResemble, fixed)

	for i, got := range relative() {
		test.That(t, got.AlmostEqual(want[i], 1e-6), test.ShouldBeTrue)
	}
}

func TestAlgorithmsAgree(t *testing.T) {
	solve := func(algorithm string) [][]float64 {
		p := noisySE2()
		o := newTestOptimizer(t, p.Graph, tightConfig(algorithm))
		test.That(t, o.InitializeOptimization(), test.ShouldBeNil)
		res, err := o.Optimize(context.Background(), 0)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, res.Converged, test.ShouldBeTrue)
		return snapshot(o.ActiveVertices())
	}
	gn := solve(AlgorithmGaussNewton)
	lm := solve(AlgorithmLevenberg)
	for i := range gn {
		for k := range gn[i] {
			test.That(t, lm[i][k], test.ShouldAlmostEqual, gn[i][k], 1e-5)
		}
	}
}

func TestParallelLinearization(t *testing.T) {
	solve := func(workers int) [][]float64 {
		p := testutils.NewSE3Problem(testutils.ProblemOptions{
			Poses: 30, Loops: true, TranslationSigma: 0.02, RotationSigma: 0.01, Seed: 3,
		})
		cfg := DefaultConfig()
		cfg.Workers = workers
		o := newTestOptimizer(t, p.Graph, cfg)
		test.That(t, o.InitializeOptimization(), test.ShouldBeNil)
		res, err := o.Optimize(context.Background(), 0)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, res.Chi2, test.ShouldBeLessThan, res.InitialChi2)
		return snapshot(o.ActiveVertices())
	}
	serial := solve(0)
	parallel := solve(4)
	for i := range serial {
		for k := range serial[i] {
			test.That(t, parallel[i][k], test.ShouldAlmostEqual, serial[i][k], 1e-12)
		}
	}
}

func TestNonFiniteLeavesEstimates(t *testing.T) {
	t.Run("error", func(t *testing.T) {
		p := noisySE2()
		bad := inject.NewEdge(1, 3)
		bad.SetVertices(3)
		bad.ComputeErrorFunc = func(vs []graph.Vertex, out []float64) {
			out[0] = math.NaN()
		}
		test.That(t, p.Graph.AddEdge(bad), test.ShouldBeNil)
		before := snapshot(p.Graph.Vertices())

		o := newTestOptimizer(t, p.Graph, nil)
		test.That(t, o.InitializeOptimization(), test.ShouldBeNil)
		res, err := o.Optimize(context.Background(), 0)
		test.That(t, errors.Is(err, ErrNumeric), test.ShouldBeTrue)
		test.That(t, res.Converged, test.ShouldBeFalse)
		test.That(t, res.Reason, test.ShouldEqual, ReasonNumericFailure)
		test.That(t, snapshot(p.Graph.Vertices()), test.ShouldResemble, before)
	})

	for _, algorithm := range []string{AlgorithmLevenberg, AlgorithmGaussNewton} {
		t.Run("after step "+algorithm, func(t *testing.T) {
			p := noisySE2()
			start := p.Vertices[3].EstimateData()
			bad := inject.NewEdge(1, 3)
			bad.SetVertices(3)
			bad.ComputeErrorFunc = func(vs []graph.Vertex, out []float64) {
				out[0] = 0
				for i, x := range vs[0].EstimateData() {
					if x != start[i] {
						out[0] = math.NaN()
					}
				}
			}
			bad.LinearizeOplusFunc = func(vs []graph.Vertex, jacobians []*mat.Dense) {}
			test.That(t, p.Graph.AddEdge(bad), test.ShouldBeNil)
			before := snapshot(p.Graph.Vertices())

			cfg := DefaultConfig()
			cfg.Algorithm = algorithm
			o := newTestOptimizer(t, p.Graph, cfg)
			test.That(t, o.InitializeOptimization(), test.ShouldBeNil)
			res, err := o.Optimize(context.Background(), 0)
			test.That(t, errors.Is(err, ErrNumeric), test.ShouldBeTrue)
			test.That(t, err.Error(), test.ShouldContainSubstring, "not finite")
			test.That(t, res.Converged, test.ShouldBeFalse)
			test.That(t, res.Reason, test.ShouldEqual, ReasonNumericFailure)
			test.That(t, snapshot(p.Graph.Vertices()), test.ShouldResemble, before)
		})
	}

	t.Run("jacobian", func(t *testing.T) {
		p := noisySE2()
		bad := inject.NewEdge(1, 3)
		bad.SetVertices(5)
		bad.LinearizeOplusFunc = func(vs []graph.Vertex, jacobians []*mat.Dense) {
			jacobians[0].Set(0, 2, math.Inf(1))
		}
		test.That(t, p.Graph.AddEdge(bad), test.ShouldBeNil)
		before := snapshot(p.Graph.Vertices())

		cfg := DefaultConfig()
		cfg.Workers = 3
		o := newTestOptimizer(t, p.Graph, cfg)
		test.That(t, o.InitializeOptimization(), test.ShouldBeNil)
		_, err := o.Optimize(context.Background(), 0)
		test.That(t, errors.Is(err, ErrNumeric), test.ShouldBeTrue)
		test.That(t, err.Error(), test.ShouldContainSubstring, "jacobian")
		test.That(t, snapshot(p.Graph.Vertices()), test.ShouldResemble, before)
	})
}

func TestSingularSystem(t *testing.T) {
	// a free vertex whose only edge does not depend on it leaves H singular
	g := graph.New()
	a := slam2d.NewVertexSE2()
	a.SetID(0)
	a.SetFixed(true)
	b := slam2d.NewVertexSE2()
	b.SetID(1)
	test.That(t, g.AddVertex(a), test.ShouldBeNil)
	test.That(t, g.AddVertex(b), test.ShouldBeNil)
	e := inject.NewEdge(1, 3, 3)
	e.SetVertices(0, 1)
	e.ComputeErrorFunc = func(vs []graph.Vertex, out []float64) { out[0] = 1 }
	test.That(t, g.AddEdge(e), test.ShouldBeNil)

	cfg := DefaultConfig()
	cfg.Algorithm = AlgorithmGaussNewton
	o := newTestOptimizer(t, g, cfg)
	test.That(t, o.InitializeOptimization(), test.ShouldBeNil)
	_, err := o.Optimize(context.Background(), 5)
	test.That(t, errors.Is(err, ErrNumeric), test.ShouldBeTrue)
	test.That(t, errors.Is(err, solver.ErrNotPositiveDefinite), test.ShouldBeTrue)
	test.That(t, b.Estimate(), test.ShouldResemble, spatialmath.SE2{})
}

func TestTimeout(t *testing.T) {
	p := noisySE2()
	mock := clock.NewMock()
	slow := inject.NewEdge(1, 3)
	slow.SetVertices(1)
	x0 := p.Vertices[1].Estimate().Translation.X
	slow.ComputeErrorFunc = func(vs []graph.Vertex, out []float64) {
		out[0] = vs[0].EstimateData()[0] - x0
	}
	slow.LinearizeOplusFunc = func(vs []graph.Vertex, jacobians []*mat.Dense) {
		jacobians[0].Set(0, 0, 1)
		mock.Add(2 * time.Second)
	}
	test.That(t, p.Graph.AddEdge(slow), test.ShouldBeNil)

	cfg := DefaultConfig()
	cfg.TimeoutMs = 1000
	o := newTestOptimizer(t, p.Graph, cfg)
	o.SetClock(mock)
	test.That(t, o.InitializeOptimization(), test.ShouldBeNil)
	res, err := o.Optimize(context.Background(), 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Converged, test.ShouldBeFalse)
	test.That(t, res.Reason, test.ShouldEqual, ReasonTimeout)
	test.That(t, res.Iterations, test.ShouldEqual, 1)
	test.That(t, res.Stats[0].Duration, test.ShouldEqual, 2*time.Second)
	test.That(t, res.Chi2, test.ShouldBeLessThan, res.InitialChi2)
}

func TestCanceled(t *testing.T) {
	p := noisySE2()
	before := snapshot(p.Graph.Vertices())
	o := newTestOptimizer(t, p.Graph, nil)
	test.That(t, o.InitializeOptimization(), test.ShouldBeNil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := o.Optimize(ctx, 0)
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
	test.That(t, res.Reason, test.ShouldEqual, ReasonCanceled)
	test.That(t, res.Iterations, test.ShouldEqual, 0)
	test.That(t, snapshot(p.Graph.Vertices()), test.ShouldResemble, before)
}

func TestMaxIterations(t *testing.T) {
	p := noisySE2()
	o := newTestOptimizer(t, p.Graph, tightConfig(AlgorithmLevenberg))
	test.That(t, o.InitializeOptimization(), test.ShouldBeNil)
	res, err := o.Optimize(context.Background(), 1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Converged, test.ShouldBeFalse)
	test.That(t, res.Reason, test.ShouldEqual, ReasonMaxIterations)
	test.That(t, res.Iterations, test.ShouldEqual, 1)
	test.That(t, res.Stats[0].Lambda, test.ShouldBeGreaterThan, 0.)
}

func TestInitialization(t *testing.T) {
	g := graph.New()
	o := newTestOptimizer(t, g, nil)
	_, err := o.Optimize(context.Background(), 1)
	test.That(t, err, test.ShouldBeError, ErrNotInitialized)
	test.That(t, o.ComputeInitialGuess(), test.ShouldBeError, ErrNotInitialized)

	v := slam2d.NewVertexSE2()
	test.That(t, g.AddVertex(v), test.ShouldBeNil)
	test.That(t, o.InitializeOptimization(), test.ShouldBeError, ErrNoActiveVertices)

	// edges are selected by level
	p := noisySE2()
	for _, e := range p.Graph.EdgesOf(19) {
		e.SetLevel(1)
	}
	o = newTestOptimizer(t, p.Graph, nil)
	test.That(t, o.InitializeOptimization(), test.ShouldBeNil)
	test.That(t, o.ActiveVertices(), test.ShouldHaveLength, 19)
	test.That(t, len(o.ActiveEdges()), test.ShouldEqual, p.Graph.NumEdges()-len(p.Graph.EdgesOf(19)))

	// explicit edges override the level
	only := p.Graph.EdgesOf(19)[:1]
	test.That(t, o.InitializeOptimization(only...), test.ShouldBeNil)
	test.That(t, o.ActiveEdges(), test.ShouldHaveLength, 1)
	test.That(t, o.ActiveVertices(), test.ShouldHaveLength, 2)

	// every vertex fixed leaves nothing to do
	for _, v := range o.ActiveVertices() {
		v.SetFixed(true)
	}
	test.That(t, o.InitializeOptimization(only...), test.ShouldBeNil)
	res, err := o.Optimize(context.Background(), 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Reason, test.ShouldEqual, ReasonNothingToOptimize)
}

func TestGaugeWarning(t *testing.T) {
	p := noisySE2()
	test.That(t, p.Graph.SetFixed(0, false), test.ShouldBeNil)
	logger, logs := testutils.NewObservedLogger(t)
	o, err := New(p.Graph, tightConfig(AlgorithmLevenberg), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, o.InitializeOptimization(), test.ShouldBeNil)
	test.That(t, len(logs.FilterMessageSnippet("gauge").All()), test.ShouldEqual, 1)

	// damping keeps the singular gauge direction solvable
	res, err := o.Optimize(context.Background(), 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Chi2, test.ShouldBeLessThan, res.InitialChi2)
}

func TestComputeInitialGuess(t *testing.T) {
	p := testutils.NewSE2Problem(testutils.ProblemOptions{Poses: 15, Loops: true, Seed: 4})
	for _, v := range p.Vertices[1:] {
		v.SetEstimate(spatialmath.SE2{})
	}
	cfg := DefaultConfig()
	cfg.ComputeInitialGuess = true
	o := newTestOptimizer(t, p.Graph, cfg)
	test.That(t, o.InitializeOptimization(), test.ShouldBeNil)
	test.That(t, p.MaxTranslationError(), test.ShouldBeLessThan, 1e-9)
	test.That(t, o.ActiveChi2(), test.ShouldBeLessThan, 1e-12)

	// without a fixed vertex the lowest id is the root
	p3 := testutils.NewSE3Problem(testutils.ProblemOptions{Poses: 8, Seed: 5})
	p3.Vertices[0].SetFixed(false)
	for _, v := range p3.Vertices[1:] {
		v.SetEstimate(spatialmath.NewSE3Quat())
	}
	o = newTestOptimizer(t, p3.Graph, nil)
	test.That(t, o.InitializeOptimization(), test.ShouldBeNil)
	test.That(t, o.ComputeInitialGuess(), test.ShouldBeNil)
	test.That(t, p3.MaxTranslationError(), test.ShouldBeLessThan, 1e-9)

	// unreachable vertices keep their estimates
	g := graph.New()
	a, b := slam2d.NewVertexSE2(), slam2d.NewVertexSE2()
	a.SetID(0)
	a.SetFixed(true)
	b.SetID(1)
	b.SetEstimate(spatialmath.NewSE2(3, 4, 0.5))
	test.That(t, g.AddVertex(a), test.ShouldBeNil)
	test.That(t, g.AddVertex(b), test.ShouldBeNil)
	opaque := inject.NewEdge(1, 3, 3)
	opaque.SetVertices(0, 1)
	test.That(t, g.AddEdge(opaque), test.ShouldBeNil)
	o = newTestOptimizer(t, g, nil)
	test.That(t, o.InitializeOptimization(), test.ShouldBeNil)
	test.That(t, o.ComputeInitialGuess(), test.ShouldBeNil)
	test.That(t, b.Estimate(), test.ShouldResemble, spatialmath.NewSE2(3, 4, 0.5))
}

func TestRobustKernel(t *testing.T) {
	solve := func(kernel graph.RobustKernel) (float64, *Optimizer) {
		p := testutils.NewSE2Problem(testutils.ProblemOptions{
			Poses: 16, Loops: true, TranslationSigma: 0.01, RotationSigma: 0.01, Seed: 6,
		})
		outlier := slam2d.NewEdgeSE2()
		outlier.SetVertices(2, 10)
		outlier.SetMeasurement(p.Truth[2].Between(p.Truth[10]).Compose(spatialmath.NewSE2(10, -5, 0)))
		info := mat.NewSymDense(3, []float64{1e4, 0, 0, 0, 1e4, 0, 0, 0, 1e4})
		outlier.SetInformation(info)
		outlier.SetRobustKernel(kernel)
		test.That(t, p.Graph.AddEdge(outlier), test.ShouldBeNil)

		o := newTestOptimizer(t, p.Graph, tightConfig(AlgorithmLevenberg))
		test.That(t, o.InitializeOptimization(), test.ShouldBeNil)
		_, err := o.Optimize(context.Background(), 0)
		test.That(t, err, test.ShouldBeNil)
		return p.MaxTranslationError(), o
	}
	plain, _ := solve(nil)
	robust, o := solve(graph.Huber{Delta: 1})
	test.That(t, robust, test.ShouldBeLessThan, plain)
	test.That(t, o.ActiveRobustChi2(), test.ShouldBeLessThan, o.ActiveChi2())
}
