package testutils

import (
	"math"
	"math/rand"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/posegraph/graph"
	"go.viam.com/posegraph/spatialmath"
	"go.viam.com/posegraph/types/slam2d"
	"go.viam.com/posegraph/types/slam3d"
)

// ProblemOptions shape a synthetic pose graph: poses walk once around a circle, consecutive poses
// are linked by odometry and, with Loops set, every pose is also linked to the one LoopStride
// ahead plus the last pose back to the first.
type ProblemOptions struct {
	Poses      int
	Radius     float64
	Loops      bool
	LoopStride int
	// Measurement noise standard deviations. The information matrices use the same values.
	TranslationSigma float64
	RotationSigma    float64
	// Noise added to the dead reckoned initial estimates of every pose but the first.
	InitialSigma float64
	Seed         int64
}

func (opts *ProblemOptions) defaults() {
	if opts.Poses < 2 {
		opts.Poses = 2
	}
	if opts.Radius == 0 {
		opts.Radius = 5
	}
	if opts.LoopStride < 2 {
		opts.LoopStride = 3
	}
}

type edgePair struct{ from, to int }

func (opts *ProblemOptions) pairs() []edgePair {
	n := opts.Poses
	var out []edgePair
	for i := 0; i+1 < n; i++ {
		out = append(out, edgePair{i, i + 1})
	}
	if opts.Loops {
		for i := 0; i+opts.LoopStride < n; i++ {
			out = append(out, edgePair{i, i + opts.LoopStride})
		}
		if n > 2 {
			out = append(out, edgePair{n - 1, 0})
		}
	}
	return out
}

func diagonal(sigmas ...float64) *mat.SymDense {
	info := mat.NewSymDense(len(sigmas), nil)
	for i, s := range sigmas {
		if s == 0 {
			info.SetSym(i, i, 1)
			continue
		}
		info.SetSym(i, i, 1/(s*s))
	}
	return info
}

func noise(rng *rand.Rand, sigma float64) float64 {
	if sigma == 0 {
		return 0
	}
	return rng.NormFloat64() * sigma
}

// SE2Problem is a planar problem with its ground truth. Vertex i has id i and vertex 0 is fixed.
type SE2Problem struct {
	Graph    *graph.Graph
	Truth    []spatialmath.SE2
	Vertices []*slam2d.VertexSE2
}

// NewSE2Problem builds a planar problem.
func NewSE2Problem(opts ProblemOptions) *SE2Problem {
	opts.defaults()
	rng := rand.New(rand.NewSource(opts.Seed)) //nolint:gosec
	n := opts.Poses
	p := &SE2Problem{Graph: graph.New(), Truth: make([]spatialmath.SE2, n), Vertices: make([]*slam2d.VertexSE2, n)}
	for i := range p.Truth {
		theta := 2 * math.Pi * float64(i) / float64(n)
		p.Truth[i] = spatialmath.NewSE2(opts.Radius*math.Sin(theta), opts.Radius*(1-math.Cos(theta)), theta)
		v := slam2d.NewVertexSE2()
		v.SetID(i)
		v.SetEstimate(p.Truth[i])
		p.Vertices[i] = v
		if err := p.Graph.AddVertex(v); err != nil {
			panic(err)
		}
	}
	p.Vertices[0].SetFixed(true)

	odometry := make([]spatialmath.SE2, n)
	odometry[0] = p.Truth[0]
	for _, pair := range opts.pairs() {
		meas := p.Truth[pair.from].Between(p.Truth[pair.to])
		meas = meas.Compose(spatialmath.NewSE2(
			noise(rng, opts.TranslationSigma), noise(rng, opts.TranslationSigma), noise(rng, opts.RotationSigma)))
		e := slam2d.NewEdgeSE2()
		e.SetVertices(pair.from, pair.to)
		e.SetMeasurement(meas)
		e.SetInformation(diagonal(opts.TranslationSigma, opts.TranslationSigma, opts.RotationSigma))
		if err := p.Graph.AddEdge(e); err != nil {
			panic(err)
		}
		if pair.to == pair.from+1 {
			odometry[pair.to] = odometry[pair.from].Compose(meas)
		}
	}
	for i := 1; i < n; i++ {
		est := odometry[i]
		est = spatialmath.NewSE2(
			est.Translation.X+noise(rng, opts.InitialSigma),
			est.Translation.Y+noise(rng, opts.InitialSigma),
			est.Theta+noise(rng, opts.InitialSigma))
		p.Vertices[i].SetEstimate(est)
	}
	return p
}

// MaxTranslationError returns the largest distance between an estimate and its ground truth.
func (p *SE2Problem) MaxTranslationError() float64 {
	worst := 0.
	for i, v := range p.Vertices {
		worst = math.Max(worst, v.Estimate().Translation.Sub(p.Truth[i].Translation).Norm())
	}
	return worst
}

// SE3Problem is a 3D problem with its ground truth. Vertex i has id i and vertex 0 is fixed.
type SE3Problem struct {
	Graph    *graph.Graph
	Truth    []spatialmath.SE3Quat
	Vertices []*slam3d.VertexSE3
}

// NewSE3Problem builds a problem whose poses climb a helix, each one yawing to follow it.
func NewSE3Problem(opts ProblemOptions) *SE3Problem {
	opts.defaults()
	rng := rand.New(rand.NewSource(opts.Seed)) //nolint:gosec
	n := opts.Poses
	p := &SE3Problem{Graph: graph.New(), Truth: make([]spatialmath.SE3Quat, n), Vertices: make([]*slam3d.VertexSE3, n)}
	for i := range p.Truth {
		theta := 2 * math.Pi * float64(i) / float64(n)
		t := r3.Vector{X: opts.Radius * math.Sin(theta), Y: opts.Radius * (1 - math.Cos(theta)), Z: 0.1 * float64(i)}
		p.Truth[i] = spatialmath.NewSE3QuatFromAxisAngle(t, spatialmath.R3ToR4(r3.Vector{Z: theta}))
		v := slam3d.NewVertexSE3()
		v.SetID(i)
		v.SetEstimate(p.Truth[i])
		p.Vertices[i] = v
		if err := p.Graph.AddVertex(v); err != nil {
			panic(err)
		}
	}
	p.Vertices[0].SetFixed(true)

	ts, rs := opts.TranslationSigma, opts.RotationSigma
	odometry := make([]spatialmath.SE3Quat, n)
	odometry[0] = p.Truth[0]
	for _, pair := range opts.pairs() {
		meas := p.Truth[pair.from].Between(p.Truth[pair.to])
		meas = meas.Compose(spatialmath.NewSE3QuatFromMinimal([]float64{
			noise(rng, ts), noise(rng, ts), noise(rng, ts),
			noise(rng, rs/2), noise(rng, rs/2), noise(rng, rs/2),
		})).Normalize()
		e := slam3d.NewEdgeSE3()
		e.SetVertices(pair.from, pair.to)
		e.SetMeasurement(meas)
		e.SetInformation(diagonal(ts, ts, ts, rs/2, rs/2, rs/2))
		if err := p.Graph.AddEdge(e); err != nil {
			panic(err)
		}
		if pair.to == pair.from+1 {
			odometry[pair.to] = odometry[pair.from].Compose(meas)
		}
	}
	s := opts.InitialSigma
	for i := 1; i < n; i++ {
		perturb := spatialmath.NewSE3QuatFromMinimal([]float64{
			noise(rng, s), noise(rng, s), noise(rng, s),
			noise(rng, s/2), noise(rng, s/2), noise(rng, s/2),
		})
		p.Vertices[i].SetEstimate(odometry[i].Compose(perturb).Normalize())
	}
	return p
}

// MaxTranslationError returns the largest distance between an estimate and its ground truth.
func (p *SE3Problem) MaxTranslationError() float64 {
	worst := 0.
	for i, v := range p.Vertices {
		worst = math.Max(worst, v.Estimate().Translation.Sub(p.Truth[i].Translation).Norm())
	}
	return worst
}
