package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/edaniels/golog"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"go.viam.com/posegraph/graph"
	"go.viam.com/posegraph/graphio"
	"go.viam.com/posegraph/optimizer"
	"go.viam.com/posegraph/registry"
	"go.viam.com/posegraph/types/slam2d"
	"go.viam.com/posegraph/types/slam3d"
	"go.viam.com/posegraph/utils"
)

func newRegistry() (*registry.Registry, error) {
	reg := registry.New()
	if err := registry.Populate(reg, slam2d.Register, slam3d.Register); err != nil {
		return nil, err
	}
	return reg, nil
}

type optimizeArgs struct {
	Input      string
	Output     string
	ConfigPath string
	Iterations int
	Algorithm  string
	Solver     string
	Guess      bool
	Parallel   bool
}

func optimizeAction(c *cli.Context, logger golog.Logger) error {
	args := optimizeArgs{
		Input:      c.Path(flagInput),
		Output:     c.Path(flagOutput),
		ConfigPath: c.Path(flagConfig),
		Iterations: c.Int(flagIterations),
		Algorithm:  c.String(flagAlgorithm),
		Solver:     c.String(flagSolver),
		Guess:      c.Bool(flagGuess),
		Parallel:   c.Bool(flagParallel),
	}
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	_, err := optimizeGraph(ctx, args, logger, c.App.Writer)
	return err
}

func (args optimizeArgs) config() (*optimizer.Config, error) {
	cfg := optimizer.DefaultConfig()
	if args.ConfigPath != "" {
		var err error
		if cfg, err = optimizer.LoadConfig(args.ConfigPath); err != nil {
			return nil, err
		}
	}
	if args.Iterations > 0 {
		cfg.MaxIterations = args.Iterations
	}
	if args.Algorithm != "" {
		cfg.Algorithm = args.Algorithm
	}
	if args.Solver != "" {
		cfg.LinearSolver = args.Solver
	}
	if args.Guess {
		cfg.ComputeInitialGuess = true
	}
	if args.Parallel {
		cfg.Workers = utils.ParallelFactor
	}
	return cfg, nil
}

// optimizeGraph loads the input graph, optimizes it, reports to out and writes the output file
// when one is requested. A run that stops on timeout or the iteration cap still writes its
// estimates.
func optimizeGraph(ctx context.Context, args optimizeArgs, logger golog.Logger, out io.Writer) (*optimizer.Result, error) {
	cfg, err := args.config()
	if err != nil {
		return nil, err
	}
	reg, err := newRegistry()
	if err != nil {
		return nil, err
	}

	g := graph.New()
	report, err := graphio.ReadFile(args.Input, g, reg, logger)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", args.Input)
	}
	logger.Infow("loaded graph",
		"file", args.Input,
		"vertices", report.Vertices,
		"edges", report.Edges,
		"fixed", report.Fixed,
		"skipped", report.Skipped())

	opt, err := optimizer.New(g, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := opt.InitializeOptimization(); err != nil {
		return nil, err
	}
	res, err := opt.Optimize(ctx, 0)
	if err != nil {
		return res, err
	}

	if _, err := fmt.Fprintln(out, iterationTable(res)); err != nil {
		return res, err
	}
	summary, err := opt.Summary()
	if err != nil {
		return res, err
	}
	if _, err := fmt.Fprintf(out, "%s after %d iterations: chi2 %g -> %g\n%s\n",
		res.Reason, res.Iterations, res.InitialChi2, res.Chi2, summaryTable(summary)); err != nil {
		return res, err
	}

	if args.Output != "" {
		if err := graphio.WriteFile(args.Output, g, reg); err != nil {
			return res, errors.Wrapf(err, "writing %s", args.Output)
		}
		logger.Infow("wrote graph", "file", args.Output)
	}
	return res, nil
}

func iterationTable(res *optimizer.Result) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Iteration", "Chi2", "Lambda", "Trials", "Step", "Time"})
	for _, s := range res.Stats {
		t.AppendRow(table.Row{
			s.Iteration,
			fmt.Sprintf("%.6g", s.Chi2),
			fmt.Sprintf("%.3g", s.Lambda),
			s.LevenbergTrials,
			fmt.Sprintf("%.3g", s.StepNorm),
			s.Duration,
		})
	}
	return t.Render()
}

func summaryTable(s optimizer.ErrorSummary) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Edges", "Total", "Mean", "Median", "P95", "Max"})
	t.AppendRow(table.Row{
		s.Count,
		fmt.Sprintf("%.6g", s.Total),
		fmt.Sprintf("%.6g", s.Mean),
		fmt.Sprintf("%.6g", s.Median),
		fmt.Sprintf("%.6g", s.P95),
		fmt.Sprintf("%.6g", s.Max),
	})
	return t.Render()
}

func typesAction(c *cli.Context) error {
	reg, err := newRegistry()
	if err != nil {
		return err
	}
	return writeTypes(c.App.Writer, reg)
}

func writeTypes(out io.Writer, reg *registry.Registry) error {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Tag", "Kind", "Registered At"})
	for _, tag := range reg.Tags() {
		r, _ := reg.Lookup(tag)
		kind := "edge"
		if _, ok := r.Factory().(graph.Vertex); ok {
			kind = "vertex"
		}
		t.AppendRow(table.Row{tag, kind, r.RegistrarLoc})
	}
	_, err := fmt.Fprintln(out, t.Render())
	return err
}
