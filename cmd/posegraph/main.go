// Package main is the posegraph command line tool.
package main

import (
	"log"
	"os"

	"github.com/edaniels/golog"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const (
	// Flags.
	flagInput      = "input"
	flagOutput     = "output"
	flagConfig     = "config"
	flagIterations = "iterations"
	flagAlgorithm  = "algorithm"
	flagSolver     = "solver"
	flagGuess      = "guess"
	flagParallel   = "parallel"
	flagDebug      = "debug"
	flagQuiet      = "quiet"
)

func main() {
	var logger golog.Logger

	app := &cli.App{
		Name:  "posegraph",
		Usage: "optimize pose graphs stored in g2o text files",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.BoolFlag{
				Name:  flagQuiet,
				Usage: "disable logging",
			},
		},
		Before: func(c *cli.Context) error {
			switch {
			case c.Bool(flagDebug):
				logger = golog.NewDebugLogger("posegraph")
			case c.Bool(flagQuiet):
				logger = zap.NewNop().Sugar()
			default:
				logger = golog.NewDevelopmentLogger("posegraph")
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "optimize",
				Usage:     "optimize a graph file",
				UsageText: "posegraph optimize --input FILE [--output FILE] [options]",
				Flags: []cli.Flag{
					&cli.PathFlag{
						Name:     flagInput,
						Aliases:  []string{"i"},
						Required: true,
						Usage:    "read the graph from `FILE`",
					},
					&cli.PathFlag{
						Name:    flagOutput,
						Aliases: []string{"o"},
						Usage:   "write the optimized graph to `FILE`",
					},
					&cli.PathFlag{
						Name:    flagConfig,
						Aliases: []string{"c"},
						Usage:   "load optimizer settings from a .json, .json5 or .toml `FILE`",
					},
					&cli.IntFlag{
						Name:    flagIterations,
						Aliases: []string{"n"},
						Usage:   "maximum number of iterations (overrides the config)",
					},
					&cli.StringFlag{
						Name:  flagAlgorithm,
						Usage: "gn or lm (overrides the config)",
					},
					&cli.StringFlag{
						Name:  flagSolver,
						Usage: "cholesky_sparse, cholesky_dense or pcg (overrides the config)",
					},
					&cli.BoolFlag{
						Name:  flagGuess,
						Usage: "compute an initial guess by propagating from the fixed vertices",
					},
					&cli.BoolFlag{
						Name:  flagParallel,
						Usage: "linearize edges on several goroutines",
					},
				},
				Action: func(c *cli.Context) error {
					return optimizeAction(c, logger)
				},
			},
			{
				Name:  "types",
				Usage: "list the registered element tags",
				Action: func(c *cli.Context) error {
					return typesAction(c)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
