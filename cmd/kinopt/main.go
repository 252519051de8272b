// Package main is the kinopt command line tool. It reads a problem file describing a model, goals, obstacles and
// options, then solves or checks it.
package main

import (
	"io"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"go.viam.com/kinopt/logging"
)

const (
	// Flags.
	flagDebug   = "debug"
	flagLogFile = "log-file"
	flagTimeout = "timeout"
	flagGoal    = "goal"
	flagMode    = "mode"
	flagSamples = "samples"
	flagSeed    = "seed"
)

func main() {
	app := newApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp(out, errOut io.Writer) *cli.App {
	r := &runner{logger: logging.NewBlankLogger("kinopt")}
	problemArg := "<problem file>"
	return &cli.App{
		Name:            "kinopt",
		Usage:           "solve collision-aware inverse kinematics problems",
		HideHelpCommand: true,
		Writer:          out,
		ErrWriter:       errOut,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.StringFlag{
				Name:  flagLogFile,
				Usage: "also write JSON logs to `FILE`, rotated by size",
			},
			&cli.DurationFlag{
				Name:  flagTimeout,
				Usage: "abandon the command after `DURATION`",
			},
		},
		Before: func(c *cli.Context) error {
			level := logging.INFO
			if c.Bool(flagDebug) {
				level = logging.DEBUG
			}
			appenders := []logging.Appender{logging.NewWriterAppender(errOut)}
			if path := c.String(flagLogFile); path != "" {
				file, closer := logging.NewFileAppender(path)
				appenders = append(appenders, file)
				r.closers = append(r.closers, closer)
			}
			r.logger = logging.NewLoggerWithAppenders("kinopt", level, appenders...)
			return nil
		},
		After: func(c *cli.Context) error {
			return r.close()
		},
		Commands: []*cli.Command{
			{
				Name:      "solve",
				Usage:     "solve inverse kinematics for one goal of a problem",
				ArgsUsage: problemArg,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  flagGoal,
						Usage: "index of the goal to solve",
					},
				},
				Action: r.solveAction,
			},
			{
				Name:      "trajectory",
				Usage:     "solve every goal of a problem as one trajectory",
				ArgsUsage: problemArg,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  flagMode,
						Usage: "override the trajectory mode (sequential or joint)",
					},
				},
				Action: r.trajectoryAction,
			},
			{
				Name:      "check",
				Usage:     "report the signed distance of every checked pair at the start state",
				ArgsUsage: problemArg,
				Action:    r.checkAction,
			},
			{
				Name:      "learn",
				Usage:     "sample random states and report self pairs that can never separate",
				ArgsUsage: problemArg,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  flagSamples,
						Usage: "number of random states to sample",
					},
					&cli.Int64Flag{
						Name:  flagSeed,
						Usage: "seed of the state sampler",
					},
				},
				Action: r.learnAction,
			},
			{
				Name:   "schema",
				Usage:  "print the JSON schema of problem files",
				Action: schemaAction,
			},
		},
	}
}
