package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"

	"github.com/fxnlabs/tileplan/internal/blueprint"
	"github.com/fxnlabs/tileplan/internal/config"
	"github.com/fxnlabs/tileplan/internal/device"
	"github.com/fxnlabs/tileplan/internal/planner"
	"github.com/fxnlabs/tileplan/internal/problem"
	"github.com/fxnlabs/tileplan/internal/routine"
	"github.com/fxnlabs/tileplan/internal/simulate"
	"github.com/fxnlabs/tileplan/pkg/planclient"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

func problemFlags() []cli.Flag {
	return []cli.Flag{
		&cli.UintFlag{Name: "m", Usage: "Rows of lhs and out", Required: true},
		&cli.UintFlag{Name: "n", Usage: "Columns of rhs and out", Required: true},
		&cli.UintFlag{Name: "k", Usage: "Reduction size", Required: true},
		&cli.UintFlag{Name: "batch", Value: 1, Usage: "Number of independent products"},
		&cli.StringFlag{Name: "dtype", Value: "f32", Usage: "Element type of every operand"},
		&cli.StringFlag{Name: "lhs-layout", Value: "row_major", Usage: "row_major or col_major"},
		&cli.StringFlag{Name: "rhs-layout", Value: "row_major", Usage: "row_major or col_major"},
		&cli.StringFlag{Name: "family", Value: "auto", Usage: "Algorithm family, or auto"},
		&cli.StringFlag{Name: "tile-size", Value: "min_tile_size", Usage: "min_tile_size or max_tile_size"},
		&cli.BoolFlag{Name: "swizzle", Usage: "Swizzle shared memory of lhs and rhs"},
		&cli.StringFlag{Name: "blueprint", Usage: "Force the blueprint in `FILE` (yaml or json)"},
	}
}

func dim(c *cli.Context, name string) (uint32, error) {
	v := c.Uint(name)
	if v > math.MaxUint32 {
		return 0, fmt.Errorf("--%s %d does not fit in 32 bits", name, v)
	}
	return uint32(v), nil
}

func requestFromFlags(c *cli.Context) (planner.Request, error) {
	var req planner.Request
	var err error
	d := &req.Problem
	for name, dst := range map[string]*uint32{"m": &d.M, "n": &d.N, "k": &d.K, "batch": &d.Batch} {
		if *dst, err = dim(c, name); err != nil {
			return req, err
		}
	}

	dtype, err := problem.ParseDType(c.String("dtype"))
	if err != nil {
		return req, err
	}
	d.DTypes = problem.SingleDType(dtype)
	if err := d.LhsLayout.UnmarshalText([]byte(c.String("lhs-layout"))); err != nil {
		return req, err
	}
	if err := d.RhsLayout.UnmarshalText([]byte(c.String("rhs-layout"))); err != nil {
		return req, err
	}

	if req.Family, err = routine.ParseFamily(c.String("family")); err != nil {
		return req, err
	}

	if path := c.String("blueprint"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return req, err
		}
		var bp blueprint.Blueprint
		if err := yaml.Unmarshal(data, &bp); err != nil {
			return req, fmt.Errorf("failed to parse blueprint %s: %w", path, err)
		}
		req.Strategy = routine.Forced(bp)
		return req, nil
	}

	hints := routine.Hints{Swizzle: c.Bool("swizzle")}
	if err := hints.TileSize.UnmarshalText([]byte(c.String("tile-size"))); err != nil {
		return req, err
	}
	req.Strategy = routine.Inferred(hints)
	return req, nil
}

func newPlanner(cfg *config.Config, log *zap.Logger) (*planner.Planner, error) {
	manager, err := device.NewManager(log, cfg.Device.Profile, cfg.Probers()...)
	if err != nil {
		return nil, err
	}
	return planner.New(log, manager, cfg), nil
}

func writeOutput(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func planCommand(cfg **config.Config, log **zap.Logger) *cli.Command {
	return &cli.Command{
		Name:  "plan",
		Usage: "Prepare a validated launch for one problem",
		Flags: append(problemFlags(),
			&cli.StringFlag{Name: "remote", Usage: "Ask the tileplan server at `URL` instead of planning locally"},
		),
		Action: func(c *cli.Context) error {
			req, err := requestFromFlags(c)
			if err != nil {
				return err
			}

			var res *planner.Result
			if url := c.String("remote"); url != "" {
				req.Device = c.String("device")
				res, err = planclient.New(url, nil).Plan(c.Context, req)
			} else {
				var p *planner.Planner
				if p, err = newPlanner(*cfg, *log); err != nil {
					return err
				}
				res, err = p.Plan(req)
			}
			if err != nil {
				return err
			}
			return writeOutput(c.App.Writer, c.String("output"), res)
		},
	}
}

type verifyResult struct {
	Outcome simulate.Outcome `json:"outcome" yaml:"outcome"`
	Routine string           `json:"routine,omitempty" yaml:"routine,omitempty"`
	Report  simulate.Report  `json:"report" yaml:"report"`
	Error   string           `json:"error,omitempty" yaml:"error,omitempty"`
}

func verifyCommand(cfg **config.Config, log **zap.Logger) *cli.Command {
	flags := append(problemFlags(),
		&cli.Uint64Flag{Name: "seed", Value: 1, Usage: "Seed of the random operands"},
		&cli.StringFlag{Name: "mode", Usage: "Report mode: skip, fail or print; the configured one when empty"},
		&cli.IntFlag{Name: "freivalds", Usage: "Check with this many Freivalds rounds instead of a full reference product"},
	)
	return &cli.Command{
		Name:  "verify",
		Usage: "Run a planned launch on the host and check its result",
		Flags: flags,
		Action: func(c *cli.Context) error {
			req, err := requestFromFlags(c)
			if err != nil {
				return err
			}
			mode := (*cfg).Planner.ReportMode
			if s := c.String("mode"); s != "" {
				if mode, err = simulate.ParseReportMode(s); err != nil {
					return err
				}
			}
			p, err := newPlanner(*cfg, *log)
			if err != nil {
				return err
			}

			var out verifyResult
			res, err := p.Plan(req)
			if err == nil {
				out.Routine = res.Launch.Name
				seed := c.Uint64("seed")
				rng := rand.New(rand.NewPCG(seed, seed+1))
				ops := simulate.RandomOperands(req.Problem, rng)
				if rounds := c.Int("freivalds"); rounds > 0 {
					out.Report, err = simulate.VerifyFreivalds(res.Launch, req.Problem, ops, rounds, (*cfg).Planner.Epsilon, rng)
				} else {
					out.Report, err = simulate.Verify(res.Launch, req.Problem, ops, (*cfg).Planner.Epsilon, mode)
				}
			}
			out.Outcome = simulate.Judge(err, mode)
			if err != nil {
				out.Error = err.Error()
			}
			if werr := writeOutput(c.App.Writer, c.String("output"), out); werr != nil {
				return werr
			}
			if out.Outcome == simulate.Failed {
				return fmt.Errorf("verification %s", out.Outcome)
			}
			return nil
		},
	}
}
