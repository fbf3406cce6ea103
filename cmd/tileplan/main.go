package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fxnlabs/tileplan/internal/config"
	"github.com/fxnlabs/tileplan/internal/logger"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func newApp(out io.Writer, rootLogger **zap.Logger) *cli.App {
	var cfg *config.Config

	return &cli.App{
		Name:   "tileplan",
		Usage:  "Plan and check launch blueprints for tiled matmul kernels",
		Writer: out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Load configuration from `FILE`; built-in defaults when empty",
				EnvVars: []string{"TILEPLAN_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "device",
				Usage: "Device profile to plan for, overriding the configuration",
			},
			&cli.StringFlag{
				Name:  "output",
				Value: "yaml",
				Usage: "Output format: yaml or json",
			},
		},
		Before: func(c *cli.Context) error {
			var err error
			cfg = config.Default()
			if path := c.String("config"); path != "" {
				cfg, err = config.LoadConfig(path)
				if err != nil {
					return err
				}
			}
			if device := c.String("device"); device != "" {
				cfg.Device.Profile = device
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			zapLogger, err := logger.New(cfg.Logger.Verbosity, cfg.Logger.Encoding)
			if err != nil {
				return err
			}
			*rootLogger = zapLogger.Named("cli")
			return nil
		},
		Commands: []*cli.Command{
			planCommand(&cfg, rootLogger),
			verifyCommand(&cfg, rootLogger),
			devicesCommand(&cfg, rootLogger),
			serveCommand(&cfg),
			initCommand(),
		},
	}
}

func main() {
	var rootLogger *zap.Logger
	if err := newApp(os.Stdout, &rootLogger).Run(os.Args); err != nil {
		if rootLogger != nil {
			rootLogger.Error("command failed", zap.Error(err))
			_ = rootLogger.Sync()
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
