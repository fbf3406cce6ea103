package main

import (
	"fmt"
	"os"

	"github.com/common-nighthawk/go-figure"
	"github.com/fxnlabs/tileplan/fixtures"
	"github.com/fxnlabs/tileplan/internal/app"
	"github.com/fxnlabs/tileplan/internal/config"
	"github.com/fxnlabs/tileplan/internal/device"
	"github.com/urfave/cli/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func banner(c *cli.Context, title string) {
	if c.String("output") != "yaml" {
		return
	}
	fmt.Fprintln(c.App.Writer, figure.NewFigure(title, "", true).String())
}

func devicesCommand(cfg **config.Config, log **zap.Logger) *cli.Command {
	return &cli.Command{
		Name:  "devices",
		Usage: "List the device profiles and the one plans target",
		Action: func(c *cli.Context) error {
			p, err := newPlanner(*cfg, *log)
			if err != nil {
				return err
			}
			banner(c, "tileplan")
			return writeOutput(c.App.Writer, c.String("output"), struct {
				Selected string          `json:"selected" yaml:"selected"`
				Settings device.Settings `json:"settings" yaml:"settings"`
				Profiles []device.Limits `json:"profiles" yaml:"profiles"`
			}{p.DeviceName(), p.Settings(), p.Profiles()})
		},
	}
}

func serveCommand(cfg **config.Config) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve plans over HTTP until interrupted",
		Action: func(c *cli.Context) error {
			fmt.Fprintln(c.App.Writer, figure.NewFigure("tileplan", "", true).String())
			fx.New(app.Module(*cfg), app.Serve()).Run()
			return nil
		},
	}
}

func initCommand() *cli.Command {
	return &cli.Command{
		Name:      "init",
		Usage:     "Write a commented configuration file",
		ArgsUsage: "[path]",
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if path == "" {
				path = "config.yaml"
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, fixtures.ConfigTemplate, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "Wrote %s\n", path)
			return nil
		},
	}
}
