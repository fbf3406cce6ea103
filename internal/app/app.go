// Package app wires the planner's components with fx.
package app

import (
	"github.com/fxnlabs/tileplan/internal/config"
	"github.com/fxnlabs/tileplan/internal/device"
	"github.com/fxnlabs/tileplan/internal/logger"
	"github.com/fxnlabs/tileplan/internal/planner"
	"github.com/fxnlabs/tileplan/internal/server"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// Module provides the logger, device manager, planner and server for cfg.
func Module(cfg *config.Config) fx.Option {
	return fx.Options(
		fx.Supply(cfg),
		fx.Provide(
			newLogger,
			newDeviceManager,
			planner.New,
			server.New,
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
	)
}

// Serve runs the HTTP server for the lifetime of the application.
func Serve() fx.Option {
	return fx.Invoke(registerServer)
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logger.New(cfg.Logger.Verbosity, cfg.Logger.Encoding)
}

func newDeviceManager(log *zap.Logger, cfg *config.Config) (*device.Manager, error) {
	return device.NewManager(log, cfg.Device.Profile, cfg.Probers()...)
}

func registerServer(lc fx.Lifecycle, srv *server.Server) {
	lc.Append(fx.Hook{
		OnStart: srv.Start,
		OnStop:  srv.Stop,
	})
}
