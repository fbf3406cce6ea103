package app

import (
	"net/http"
	"testing"

	"github.com/fxnlabs/tileplan/internal/config"
	"github.com/fxnlabs/tileplan/internal/device"
	"github.com/fxnlabs/tileplan/internal/planner"
	"github.com/fxnlabs/tileplan/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
)

func TestModule(t *testing.T) {
	cfg := config.Default()
	cfg.Logger.Verbosity = "error"
	cfg.Device.Profile = "wgpu-generic"

	var p *planner.Planner
	var manager *device.Manager
	app := fxtest.New(t, Module(cfg), fx.Populate(&p, &manager))
	app.RequireStart()
	defer app.RequireStop()

	assert.Equal(t, "wgpu-generic", manager.DeviceName())
	assert.Equal(t, "wgpu-generic", p.DeviceName())
}

func TestModuleRejectsUnknownProfile(t *testing.T) {
	cfg := config.Default()
	cfg.Logger.Verbosity = "error"
	cfg.Device.Profile = "tpu"

	var p *planner.Planner
	app := fx.New(Module(cfg), fx.Populate(&p))
	assert.Error(t, app.Err())
}

func TestServe(t *testing.T) {
	cfg := config.Default()
	cfg.Logger.Verbosity = "error"
	cfg.Server.ListenPort = 0

	var srv *server.Server
	app := fxtest.New(t, Module(cfg), Serve(), fx.Populate(&srv))
	app.RequireStart()
	defer app.RequireStop()

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
