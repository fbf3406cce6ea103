package planner

import (
	"testing"

	"github.com/fxnlabs/tileplan/internal/config"
	"github.com/fxnlabs/tileplan/internal/device"
	"github.com/fxnlabs/tileplan/internal/hypercube"
	"github.com/fxnlabs/tileplan/internal/metrics"
	"github.com/fxnlabs/tileplan/internal/planerr"
	"github.com/fxnlabs/tileplan/internal/problem"
	"github.com/fxnlabs/tileplan/internal/routine"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newPlanner(t *testing.T, cfg *config.Config) *Planner {
	t.Helper()
	manager, err := device.NewManager(zap.NewNop(), "cuda-sm80", device.BuiltinProfiles()...)
	require.NoError(t, err)
	return New(zap.NewNop(), manager, cfg)
}

func request(m, n, k uint32) Request {
	return Request{Problem: problem.Descriptor{M: m, N: n, K: k, Batch: 1, DTypes: problem.SingleDType(problem.F32)}}
}

func TestPlan(t *testing.T) {
	p := newPlanner(t, config.Default())
	assert.Equal(t, "cuda-sm80", p.DeviceName())
	assert.Equal(t, uint32(32), p.Settings().LaneWidth)

	t.Run("default device", func(t *testing.T) {
		before := testutil.ToFloat64(metrics.PlansTotal.WithLabelValues("specialized", "ok"))

		res, err := p.Plan(request(256, 256, 64))
		require.NoError(t, err)

		assert.Equal(t, "cuda-sm80", res.Device)
		assert.Equal(t, routine.Specialized, res.Launch.Family)
		require.Len(t, res.Skipped, 1)
		assert.Equal(t, routine.SimpleVecMat, res.Skipped[0].Family)
		assert.Equal(t, before+1, testutil.ToFloat64(metrics.PlansTotal.WithLabelValues("specialized", "ok")))
		assert.Equal(t, float64(res.Launch.Grid.Count()), testutil.ToFloat64(metrics.LastPlanWorkGroups))
	})

	t.Run("device override falls back", func(t *testing.T) {
		before := testutil.ToFloat64(metrics.FamilyFallbacks.WithLabelValues("simple"))

		req := request(256, 256, 64)
		req.Device = "wgpu-generic"
		res, err := p.Plan(req)
		require.NoError(t, err)

		assert.Equal(t, "wgpu-generic", res.Device)
		assert.Equal(t, routine.SimpleUnit, res.Launch.Family)
		assert.Len(t, res.Skipped, 3)
		assert.Equal(t, before+1, testutil.ToFloat64(metrics.FamilyFallbacks.WithLabelValues("simple")))
	})

	t.Run("cpu override", func(t *testing.T) {
		req := request(64, 64, 64)
		req.Device = "cpu"
		res, err := p.Plan(req)
		require.NoError(t, err)
		assert.Equal(t, "cpu", res.Device)
		assert.Equal(t, routine.SimpleUnit, res.Launch.Family)
	})

	t.Run("unknown device", func(t *testing.T) {
		before := testutil.ToFloat64(metrics.ValidationFailures.WithLabelValues("invalid_config"))

		req := request(256, 256, 64)
		req.Device = "tpu"
		_, err := p.Plan(req)
		assert.True(t, planerr.IsInvalidConfig(err))
		assert.Equal(t, before+1, testutil.ToFloat64(metrics.ValidationFailures.WithLabelValues("invalid_config")))
	})

	t.Run("explicit unavailable family", func(t *testing.T) {
		before := testutil.ToFloat64(metrics.PlansTotal.WithLabelValues("simple_vecmat", "unavailable"))

		req := request(256, 256, 64)
		req.Family = routine.SimpleVecMat
		_, err := p.Plan(req)
		assert.True(t, planerr.IsUnavailable(err))
		assert.Equal(t, before+1, testutil.ToFloat64(metrics.PlansTotal.WithLabelValues("simple_vecmat", "unavailable")))
	})
}

func TestPlanUsesConfig(t *testing.T) {
	t.Run("auto chain", func(t *testing.T) {
		cfg := config.Default()
		cfg.Planner.AutoChain = []routine.Family{routine.SimpleUnit}
		res, err := newPlanner(t, cfg).Plan(request(256, 256, 64))
		require.NoError(t, err)
		assert.Equal(t, routine.SimpleUnit, res.Launch.Family)
		assert.Empty(t, res.Skipped)
	})

	t.Run("request chain wins", func(t *testing.T) {
		cfg := config.Default()
		cfg.Planner.AutoChain = []routine.Family{routine.SimpleUnit}
		req := request(256, 256, 64)
		req.Chain = []routine.Family{routine.Simple}
		res, err := newPlanner(t, cfg).Plan(req)
		require.NoError(t, err)
		assert.Equal(t, routine.Simple, res.Launch.Family)
	})

	t.Run("stage element ceiling", func(t *testing.T) {
		cfg := config.Default()
		cfg.Planner.MaxStageElements = 1
		_, err := newPlanner(t, cfg).Plan(request(256, 256, 64))
		assert.True(t, planerr.IsInvalidConfig(err))
	})

	t.Run("custom profile", func(t *testing.T) {
		cfg := config.Default()
		lab, _ := device.BuiltinProfile("cuda-sm80")
		lab.Name = "lab"
		lab.NumStreamingMultiprocessors = 0
		cfg.Device.Profiles = []device.Limits{lab}

		req := request(256, 256, 64)
		req.Device = "lab"
		res, err := newPlanner(t, cfg).Plan(req)
		require.NoError(t, err)
		assert.Equal(t, "lab", res.Device)
		assert.Equal(t, hypercube.FromProblem, res.Launch.Plan.Kind)
	})
}

func TestProfiles(t *testing.T) {
	profiles := newPlanner(t, config.Default()).Profiles()
	require.Len(t, profiles, len(device.BuiltinProfiles())+1)
	for i := 1; i < len(profiles); i++ {
		assert.Less(t, profiles[i-1].Name, profiles[i].Name)
	}
}
