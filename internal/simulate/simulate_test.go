package simulate

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/fxnlabs/tileplan/internal/device"
	"github.com/fxnlabs/tileplan/internal/hypercube"
	"github.com/fxnlabs/tileplan/internal/planerr"
	"github.com/fxnlabs/tileplan/internal/problem"
	"github.com/fxnlabs/tileplan/internal/routine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func newRand() *rand.Rand {
	return rand.New(rand.NewPCG(7, 11))
}

func settingsFor(t *testing.T, profile string) device.Settings {
	t.Helper()
	if profile == "cpu" {
		return device.NewSettings(device.NewCPUProber().Limits(), device.LineSizes{})
	}
	limits, ok := device.BuiltinProfile(profile)
	require.True(t, ok, profile)
	return device.NewSettings(limits, device.LineSizes{})
}

func descriptor(m, n, k, batch uint32) problem.Descriptor {
	return problem.Descriptor{M: m, N: n, K: k, Batch: batch, DTypes: problem.SingleDType(problem.F32)}
}

func TestVerifyInferredPlans(t *testing.T) {
	tests := []struct {
		name    string
		profile string
		desc    problem.Descriptor
		sel     routine.Selection
	}{
		{"simple", "cuda-sm80", descriptor(256, 256, 64, 1), routine.Selection{Family: routine.Simple}},
		{"specialized", "cuda-sm80", descriptor(256, 256, 64, 1), routine.Selection{Family: routine.Specialized}},
		{"double buffering uneven", "cuda-sm80", descriptor(100, 200, 300, 1), routine.Selection{
			Family:   routine.DoubleBuffering,
			Strategy: routine.Inferred(routine.Hints{TileSize: routine.MaxTileSize}),
		}},
		{"unit", "wgpu-generic", descriptor(256, 256, 64, 1), routine.Selection{Family: routine.SimpleUnit}},
		{"double unit batched", "cpu", descriptor(70, 50, 30, 2), routine.Selection{
			Family:   routine.DoubleUnit,
			Strategy: routine.Inferred(routine.Hints{TileSize: routine.MaxTileSize}),
		}},
		{"auto vecmat", "cuda-sm80", descriptor(1, 512, 256, 1), routine.Selection{}},
		{"auto fallback", "wgpu-generic", descriptor(96, 80, 40, 3), routine.Selection{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, _, err := routine.Select(tt.desc, settingsFor(t, tt.profile), tt.sel)
			require.NoError(t, err)

			ops := RandomOperands(tt.desc, newRand())
			report, err := Verify(info, tt.desc, ops, 1e-9, Fail)
			require.NoError(t, err)

			assert.Equal(t, info.Plan.TotalWorkGroups(), report.Blocks)
			assert.Equal(t, info.Grid.Count(), report.Launched)
			assert.Equal(t, report.Launched-report.Blocks, report.Idle)
			assert.Equal(t, Passed, Judge(err, Fail))
		})
	}
}

func TestRunRejectsBrokenPlans(t *testing.T) {
	fromProblem := hypercube.NewBuilder().Build()
	settings := settingsFor(t, "wgpu-generic")

	prepare := func(t *testing.T, desc problem.Descriptor) *routine.LaunchInfo {
		t.Helper()
		info, _, err := routine.Select(desc, settings, routine.Selection{
			Family:   routine.SimpleUnit,
			Strategy: routine.Inferred(routine.Hints{Hypercube: &fromProblem}),
		})
		require.NoError(t, err)
		require.Equal(t, hypercube.FromProblem, info.Plan.Kind)
		return info
	}

	t.Run("missing bounds check", func(t *testing.T) {
		desc := descriptor(100, 100, 30, 1)
		info := prepare(t, desc)
		require.True(t, info.Blueprint.CheckMBounds)
		info.Blueprint.CheckMBounds = false

		_, _, err := Run(info, desc, RandomOperands(desc, newRand()))
		assert.ErrorIs(t, err, ErrOutOfBounds)
		assert.Equal(t, Failed, Judge(err, Skip))
	})

	t.Run("uncovered blocks", func(t *testing.T) {
		desc := descriptor(256, 256, 16, 1)
		info := prepare(t, desc)
		require.Greater(t, info.Plan.TotalWorkGroups(), uint64(1))
		info.Grid = hypercube.GridShape{X: 1, Y: 1, Z: 1}

		_, _, err := Run(info, desc, RandomOperands(desc, newRand()))
		assert.ErrorIs(t, err, ErrUncovered)
	})

	t.Run("overlapping blocks", func(t *testing.T) {
		desc := descriptor(256, 256, 16, 2)
		info := prepare(t, desc)
		// Doubling x makes batch 0 positions spill into batch 1.
		info.Grid = hypercube.GridShape{X: 2 * info.Plan.MBlocks, Y: info.Plan.NBlocks, Z: 2}

		_, _, err := Run(info, desc, RandomOperands(desc, newRand()))
		assert.ErrorIs(t, err, ErrOverlap)
	})

	t.Run("operand shape", func(t *testing.T) {
		desc := descriptor(32, 32, 8, 1)
		info := prepare(t, desc)
		ops := RandomOperands(descriptor(32, 32, 9, 1), newRand())

		_, _, err := Run(info, desc, ops)
		assert.Error(t, err)
	})
}

func TestAssertApprox(t *testing.T) {
	expected := mat.NewDense(2, 2, []float64{1, -200, 0, math.NaN()})

	tests := []struct {
		name    string
		actual  []float64
		epsilon float64
		wantErr bool
	}{
		{"exact", []float64{1, -200, 0, math.NaN()}, 1e-6, false},
		{"relative tolerance", []float64{1, -200.01, 0, math.NaN()}, 1e-4, false},
		{"absolute floor", []float64{1, -200, 5e-5, math.NaN()}, 1e-4, false},
		{"outside tolerance", []float64{1.1, -200, 0, math.NaN()}, 1e-4, true},
		{"missing nan", []float64{1, -200, 0, 3}, 1e-4, true},
		{"unexpected nan", []float64{math.NaN(), -200, 0, math.NaN()}, 1e-4, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := AssertApprox(mat.NewDense(2, 2, tt.actual), expected, tt.epsilon, Fail)
			if tt.wantErr {
				var mismatch *MismatchError
				assert.ErrorAs(t, err, &mismatch)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	t.Run("shape mismatch", func(t *testing.T) {
		err := AssertApprox(mat.NewDense(1, 2, nil), expected, 1e-4, Fail)
		assert.Error(t, err)
	})

	t.Run("print dumps every value", func(t *testing.T) {
		err := AssertApprox(expected, expected, 1e-4, Print)
		var mismatch *MismatchError
		require.ErrorAs(t, err, &mismatch)
		assert.Contains(t, err.Error(), "0 1 -200 -200")
		assert.Contains(t, err.Error(), "1 1 NaN NaN")
	})
}

func TestJudge(t *testing.T) {
	unavailable := planerr.Unavailable("test", "no accelerator")
	invalid := planerr.InvalidConfig("test", "zero tile")

	tests := []struct {
		name string
		err  error
		mode ReportMode
		want Outcome
	}{
		{"success", nil, Fail, Passed},
		{"unavailable skipped", unavailable, Skip, Skipped},
		{"unavailable wrapped skipped", planerr.Wrap("routine.auto", unavailable), Skip, Skipped},
		{"unavailable fails", unavailable, Fail, Failed},
		{"invalid never skipped", invalid, Skip, Failed},
		{"mismatch never skipped", &MismatchError{}, Skip, Failed},
		{"print fails", unavailable, Print, Failed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Judge(tt.err, tt.mode))
		})
	}
}

func TestReportModeText(t *testing.T) {
	for _, m := range []ReportMode{Skip, Fail, Print} {
		text, err := m.MarshalText()
		require.NoError(t, err)
		var got ReportMode
		require.NoError(t, got.UnmarshalText(text))
		assert.Equal(t, m, got)
	}

	m, err := ParseReportMode("PRINT")
	require.NoError(t, err)
	assert.Equal(t, Print, m)

	_, err = ParseReportMode("panic")
	assert.Error(t, err)
}

func TestOutcomeText(t *testing.T) {
	for _, o := range []Outcome{Passed, Skipped, Failed} {
		text, err := o.MarshalText()
		require.NoError(t, err)
		var got Outcome
		require.NoError(t, got.UnmarshalText(text))
		assert.Equal(t, o, got)
	}

	var o Outcome
	assert.Error(t, o.UnmarshalText([]byte("flaky")))
}

func TestFreivaldsVerify(t *testing.T) {
	desc := descriptor(40, 30, 20, 1)
	ops := RandomOperands(desc, newRand())
	product := Reference(ops)[0]

	assert.True(t, FreivaldsVerify(ops.Lhs[0], ops.Rhs[0], product, 20, 1e-9, newRand()))

	wrong := mat.DenseCopyOf(product)
	wrong.Set(3, 7, wrong.At(3, 7)+1)
	assert.False(t, FreivaldsVerify(ops.Lhs[0], ops.Rhs[0], wrong, 20, 1e-9, newRand()))

	assert.False(t, FreivaldsVerify(ops.Lhs[0], ops.Rhs[0], mat.NewDense(2, 2, nil), 1, 1e-9, newRand()))
}

func TestVerifyFreivalds(t *testing.T) {
	desc := descriptor(128, 96, 64, 1)
	info, _, err := routine.Select(desc, settingsFor(t, "cuda-sm80"), routine.Selection{})
	require.NoError(t, err)

	report, err := VerifyFreivalds(info, desc, RandomOperands(desc, newRand()), 10, 1e-9, newRand())
	require.NoError(t, err)
	assert.Equal(t, info.Plan.TotalWorkGroups(), report.Blocks)
}
