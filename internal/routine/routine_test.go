package routine

import (
	"fmt"
	"sync"
	"testing"

	"github.com/fxnlabs/tileplan/internal/blueprint"
	"github.com/fxnlabs/tileplan/internal/device"
	"github.com/fxnlabs/tileplan/internal/hypercube"
	"github.com/fxnlabs/tileplan/internal/planerr"
	"github.com/fxnlabs/tileplan/internal/problem"
	"github.com/fxnlabs/tileplan/internal/resource"
	"github.com/fxnlabs/tileplan/internal/tiling"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func settingsFor(t *testing.T, profile string) device.Settings {
	t.Helper()
	limits, ok := device.BuiltinProfile(profile)
	require.True(t, ok, profile)
	return device.NewSettings(limits, device.LineSizes{})
}

func square(m, n, k uint32) problem.Descriptor {
	return problem.Descriptor{M: m, N: n, K: k, Batch: 1, DTypes: problem.SingleDType(problem.F32)}
}

func TestSimpleInferred(t *testing.T) {
	settings := settingsFor(t, "cuda-sm80")
	r, ok := Lookup(Simple)
	require.True(t, ok)

	info, err := r.Prepare(square(256, 256, 64), settings, Inferred(Hints{}))
	require.NoError(t, err)

	assert.Equal(t, Simple, info.Family)
	assert.Equal(t, "matmul_simple", info.Name)
	assert.Equal(t, tiling.NewSize(16, 16, 8), info.Blueprint.Tiling.Tile)
	assert.Equal(t, tiling.NewSize(1, 4, 1), info.Blueprint.Tiling.Partition)
	assert.Equal(t, tiling.NewSize(4, 1, 1), info.Blueprint.Tiling.Stage)
	assert.False(t, info.Blueprint.CheckMBounds || info.Blueprint.CheckNBounds || info.Blueprint.CheckKBounds)

	assert.Equal(t, problem.TF32, info.DTypes.Lhs.Stage)
	assert.Equal(t, problem.F32, info.DTypes.Lhs.Global)

	assert.Equal(t, resource.LaneGroups(4), info.Request)
	assert.Equal(t, resource.WorkGroupShape{X: 32, Y: 4, Z: 1}, info.WorkGroup)
	assert.Equal(t, hypercube.SwizzleRowOrder(2), info.Blueprint.Hypercube.GlobalOrder)
	assert.Equal(t, hypercube.Sm, info.Plan.Kind)
	assert.Equal(t, hypercube.GridShape{X: 1, Y: 108, Z: 1}, info.Grid)
	assert.GreaterOrEqual(t, info.Grid.Count(), info.Plan.TotalWorkGroups())
}

func TestSpecializedInferred(t *testing.T) {
	settings := settingsFor(t, "cuda-sm80")
	r, _ := Lookup(Specialized)

	info, err := r.Prepare(square(256, 256, 64), settings, Inferred(Hints{}))
	require.NoError(t, err)

	assert.Equal(t, blueprint.PipelineSpecialized, info.Blueprint.Pipelining)
	assert.Equal(t, resource.LoadFlows{Lhs: resource.LoadOnly}, info.Blueprint.LoadFlows)
	assert.Equal(t, resource.KindSpecialized, info.Request.Kind())
	assert.Equal(t, uint32(8), info.Request.Count())
	assert.Equal(t, uint32(8), info.WorkGroup.Y)
	assert.Equal(t, uint32(2), info.Blueprint.Tiling.Partition.K)
}

func TestDoubleBufferingInferred(t *testing.T) {
	settings := settingsFor(t, "cuda-sm80")
	r, _ := Lookup(DoubleBuffering)

	info, err := r.Prepare(square(100, 200, 300), settings, Inferred(Hints{TileSize: MaxTileSize}))
	require.NoError(t, err)

	assert.Equal(t, blueprint.PipelineDoubleBuffered, info.Blueprint.Pipelining)
	assert.Equal(t, tiling.NewSize(16, 16, 16), info.Blueprint.Tiling.Tile)
	assert.True(t, info.Blueprint.CheckMBounds)
	assert.Equal(t, "matmul_double_buffering", info.Name)
}

func TestUnitInferred(t *testing.T) {
	t.Run("min tile on wgpu", func(t *testing.T) {
		settings := settingsFor(t, "wgpu-generic")
		r, _ := Lookup(SimpleUnit)
		info, err := r.Prepare(square(256, 256, 64), settings, Inferred(Hints{}))
		require.NoError(t, err)

		assert.Equal(t, tiling.NewSize(4, 4, 4), info.Blueprint.Tiling.Tile)
		assert.Equal(t, tiling.NewSize(8, 8, 1), info.Blueprint.Tiling.Stage)
		assert.Equal(t, resource.Units(64), info.Request)
		assert.Equal(t, resource.WorkGroupShape{X: 32, Y: 2, Z: 1}, info.WorkGroup)
		assert.Equal(t, hypercube.FromProblem, info.Plan.Kind)
		assert.Equal(t, hypercube.GridShape{X: 8, Y: 8, Z: 1}, info.Grid)
		assert.Equal(t, "matmul_simple_unit_min_tile_size", info.Name)
	})

	t.Run("max tile double on cpu", func(t *testing.T) {
		avx2 := device.NewCPUProberWith(device.SIMDFeatures{AVX2: true, AVX: true}, 4)
		settings := device.NewSettings(avx2.Limits(), device.LineSizes{})
		r, _ := Lookup(DoubleUnit)
		info, err := r.Prepare(square(64, 64, 64), settings, Inferred(Hints{TileSize: MaxTileSize}))
		require.NoError(t, err)

		assert.Equal(t, tiling.NewSize(8, 8, 8), info.Blueprint.Tiling.Tile)
		assert.Equal(t, tiling.NewSize(2, 2, 2), info.Blueprint.Tiling.Partition)
		assert.Equal(t, tiling.NewSize(4, 2, 1), info.Blueprint.Tiling.Stage)
		assert.Equal(t, uint32(1), info.WorkGroup.Y)
		assert.Equal(t, "matmul_double_buffering_unit_max_tile_size", info.Name)
	})
}

func TestUnitStageDividesLaneWidth(t *testing.T) {
	for _, width := range []uint32{1, 2, 6, 12, 32} {
		t.Run(fmt.Sprintf("lane width %d", width), func(t *testing.T) {
			limits, ok := device.BuiltinProfile("wgpu-generic")
			require.True(t, ok)
			limits.Name = "odd-lanes"
			limits.LaneWidth = width
			settings := device.NewSettings(limits, device.LineSizes{})

			info, _, err := Select(square(96, 96, 32), settings, Selection{})
			require.NoError(t, err)
			assert.Equal(t, SimpleUnit, info.Family)
			assert.Equal(t, resource.KindUnits, info.Request.Kind())
			assert.Zero(t, info.Request.Count()%width)
			assert.Equal(t, width, info.WorkGroup.X)
		})
	}
}

func TestVecMatInferred(t *testing.T) {
	settings := settingsFor(t, "cuda-sm80")
	r, _ := Lookup(SimpleVecMat)

	info, err := r.Prepare(square(1, 256, 256), settings, Inferred(Hints{}))
	require.NoError(t, err)
	assert.Equal(t, tiling.NewSize(1, 4, 128), info.Blueprint.Tiling.Tile)
	assert.Equal(t, resource.LaneGroups(1), info.Request)
	assert.Equal(t, hypercube.SwizzleRowOrder(2), info.Blueprint.Hypercube.GlobalOrder)
	assert.Equal(t, hypercube.SmCount(true, hypercube.SmAllocation{}), info.Blueprint.Hypercube.CubeCount)
	assert.Equal(t, problem.F32, info.DTypes.Lhs.Stage)

	_, err = r.Prepare(square(2, 256, 256), settings, Inferred(Hints{}))
	assert.True(t, planerr.IsUnavailable(err))

	t.Run("double buffered splits k", func(t *testing.T) {
		r, _ := Lookup(DoubleVecMat)
		info, err := r.Prepare(square(1, 256, 256), settings, Inferred(Hints{}))
		require.NoError(t, err)
		assert.Equal(t, blueprint.PipelineDoubleBuffered, info.Blueprint.Pipelining)
		assert.Equal(t, uint32(2), info.Blueprint.Tiling.Partition.K)
	})
}

func TestMultiRows(t *testing.T) {
	settings := settingsFor(t, "cuda-sm80")
	r, _ := Lookup(Simple)
	hints := Hints{MultiRow: MultiRowStrategy{Kind: MultiRowAdaptive, MinStageCount: 4}}

	info, err := r.Prepare(square(4096, 256, 64), settings, Inferred(hints))
	require.NoError(t, err)
	assert.Equal(t, uint32(2), info.Blueprint.Tiling.Partition.M)
	assert.Equal(t, "matmul_simple_multirows", info.Name)

	info, err = r.Prepare(square(128, 256, 64), settings, Inferred(hints))
	require.NoError(t, err)
	assert.Equal(t, uint32(1), info.Blueprint.Tiling.Partition.M)

	info, err = r.Prepare(square(128, 256, 64), settings, Inferred(Hints{MultiRow: MultiRowStrategy{Kind: MultiRowAlways, Rows: 3}}))
	require.NoError(t, err)
	assert.Equal(t, uint32(3), info.Blueprint.Tiling.Partition.M)
}

func TestInferenceShrinksStageForSharedMemory(t *testing.T) {
	settings := settingsFor(t, "cuda-sm80")
	settings.Limits.MaxSharedMemoryBytes = 3000
	r, _ := Lookup(Simple)

	info, err := r.Prepare(square(256, 256, 64), settings, Inferred(Hints{}))
	require.NoError(t, err)
	assert.Equal(t, uint32(1), info.Blueprint.Tiling.Stage.M)
}

func TestDTypeDowngradeIsBestEffort(t *testing.T) {
	settings := settingsFor(t, "cuda-sm80")
	var dtypes []problem.DType
	for _, d := range settings.Limits.SupportedDTypes {
		if d != problem.TF32 {
			dtypes = append(dtypes, d)
		}
	}
	settings.Limits.SupportedDTypes = dtypes

	r, _ := Lookup(Simple)
	info, err := r.Prepare(square(256, 256, 64), settings, Inferred(Hints{}))
	require.NoError(t, err)
	assert.Equal(t, problem.F32, info.DTypes.Lhs.Stage)
}

func TestForced(t *testing.T) {
	settings := settingsFor(t, "cuda-sm80")
	desc := square(256, 256, 64)
	r, _ := Lookup(Simple)

	inferred, err := r.Prepare(desc, settings, Inferred(Hints{}))
	require.NoError(t, err)

	t.Run("same blueprint", func(t *testing.T) {
		forced, err := r.Prepare(desc, settings, Forced(inferred.Blueprint))
		require.NoError(t, err)
		assert.Equal(t, inferred.Blueprint, forced.Blueprint)
		assert.Equal(t, inferred.Grid, forced.Grid)
		assert.Equal(t, "matmul_simple_forced_selection", forced.Name)
	})

	t.Run("pipelining mismatch", func(t *testing.T) {
		db, _ := Lookup(DoubleBuffering)
		_, err := db.Prepare(desc, settings, Forced(inferred.Blueprint))
		assert.True(t, planerr.IsInvalidConfig(err))
	})

	t.Run("never clamped", func(t *testing.T) {
		settings := settings
		settings.Limits.MaxLaneGroupsPerWorkGroup = 2
		_, err := r.Prepare(desc, settings, Forced(inferred.Blueprint))
		assert.True(t, planerr.IsUnavailable(err))
	})

	t.Run("oversized stage is unavailable", func(t *testing.T) {
		scheme, err := tiling.NewBuilder().
			WithTileSize(tiling.NewSize(1, 1, 16)).
			WithStageSize(tiling.NewSize(65536, 65536, 1)).
			Build()
		require.NoError(t, err)
		assert.Equal(t, uint64(1)<<32, scheme.StagePartitionsMN())

		bp := blueprint.NewBuilder(scheme, 32, desc).Build()
		_, err = r.Prepare(desc, settings, Forced(bp))
		require.Error(t, err)
		assert.True(t, planerr.IsUnavailable(err), "got %v", err)
	})

	t.Run("units not divisible", func(t *testing.T) {
		scheme, err := tiling.NewBuilder().WithTileSize(tiling.NewSize(4, 4, 4)).WithStageSize(tiling.NewSize(3, 1, 1)).Build()
		require.NoError(t, err)
		bp := blueprint.NewBuilder(scheme, 32, desc).Build()
		unit, _ := Lookup(SimpleUnit)
		_, err = unit.Prepare(desc, settings, Forced(bp))
		require.Error(t, err)
		assert.True(t, planerr.IsInvalidConfig(err))
		assert.Contains(t, err.Error(), "units not divisible by lane width")
	})
}

func TestSelect(t *testing.T) {
	t.Run("auto picks vecmat for m=1", func(t *testing.T) {
		info, attempts, err := Select(square(1, 256, 256), settingsFor(t, "cuda-sm80"), Selection{})
		require.NoError(t, err)
		assert.Equal(t, SimpleVecMat, info.Family)
		assert.Empty(t, attempts)
	})

	t.Run("auto prefers specialized", func(t *testing.T) {
		info, attempts, err := Select(square(256, 256, 64), settingsFor(t, "cuda-sm80"), Selection{})
		require.NoError(t, err)
		assert.Equal(t, Specialized, info.Family)
		require.Len(t, attempts, 1)
		assert.Equal(t, SimpleVecMat, attempts[0].Family)
	})

	t.Run("auto falls back to units without an accelerator", func(t *testing.T) {
		info, attempts, err := Select(square(256, 256, 64), settingsFor(t, "wgpu-generic"), Selection{})
		require.NoError(t, err)
		assert.Equal(t, SimpleUnit, info.Family)
		require.Len(t, attempts, 3)
		for _, a := range attempts {
			assert.True(t, planerr.IsUnavailable(a.Err))
		}
	})

	t.Run("auto stops on invalid config", func(t *testing.T) {
		sel := Selection{Strategy: Inferred(Hints{MaxStageElements: 1})}
		_, attempts, err := Select(square(256, 256, 64), settingsFor(t, "cuda-sm80"), sel)
		require.Error(t, err)
		assert.True(t, planerr.IsInvalidConfig(err))
		assert.Len(t, attempts, 1)
	})

	t.Run("auto exhausted", func(t *testing.T) {
		sel := Selection{Chain: []Family{Simple, Specialized}}
		_, attempts, err := Select(square(256, 256, 64), settingsFor(t, "wgpu-generic"), sel)
		require.Error(t, err)
		assert.True(t, planerr.IsUnavailable(err))
		assert.Len(t, attempts, 2)
	})

	t.Run("auto cannot force", func(t *testing.T) {
		sel := Selection{Strategy: Forced(blueprint.Blueprint{})}
		_, _, err := Select(square(256, 256, 64), settingsFor(t, "cuda-sm80"), sel)
		assert.True(t, planerr.IsInvalidConfig(err))
	})

	t.Run("explicit family is not retried", func(t *testing.T) {
		_, attempts, err := Select(square(256, 256, 64), settingsFor(t, "wgpu-generic"), Selection{Family: Simple})
		assert.True(t, planerr.IsUnavailable(err))
		assert.Empty(t, attempts)
	})

	t.Run("invalid problem", func(t *testing.T) {
		_, _, err := Select(square(0, 256, 64), settingsFor(t, "cuda-sm80"), Selection{})
		assert.True(t, planerr.IsInvalidConfig(err))
	})
}

func TestSelectConcurrent(t *testing.T) {
	settings := settingsFor(t, "cuda-sm80")
	desc := square(512, 384, 96)
	want, _, err := Select(desc, settings, Selection{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]*LaunchInfo, 16)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _, _ = Select(desc, settings, Selection{})
		}()
	}
	wg.Wait()
	for _, got := range results {
		assert.Equal(t, want, got)
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		family   Family
		strategy Strategy
		want     string
	}{
		{Auto, Strategy{}, "matmul_auto"},
		{Simple, Forced(blueprint.Blueprint{}), "matmul_simple_forced_selection"},
		{Specialized, Strategy{}, "matmul_specialized"},
		{SimpleUnit, Inferred(Hints{TileSize: MaxTileSize}), "matmul_simple_unit_max_tile_size"},
		{DoubleUnit, Forced(blueprint.Blueprint{}), "matmul_double_buffering_unit_forced_selection"},
		{SimpleVecMat, Strategy{}, "vecmat_simple"},
		{DoubleVecMat, Forced(blueprint.Blueprint{}), "vecmat_double_buffering_forced_selection"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DisplayName(tt.family, tt.strategy))
	}
}

func TestFamilyText(t *testing.T) {
	for _, f := range append([]Family{Auto}, Families...) {
		text, err := f.MarshalText()
		require.NoError(t, err)
		var back Family
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, f, back)
	}
	_, err := ParseFamily("naive")
	assert.Error(t, err)

	assert.True(t, Specialized.Accelerated())
	assert.False(t, SimpleVecMat.Accelerated())
	assert.Equal(t, blueprint.PipelineDoubleBuffered, DoubleVecMat.Pipelining())
}
