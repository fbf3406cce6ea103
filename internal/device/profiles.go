package device

import (
	"github.com/fxnlabs/tileplan/internal/problem"
	"github.com/fxnlabs/tileplan/internal/tiling"
)

// Built-in capability profiles. Numbers follow the public limits of each class of
// device; custom profiles can be added through configuration.
var builtinProfiles = []Limits{
	{
		Name:                        "cuda-sm80",
		LaneWidth:                   32,
		MaxLaneGroupsPerWorkGroup:   32,
		MaxUnitsPerWorkGroup:        1024,
		NumStreamingMultiprocessors: 108,
		MaxGridDims:                 GridDims{X: 1<<31 - 1, Y: 65535, Z: 65535},
		MaxSharedMemoryBytes:        163 * 1024,
		SupportedDTypes: []problem.DType{
			problem.F64, problem.F32, problem.TF32, problem.F16, problem.BF16,
			problem.I8, problem.I16, problem.I32, problem.I64,
			problem.U8, problem.U16, problem.U32, problem.U64,
		},
		MatrixAccelerator: true,
		AcceleratedTiles: []tiling.Size{
			tiling.NewSize(16, 16, 16),
			tiling.NewSize(32, 8, 16),
			tiling.NewSize(8, 32, 16),
			tiling.NewSize(16, 16, 8),
		},
	},
	{
		// Threadgroups of 512 threads or more fail to launch matmul kernels.
		Name:                      "metal-apple",
		LaneWidth:                 32,
		MaxLaneGroupsPerWorkGroup: 32,
		MaxUnitsPerWorkGroup:      511,
		MaxGridDims:               GridDims{X: 1<<31 - 1, Y: 65535, Z: 65535},
		MaxSharedMemoryBytes:      32 * 1024,
		SupportedDTypes: []problem.DType{
			problem.F32, problem.F16, problem.BF16, problem.I8, problem.I16, problem.I32,
			problem.U8, problem.U16, problem.U32,
		},
		MatrixAccelerator: true,
		AcceleratedTiles:  []tiling.Size{tiling.NewSize(8, 8, 8)},
	},
	{
		Name:                      "wgpu-generic",
		LaneWidth:                 32,
		MaxLaneGroupsPerWorkGroup: 8,
		MaxUnitsPerWorkGroup:      256,
		MaxGridDims:               GridDims{X: 65535, Y: 65535, Z: 65535},
		MaxSharedMemoryBytes:      16 * 1024,
		SupportedDTypes:           []problem.DType{problem.F32, problem.F16, problem.I32, problem.U32},
	},
}

// BuiltinProfiles returns probers for the built-in profiles.
func BuiltinProfiles() []Prober {
	probers := make([]Prober, 0, len(builtinProfiles))
	for _, limits := range builtinProfiles {
		probers = append(probers, NewStaticProber(limits))
	}
	return probers
}

// BuiltinProfile looks up a built-in profile by name.
func BuiltinProfile(name string) (Limits, bool) {
	for _, limits := range builtinProfiles {
		if limits.Name == name {
			return limits, true
		}
	}
	return Limits{}, false
}
