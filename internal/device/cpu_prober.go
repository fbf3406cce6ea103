package device

import (
	"fmt"
	"runtime"

	"github.com/fxnlabs/tileplan/internal/problem"
	"golang.org/x/sys/cpu"
)

// SIMDFeatures is the subset of host vector extensions that sets the CPU
// lane width.
type SIMDFeatures struct {
	AVX512F bool
	AVX2    bool
	AVX     bool
	ASIMD   bool
	// ASIMDHP is half-precision arithmetic on arm64.
	ASIMDHP bool
}

// DetectSIMDFeatures reads the host's features from golang.org/x/sys/cpu.
func DetectSIMDFeatures() SIMDFeatures {
	return SIMDFeatures{
		AVX512F: cpu.X86.HasAVX512F,
		AVX2:    cpu.X86.HasAVX2,
		AVX:     cpu.X86.HasAVX,
		ASIMD:   cpu.ARM64.HasASIMD,
		ASIMDHP: cpu.ARM64.HasASIMDHP,
	}
}

// LaneWidth is the number of float32 lanes in one vector register.
func (f SIMDFeatures) LaneWidth() uint32 {
	switch {
	case f.AVX512F:
		return 16
	case f.AVX2, f.AVX:
		return 8
	default:
		// SSE and NEON are both 128 bits wide.
		return 4
	}
}

// CPUProber describes the host CPU as a device: one lane-group per SIMD register
// of float32 lanes and one "multiprocessor" per logical core. It is always
// available and is the Manager's fallback.
type CPUProber struct {
	features SIMDFeatures
	cores    int
}

// NewCPUProber creates a prober for the host CPU.
func NewCPUProber() *CPUProber {
	return NewCPUProberWith(DetectSIMDFeatures(), runtime.NumCPU())
}

// NewCPUProberWith creates a prober for a CPU with the given features and cores.
func NewCPUProberWith(features SIMDFeatures, cores int) *CPUProber {
	return &CPUProber{features: features, cores: max(cores, 1)}
}

func (c *CPUProber) Name() string {
	return "cpu"
}

func (c *CPUProber) IsAvailable() bool {
	return true
}

func (c *CPUProber) Limits() Limits {
	dtypes := []problem.DType{
		problem.F64, problem.F32, problem.I8, problem.I16, problem.I32, problem.I64,
		problem.U8, problem.U16, problem.U32, problem.U64,
	}
	if c.features.ASIMDHP {
		dtypes = append(dtypes, problem.F16)
	}
	return Limits{
		Name:                        fmt.Sprintf("cpu (%s)", runtime.GOARCH),
		LaneWidth:                   c.features.LaneWidth(),
		MaxLaneGroupsPerWorkGroup:   128,
		MaxUnitsPerWorkGroup:        1024,
		NumStreamingMultiprocessors: uint32(c.cores),
		MaxGridDims:                 GridDims{X: 1<<31 - 1, Y: 65535, Z: 65535},
		MaxSharedMemoryBytes:        256 * 1024, // L2 per core
		SupportedDTypes:             dtypes,
	}
}
