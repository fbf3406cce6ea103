package blueprint

import "fmt"

// SwizzleMode is the shared-memory bank swizzle applied to one operand's stage.
type SwizzleMode int

const (
	SwizzleNone SwizzleMode = iota
	SwizzleB32
	SwizzleB64
	SwizzleB128
)

var swizzleNames = map[SwizzleMode]string{
	SwizzleNone: "none",
	SwizzleB32:  "b32",
	SwizzleB64:  "b64",
	SwizzleB128: "b128",
}

func (m SwizzleMode) String() string { return enumName(swizzleNames, m) }

func (m SwizzleMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *SwizzleMode) UnmarshalText(text []byte) error {
	return parseEnum(swizzleNames, text, "swizzle mode", m)
}

// Bytes is the swizzle span in bytes, 0 for none.
func (m SwizzleMode) Bytes() uint32 {
	switch m {
	case SwizzleB32:
		return 32
	case SwizzleB64:
		return 64
	case SwizzleB128:
		return 128
	}
	return 0
}

// SwizzleModes holds one swizzle per operand.
type SwizzleModes struct {
	Lhs SwizzleMode `json:"lhs" yaml:"lhs"`
	Rhs SwizzleMode `json:"rhs" yaml:"rhs"`
	Acc SwizzleMode `json:"acc" yaml:"acc"`
	Out SwizzleMode `json:"out" yaml:"out"`
}

// PipeliningMode is how loading overlaps with compute.
type PipeliningMode int

const (
	// PipelineNone loads a stage, then computes it.
	PipelineNone PipeliningMode = iota
	// PipelineDoubleBuffered loads the next k partition while computing the current one.
	PipelineDoubleBuffered
	// PipelineSpecialized dedicates lane-groups to loading.
	PipelineSpecialized
)

var pipeliningNames = map[PipeliningMode]string{
	PipelineNone:           "none",
	PipelineDoubleBuffered: "double_buffered",
	PipelineSpecialized:    "specialized",
}

func (m PipeliningMode) String() string { return enumName(pipeliningNames, m) }

func (m PipeliningMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *PipeliningMode) UnmarshalText(text []byte) error {
	return parseEnum(pipeliningNames, text, "pipelining mode", m)
}

// PartitionBuffering is the number of register buffers per partition.
type PartitionBuffering int

const (
	BufferingSingle PartitionBuffering = iota
	BufferingDouble
)

var bufferingNames = map[PartitionBuffering]string{
	BufferingSingle: "single",
	BufferingDouble: "double",
}

func (b PartitionBuffering) String() string { return enumName(bufferingNames, b) }

func (b PartitionBuffering) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

func (b *PartitionBuffering) UnmarshalText(text []byte) error {
	return parseEnum(bufferingNames, text, "partition buffering", b)
}

// LoadingPrecompute says whether global read offsets are computed once up front.
type LoadingPrecompute int

const (
	PrecomputeNever LoadingPrecompute = iota
	PrecomputeAlways
)

var precomputeNames = map[LoadingPrecompute]string{
	PrecomputeNever:  "never",
	PrecomputeAlways: "always",
}

func (p LoadingPrecompute) String() string { return enumName(precomputeNames, p) }

func (p LoadingPrecompute) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *LoadingPrecompute) UnmarshalText(text []byte) error {
	return parseEnum(precomputeNames, text, "loading precompute", p)
}

func enumName[T ~int](names map[T]string, v T) string {
	if name, ok := names[v]; ok {
		return name
	}
	return fmt.Sprintf("%d", int(v))
}

func parseEnum[T ~int](names map[T]string, text []byte, what string, out *T) error {
	for v, name := range names {
		if name == string(text) {
			*out = v
			return nil
		}
	}
	return fmt.Errorf("unknown %s %q", what, string(text))
}

func known[T ~int](names map[T]string, v T) bool {
	_, ok := names[v]
	return ok
}
