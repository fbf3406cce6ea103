package problem

import "fmt"

// DType is an element type a matmul operand can be stored or computed in.
type DType int

const (
	DTypeInvalid DType = iota
	F64
	F32
	TF32
	Flex32
	F16
	BF16
	I8
	I16
	I32
	I64
	U8
	U16
	U32
	U64
)

var dtypeNames = map[DType]string{
	F64:    "f64",
	F32:    "f32",
	TF32:   "tf32",
	Flex32: "flex32",
	F16:    "f16",
	BF16:   "bf16",
	I8:     "i8",
	I16:    "i16",
	I32:    "i32",
	I64:    "i64",
	U8:     "u8",
	U16:    "u16",
	U32:    "u32",
	U64:    "u64",
}

func (d DType) String() string {
	if name, ok := dtypeNames[d]; ok {
		return name
	}
	return "invalid"
}

// Size returns the storage size of one element in bytes.
func (d DType) Size() uint32 {
	switch d {
	case F64, I64, U64:
		return 8
	case F32, TF32, Flex32, I32, U32:
		return 4
	case F16, BF16, I16, U16:
		return 2
	case I8, U8:
		return 1
	default:
		return 0
	}
}

// IsFloat reports whether d is a floating point type.
func (d DType) IsFloat() bool {
	switch d {
	case F64, F32, TF32, Flex32, F16, BF16:
		return true
	}
	return false
}

// ParseDType parses the lower-case name of a dtype.
func ParseDType(s string) (DType, error) {
	for d, name := range dtypeNames {
		if name == s {
			return d, nil
		}
	}
	return DTypeInvalid, fmt.Errorf("unknown dtype %q", s)
}

func (d DType) MarshalText() ([]byte, error) {
	if _, ok := dtypeNames[d]; !ok {
		return nil, fmt.Errorf("cannot marshal dtype %d", int(d))
	}
	return []byte(d.String()), nil
}

func (d *DType) UnmarshalText(text []byte) error {
	parsed, err := ParseDType(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DTypeSet is a set of dtypes a device supports natively.
type DTypeSet map[DType]struct{}

// NewDTypeSet builds a set from a list.
func NewDTypeSet(dtypes ...DType) DTypeSet {
	set := make(DTypeSet, len(dtypes))
	for _, d := range dtypes {
		set[d] = struct{}{}
	}
	return set
}

// Contains reports whether d is in the set. A nil set contains nothing.
func (s DTypeSet) Contains(d DType) bool {
	_, ok := s[d]
	return ok
}
