package problem

// GlobalDTypes are the element types of the operands as stored in global memory.
type GlobalDTypes struct {
	Lhs DType `json:"lhs" yaml:"lhs"`
	Rhs DType `json:"rhs" yaml:"rhs"`
	Out DType `json:"out" yaml:"out"`
	Acc DType `json:"acc" yaml:"acc"`
}

// SingleDType uses d for every operand, widening the accumulator for
// half precision and small integer inputs.
func SingleDType(d DType) GlobalDTypes {
	acc := d
	switch d {
	case F16, BF16, Flex32:
		acc = F32
	case I8, I16, U8, U16:
		acc = I32
	}
	return GlobalDTypes{Lhs: d, Rhs: d, Out: d, Acc: acc}
}

// OperandDTypes is the dtype of one operand along the memory hierarchy.
type OperandDTypes struct {
	Global   DType `json:"global" yaml:"global"`
	Stage    DType `json:"stage" yaml:"stage"`
	Register DType `json:"register" yaml:"register"`
}

// Staged reports whether the operand changes type between global memory and
// the shared stage or registers.
func (o OperandDTypes) Staged() bool {
	return o.Stage != o.Global || o.Register != o.Global
}

// Elems gathers the dtypes of all operands at every level.
type Elems struct {
	Lhs OperandDTypes `json:"lhs" yaml:"lhs"`
	Rhs OperandDTypes `json:"rhs" yaml:"rhs"`
	Acc OperandDTypes `json:"acc" yaml:"acc"`
}

// FromGlobals stages and computes every operand in its global type.
func FromGlobals(g GlobalDTypes) Elems {
	return Elems{
		Lhs: OperandDTypes{Global: g.Lhs, Stage: g.Lhs, Register: g.Lhs},
		Rhs: OperandDTypes{Global: g.Rhs, Stage: g.Rhs, Register: g.Rhs},
		Acc: OperandDTypes{Global: g.Out, Stage: g.Acc, Register: g.Acc},
	}
}

// EffectiveDTypes swaps the lhs/rhs staging format for a faster hardware-native
// one when the device supports it and the kernel runs on a matrix accelerator.
// It is a best-effort downgrade: when nothing applies the input is returned as is.
func EffectiveDTypes(requested Elems, supported DTypeSet, requiresAccelerator bool) Elems {
	if !requiresAccelerator {
		return requested
	}
	out := requested
	switch {
	case requested.Lhs.Global == F32 && requested.Rhs.Global == F32 && supported.Contains(TF32):
		out.Lhs.Stage, out.Lhs.Register = TF32, TF32
		out.Rhs.Stage, out.Rhs.Register = TF32, TF32
	case requested.Lhs.Global == Flex32 && requested.Rhs.Global == Flex32 && supported.Contains(F16):
		out.Lhs.Stage, out.Lhs.Register = F16, F16
		out.Rhs.Stage, out.Rhs.Register = F16, F16
	}
	return out
}
