package hypercube

import (
	"fmt"

	"github.com/fxnlabs/tileplan/internal/planerr"
)

// OrderKind enumerates global orders.
type OrderKind int

const (
	// RowMajor scans n-blocks fastest, then m-blocks, then batches.
	RowMajor OrderKind = iota
	// ColMajor scans m-blocks fastest.
	ColMajor
	// SwizzleRow folds Width consecutive m-blocks into one super-row that is
	// scanned together with every n-block before moving on.
	SwizzleRow
	// SwizzleCol is SwizzleRow with the roles of m and n exchanged.
	SwizzleCol
)

var orderNames = map[OrderKind]string{
	RowMajor:   "row_major",
	ColMajor:   "col_major",
	SwizzleRow: "swizzle_row",
	SwizzleCol: "swizzle_col",
}

func (k OrderKind) String() string {
	if name, ok := orderNames[k]; ok {
		return name
	}
	return fmt.Sprintf("order(%d)", int(k))
}

func (k OrderKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *OrderKind) UnmarshalText(text []byte) error {
	for kind, name := range orderNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown global order %q", string(text))
}

// GlobalOrder answers which (m-block, n-block, batch) the i-th work-group owns.
type GlobalOrder struct {
	Kind  OrderKind `json:"kind" yaml:"kind"`
	Width uint32    `json:"width,omitempty" yaml:"width,omitempty"`
}

func RowMajorOrder() GlobalOrder { return GlobalOrder{Kind: RowMajor} }

func ColMajorOrder() GlobalOrder { return GlobalOrder{Kind: ColMajor} }

// SwizzleRowOrder folds w m-blocks per super-row. w=1 is row-major.
func SwizzleRowOrder(w uint32) GlobalOrder { return GlobalOrder{Kind: SwizzleRow, Width: w} }

// SwizzleColOrder folds w n-blocks per super-column. w=1 is col-major.
func SwizzleColOrder(w uint32) GlobalOrder { return GlobalOrder{Kind: SwizzleCol, Width: w} }

// Validate rejects unknown kinds and zero-width swizzles.
func (o GlobalOrder) Validate() error {
	if _, ok := orderNames[o.Kind]; !ok {
		return planerr.InvalidConfig("hypercube.order", "unknown global order %d", int(o.Kind))
	}
	if (o.Kind == SwizzleRow || o.Kind == SwizzleCol) && o.Width == 0 {
		return planerr.InvalidConfig("hypercube.order", "%s width must be positive", o.Kind)
	}
	return nil
}

func (o GlobalOrder) String() string {
	if o.Kind == SwizzleRow || o.Kind == SwizzleCol {
		return fmt.Sprintf("%s(w=%d)", o.Kind, o.Width)
	}
	return o.Kind.String()
}

// Coord is the block of output a work-group owns.
type Coord struct {
	MBlock uint32 `json:"mBlock"`
	NBlock uint32 `json:"nBlock"`
	Batch  uint32 `json:"batch"`
}

// Map converts a linear work index in [0, mBlocks*nBlocks*batches) to its block.
// Every order is a bijection over that range.
func (o GlobalOrder) Map(index uint64, mBlocks, nBlocks uint32) Coord {
	perBatch := uint64(mBlocks) * uint64(nBlocks)
	batch := uint32(index / perBatch)
	i := index % perBatch

	var m, n uint64
	switch o.Kind {
	case ColMajor:
		m, n = i%uint64(mBlocks), i/uint64(mBlocks)
	case SwizzleRow:
		m, n = swizzle(i, uint64(mBlocks), uint64(nBlocks), uint64(max(o.Width, 1)))
	case SwizzleCol:
		n, m = swizzle(i, uint64(nBlocks), uint64(mBlocks), uint64(max(o.Width, 1)))
	default:
		m, n = i/uint64(nBlocks), i%uint64(nBlocks)
	}
	return Coord{MBlock: uint32(m), NBlock: uint32(n), Batch: batch}
}

// swizzle folds w rows of a rows×cols grid into bands. Inside a band the rows
// vary fastest, so neighbouring indices share a column. The trailing band may be
// narrower than w.
func swizzle(i, rows, cols, w uint64) (row, col uint64) {
	bandSize := w * cols
	band := i / bandSize
	within := i % bandSize
	bandRows := min(w, rows-band*w)
	return band*w + within%bandRows, within / bandRows
}
