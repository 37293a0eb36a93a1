// value.go
//
// The dwq runtime value model.
//
// Every value that travels on a query stack satisfies the Value interface:
// a type code drawn from a closed set, a position (the index under which the
// value was yielded by its immediate producer), a deep Clone, a Show string,
// and a same-type three-way compare. Cross-type ordering is handled by
// TotalCmp, which ranks values by type code first and only delegates to
// Value.Cmp for equal ranks.
package dwq

// VType is a runtime value type code. The codes double as comparison ranks:
// a value of a lower code orders before any value of a higher one.
type VType uint8

const (
	TNone VType = iota

	TConst
	TStr
	TSeq
	TClosure

	TDwarf
	TCU
	TDIE
	TAttr
	TASet
	TLocElem
	TLocOp

	TElf
	TSection
	TSymbol
)

func (t VType) String() string {
	switch t {
	case TConst:
		return "T_CONST"
	case TStr:
		return "T_STR"
	case TSeq:
		return "T_SEQ"
	case TClosure:
		return "T_CLOSURE"
	case TDwarf:
		return "T_DWARF"
	case TCU:
		return "T_CU"
	case TDIE:
		return "T_DIE"
	case TAttr:
		return "T_ATTR"
	case TASet:
		return "T_ASET"
	case TLocElem:
		return "T_LOCLIST_ELEM"
	case TLocOp:
		return "T_LOCLIST_OP"
	case TElf:
		return "T_ELF"
	case TSection:
		return "T_ELFSCN"
	case TSymbol:
		return "T_SYMBOL"
	default:
		return "T_NONE"
	}
}

// CmpResult is the outcome of a three-way compare. CmpFail means the operands
// cannot be compared (e.g. constants from unrelated symbolic domains).
type CmpResult int8

const (
	CmpLess    CmpResult = -1
	CmpEqual   CmpResult = 0
	CmpGreater CmpResult = 1
	CmpFail    CmpResult = 2
)

// Value is the capability surface every stack value implements.
//
// Cmp is only ever called with an operand of the same VType; TotalCmp takes
// care of ranking across types.
type Value interface {
	VType() VType
	Pos() int
	SetPos(int)
	Clone() Value
	Show() string
	Cmp(other Value) CmpResult
}

// withpos supplies the position slot. Producers assign the position once at
// creation; it is never mutated after the value has been published.
type withpos struct {
	pos int
}

func (w *withpos) Pos() int     { return w.pos }
func (w *withpos) SetPos(p int) { w.pos = p }

func cmpOrd[T int | int64 | uint64 | uint32 | int8](a, b T) CmpResult {
	switch {
	case a < b:
		return CmpLess
	case a > b:
		return CmpGreater
	default:
		return CmpEqual
	}
}

// TotalCmp orders two arbitrary values: type rank first, payload second.
// The result is CmpFail only when both operands share a rank but their
// payloads refuse comparison.
func TotalCmp(a, b Value) CmpResult {
	if r := cmpOrd(int8(a.VType()), int8(b.VType())); r != CmpEqual {
		return r
	}
	return a.Cmp(b)
}

// invertCmp flips less/greater; equal and fail are their own inverses.
func invertCmp(r CmpResult) CmpResult {
	switch r {
	case CmpLess:
		return CmpGreater
	case CmpGreater:
		return CmpLess
	default:
		return r
	}
}
