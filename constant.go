// constant.go
//
// Constants are arbitrary-precision integers paired with a display domain.
// The domain controls formatting (decimal, hex, symbolic enumerator, ...),
// whether the value participates in arithmetic, and comparability: two
// constants compare only if both domains are plain arithmetic domains or the
// domains are identical.
package dwq

import (
	"fmt"
	"math/big"
)

// Domain describes how a constant displays and compares.
type Domain struct {
	name  string
	plain bool // arithmetic-safe; compatible with every other plain domain
	show  func(v *big.Int) string
}

func (d *Domain) Name() string { return d.name }

func radixShow(base int, prefix string) func(*big.Int) string {
	return func(v *big.Int) string {
		if v.Sign() == 0 {
			return "0"
		}
		if v.Sign() < 0 {
			return "-" + prefix + new(big.Int).Neg(v).Text(base)
		}
		return prefix + v.Text(base)
	}
}

var (
	DomDec = &Domain{name: "dec", plain: true, show: radixShow(10, "")}
	DomHex = &Domain{name: "hex", plain: true, show: radixShow(16, "0x")}
	DomOct = &Domain{name: "oct", plain: true, show: radixShow(8, "0")}
	DomBin = &Domain{name: "bin", plain: true, show: radixShow(2, "0b")}

	DomBool = &Domain{name: "bool", show: func(v *big.Int) string {
		if v.Sign() == 0 {
			return "false"
		}
		return "true"
	}}

	// Addresses and offsets are plain (arithmetic is meaningful on them)
	// but render in hex, the way they are written everywhere else.
	DomAddress = &Domain{name: "address", plain: true, show: radixShow(16, "0x")}
	DomOffset  = &Domain{name: "offset", plain: true, show: radixShow(16, "0x")}
)

// enumDomain builds a symbolic domain over a name table. Values missing from
// the table fall back to hex so that vendor extensions still display.
func enumDomain(name string, names map[uint64]string) *Domain {
	return &Domain{name: name, show: func(v *big.Int) string {
		if v.IsUint64() {
			if s, ok := names[v.Uint64()]; ok {
				return s
			}
		}
		return radixShow(16, "0x")(v)
	}}
}

// Cst is a constant value.
type Cst struct {
	withpos
	v   *big.Int
	dom *Domain
}

func NewCst(v *big.Int, dom *Domain, pos int) *Cst {
	return &Cst{withpos{pos}, v, dom}
}

func CstInt64(v int64, dom *Domain, pos int) *Cst {
	return NewCst(big.NewInt(v), dom, pos)
}

func CstUint64(v uint64, dom *Domain, pos int) *Cst {
	return NewCst(new(big.Int).SetUint64(v), dom, pos)
}

func CstBool(b bool, pos int) *Cst {
	if b {
		return CstInt64(1, DomBool, pos)
	}
	return CstInt64(0, DomBool, pos)
}

func (c *Cst) VType() VType  { return TConst }
func (c *Cst) Val() *big.Int { return c.v }
func (c *Cst) Dom() *Domain  { return c.dom }
func (c *Cst) Show() string  { return c.dom.show(c.v) }

func (c *Cst) Clone() Value {
	return &Cst{c.withpos, new(big.Int).Set(c.v), c.dom}
}

// Cmp refuses comparison unless both domains are plain or identical.
func (c *Cst) Cmp(other Value) CmpResult {
	o := other.(*Cst)
	if !(c.dom.plain && o.dom.plain) && c.dom != o.dom {
		return CmpFail
	}
	return CmpResult(c.v.Cmp(o.v))
}

// Uint64 converts the constant to a uint64, reporting whether it fit (0 when
// it does not).
func (c *Cst) Uint64() (uint64, bool) {
	if !c.v.IsUint64() {
		return 0, false
	}
	return c.v.Uint64(), true
}

func (c *Cst) String() string { return fmt.Sprintf("<cst %s>", c.Show()) }
