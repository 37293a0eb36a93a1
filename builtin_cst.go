// builtin_cst.go
//
// Arithmetic and radix operators on constants. Arithmetic requires plain
// (arithmetic-safe) domains on both operands; symbolic constants must be
// converted first, so a DW_TAG_* enumerator never silently participates in
// addition.
package dwq

import "math/big"

func arithArgs(args []Value) (a, b *Cst, ok bool) {
	a, b = args[0].(*Cst), args[1].(*Cst)
	if !a.dom.plain || !b.dom.plain {
		complain("Error: `%s' and `%s' are not suitable for arithmetic.",
			a.Show(), b.Show())
		return nil, nil, false
	}
	return a, b, true
}

func addCstArithOverloads(add, sub, mul, div, mod *ovlTable) {
	add.addOnce(func(args []Value) Value {
		a, b, ok := arithArgs(args)
		if !ok {
			return nil
		}
		return NewCst(new(big.Int).Add(a.v, b.v), a.dom, 0)
	}, TConst, TConst)

	sub.addOnce(func(args []Value) Value {
		a, b, ok := arithArgs(args)
		if !ok {
			return nil
		}
		return NewCst(new(big.Int).Sub(a.v, b.v), a.dom, 0)
	}, TConst, TConst)

	mul.addOnce(func(args []Value) Value {
		a, b, ok := arithArgs(args)
		if !ok {
			return nil
		}
		return NewCst(new(big.Int).Mul(a.v, b.v), a.dom, 0)
	}, TConst, TConst)

	div.addOnce(func(args []Value) Value {
		a, b, ok := arithArgs(args)
		if !ok {
			return nil
		}
		if b.v.Sign() == 0 {
			complain("Error: division by zero.")
			return nil
		}
		return NewCst(new(big.Int).Quo(a.v, b.v), a.dom, 0)
	}, TConst, TConst)

	mod.addOnce(func(args []Value) Value {
		a, b, ok := arithArgs(args)
		if !ok {
			return nil
		}
		if b.v.Sign() == 0 {
			complain("Error: division by zero.")
			return nil
		}
		return NewCst(new(big.Int).Rem(a.v, b.v), a.dom, 0)
	}, TConst, TConst)
}

// registerRadixBuiltins installs hex/dec/oct/bin, which re-domain a constant
// without touching its value.
func registerRadixBuiltins(v *Vocabulary) {
	radix := []struct {
		word string
		dom  *Domain
	}{
		{"hex", DomHex},
		{"dec", DomDec},
		{"oct", DomOct},
		{"bin", DomBin},
	}
	for _, r := range radix {
		dom := r.dom
		t := newOvlTable(r.word)
		t.addOnce(func(args []Value) Value {
			c := args[0].(*Cst)
			return NewCst(new(big.Int).Set(c.v), dom, 0)
		}, TConst)
		v.addOp(r.word, wordOp(t))
	}
}
