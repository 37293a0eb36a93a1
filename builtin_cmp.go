// builtin_cmp.go
//
// Comparison predicates. Two elements are inspected: the one below TOS and
// TOS (A and B); the assertion holds if A and B satisfy the relation implied
// by the word. Ranks order first (a lower type code is less); equal ranks
// delegate to the payload compare, and a CmpFail from there surfaces as a
// predicate error. Every ?-word has a paired !-inverse.
package dwq

type predCmp struct {
	label string
	ok    func(CmpResult) bool
}

func (p *predCmp) result(stk *Stack) predResult {
	b := stk.Get(0)
	a := stk.Get(1)
	r := TotalCmp(a, b)
	if r == CmpFail {
		complain("Error: Can't compare `%s' to `%s'.", a.Show(), b.Show())
		return predFail
	}
	return predBool(p.ok(r))
}

func (p *predCmp) reset()       {}
func (p *predCmp) name() string { return p.label }

func cmpPred(label string, ok func(CmpResult) bool) func() pred {
	return func() pred { return &predCmp{label: label, ok: ok} }
}

var (
	newPredEq = cmpPred("eq", func(r CmpResult) bool { return r == CmpEqual })
	newPredNe = cmpPred("ne", func(r CmpResult) bool { return r != CmpEqual })
	newPredLt = cmpPred("lt", func(r CmpResult) bool { return r == CmpLess })
	newPredGt = cmpPred("gt", func(r CmpResult) bool { return r == CmpGreater })
	newPredLe = cmpPred("le", func(r CmpResult) bool { return r != CmpGreater })
	newPredGe = cmpPred("ge", func(r CmpResult) bool { return r != CmpLess })
)

// registerCmpBuiltins installs the ?eq/!eq ... ?ge/!ge pairs.
func registerCmpBuiltins(v *Vocabulary) {
	pairs := []struct {
		word string
		mk   func() pred
		inv  func() pred
	}{
		{"eq", newPredEq, newPredNe},
		{"ne", newPredNe, newPredEq},
		{"lt", newPredLt, newPredGe},
		{"gt", newPredGt, newPredLe},
		{"le", newPredLe, newPredGt},
		{"ge", newPredGe, newPredLt},
	}
	for _, p := range pairs {
		v.addPred("?"+p.word, p.mk)
		v.addPred("!"+p.word, p.inv)
	}
}
