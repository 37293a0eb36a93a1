// overload.go
//
// Overload resolution. A polymorphic word ("elem", "add", "name", ...) owns a
// table mapping selectors — packed type codes the word expects on top of the
// stack — to a concrete implementation. Dispatch matches the live stack
// profile, longest selector first, so "aset cst" wins over "cst" when both
// apply. A stack whose profile matches no row is reported once per word and
// dropped, per the runtime error-handling design.
//
// Implementations come in two yield modes: once (at most one pushed value per
// input) and many (a value producer). Predicate words use their own table
// flavor that peeks at operands without popping.
package dwq

// producer yields values one at a time; nil ends the stream. Producers
// assign output positions themselves.
type producer interface {
	next() Value
}

// emptyProducer yields nothing.
type emptyProducer struct{}

func (emptyProducer) next() Value { return nil }

// onceFn pops arity values (args[0] deepest, args[arity-1] was TOS) and
// returns at most one value to push; nil means no yield for this input.
type onceFn func(args []Value) Value

// manyFn pops arity values and returns a producer of outputs.
type manyFn func(args []Value) producer

type overload struct {
	sel   Selector
	arity int
	once  onceFn
	many  manyFn
}

type ovlTable struct {
	name string
	ovls []overload
}

func newOvlTable(name string) *ovlTable { return &ovlTable{name: name} }

func (t *ovlTable) addOnce(fn onceFn, ts ...VType) *ovlTable {
	t.ovls = append(t.ovls, overload{SelectorOf(ts...), len(ts), fn, nil})
	return t
}

func (t *ovlTable) addMany(fn manyFn, ts ...VType) *ovlTable {
	t.ovls = append(t.ovls, overload{SelectorOf(ts...), len(ts), nil, fn})
	return t
}

// match finds the longest-selector row matching the profile.
func (t *ovlTable) match(profile Selector) *overload {
	var best *overload
	for i := range t.ovls {
		ov := &t.ovls[i]
		mask := Selector(1)<<(8*ov.arity) - 1
		if profile&mask == ov.sel {
			if best == nil || ov.arity > best.arity {
				best = ov
			}
		}
	}
	return best
}

func popArgs(stk *Stack, arity int) []Value {
	args := make([]Value, arity)
	for i := arity - 1; i >= 0; i-- {
		args[i] = stk.Pop()
	}
	return args
}

// opOverload is the op a polymorphic word compiles to.
type opOverload struct {
	upstream op
	table    *ovlTable

	base   *Stack // remaining stack while a producer is live
	prod   producer
	warned bool
}

func (o *opOverload) next() *Stack {
	for {
		if o.prod != nil {
			if v := o.prod.next(); v != nil {
				ret := o.base.Clone()
				ret.Push(v)
				return ret
			}
			o.prod = nil
			o.base = nil
		}

		stk := o.upstream.next()
		if stk == nil {
			return nil
		}

		ov := o.table.match(stk.Profile())
		if ov == nil {
			if !o.warned {
				complain("Error: `%s' does not apply to %s.",
					o.table.name, describeTop(stk))
				o.warned = true
			}
			continue
		}

		args := popArgs(stk, ov.arity)
		if ov.once != nil {
			if v := ov.once(args); v != nil {
				stk.Push(v)
				return stk
			}
			continue
		}

		o.base = stk
		o.prod = ov.many(args)
	}
}

func (o *opOverload) reset() {
	o.base = nil
	o.prod = nil
	o.upstream.reset()
}

func (o *opOverload) name() string { return o.table.name }

func describeTop(stk *Stack) string {
	if stk.Depth() == 0 {
		return "an empty stack"
	}
	return "`" + stk.Top().Show() + "' (" + stk.Top().VType().String() + ")"
}

// ---- predicate overloads -----------------------------------------------

// predFn inspects arity operands without popping; args[arity-1] is TOS.
type predFn func(args []Value) predResult

type predOverload struct {
	sel   Selector
	arity int
	fn    predFn
}

type predTable struct {
	name   string
	preds  []predOverload
	warned bool
}

func newPredTable(name string) *predTable { return &predTable{name: name} }

func (t *predTable) add(fn predFn, ts ...VType) *predTable {
	t.preds = append(t.preds, predOverload{SelectorOf(ts...), len(ts), fn})
	return t
}

func (t *predTable) result(stk *Stack) predResult {
	var best *predOverload
	for i := range t.preds {
		p := &t.preds[i]
		mask := Selector(1)<<(8*p.arity) - 1
		if stk.Profile()&mask == p.sel {
			if best == nil || p.arity > best.arity {
				best = p
			}
		}
	}
	if best == nil {
		if !t.warned {
			complain("Error: `%s' does not apply to %s.", t.name, describeTop(stk))
			t.warned = true
		}
		return predFail
	}

	args := make([]Value, best.arity)
	for i := 0; i < best.arity; i++ {
		args[best.arity-1-i] = stk.Get(i)
	}
	return best.fn(args)
}

// tablePred adapts a predTable to the pred interface.
type tablePred struct{ table *predTable }

func (p *tablePred) result(stk *Stack) predResult { return p.table.result(stk) }
func (p *tablePred) reset()                       {}
func (p *tablePred) name() string                 { return p.table.name }

// maybeInvert wraps a predicate in not<> for the '!'-flavored word of a
// ?/!-pair.
func maybeInvert(p pred, positive bool) pred {
	if positive {
		return p
	}
	return &predNot{p}
}
