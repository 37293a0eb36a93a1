// vocab.go
//
// The vocabulary maps surface words to builtins. A builtin is an op word
// (possibly overloaded), a predicate word (the ?/!-flavored assertions), or
// a named constant (the DW_* enumerator families). The builder consults the
// vocabulary during graph construction; unknown words are build-time errors.
package dwq

type builtin struct {
	op   func(upstream op) op
	pred func() pred
	cst  *Cst
}

// Vocabulary is a case-sensitive word → builtin mapping.
type Vocabulary struct {
	words map[string]*builtin
}

func (v *Vocabulary) addOp(word string, mk func(upstream op) op) {
	v.ensure(word).op = mk
}

func (v *Vocabulary) addPred(word string, mk func() pred) {
	v.ensure(word).pred = mk
}

func (v *Vocabulary) addConst(word string, c *Cst) {
	v.ensure(word).cst = c
}

func (v *Vocabulary) ensure(word string) *builtin {
	b := v.words[word]
	if b == nil {
		b = &builtin{}
		v.words[word] = b
	}
	return b
}

func (v *Vocabulary) lookup(word string) *builtin { return v.words[word] }

// wordOp adapts an overload table to an op constructor.
func wordOp(t *ovlTable) func(upstream op) op {
	return func(u op) op { return &opOverload{upstream: u, table: t} }
}

// addPredPair adapts a predicate table to the ?/!-pair constructors.
func (v *Vocabulary) addPredPair(word string, t *predTable) {
	v.addPred("?"+word, func() pred { return &tablePred{t} })
	v.addPred("!"+word, func() pred { return &predNot{&tablePred{t}} })
}

// ---- simple stack words ------------------------------------------------

type opShuffle struct {
	upstream op
	label    string
	f        func(*Stack)
}

func (o *opShuffle) next() *Stack {
	if stk := o.upstream.next(); stk != nil {
		o.f(stk)
		return stk
	}
	return nil
}

func (o *opShuffle) reset()       { o.upstream.reset() }
func (o *opShuffle) name() string { return o.label }

func shuffleWord(label string, f func(*Stack)) func(upstream op) op {
	return func(u op) op { return &opShuffle{upstream: u, label: label, f: f} }
}

func registerShuffleBuiltins(v *Vocabulary) {
	v.addOp("drop", shuffleWord("drop", func(stk *Stack) {
		stk.Pop()
	}))
	v.addOp("dup", shuffleWord("dup", func(stk *Stack) {
		stk.Push(stk.Top().Clone())
	}))
	v.addOp("swap", shuffleWord("swap", func(stk *Stack) {
		a := stk.Pop()
		b := stk.Pop()
		stk.Push(a)
		stk.Push(b)
	}))
	v.addOp("over", shuffleWord("over", func(stk *Stack) {
		stk.Push(stk.Get(1).Clone())
	}))
	v.addOp("rot", shuffleWord("rot", func(stk *Stack) {
		c := stk.Pop()
		b := stk.Pop()
		a := stk.Pop()
		stk.Push(b)
		stk.Push(c)
		stk.Push(a)
	}))

	// pos: pop TOS, push the position its producer assigned to it.
	v.addOp("pos", shuffleWord("pos", func(stk *Stack) {
		val := stk.Pop()
		stk.Push(CstInt64(int64(val.Pos()), DomDec, 0))
	}))

	v.addOp("apply", func(u op) op { return &opApply{upstream: u} })
}

// ---- assembly ----------------------------------------------------------

// NewVocabulary builds the full default vocabulary: core words, comparison
// pairs, arithmetic, sequence/string/address-set operators, the DWARF word
// set and every DW_* named constant.
func NewVocabulary() *Vocabulary {
	v := &Vocabulary{words: map[string]*builtin{}}

	// Overloaded op words shared across value kinds.
	add := newOvlTable("add")
	sub := newOvlTable("sub")
	mul := newOvlTable("mul")
	div := newOvlTable("div")
	mod := newOvlTable("mod")
	length := newOvlTable("length")
	elem := newOvlTable("elem")
	relem := newOvlTable("relem")
	low := newOvlTable("low")
	high := newOvlTable("high")

	addCstArithOverloads(add, sub, mul, div, mod)
	addSeqOverloads(add)
	addSeqLengthOverload(length)
	addSeqElemOverloads(elem, relem)
	addStrOverloads(add)
	addStrLengthOverload(length)
	addStrElemOverloads(elem, relem)

	// Overloaded predicate words.
	empty := newPredTable("?empty")
	find := newPredTable("?find")
	starts := newPredTable("?starts")
	ends := newPredTable("?ends")
	match := newPredTable("?match")

	addSeqPredOverloads(empty, find, starts, ends)
	addStrPredOverloads(empty, find, starts, ends, match)

	registerASetBuiltins(v, add, sub, length, elem, relem, low, high, empty)
	registerDwarfBuiltins(v, elem, relem, low, high)

	for word, t := range map[string]*ovlTable{
		"add": add, "sub": sub, "mul": mul, "div": div, "mod": mod,
		"length": length, "elem": elem, "relem": relem,
		"low": low, "high": high,
	} {
		v.addOp(word, wordOp(t))
	}
	for _, t := range []*predTable{empty, find, starts, ends, match} {
		v.addPredPair(t.name[1:], t)
	}

	registerShuffleBuiltins(v)
	registerCmpBuiltins(v)
	registerRadixBuiltins(v)

	v.addConst("true", CstBool(true, 0))
	v.addConst("false", CstBool(false, 0))

	return v
}
