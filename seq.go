// seq.go
//
// Sequence values: ordered, heterogeneous, arbitrarily nested. Sequences
// compare length first, then elementwise by type rank, then elementwise by
// payload — so a shorter sequence orders before a longer one regardless of
// contents.
package dwq

import "strings"

type Seq struct {
	withpos
	elems []Value
}

func NewSeq(elems []Value, pos int) *Seq {
	return &Seq{withpos{pos}, elems}
}

func (s *Seq) VType() VType   { return TSeq }
func (s *Seq) Elems() []Value { return s.elems }

func (s *Seq) Clone() Value {
	elems := make([]Value, len(s.elems))
	for i, v := range s.elems {
		elems[i] = v.Clone()
	}
	return &Seq{s.withpos, elems}
}

func (s *Seq) Show() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range s.elems {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(v.Show())
	}
	b.WriteByte(']')
	return b.String()
}

func (s *Seq) Cmp(other Value) CmpResult {
	o := other.(*Seq)
	if r := cmpOrd(len(s.elems), len(o.elems)); r != CmpEqual {
		return r
	}
	for i := range s.elems {
		if r := cmpOrd(int8(s.elems[i].VType()), int8(o.elems[i].VType())); r != CmpEqual {
			return r
		}
	}
	for i := range s.elems {
		if r := s.elems[i].Cmp(o.elems[i]); r != CmpEqual {
			return r
		}
	}
	return CmpEqual
}

// ---- operators ---------------------------------------------------------

type seqElemProducer struct {
	elems   []Value
	idx     int
	forward bool
}

func (p *seqElemProducer) next() Value {
	if p.idx >= len(p.elems) {
		return nil
	}
	i := p.idx
	if !p.forward {
		i = len(p.elems) - 1 - p.idx
	}
	v := p.elems[i].Clone()
	v.SetPos(p.idx)
	p.idx++
	return v
}

func addSeqOverloads(t *ovlTable) {
	// add: concatenation.
	t.addOnce(func(args []Value) Value {
		a, b := args[0].(*Seq), args[1].(*Seq)
		elems := make([]Value, 0, len(a.elems)+len(b.elems))
		elems = append(elems, a.elems...)
		elems = append(elems, b.elems...)
		return NewSeq(elems, 0)
	}, TSeq, TSeq)
}

func addSeqLengthOverload(t *ovlTable) {
	t.addOnce(func(args []Value) Value {
		return CstInt64(int64(len(args[0].(*Seq).elems)), DomDec, 0)
	}, TSeq)
}

func addSeqElemOverloads(elem, relem *ovlTable) {
	elem.addMany(func(args []Value) producer {
		return &seqElemProducer{elems: args[0].(*Seq).elems, forward: true}
	}, TSeq)
	relem.addMany(func(args []Value) producer {
		return &seqElemProducer{elems: args[0].(*Seq).elems, forward: false}
	}, TSeq)
}

func addSeqPredOverloads(empty, find, starts, ends *predTable) {
	empty.add(func(args []Value) predResult {
		return predBool(len(args[0].(*Seq).elems) == 0)
	}, TSeq)

	// haystack below, needle on TOS.
	find.add(func(args []Value) predResult {
		return seqSearch(args[0].(*Seq), args[1].(*Seq), searchAnywhere)
	}, TSeq, TSeq)
	starts.add(func(args []Value) predResult {
		return seqSearch(args[0].(*Seq), args[1].(*Seq), searchPrefix)
	}, TSeq, TSeq)
	ends.add(func(args []Value) predResult {
		return seqSearch(args[0].(*Seq), args[1].(*Seq), searchSuffix)
	}, TSeq, TSeq)
}

type searchMode int

const (
	searchAnywhere searchMode = iota
	searchPrefix
	searchSuffix
)

func seqSearch(hay, needle *Seq, mode searchMode) predResult {
	n, h := needle.elems, hay.elems
	if len(n) > len(h) {
		return predNo
	}

	matchAt := func(off int) predResult {
		for i, v := range n {
			r := TotalCmp(h[off+i], v)
			if r == CmpFail {
				return predFail
			}
			if r != CmpEqual {
				return predNo
			}
		}
		return predYes
	}

	switch mode {
	case searchPrefix:
		return matchAt(0)
	case searchSuffix:
		return matchAt(len(h) - len(n))
	default:
		for off := 0; off+len(n) <= len(h); off++ {
			switch matchAt(off) {
			case predYes:
				return predYes
			case predFail:
				return predFail
			}
		}
		return predNo
	}
}
