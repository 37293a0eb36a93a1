// aset.go
//
// Address sets: canonical coverage of half-open [start, start+length) ranges
// over 64-bit addresses. Canonical means sorted, non-overlapping and merged;
// every mutation re-establishes the invariant.
package dwq

import (
	"sort"
	"strings"
)

type arange struct {
	start  uint64
	length uint64
}

func (r arange) end() uint64 { return r.start + r.length }

type coverage struct {
	ranges []arange
}

// add unions [start, start+length) into the coverage.
func (c *coverage) add(start, length uint64) {
	if length == 0 {
		return
	}
	c.ranges = append(c.ranges, arange{start, length})
	c.normalize()
}

func (c *coverage) addAll(o coverage) {
	c.ranges = append(c.ranges, o.ranges...)
	c.normalize()
}

func (c *coverage) normalize() {
	if len(c.ranges) == 0 {
		return
	}
	sort.Slice(c.ranges, func(i, j int) bool {
		return c.ranges[i].start < c.ranges[j].start
	})
	out := c.ranges[:1]
	for _, r := range c.ranges[1:] {
		last := &out[len(out)-1]
		if r.start <= last.end() {
			if r.end() > last.end() {
				last.length = r.end() - last.start
			}
			continue
		}
		out = append(out, r)
	}
	c.ranges = out
}

// remove subtracts [start, start+length).
func (c *coverage) remove(start, length uint64) {
	if length == 0 {
		return
	}
	end := start + length
	var out []arange
	for _, r := range c.ranges {
		if r.end() <= start || r.start >= end {
			out = append(out, r)
			continue
		}
		if r.start < start {
			out = append(out, arange{r.start, start - r.start})
		}
		if r.end() > end {
			out = append(out, arange{end, r.end() - end})
		}
	}
	c.ranges = out
}

func (c *coverage) removeAll(o coverage) {
	for _, r := range o.ranges {
		c.remove(r.start, r.length)
	}
}

func (c *coverage) intersect(o coverage) coverage {
	var out coverage
	for _, a := range c.ranges {
		for _, b := range o.ranges {
			lo, hi := max64(a.start, b.start), min64(a.end(), b.end())
			if lo < hi {
				out.ranges = append(out.ranges, arange{lo, hi - lo})
			}
		}
	}
	out.normalize()
	return out
}

// isCovered reports whether [start, start+length) lies entirely inside.
func (c *coverage) isCovered(start, length uint64) bool {
	for _, r := range c.ranges {
		if start >= r.start && start+length <= r.end() {
			return true
		}
	}
	return false
}

func (c *coverage) overlaps(o coverage) bool {
	for _, a := range c.ranges {
		for _, b := range o.ranges {
			if a.start < b.end() && b.start < a.end() {
				return true
			}
		}
	}
	return false
}

func (c *coverage) count() uint64 {
	var n uint64
	for _, r := range c.ranges {
		n += r.length
	}
	return n
}

func (c *coverage) clone() coverage {
	out := coverage{ranges: make([]arange, len(c.ranges))}
	copy(out.ranges, c.ranges)
	return out
}

func max64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// ---- the value ---------------------------------------------------------

type ASet struct {
	withpos
	cov coverage
}

func NewASet(cov coverage, pos int) *ASet { return &ASet{withpos{pos}, cov} }

func (a *ASet) VType() VType { return TASet }
func (a *ASet) Clone() Value { return &ASet{a.withpos, a.cov.clone()} }

func (a *ASet) Show() string {
	if len(a.cov.ranges) == 0 {
		return "<empty>"
	}
	var b strings.Builder
	for i, r := range a.cov.ranges {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("[" + hexShow(r.start) + ", " + hexShow(r.end()) + ")")
	}
	return b.String()
}

func (a *ASet) Cmp(other Value) CmpResult {
	o := other.(*ASet)
	if r := cmpOrd(len(a.cov.ranges), len(o.cov.ranges)); r != CmpEqual {
		return r
	}
	for i := range a.cov.ranges {
		ra, rb := a.cov.ranges[i], o.cov.ranges[i]
		if r := cmpOrd(ra.start, rb.start); r != CmpEqual {
			return r
		}
		if r := cmpOrd(ra.length, rb.length); r != CmpEqual {
			return r
		}
	}
	return CmpEqual
}

// ---- operators ---------------------------------------------------------

// addressify converts a constant to an address, warning about unsuitable
// inputs; a negative or too-large constant becomes 0.
func addressify(c *Cst) uint64 {
	if !c.dom.plain {
		complain("Warning: the constant %s doesn't seem to be suitable for use in address sets.", c.Show())
	}
	if c.v.Sign() < 0 {
		complain("Warning: Negative values are not allowed in address sets.")
		return 0
	}
	v, ok := c.Uint64()
	if !ok {
		complain("Warning: the constant %s is too large for an address.", c.Show())
		return 0
	}
	return v
}

type asetElemProducer struct {
	cov     coverage
	idx     int    // position among ranges
	ai      uint64 // iteration through a range
	i       int    // produced value counter
	forward bool
}

func (p *asetElemProducer) next() Value {
	for {
		if p.idx >= len(p.cov.ranges) {
			return nil
		}
		ri := p.idx
		if !p.forward {
			ri = len(p.cov.ranges) - 1 - p.idx
		}
		r := p.cov.ranges[ri]
		if p.ai >= r.length {
			p.idx++
			p.ai = 0
			continue
		}
		ai := p.ai
		if !p.forward {
			ai = r.length - 1 - p.ai
		}
		p.ai++
		v := CstUint64(r.start+ai, DomAddress, p.i)
		p.i++
		return v
	}
}

type asetRangeProducer struct {
	cov coverage
	i   int
}

func (p *asetRangeProducer) next() Value {
	if p.i >= len(p.cov.ranges) {
		return nil
	}
	var cov coverage
	r := p.cov.ranges[p.i]
	cov.add(r.start, r.length)
	v := NewASet(cov, p.i)
	p.i++
	return v
}

func registerASetBuiltins(v *Vocabulary, add, sub, length, elem, relem, low, high *ovlTable, empty *predTable) {
	// aset: two constants to a spanning set.
	aset := newOvlTable("aset")
	aset.addOnce(func(args []Value) Value {
		av := addressify(args[0].(*Cst))
		bv := addressify(args[1].(*Cst))
		if av > bv {
			av, bv = bv, av
		}
		var cov coverage
		cov.add(av, bv-av)
		return NewASet(cov, 0)
	}, TConst, TConst)
	v.addOp("aset", wordOp(aset))

	add.addOnce(func(args []Value) Value {
		cov := args[0].(*ASet).cov.clone()
		cov.add(addressify(args[1].(*Cst)), 1)
		return NewASet(cov, 0)
	}, TASet, TConst)
	add.addOnce(func(args []Value) Value {
		cov := args[0].(*ASet).cov.clone()
		cov.addAll(args[1].(*ASet).cov)
		return NewASet(cov, 0)
	}, TASet, TASet)

	sub.addOnce(func(args []Value) Value {
		cov := args[0].(*ASet).cov.clone()
		cov.remove(addressify(args[1].(*Cst)), 1)
		return NewASet(cov, 0)
	}, TASet, TConst)
	sub.addOnce(func(args []Value) Value {
		cov := args[0].(*ASet).cov.clone()
		cov.removeAll(args[1].(*ASet).cov)
		return NewASet(cov, 0)
	}, TASet, TASet)

	overlap := newOvlTable("overlap")
	overlap.addOnce(func(args []Value) Value {
		return NewASet(args[0].(*ASet).cov.intersect(args[1].(*ASet).cov), 0)
	}, TASet, TASet)
	v.addOp("overlap", wordOp(overlap))

	length.addOnce(func(args []Value) Value {
		return CstUint64(args[0].(*ASet).cov.count(), DomDec, 0)
	}, TASet)

	rng := newOvlTable("range")
	rng.addMany(func(args []Value) producer {
		return &asetRangeProducer{cov: args[0].(*ASet).cov.clone()}
	}, TASet)
	v.addOp("range", wordOp(rng))

	elem.addMany(func(args []Value) producer {
		return &asetElemProducer{cov: args[0].(*ASet).cov.clone(), forward: true}
	}, TASet)
	relem.addMany(func(args []Value) producer {
		return &asetElemProducer{cov: args[0].(*ASet).cov.clone(), forward: false}
	}, TASet)

	low.addOnce(func(args []Value) Value {
		cov := args[0].(*ASet).cov
		if len(cov.ranges) == 0 {
			return nil
		}
		return CstUint64(cov.ranges[0].start, DomAddress, 0)
	}, TASet)
	high.addOnce(func(args []Value) Value {
		cov := args[0].(*ASet).cov
		if len(cov.ranges) == 0 {
			return nil
		}
		return CstUint64(cov.ranges[len(cov.ranges)-1].end(), DomAddress, 0)
	}, TASet)

	empty.add(func(args []Value) predResult {
		return predBool(len(args[0].(*ASet).cov.ranges) == 0)
	}, TASet)

	contains := newPredTable("?contains")
	contains.add(func(args []Value) predResult {
		a := args[0].(*ASet)
		return predBool(a.cov.isCovered(addressify(args[1].(*Cst)), 1))
	}, TASet, TConst)
	contains.add(func(args []Value) predResult {
		a, b := args[0].(*ASet), args[1].(*ASet)
		for _, r := range b.cov.ranges {
			if !a.cov.isCovered(r.start, r.length) {
				return predNo
			}
		}
		return predYes
	}, TASet, TASet)
	v.addPredPair("contains", contains)

	overlapsP := newPredTable("?overlaps")
	overlapsP.add(func(args []Value) predResult {
		return predBool(args[0].(*ASet).cov.overlaps(args[1].(*ASet).cov))
	}, TASet, TASet)
	v.addPredPair("overlaps", overlapsP)
}
