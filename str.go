// str.go
//
// String values and their operators. Strings compare bytewise; `elem` yields
// one-character strings; `?match` anchors the pattern on both ends.
package dwq

import (
	"regexp"
	"strings"
)

type Str struct {
	withpos
	s string
}

func NewStr(s string, pos int) *Str { return &Str{withpos{pos}, s} }

func (s *Str) VType() VType { return TStr }
func (s *Str) Val() string  { return s.s }
func (s *Str) Clone() Value { cp := *s; return &cp }
func (s *Str) Show() string { return s.s }

func (s *Str) Cmp(other Value) CmpResult {
	o := other.(*Str)
	switch {
	case s.s < o.s:
		return CmpLess
	case s.s > o.s:
		return CmpGreater
	default:
		return CmpEqual
	}
}

// ---- operators ---------------------------------------------------------

type strElemProducer struct {
	s       string
	idx     int
	forward bool
}

func (p *strElemProducer) next() Value {
	if p.idx >= len(p.s) {
		return nil
	}
	i := p.idx
	if !p.forward {
		i = len(p.s) - 1 - p.idx
	}
	v := NewStr(p.s[i:i+1], p.idx)
	p.idx++
	return v
}

func addStrOverloads(t *ovlTable) {
	t.addOnce(func(args []Value) Value {
		return NewStr(args[0].(*Str).s+args[1].(*Str).s, 0)
	}, TStr, TStr)
}

func addStrLengthOverload(t *ovlTable) {
	t.addOnce(func(args []Value) Value {
		return CstInt64(int64(len(args[0].(*Str).s)), DomDec, 0)
	}, TStr)
}

func addStrElemOverloads(elem, relem *ovlTable) {
	elem.addMany(func(args []Value) producer {
		return &strElemProducer{s: args[0].(*Str).s, forward: true}
	}, TStr)
	relem.addMany(func(args []Value) producer {
		return &strElemProducer{s: args[0].(*Str).s, forward: false}
	}, TStr)
}

func addStrPredOverloads(empty, find, starts, ends, match *predTable) {
	empty.add(func(args []Value) predResult {
		return predBool(args[0].(*Str).s == "")
	}, TStr)

	find.add(func(args []Value) predResult {
		return predBool(strings.Contains(args[0].(*Str).s, args[1].(*Str).s))
	}, TStr, TStr)
	starts.add(func(args []Value) predResult {
		return predBool(strings.HasPrefix(args[0].(*Str).s, args[1].(*Str).s))
	}, TStr, TStr)
	ends.add(func(args []Value) predResult {
		return predBool(strings.HasSuffix(args[0].(*Str).s, args[1].(*Str).s))
	}, TStr, TStr)
	match.add(func(args []Value) predResult {
		h, pat := args[0].(*Str).s, args[1].(*Str).s
		re, err := regexp.Compile("^(?:" + pat + ")$")
		if err != nil {
			complain("Error: invalid pattern %q: %v", pat, err)
			return predFail
		}
		return predBool(re.MatchString(h))
	}, TStr, TStr)
}
