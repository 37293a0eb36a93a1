// op.go
//
// The operator pipeline. A compiled query is a DAG of ops rooted at a single
// top operator whose distinguished leaf is an origin. Every op implements a
// lazy pull protocol:
//
//	next()  — produce one more result stack, or nil for end-of-stream
//	reset() — return the op and all transitive sub-ops to a fresh state
//	name()  — diagnostic label
//
// Ops that own a sub-pipeline (or, ifelse, capture, subx, tr_closure, scope,
// format, the sub-expression predicates) drive it through their own origin:
// reset the sub-pipeline, install a stack into the origin, then drain. The
// laziness contract: never pull upstream more than needed to produce one
// output, and always reset a sub-pipeline before re-seeding it.
//
// Fatal conditions (malformed DWARF, engine bugs) are raised as a queryFault
// panic and recovered into an error at the Query boundary. A word with no
// overload for the stack's operand types is reported to stderr once per word;
// other user-level complaints (apply without a closure, arithmetic on
// symbolic constants, incomparable operands) are reported each time they
// occur. In both cases the offending stack is dropped.
package dwq

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

type queryFault struct{ msg string }

func (e queryFault) Error() string { return e.msg }

func fault(format string, args ...any) queryFault {
	return queryFault{fmt.Sprintf(format, args...)}
}

// complain writes a non-fatal user-visible message to stderr.
func complain(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}

type op interface {
	next() *Stack
	reset()
	name() string
}

// ---- predicates --------------------------------------------------------

type predResult int8

const (
	predNo predResult = iota
	predYes
	predFail
)

func predBool(b bool) predResult {
	if b {
		return predYes
	}
	return predNo
}

func (r predResult) not() predResult {
	switch r {
	case predYes:
		return predNo
	case predNo:
		return predYes
	default:
		return predFail
	}
}

func (r predResult) and(o predResult) predResult {
	if r == predFail || o == predFail {
		return predFail
	}
	return predBool(r == predYes && o == predYes)
}

func (r predResult) or(o predResult) predResult {
	if r == predFail || o == predFail {
		return predFail
	}
	return predBool(r == predYes || o == predYes)
}

type pred interface {
	result(stk *Stack) predResult
	reset()
	name() string
}

// ---- origin ------------------------------------------------------------

// opOrigin is a one-shot source: it yields the stack most recently installed
// with install and then nothing until reset + re-install.
type opOrigin struct {
	stk   *Stack
	fresh bool
}

func newOrigin() *opOrigin { return &opOrigin{fresh: true} }

// install arms the origin. It must be preceded by a reset that percolated all
// the way down here.
func (o *opOrigin) install(s *Stack) {
	if o.stk != nil || !o.fresh {
		panic(fault("origin re-armed without reset"))
	}
	o.fresh = false
	o.stk = s
}

func (o *opOrigin) next() *Stack {
	s := o.stk
	o.stk = nil
	return s
}

func (o *opOrigin) reset() {
	o.stk = nil
	o.fresh = true
}

func (o *opOrigin) name() string { return "origin" }

// ---- trivial ops -------------------------------------------------------

type opNop struct{ upstream op }

func (o *opNop) next() *Stack { return o.upstream.next() }
func (o *opNop) reset()       { o.upstream.reset() }
func (o *opNop) name() string { return "nop" }

type opConst struct {
	upstream op
	value    Value
}

func (o *opConst) next() *Stack {
	if stk := o.upstream.next(); stk != nil {
		stk.Push(o.value.Clone())
		return stk
	}
	return nil
}

func (o *opConst) reset()       { o.upstream.reset() }
func (o *opConst) name() string { return fmt.Sprintf("const<%s>", o.value.Show()) }

type opAssert struct {
	upstream op
	p        pred
}

func (o *opAssert) next() *Stack {
	for stk := o.upstream.next(); stk != nil; stk = o.upstream.next() {
		if o.p.result(stk) == predYes {
			return stk
		}
	}
	return nil
}

func (o *opAssert) reset() {
	o.p.reset()
	o.upstream.reset()
}

func (o *opAssert) name() string { return "assert<" + o.p.name() + ">" }

// ---- alternation -------------------------------------------------------

type altBranch struct {
	origin *opOrigin
	body   op
}

// opOr tries each branch in order per upstream stack and commits to the
// first branch that yields; later branches are never consulted for that
// stack.
type opOr struct {
	upstream op
	branches []altBranch
	cur      int // active branch, or -1
}

func (o *opOr) next() *Stack {
	for {
		for o.cur < 0 {
			stk := o.upstream.next()
			if stk == nil {
				return nil
			}
			for i := range o.branches {
				b := &o.branches[i]
				b.body.reset()
				b.origin.install(stk.Clone())
				if out := b.body.next(); out != nil {
					o.cur = i
					return out
				}
			}
		}

		if out := o.branches[o.cur].body.next(); out != nil {
			return out
		}
		o.resetMe()
	}
}

func (o *opOr) resetMe() {
	o.cur = -1
	for i := range o.branches {
		o.branches[i].body.reset()
	}
}

func (o *opOr) reset() {
	o.resetMe()
	o.upstream.reset()
}

func (o *opOr) name() string {
	parts := make([]string, len(o.branches))
	for i, b := range o.branches {
		parts[i] = b.body.name()
	}
	return "or<" + strings.Join(parts, " || ") + ">"
}

// ---- ifelse ------------------------------------------------------------

type opIfelse struct {
	upstream   op
	condOrigin *opOrigin
	cond       op
	thenOrigin *opOrigin
	thenOp     op
	elseOrigin *opOrigin
	elseOp     op

	sel op // nil while undecided
}

func (o *opIfelse) next() *Stack {
	for {
		if o.sel == nil {
			stk := o.upstream.next()
			if stk == nil {
				return nil
			}

			o.cond.reset()
			o.condOrigin.install(stk.Clone())

			var origin *opOrigin
			if o.cond.next() != nil {
				origin, o.sel = o.thenOrigin, o.thenOp
			} else {
				origin, o.sel = o.elseOrigin, o.elseOp
			}

			o.sel.reset()
			origin.install(stk)
		}

		if out := o.sel.next(); out != nil {
			return out
		}
		o.sel = nil
	}
}

func (o *opIfelse) reset() {
	o.sel = nil
	o.cond.reset()
	o.thenOp.reset()
	o.elseOp.reset()
	o.upstream.reset()
}

func (o *opIfelse) name() string { return "ifelse" }

// ---- capture and sub-expressions ---------------------------------------

// opCapture runs its sub-pipeline to exhaustion per upstream stack and
// pushes a sequence of the produced TOS values.
type opCapture struct {
	upstream op
	origin   *opOrigin
	body     op
}

func (o *opCapture) next() *Stack {
	if stk := o.upstream.next(); stk != nil {
		o.body.reset()
		o.origin.install(stk.Clone())

		var elems []Value
		for sub := o.body.next(); sub != nil; sub = o.body.next() {
			elems = append(elems, sub.Pop())
		}

		stk.Push(NewSeq(elems, 0))
		return stk
	}
	return nil
}

func (o *opCapture) reset() {
	o.body.reset()
	o.upstream.reset()
}

func (o *opCapture) name() string { return "capture<" + o.body.name() + ">" }

// opSubx runs a sub-pipeline per upstream stack; each produced sub-stack
// contributes its top keep values (in order) onto a copy of the original.
type opSubx struct {
	upstream op
	origin   *opOrigin
	body     op
	keep     int

	stk *Stack
}

func (o *opSubx) next() *Stack {
	for {
		for o.stk == nil {
			stk := o.upstream.next()
			if stk == nil {
				return nil
			}
			o.stk = stk
			o.body.reset()
			o.origin.install(stk.Clone())
		}

		if sub := o.body.next(); sub != nil {
			ret := o.stk.Clone()
			kept := make([]Value, o.keep)
			for i := 0; i < o.keep; i++ {
				kept[i] = sub.Pop()
			}
			for i := o.keep - 1; i >= 0; i-- {
				ret.Push(kept[i])
			}
			return ret
		}

		o.stk = nil
	}
}

func (o *opSubx) reset() {
	o.stk = nil
	o.body.reset()
	o.upstream.reset()
}

func (o *opSubx) name() string { return "subx<" + o.body.name() + ">" }

// ---- transitive closure ------------------------------------------------

type closureKind int

const (
	closureStar closureKind = iota // zero or more applications
	closurePlus                    // one or more
)

// seenSet holds stacks already yielded by a tr_closure, ordered by Stack.Cmp.
type seenSet struct {
	stks []*Stack
}

func (s *seenSet) clear() { s.stks = nil }

// insert reports whether stk was new.
func (s *seenSet) insert(stk *Stack) bool {
	i := sort.Search(len(s.stks), func(i int) bool {
		return s.stks[i].Cmp(stk) != CmpLess
	})
	if i < len(s.stks) && s.stks[i].Equal(stk) {
		return false
	}
	s.stks = append(s.stks, nil)
	copy(s.stks[i+1:], s.stks[i:])
	s.stks[i] = stk
	return true
}

// opTrClosure composes its body transitively. A worklist holds stacks whose
// body-outputs are still owed; the seen-set suppresses duplicate stacks
// (whole-stack equality) and is cleared whenever a fresh upstream stack
// arrives, since that starts a new context.
type opTrClosure struct {
	upstream op
	origin   *opOrigin
	body     op
	isPlus   bool

	worklist []*Stack
	seen     seenSet
	drained  bool
}

func newOpTrClosure(upstream op, origin *opOrigin, body op, kind closureKind) *opTrClosure {
	return &opTrClosure{
		upstream: upstream,
		origin:   origin,
		body:     body,
		isPlus:   kind == closurePlus,
		drained:  true,
	}
}

func (o *opTrClosure) yieldAndCache(stk *Stack) *Stack {
	if o.seen.insert(stk) {
		o.worklist = append(o.worklist, stk)
		return stk.Clone()
	}
	return nil
}

func (o *opTrClosure) nextFromUpstream() *Stack {
	// A new upstream stack provides a fresh context; forget what was seen
	// so far, otherwise e.g. 'entry root dup child* ?eq' yields a single
	// root-root match instead of one per entry.
	o.seen.clear()
	return o.upstream.next()
}

func (o *opTrClosure) nextFromBody() *Stack {
	if o.drained {
		return nil
	}
	if ret := o.body.next(); ret != nil {
		return ret
	}
	o.drained = true
	return nil
}

func (o *opTrClosure) sendToBody(stk *Stack) bool {
	if stk == nil {
		return false
	}
	o.body.reset()
	o.origin.install(stk)
	o.drained = false
	return true
}

func (o *opTrClosure) refill() bool {
	if len(o.worklist) == 0 {
		if o.isPlus {
			return o.sendToBody(o.nextFromUpstream())
		}
		return false
	}
	last := o.worklist[len(o.worklist)-1]
	o.worklist = o.worklist[:len(o.worklist)-1]
	o.sendToBody(last.Clone())
	return true
}

func (o *opTrClosure) next() *Stack {
	for {
		for {
			stk := o.nextFromBody()
			if stk == nil {
				break
			}
			if ret := o.yieldAndCache(stk); ret != nil {
				return ret
			}
		}
		if !o.refill() {
			break
		}
	}

	if !o.isPlus {
		if stk := o.nextFromUpstream(); stk != nil {
			return o.yieldAndCache(stk)
		}
	}

	return nil
}

func (o *opTrClosure) resetMe() {
	o.worklist = nil
	o.seen.clear()
	o.drained = true
}

func (o *opTrClosure) reset() {
	o.resetMe()
	o.body.reset()
	o.upstream.reset()
}

func (o *opTrClosure) name() string { return "close<" + o.body.name() + ">" }

// ---- scopes and variables ----------------------------------------------

// opScope pushes a fresh frame per upstream stack, runs its body, and pops
// the frame off every yielded stack.
type opScope struct {
	upstream op
	origin   *opOrigin
	body     op
	nVars    int

	primed bool
}

func (o *opScope) next() *Stack {
	for {
		for !o.primed {
			stk := o.upstream.next()
			if stk == nil {
				return nil
			}
			stk.setFrame(newFrame(stk.nthFrame(0), o.nVars))
			o.body.reset()
			o.origin.install(stk)
			o.primed = true
		}

		if stk := o.body.next(); stk != nil {
			stk.setFrame(stk.nthFrame(1))
			return stk
		}

		o.primed = false
	}
}

func (o *opScope) reset() {
	o.primed = false
	o.body.reset()
	o.upstream.reset()
}

func (o *opScope) name() string {
	return fmt.Sprintf("scope<vars=%d, %s>", o.nVars, o.body.name())
}

type opBind struct {
	upstream op
	depth    int
	index    varID
}

func (o *opBind) next() *Stack {
	if stk := o.upstream.next(); stk != nil {
		stk.nthFrame(o.depth).bind(o.index, stk.Pop())
		return stk
	}
	return nil
}

func (o *opBind) reset()       { o.upstream.reset() }
func (o *opBind) name() string { return fmt.Sprintf("bind<%d@%d>", o.index, o.depth) }

type opRead struct {
	upstream op
	depth    int
	index    varID
}

func (o *opRead) next() *Stack {
	if stk := o.upstream.next(); stk != nil {
		stk.Push(stk.nthFrame(o.depth).read(o.index).Clone())
		return stk
	}
	return nil
}

func (o *opRead) reset()       { o.upstream.reset() }
func (o *opRead) name() string { return fmt.Sprintf("read<%d@%d>", o.index, o.depth) }

// opLexClosure pushes a closure value capturing the compiled sub-tree and
// the current top frame.
type opLexClosure struct {
	upstream op
	build    closureBuilder
}

func (o *opLexClosure) next() *Stack {
	if stk := o.upstream.next(); stk != nil {
		stk.Push(&Closure{build: o.build, fr: stk.nthFrame(0)})
		return stk
	}
	return nil
}

func (o *opLexClosure) reset()       { o.upstream.reset() }
func (o *opLexClosure) name() string { return "lex_closure" }

// opApply pops a closure off TOS, installs its captured frame, runs its body
// and restores the caller's frame on each yield. With skipNonClosures set
// (variable references), a non-closure TOS passes through untouched;
// otherwise it is complained about and dropped.
type opApply struct {
	upstream        op
	skipNonClosures bool

	body     op
	oldFrame *frame
}

func (o *opApply) next() *Stack {
	for {
		for o.body == nil {
			stk := o.upstream.next()
			if stk == nil {
				return nil
			}

			cl, ok := stk.Top().(*Closure)
			if !ok {
				if o.skipNonClosures {
					return stk
				}
				complain("Error: `apply' expects a T_CLOSURE on TOS.")
				continue
			}
			stk.Pop()

			o.oldFrame = stk.nthFrame(0)
			stk.setFrame(cl.fr)
			origin := newOrigin()
			o.body = cl.build(origin)
			origin.install(stk)
		}

		if stk := o.body.next(); stk != nil {
			stk.setFrame(o.oldFrame)
			return stk
		}

		o.body = nil
		o.oldFrame = nil
	}
}

func (o *opApply) reset() {
	o.body = nil
	o.oldFrame = nil
	o.upstream.reset()
}

func (o *opApply) name() string { return "apply" }

// ---- format ------------------------------------------------------------

// A stringer produces (stack, partial string) pairs. Chains of stringers
// realise interpolated string literals: a literal stringer prefixes fixed
// text, an op stringer formats the TOS of every sub-pipeline result.
type stringer interface {
	next() (*Stack, string, bool)
	reset()
}

type stringerOrigin struct {
	stk   *Stack
	fresh bool
}

func newStringerOrigin() *stringerOrigin { return &stringerOrigin{fresh: true} }

func (s *stringerOrigin) install(stk *Stack) {
	if s.stk != nil || !s.fresh {
		panic(fault("stringer origin re-armed without reset"))
	}
	s.fresh = false
	s.stk = stk
}

func (s *stringerOrigin) next() (*Stack, string, bool) {
	stk := s.stk
	if stk == nil {
		return nil, "", false
	}
	s.stk = nil
	return stk, "", true
}

func (s *stringerOrigin) reset() {
	s.stk = nil
	s.fresh = true
}

type stringerLit struct {
	upstream stringer
	str      string
}

func (s *stringerLit) next() (*Stack, string, bool) {
	stk, acc, ok := s.upstream.next()
	if !ok {
		return nil, "", false
	}
	return stk, s.str + acc, true
}

func (s *stringerLit) reset() { s.upstream.reset() }

type stringerOp struct {
	upstream stringer
	origin   *opOrigin
	body     op

	have bool
	str  string
}

func (s *stringerOp) next() (*Stack, string, bool) {
	for {
		if !s.have {
			stk, acc, ok := s.upstream.next()
			if !ok {
				return nil, "", false
			}
			s.body.reset()
			s.origin.install(stk)
			s.str = acc
			s.have = true
		}

		if stk := s.body.next(); stk != nil {
			return stk, stk.Pop().Show() + s.str, true
		}

		s.have = false
	}
}

func (s *stringerOp) reset() {
	s.have = false
	s.body.reset()
	s.upstream.reset()
}

// opFormat drives a stringer chain per upstream stack and pushes the
// assembled string, numbering outputs per upstream stack.
type opFormat struct {
	upstream op
	origin   *stringerOrigin
	str      stringer
	pos      int
}

func (o *opFormat) next() *Stack {
	for {
		if stk, acc, ok := o.str.next(); ok {
			stk.Push(NewStr(acc, o.pos))
			o.pos++
			return stk
		}

		stk := o.upstream.next()
		if stk == nil {
			return nil
		}
		o.resetMe()
		o.origin.install(stk)
	}
}

func (o *opFormat) resetMe() {
	o.str.reset()
	o.pos = 0
}

func (o *opFormat) reset() {
	o.resetMe()
	o.upstream.reset()
}

func (o *opFormat) name() string { return "format" }

// ---- tine / merge ------------------------------------------------------

// opTine fans one upstream stack out to b identical copies, one per branch.
// All tines share the file; a tine only refills it when every slot is empty.
type opTine struct {
	upstream op
	file     *[]*Stack
	done     *bool
	branch   int
}

func (o *opTine) next() *Stack {
	if *o.done {
		return nil
	}

	empty := true
	for _, s := range *o.file {
		if s != nil {
			empty = false
			break
		}
	}
	if empty {
		stk := o.upstream.next()
		if stk == nil {
			*o.done = true
			return nil
		}
		for i := range *o.file {
			(*o.file)[i] = stk.Clone()
		}
	}

	ret := (*o.file)[o.branch]
	(*o.file)[o.branch] = nil
	return ret
}

func (o *opTine) reset() {
	for i := range *o.file {
		(*o.file)[i] = nil
	}
	*o.done = false
	o.upstream.reset()
}

func (o *opTine) name() string { return "tine" }

// opMerge pulls its branches in turn, wrapping around: it keeps pulling the
// current branch until that branch returns nil, and only then moves to the
// next. Results are not interleaved one per branch; a branch's results for
// one input stack come out together. The branch that finds every tine slot
// empty pulls the next upstream stack, so the branch order can rotate from
// one input stack to the next.
type opMerge struct {
	ops  []op
	done *bool
	idx  int
}

func (o *opMerge) next() *Stack {
	if *o.done {
		return nil
	}

	for !*o.done {
		if ret := o.ops[o.idx].next(); ret != nil {
			return ret
		}
		o.idx++
		if o.idx == len(o.ops) {
			o.idx = 0
		}
	}

	return nil
}

func (o *opMerge) reset() {
	*o.done = false
	o.idx = 0
	for _, sub := range o.ops {
		sub.reset()
	}
}

func (o *opMerge) name() string { return "merge" }

// ---- predicate combinators ---------------------------------------------

type predNot struct{ a pred }

func (p *predNot) result(stk *Stack) predResult { return p.a.result(stk).not() }
func (p *predNot) reset()                       { p.a.reset() }
func (p *predNot) name() string                 { return "not<" + p.a.name() + ">" }

type predAnd struct{ a, b pred }

func (p *predAnd) result(stk *Stack) predResult {
	if r := p.a.result(stk); r != predYes {
		return r
	}
	return p.b.result(stk)
}

func (p *predAnd) reset() {
	p.a.reset()
	p.b.reset()
}

func (p *predAnd) name() string { return "and<" + p.a.name() + "><" + p.b.name() + ">" }

type predOr struct{ a, b pred }

func (p *predOr) result(stk *Stack) predResult {
	if r := p.a.result(stk); r == predYes {
		return r
	}
	return p.b.result(stk)
}

func (p *predOr) reset() {
	p.a.reset()
	p.b.reset()
}

func (p *predOr) name() string { return "or<" + p.a.name() + "><" + p.b.name() + ">" }

// predSubxAny holds iff its sub-pipeline yields at least one stack.
type predSubxAny struct {
	origin *opOrigin
	body   op
}

func (p *predSubxAny) result(stk *Stack) predResult {
	p.body.reset()
	p.origin.install(stk.Clone())
	return predBool(p.body.next() != nil)
}

func (p *predSubxAny) reset()       { p.body.reset() }
func (p *predSubxAny) name() string { return "pred_subx_any<" + p.body.name() + ">" }

// predSubxCompare runs two sub-pipelines over fresh copies of the input and
// tests the binary predicate over the cross product, holding on first hit.
type predSubxCompare struct {
	origin *opOrigin
	op1    op
	op2    op
	p      pred
}

func (p *predSubxCompare) result(stk *Stack) predResult {
	p.op1.reset()
	p.origin.reset()
	p.origin.install(stk.Clone())
	for stk1 := p.op1.next(); stk1 != nil; stk1 = p.op1.next() {
		p.op2.reset()
		p.origin.reset()
		p.origin.install(stk.Clone())

		for stk2 := p.op2.next(); stk2 != nil; stk2 = p.op2.next() {
			stk1.Push(stk2.Pop())
			if p.p.result(stk1) == predYes {
				return predYes
			}
			stk1.Pop()
		}
	}
	return predNo
}

func (p *predSubxCompare) reset() {
	p.op1.reset()
	p.op2.reset()
	p.p.reset()
}

func (p *predSubxCompare) name() string {
	return "pred_subx_compare<" + p.op1.name() + "><" + p.op2.name() + "><" + p.p.name() + ">"
}

// predPos holds when TOS was produced at the given position.
type predPos struct{ pos int }

func (p *predPos) result(stk *Stack) predResult {
	return predBool(stk.Top().Pos() == p.pos)
}

func (p *predPos) reset()       {}
func (p *predPos) name() string { return fmt.Sprintf("pred_pos<%d>", p.pos) }
