// build.go
//
// The builder translates a parse tree into an operator graph rooted at a
// single origin, resolving identifiers to (frame depth, slot) pairs and
// words to vocabulary builtins. Build-time failures — unknown identifiers,
// duplicate bindings — abort construction; they are raised internally as
// buildFault panics and surfaced as errors from Build.
package dwq

import "fmt"

type buildFault struct{ msg string }

func bfault(format string, args ...any) buildFault {
	return buildFault{fmt.Sprintf(format, args...)}
}

// scopeInfo is the builder's compile-time image of one lexical frame.
type scopeInfo struct {
	parent *scopeInfo
	vars   map[string]varID
}

func newScope(parent *scopeInfo, names []string) *scopeInfo {
	sc := &scopeInfo{parent: parent, vars: map[string]varID{}}
	for i, n := range names {
		if _, dup := sc.vars[n]; dup {
			panic(bfault("duplicate binding: %s", n))
		}
		sc.vars[n] = varID(i)
	}
	return sc
}

func (sc *scopeInfo) resolve(name string) (depth int, id varID, ok bool) {
	for s := sc; s != nil; s = s.parent {
		if id, ok := s.vars[name]; ok {
			return depth, id, true
		}
		depth++
	}
	return 0, 0, false
}

type builder struct {
	voc *Vocabulary
}

// Query is the compiled form of a program: feed an input stack, pull result
// stacks until nil.
type Query struct {
	origin *opOrigin
	root   op
}

// Build compiles a parse tree against a vocabulary.
func Build(tree S, voc *Vocabulary) (q *Query, err error) {
	defer func() {
		if r := recover(); r != nil {
			if bf, ok := r.(buildFault); ok {
				q, err = nil, fmt.Errorf("build error: %s", bf.msg)
				return
			}
			panic(r)
		}
	}()

	b := &builder{voc: voc}
	origin := newOrigin()
	root := b.buildNode(tree, origin, nil)
	return &Query{origin: origin, root: root}, nil
}

// Compile parses and builds a query program in one step.
func Compile(src string, voc *Vocabulary) (*Query, error) {
	tree, err := ParseQuery(src)
	if err != nil {
		return nil, WrapErrorWithSource(err, src)
	}
	return Build(tree, voc)
}

// Feed resets the graph and installs a fresh input stack into the origin.
func (q *Query) Feed(stk *Stack) {
	q.root.reset()
	q.origin.install(stk)
}

// Next pulls one result stack; nil means end-of-stream. Fatal engine faults
// (malformed DWARF and the like) come back as errors.
func (q *Query) Next() (stk *Stack, err error) {
	defer func() {
		if r := recover(); r != nil {
			if qf, ok := r.(queryFault); ok {
				stk, err = nil, qf
				return
			}
			panic(r)
		}
	}()
	return q.root.next(), nil
}

// Run feeds stk and drains every result.
func (q *Query) Run(stk *Stack) ([]*Stack, error) {
	q.Feed(stk)
	var out []*Stack
	for {
		s, err := q.Next()
		if err != nil {
			return out, err
		}
		if s == nil {
			return out, nil
		}
		out = append(out, s)
	}
}

// ---- node compilation --------------------------------------------------

func (b *builder) buildNode(n S, upstream op, sc *scopeInfo) op {
	if len(n) == 0 {
		panic(bfault("empty parse node"))
	}

	switch tag := n[0].(string); tag {
	case "cat":
		u := upstream
		for _, item := range n[1:] {
			u = b.buildNode(item.(S), u, sc)
		}
		return u

	case "alt":
		// `,`: fan the input out to every branch through shared tines and
		// round-robin the merged results.
		nb := len(n) - 1
		file := make([]*Stack, nb)
		done := new(bool)
		bodies := make([]op, nb)
		for i, item := range n[1:] {
			tine := &opTine{upstream: upstream, file: &file, done: done, branch: i}
			bodies[i] = b.buildNode(item.(S), tine, sc)
		}
		return &opMerge{ops: bodies, done: done}

	case "or":
		branches := make([]altBranch, 0, len(n)-1)
		for _, item := range n[1:] {
			origin := newOrigin()
			branches = append(branches, altBranch{
				origin: origin,
				body:   b.buildNode(item.(S), origin, sc),
			})
		}
		return &opOr{upstream: upstream, branches: branches, cur: -1}

	case "cmp":
		word := n[1].(string)
		bi := b.voc.lookup(word)
		if bi == nil || bi.pred == nil {
			panic(bfault("unknown comparison word: %s", word))
		}
		origin := newOrigin()
		p := &predSubxCompare{
			origin: origin,
			op1:    b.buildNode(n[2].(S), origin, sc),
			op2:    b.buildNode(n[3].(S), origin, sc),
			p:      bi.pred(),
		}
		return &opAssert{upstream: upstream, p: p}

	case "capture":
		origin := newOrigin()
		return &opCapture{
			upstream: upstream,
			origin:   origin,
			body:     b.buildNode(n[1].(S), origin, sc),
		}

	case "closure":
		body := n[1].(S)
		// Validate the body now so that name errors surface at build
		// time; every application re-instantiates it for fresh state.
		b.buildNode(body, newOrigin(), sc)
		build := closureBuilder(func(origin *opOrigin) op {
			return b.buildNode(body, origin, sc)
		})
		return &opLexClosure{upstream: upstream, build: build}

	case "scope":
		names := n[1].([]string)
		ns := newScope(sc, names)
		origin := newOrigin()
		var u op = origin
		for i := len(names) - 1; i >= 0; i-- {
			u = &opBind{upstream: u, depth: 0, index: ns.vars[names[i]]}
		}
		return &opScope{
			upstream: upstream,
			origin:   origin,
			body:     b.buildNode(n[2].(S), u, ns),
			nVars:    len(names),
		}

	case "let":
		names := n[1].([]string)
		ns := newScope(sc, names)
		origin := newOrigin()
		valOrigin := newOrigin()
		var u op = &opSubx{
			upstream: origin,
			origin:   valOrigin,
			body:     b.buildNode(n[2].(S), valOrigin, ns),
			keep:     len(names),
		}
		for i := len(names) - 1; i >= 0; i-- {
			u = &opBind{upstream: u, depth: 0, index: ns.vars[names[i]]}
		}
		return &opScope{
			upstream: upstream,
			origin:   origin,
			body:     b.buildNode(n[3].(S), u, ns),
			nVars:    len(names),
		}

	case "close":
		kind := closureStar
		if n[1].(string) == "plus" {
			kind = closurePlus
		}
		origin := newOrigin()
		return newOpTrClosure(upstream, origin,
			b.buildNode(n[2].(S), origin, sc), kind)

	case "assert_any":
		origin := newOrigin()
		p := &predSubxAny{origin: origin, body: b.buildNode(n[1].(S), origin, sc)}
		return &opAssert{upstream: upstream, p: p}

	case "assert_none":
		origin := newOrigin()
		p := &predSubxAny{origin: origin, body: b.buildNode(n[1].(S), origin, sc)}
		return &opAssert{upstream: upstream, p: &predNot{p}}

	case "ifelse":
		condOrigin := newOrigin()
		thenOrigin := newOrigin()
		elseOrigin := newOrigin()
		return &opIfelse{
			upstream:   upstream,
			condOrigin: condOrigin,
			cond:       b.buildNode(n[1].(S), condOrigin, sc),
			thenOrigin: thenOrigin,
			thenOp:     b.buildNode(n[2].(S), thenOrigin, sc),
			elseOrigin: elseOrigin,
			elseOp:     b.buildNode(n[3].(S), elseOrigin, sc),
		}

	case "word":
		return b.buildWord(n, upstream, sc)

	case "const":
		return &opConst{upstream: upstream, value: n[1].(*Cst)}

	case "format":
		return b.buildFormat(n, upstream, sc)

	default:
		panic(bfault("unknown parse node %q", tag))
	}
}

func (b *builder) buildWord(n S, upstream op, sc *scopeInfo) op {
	word := n[1].(string)
	line, col := n[2].(int), n[3].(int)

	if sc != nil {
		if depth, id, ok := sc.resolve(word); ok {
			read := &opRead{upstream: upstream, depth: depth, index: id}
			// A variable holding a closure applies on reference.
			return &opApply{upstream: read, skipNonClosures: true}
		}
	}

	bi := b.voc.lookup(word)
	if bi == nil {
		panic(bfault("unknown word %q at %d:%d", word, line, col))
	}
	switch {
	case bi.op != nil:
		return bi.op(upstream)
	case bi.pred != nil:
		return &opAssert{upstream: upstream, p: bi.pred()}
	default:
		return &opConst{upstream: upstream, value: bi.cst}
	}
}

// buildFormat assembles the stringer chain. Parts are chained right-to-left
// so the rightmost sub-expression sits innermost: it transforms the stack
// first and pops TOS first, which maps the leftmost %s to the deepest of the
// formatted values.
func (b *builder) buildFormat(n S, upstream op, sc *scopeInfo) op {
	so := newStringerOrigin()
	var chain stringer = so
	for i := len(n) - 1; i >= 1; i-- {
		switch part := n[i].(type) {
		case string:
			chain = &stringerLit{upstream: chain, str: part}
		default:
			origin := newOrigin()
			chain = &stringerOp{
				upstream: chain,
				origin:   origin,
				body:     b.buildNode(part.(S), origin, sc),
			}
		}
	}
	return &opFormat{upstream: upstream, origin: so, str: chain}
}
