// dwbuiltin.go
//
// The DWARF word set: unit/entry/child/attribute/parent/root traversal with
// raw/cooked duality, the thin projections (offset, label, name, low, high,
// address, version, form, value), the @AT_*/?AT_*/?TAG_*/?FORM_*/?OP_*
// families, and every DW_* named constant.
//
// Cooked traversal transparently follows DW_TAG_imported_unit into the
// referenced partial unit: the importing DIE is yielded, then the partial
// unit's contents with the importing DIE recorded on their import chain.
// Raw traversal never crosses imports.
package dwq

import (
	"debug/dwarf"
)

// ---- DIE traversal -----------------------------------------------------

type iterRange struct {
	nodes    []*dieNode
	idx      int
	imported bool // popped together with one import link
}

// dieRangeProducer iterates a DIE range depth-first preorder (recurse) or
// one level only (child), inlining partial units in cooked mode.
type dieRangeProducer struct {
	ctx     *dwarfContext
	done    Doneness
	recurse bool
	stack   []iterRange
	imp     *DIE
	i       int
}

func newEntryProducer(ctx *dwarfContext, root *dieNode, done Doneness) *dieRangeProducer {
	return &dieRangeProducer{
		ctx:     ctx,
		done:    done,
		recurse: true,
		stack:   []iterRange{{nodes: []*dieNode{root}}},
	}
}

func newChildProducer(ctx *dwarfContext, parent *dieNode, done Doneness) *dieRangeProducer {
	return &dieRangeProducer{
		ctx:   ctx,
		done:  done,
		stack: []iterRange{{nodes: parent.children}},
	}
}

func (p *dieRangeProducer) next() Value {
	for {
		// Drain finished ranges, dropping one import link per imported
		// range.
		for len(p.stack) > 0 {
			top := &p.stack[len(p.stack)-1]
			if top.idx < len(top.nodes) {
				break
			}
			if top.imported && p.imp != nil {
				p.imp = p.imp.imp
			}
			p.stack = p.stack[:len(p.stack)-1]
		}
		if len(p.stack) == 0 {
			return nil
		}

		top := &p.stack[len(p.stack)-1]
		n := top.nodes[top.idx]
		top.idx++

		ret := &DIE{withpos{p.i}, p.ctx, n, p.done, p.imp}
		p.i++

		if p.done == Cooked {
			if target := importTarget(p.ctx, n); target != nil {
				// Walk the partial unit's contents next, remembering
				// the import point; the partial root itself is hidden.
				p.imp = &DIE{withpos{0}, p.ctx, n, Cooked, p.imp}
				p.stack = append(p.stack, iterRange{nodes: target.children, imported: true})
				return ret
			}
		}
		if p.recurse && len(n.children) > 0 {
			p.stack = append(p.stack, iterRange{nodes: n.children})
		}
		return ret
	}
}

// ---- unit producers ----------------------------------------------------

type unitProducer struct {
	ctx   *dwarfContext
	done  Doneness
	units []*unitInfo
	idx   int
	i     int
}

func (p *unitProducer) next() Value {
	for p.idx < len(p.units) {
		u := p.units[p.idx]
		p.idx++
		if p.done == Cooked && u.root.tag == dwarf.TagPartialUnit {
			continue
		}
		v := &CU{withpos{p.i}, p.ctx, u, p.done}
		p.i++
		return v
	}
	return nil
}

// dwarfEntryProducer chains the entry walk across all acceptable units.
type dwarfEntryProducer struct {
	units *unitProducer
	cur   *dieRangeProducer
}

func (p *dwarfEntryProducer) next() Value {
	for {
		if p.cur != nil {
			if v := p.cur.next(); v != nil {
				return v
			}
			p.cur = nil
		}
		cu, ok := p.units.next().(*CU)
		if !ok {
			return nil
		}
		p.cur = newEntryProducer(cu.ctx, cu.unit.root, cu.done)
	}
}

// ---- attribute producer ------------------------------------------------

// attrIntegrable reports whether an attribute makes sense when pulled down
// through DW_AT_specification / DW_AT_abstract_origin.
func attrIntegrable(at dwarf.Attr) bool {
	switch at {
	case dwarf.AttrSibling, dwarf.AttrDeclaration:
		return false
	default:
		return true
	}
}

type attrProducer struct {
	ctx  *dwarfContext
	done Doneness

	node      *dieNode
	fi        int
	pending   []*dieNode
	seen      []dwarf.Attr
	secondary bool
	i         int
}

func newAttrProducer(ctx *dwarfContext, node *dieNode, done Doneness) *attrProducer {
	return &attrProducer{ctx: ctx, done: done, node: node}
}

func (p *attrProducer) seenAttr(at dwarf.Attr) bool {
	for _, s := range p.seen {
		if s == at {
			return true
		}
	}
	return false
}

func (p *attrProducer) schedule(f dwarf.Field) {
	if off, ok := f.Val.(dwarf.Offset); ok {
		p.pending = append(p.pending, p.ctx.dieAt(off))
	}
}

func (p *attrProducer) next() Value {
	integrate := p.done == Cooked
	for {
		for p.fi >= len(p.node.entry.Field) {
			if !integrate || len(p.pending) == 0 {
				return nil
			}
			p.node = p.pending[len(p.pending)-1]
			p.pending = p.pending[:len(p.pending)-1]
			p.fi = 0
			p.secondary = true
		}

		f := p.node.entry.Field[p.fi]
		p.fi++

		if integrate && (f.Attr == dwarf.AttrSpecification || f.Attr == dwarf.AttrAbstractOrigin) {
			// Schedule the referenced DIE but still show the attribute
			// itself, even when several integration rounds repeat it.
			p.schedule(f)
		} else {
			if p.secondary && !attrIntegrable(f.Attr) {
				continue
			}
			if integrate && p.seenAttr(f.Attr) {
				continue
			}
		}

		p.seen = append(p.seen, f.Attr)
		v := &Attr{withpos{p.i}, p.ctx, f, p.node, p.done}
		p.i++
		return v
	}
}

// findAttrIntegrated looks an attribute up on the DIE, following
// specification and abstract-origin references in cooked mode.
func findAttrIntegrated(ctx *dwarfContext, node *dieNode, at dwarf.Attr, done Doneness) (dwarf.Field, *dieNode, bool) {
	if f, ok := attrField(node, at); ok {
		return f, node, true
	}
	if done == Cooked && attrIntegrable(at) {
		for _, ref := range []dwarf.Attr{dwarf.AttrSpecification, dwarf.AttrAbstractOrigin} {
			rf, ok := attrField(node, ref)
			if !ok {
				continue
			}
			off, ok := rf.Val.(dwarf.Offset)
			if !ok {
				continue
			}
			if f, n, ok := findAttrIntegrated(ctx, ctx.dieAt(off), at, done); ok {
				return f, n, true
			}
		}
	}
	return dwarf.Field{}, nil, false
}

// ---- parent / root -----------------------------------------------------

// dieParent resolves the parent in the current traversal context: when a
// cooked walk hits a partial-unit root, it pops one import link and resolves
// the parent of the importing DIE instead.
func dieParent(d *DIE) *DIE {
	node, imp := d.node, d.imp
	for {
		par := node.parent
		if par == nil {
			return nil
		}
		if d.done == Cooked && par.tag == dwarf.TagPartialUnit && imp != nil {
			node = imp.node
			imp = imp.imp
			continue
		}
		return &DIE{withpos{0}, d.ctx, par, d.done, imp}
	}
}

func dieRoot(d *DIE) *DIE {
	node := d.node
	if d.done == Cooked {
		for imp := d.imp; imp != nil; imp = imp.imp {
			node = imp.node
		}
	}
	return &DIE{withpos{0}, d.ctx, node.unit.root, d.done, nil}
}

// ---- projections -------------------------------------------------------

func dieLowpc(node *dieNode) (uint64, bool) {
	f, ok := attrField(node, dwarf.AttrLowpc)
	if !ok {
		return 0, false
	}
	v, ok := f.Val.(uint64)
	return v, ok
}

func dieHighpc(node *dieNode) (uint64, bool) {
	f, ok := attrField(node, dwarf.AttrHighpc)
	if !ok {
		return 0, false
	}
	switch v := f.Val.(type) {
	case uint64:
		return v, true
	case int64:
		low, ok := dieLowpc(node)
		if !ok {
			return 0, false
		}
		return low + uint64(v), true
	default:
		return 0, false
	}
}

func dieRangesCov(ctx *dwarfContext, node *dieNode) coverage {
	ranges, err := ctx.data.Ranges(node.entry)
	if err != nil {
		panic(fault("%s: reading ranges: %v", ctx.name, err))
	}
	var cov coverage
	for _, r := range ranges {
		if r[1] > r[0] {
			cov.add(r[0], r[1]-r[0])
		}
	}
	return cov
}

// classForm approximates the attribute's form from its debug/dwarf class;
// the backend does not expose the raw DW_FORM code.
func classForm(c dwarf.Class) uint64 {
	switch c {
	case dwarf.ClassAddress:
		return 0x01 // DW_FORM_addr
	case dwarf.ClassBlock:
		return 0x09 // DW_FORM_block
	case dwarf.ClassConstant, dwarf.ClassUnknown:
		return 0x0f // DW_FORM_udata
	case dwarf.ClassExprLoc:
		return 0x18 // DW_FORM_exprloc
	case dwarf.ClassFlag:
		return 0x19 // DW_FORM_flag_present
	case dwarf.ClassReference:
		return 0x13 // DW_FORM_ref4
	case dwarf.ClassReferenceSig:
		return 0x20 // DW_FORM_ref_sig8
	case dwarf.ClassString:
		return 0x08 // DW_FORM_string
	case dwarf.ClassStringAlt:
		return 0x1d // DW_FORM_strp_sup
	case dwarf.ClassReferenceAlt:
		return 0x1c // DW_FORM_ref_sup4
	default:
		return 0x17 // DW_FORM_sec_offset for the pointer classes
	}
}

// ---- registration ------------------------------------------------------

func registerDwarfBuiltins(v *Vocabulary, elem, relem, low, high *ovlTable) {
	// dwopen
	dwopen := newOvlTable("dwopen")
	dwopen.addOnce(func(args []Value) Value {
		path := args[0].(*Str).s
		ctx, err := openDwarf(path)
		if err != nil {
			panic(fault("dwopen: %v", err))
		}
		return &Dwarf{withpos{0}, ctx, Cooked}
	}, TStr)
	v.addOp("dwopen", wordOp(dwopen))

	// unit
	unit := newOvlTable("unit")
	unit.addMany(func(args []Value) producer {
		d := args[0].(*Dwarf)
		return &unitProducer{ctx: d.ctx, done: d.done, units: d.ctx.units()}
	}, TDwarf)
	unit.addOnce(func(args []Value) Value {
		d := args[0].(*DIE)
		return &CU{withpos{0}, d.ctx, d.node.unit, d.done}
	}, TDIE)
	unit.addOnce(func(args []Value) Value {
		a := args[0].(*Attr)
		return &CU{withpos{0}, a.ctx, a.node.unit, Cooked}
	}, TAttr)
	v.addOp("unit", wordOp(unit))

	// entry
	entry := newOvlTable("entry")
	entry.addMany(func(args []Value) producer {
		d := args[0].(*Dwarf)
		return &dwarfEntryProducer{
			units: &unitProducer{ctx: d.ctx, done: d.done, units: d.ctx.units()},
		}
	}, TDwarf)
	entry.addMany(func(args []Value) producer {
		c := args[0].(*CU)
		return newEntryProducer(c.ctx, c.unit.root, c.done)
	}, TCU)
	v.addOp("entry", wordOp(entry))

	// child
	child := newOvlTable("child")
	child.addMany(func(args []Value) producer {
		d := args[0].(*DIE)
		return newChildProducer(d.ctx, d.node, d.done)
	}, TDIE)
	v.addOp("child", wordOp(child))

	// attribute
	attribute := newOvlTable("attribute")
	attribute.addMany(func(args []Value) producer {
		d := args[0].(*DIE)
		return newAttrProducer(d.ctx, d.node, d.done)
	}, TDIE)
	v.addOp("attribute", wordOp(attribute))

	// parent
	parent := newOvlTable("parent")
	parent.addOnce(func(args []Value) Value {
		p := dieParent(args[0].(*DIE))
		if p == nil {
			return nil
		}
		return p
	}, TDIE)
	v.addOp("parent", wordOp(parent))

	// root
	root := newOvlTable("root")
	root.addOnce(func(args []Value) Value {
		c := args[0].(*CU)
		return &DIE{withpos{0}, c.ctx, c.unit.root, c.done, nil}
	}, TCU)
	root.addOnce(func(args []Value) Value {
		return dieRoot(args[0].(*DIE))
	}, TDIE)
	v.addOp("root", wordOp(root))

	// version
	version := newOvlTable("version")
	version.addOnce(func(args []Value) Value {
		return CstInt64(int64(args[0].(*CU).unit.version), DomDec, 0)
	}, TCU)
	v.addOp("version", wordOp(version))

	// offset
	offsetT := newOvlTable("offset")
	offsetT.addOnce(func(args []Value) Value {
		return CstUint64(args[0].(*CU).unit.hdrOff, DomOffset, 0)
	}, TCU)
	offsetT.addOnce(func(args []Value) Value {
		return CstUint64(uint64(args[0].(*DIE).node.off), DomOffset, 0)
	}, TDIE)

	// label
	label := newOvlTable("label")
	label.addOnce(func(args []Value) Value {
		return CstUint64(uint64(args[0].(*DIE).node.tag), DomTag, 0)
	}, TDIE)
	label.addOnce(func(args []Value) Value {
		return CstUint64(uint64(args[0].(*Attr).field.Attr), DomAttr, 0)
	}, TAttr)

	// form
	form := newOvlTable("form")
	form.addOnce(func(args []Value) Value {
		return CstUint64(classForm(args[0].(*Attr).field.Class), DomForm, 0)
	}, TAttr)
	v.addOp("form", wordOp(form))

	// name
	name := newOvlTable("name")
	name.addOnce(func(args []Value) Value {
		return NewStr(args[0].(*Dwarf).ctx.name, 0)
	}, TDwarf)
	name.addOnce(func(args []Value) Value {
		d := args[0].(*DIE)
		f, _, ok := findAttrIntegrated(d.ctx, d.node, dwarf.AttrName, d.done)
		if !ok {
			return nil
		}
		if s, ok := f.Val.(string); ok {
			return NewStr(s, 0)
		}
		return nil
	}, TDIE)

	// value
	valueT := newOvlTable("value")
	valueT.addMany(func(args []Value) producer {
		a := args[0].(*Attr)
		return &sliceProducer{vals: atValues(a.ctx, a.node, a.field, a.done)}
	}, TAttr)
	v.addOp("value", wordOp(valueT))

	// low / high
	low.addOnce(func(args []Value) Value {
		d := args[0].(*DIE)
		if pc, ok := dieLowpc(d.node); ok {
			return CstUint64(pc, DomAddress, 0)
		}
		return nil
	}, TDIE)
	high.addOnce(func(args []Value) Value {
		d := args[0].(*DIE)
		if pc, ok := dieHighpc(d.node); ok {
			return CstUint64(pc, DomAddress, 0)
		}
		return nil
	}, TDIE)

	// address
	address := newOvlTable("address")
	address.addOnce(func(args []Value) Value {
		d := args[0].(*DIE)
		return NewASet(dieRangesCov(d.ctx, d.node), 0)
	}, TDIE)
	address.addOnce(func(args []Value) Value {
		a := args[0].(*Attr)
		switch a.field.Attr {
		case dwarf.AttrHighpc:
			if pc, ok := dieHighpc(a.node); ok {
				return CstUint64(pc, DomAddress, 0)
			}
		case dwarf.AttrEntrypc:
			if v, ok := a.field.Val.(uint64); ok {
				return CstUint64(v, DomAddress, 0)
			}
		}
		if a.field.Class == dwarf.ClassAddress {
			return CstUint64(a.field.Val.(uint64), DomAddress, 0)
		}
		complain("Error: `address' applied to non-address attribute %s.", a.Show())
		return nil
	}, TAttr)

	registerLoclistBuiltins(elem, relem, label, offsetT, valueT, address)
	registerElfBuiltins(v, name, address, valueT)

	v.addOp("offset", wordOp(offsetT))
	v.addOp("label", wordOp(label))
	v.addOp("name", wordOp(name))
	v.addOp("address", wordOp(address))

	// raw / cooked
	registerDoneness(v, "raw", Raw)
	registerDoneness(v, "cooked", Cooked)

	// ?root / ?haschildren
	rootP := newPredTable("?root")
	rootP.add(func(args []Value) predResult {
		return predBool(args[0].(*DIE).node.parent == nil)
	}, TDIE)
	v.addPredPair("root", rootP)

	hasChildrenP := newPredTable("?haschildren")
	hasChildrenP.add(func(args []Value) predResult {
		return predBool(len(args[0].(*DIE).node.children) > 0)
	}, TDIE)
	v.addPredPair("haschildren", hasChildrenP)

	registerDwarfConstants(v)
}

// registerDoneness installs the raw/cooked words: each yields a new value
// sharing the underlying data with the requested doneness.
func registerDoneness(v *Vocabulary, word string, done Doneness) {
	t := newOvlTable(word)
	t.addOnce(func(args []Value) Value {
		d := args[0].(*Dwarf)
		return &Dwarf{withpos{0}, d.ctx, done}
	}, TDwarf)
	t.addOnce(func(args []Value) Value {
		c := args[0].(*CU)
		return &CU{withpos{0}, c.ctx, c.unit, done}
	}, TCU)
	t.addOnce(func(args []Value) Value {
		d := args[0].(*DIE)
		return &DIE{withpos{0}, d.ctx, d.node, done, d.imp}
	}, TDIE)
	t.addOnce(func(args []Value) Value {
		a := args[0].(*Attr)
		return &Attr{withpos{0}, a.ctx, a.field, a.node, done}
	}, TAttr)
	v.addOp(word, wordOp(t))
}

// registerDwarfConstants installs the DW_* named constants and the derived
// @AT_*/?AT_*/?TAG_*/?FORM_*/?OP_* word families.
func registerDwarfConstants(v *Vocabulary) {
	for val, name := range dwTagNames {
		val, name := val, name
		v.addConst(name, CstUint64(val, DomTag, 0))

		t := newPredTable("?" + name[3:])
		t.add(func(args []Value) predResult {
			return predBool(uint64(args[0].(*DIE).node.tag) == val)
		}, TDIE)
		want := CstUint64(val, DomTag, 0)
		t.add(func(args []Value) predResult {
			return predBool(args[0].(*Cst).Cmp(want) == CmpEqual)
		}, TConst)
		v.addPredPair(name[3:], t)
	}

	for val, name := range dwAttrNames {
		val, name := val, name
		v.addConst(name, CstUint64(val, DomAttr, 0))

		at := dwarf.Attr(val)
		t := newPredTable("?" + name[3:])
		t.add(func(args []Value) predResult {
			d := args[0].(*DIE)
			_, _, ok := findAttrIntegrated(d.ctx, d.node, at, d.done)
			return predBool(ok)
		}, TDIE)
		t.add(func(args []Value) predResult {
			return predBool(args[0].(*Attr).field.Attr == at)
		}, TAttr)
		want := CstUint64(val, DomAttr, 0)
		t.add(func(args []Value) predResult {
			return predBool(args[0].(*Cst).Cmp(want) == CmpEqual)
		}, TConst)
		v.addPredPair(name[3:], t)

		// @AT_*: find the attribute (with cooked integration) and yield
		// its value(s).
		atval := newOvlTable("@" + name[3:])
		atval.addMany(func(args []Value) producer {
			d := args[0].(*DIE)
			f, owner, ok := findAttrIntegrated(d.ctx, d.node, at, d.done)
			if !ok {
				return emptyProducer{}
			}
			return &sliceProducer{vals: atValues(d.ctx, owner, f, d.done)}
		}, TDIE)
		v.addOp("@"+name[3:], wordOp(atval))
	}

	for val, name := range dwFormNames {
		val, name := val, name
		v.addConst(name, CstUint64(val, DomForm, 0))

		t := newPredTable("?" + name[3:])
		t.add(func(args []Value) predResult {
			return predBool(classForm(args[0].(*Attr).field.Class) == val)
		}, TAttr)
		want := CstUint64(val, DomForm, 0)
		t.add(func(args []Value) predResult {
			return predBool(args[0].(*Cst).Cmp(want) == CmpEqual)
		}, TConst)
		v.addPredPair(name[3:], t)
	}

	for val, name := range dwOpNames {
		val, name := val, name
		v.addConst(name, CstUint64(val, DomOp, 0))

		t := newPredTable("?" + name[3:])
		t.add(func(args []Value) predResult {
			e := args[0].(*LocElem)
			for _, in := range e.insts {
				if uint64(in.opcode) == val {
					return predYes
				}
			}
			return predNo
		}, TLocElem)
		t.add(func(args []Value) predResult {
			return predBool(uint64(args[0].(*LocOp).inst.opcode) == val)
		}, TLocOp)
		want := CstUint64(val, DomOp, 0)
		t.add(func(args []Value) predResult {
			return predBool(args[0].(*Cst).Cmp(want) == CmpEqual)
		}, TConst)
		v.addPredPair(name[3:], t)
	}

	for val, name := range dwLangNames {
		v.addConst(name, CstUint64(val, DomLang, 0))
	}
	for val, name := range dwEncodingNames {
		v.addConst(name, CstUint64(val, DomEncoding, 0))
	}
	for val, name := range dwInlineNames {
		v.addConst(name, CstUint64(val, DomInline, 0))
	}
}
