// loclist.go
//
// Location expressions and DWARF 2–4 location lists. An element is one
// address range with an embedded expression; expressions are decoded into
// instructions eagerly, so malformed expression bytes surface as a fatal
// fault the moment the value is created.
//
// The opcode type and a handful of opcode constants come from delve's
// DWARF-expression package; most opcodes are matched by numeric value, and
// display names come from the local dwOpNames table. Operand layout is
// classified locally because delve does not export its operand table.
package dwq

import (
	"bytes"
	"debug/dwarf"
	"fmt"
	"strings"

	dwop "github.com/go-delve/delve/pkg/dwarf/op"
	"github.com/go-delve/delve/pkg/dwarf/util"
)

type operand struct {
	uval   uint64
	sval   int64
	signed bool
	block  []byte
	dieRef bool // uval is a unit-relative DIE offset
}

type locInst struct {
	offset   int
	opcode   dwop.Opcode
	operands []operand
}

func opcodeShow(o dwop.Opcode) string {
	if name, ok := dwOpNames[uint64(o)]; ok {
		return strings.TrimPrefix(name, "DW_OP_")
	}
	return fmt.Sprintf("unknown_op_%#x", uint64(o))
}

func (in locInst) show() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d:%s", in.offset, opcodeShow(in.opcode))
	for i, o := range in.operands {
		if i > 0 {
			b.WriteByte('/')
		} else {
			b.WriteByte('<')
		}
		switch {
		case o.block != nil:
			fmt.Fprintf(&b, "%x", o.block)
		case o.signed:
			fmt.Fprintf(&b, "%d", o.sval)
		default:
			b.WriteString(hexShow(o.uval))
		}
	}
	if len(in.operands) > 0 {
		b.WriteByte('>')
	}
	return b.String()
}

// decodeExpr walks a DWARF expression into its instructions.
func decodeExpr(expr []byte, addrSize int, ctx *dwarfContext) []locInst {
	buf := bytes.NewBuffer(expr)
	var out []locInst

	readN := func(n int) uint64 {
		b := buf.Next(n)
		if len(b) < n {
			panic(fault("%s: truncated DWARF expression", ctx.name))
		}
		var v uint64
		for i := n - 1; i >= 0; i-- {
			v = v<<8 | uint64(b[i])
		}
		return v
	}
	uleb := func() uint64 {
		v, _ := util.DecodeULEB128(buf)
		return v
	}
	sleb := func() int64 {
		v, _ := util.DecodeSLEB128(buf)
		return v
	}
	signExtend := func(v uint64, bits uint) int64 {
		shift := 64 - bits
		return int64(v<<shift) >> shift
	}

	for buf.Len() > 0 {
		offset := len(expr) - buf.Len()
		opcode := dwop.Opcode(buf.Next(1)[0])
		in := locInst{offset: offset, opcode: opcode}

		u := func(v uint64) { in.operands = append(in.operands, operand{uval: v}) }
		s := func(v int64) { in.operands = append(in.operands, operand{sval: v, signed: true}) }
		ref := func(v uint64) { in.operands = append(in.operands, operand{uval: v, dieRef: true}) }
		blk := func() {
			n := uleb()
			b := buf.Next(int(n))
			if uint64(len(b)) < n {
				panic(fault("%s: truncated DWARF expression block", ctx.name))
			}
			in.operands = append(in.operands, operand{block: append([]byte{}, b...)})
		}

		switch {
		case opcode >= 0x30 && opcode <= 0x4f: // lit0..lit31
		case opcode >= 0x50 && opcode <= 0x6f: // reg0..reg31
		case opcode >= 0x70 && opcode <= 0x8f: // breg0..breg31
			s(sleb())

		case opcode == dwop.DW_OP_addr:
			u(readN(addrSize))
		case opcode == 0x08: // const1u
			u(readN(1))
		case opcode == 0x09: // const1s
			s(signExtend(readN(1), 8))
		case opcode == 0x0a: // const2u
			u(readN(2))
		case opcode == 0x0b: // const2s
			s(signExtend(readN(2), 16))
		case opcode == 0x0c: // const4u
			u(readN(4))
		case opcode == 0x0d: // const4s
			s(signExtend(readN(4), 32))
		case opcode == 0x0e: // const8u
			u(readN(8))
		case opcode == 0x0f: // const8s
			s(int64(readN(8)))
		case opcode == 0x10: // constu
			u(uleb())
		case opcode == 0x11: // consts
			s(sleb())

		case opcode == 0x15: // pick
			u(readN(1))
		case opcode == 0x23: // plus_uconst
			u(uleb())
		case opcode == 0x28, opcode == 0x2f: // bra, skip
			s(signExtend(readN(2), 16))
		case opcode == 0x94, opcode == 0x95: // deref_size, xderef_size
			u(readN(1))

		case opcode == dwop.DW_OP_fbreg:
			s(sleb())
		case opcode == dwop.DW_OP_regx:
			u(uleb())
		case opcode == dwop.DW_OP_bregx:
			u(uleb())
			s(sleb())
		case opcode == dwop.DW_OP_piece:
			u(uleb())
		case opcode == 0x9d: // bit_piece
			u(uleb())
			u(uleb())
		case opcode == 0x98: // call2
			u(readN(2))
		case opcode == 0x99: // call4
			u(readN(4))
		case opcode == 0x9a: // call_ref
			u(readN(4))
		case opcode == 0x9e: // implicit_value
			blk()
		case opcode == 0xa0, opcode == 0xf2: // implicit_pointer, GNU flavor
			u(readN(4))
			s(sleb())
		case opcode == 0xa1, opcode == 0xa2: // addrx, constx
			u(uleb())
		case opcode == 0xa3, opcode == 0xf3: // entry_value, GNU flavor
			blk()
		case opcode == 0xa4, opcode == 0xf4: // const_type, GNU flavor
			ref(uleb())
			n := readN(1)
			b := buf.Next(int(n))
			if uint64(len(b)) < n {
				panic(fault("%s: truncated DWARF expression block", ctx.name))
			}
			in.operands = append(in.operands, operand{block: append([]byte{}, b...)})
		case opcode == 0xa5, opcode == 0xf5: // regval_type, GNU flavor
			u(uleb())
			ref(uleb())
		case opcode == 0xa6, opcode == 0xf6: // deref_type, GNU flavor
			u(readN(1))
			ref(uleb())
		case opcode == 0xa7: // xderef_type
			u(readN(1))
			ref(uleb())
		case opcode == 0xa8, opcode == 0xf7: // convert, GNU flavor
			ref(uleb())
		case opcode == 0xa9: // reinterpret
			ref(uleb())
		case opcode == 0xf9: // GNU_parameter_ref
			ref(uint64(readN(4)))

		default:
			// Remaining opcodes take no operands.
		}

		out = append(out, in)
	}
	return out
}

// ---- values ------------------------------------------------------------

type LocElem struct {
	withpos
	ctx       *dwarfContext
	node      *dieNode // owning DIE, for unit-relative operand resolution
	low, high uint64
	insts     []locInst
}

func newLocElem(ctx *dwarfContext, node *dieNode, low, high uint64, expr []byte, pos int) *LocElem {
	return &LocElem{
		withpos: withpos{pos},
		ctx:     ctx,
		node:    node,
		low:     low,
		high:    high,
		insts:   decodeExpr(expr, ctx.addrSize, ctx),
	}
}

func (e *LocElem) VType() VType { return TLocElem }
func (e *LocElem) Clone() Value { cp := *e; return &cp }

func (e *LocElem) Show() string {
	parts := make([]string, len(e.insts))
	for i, in := range e.insts {
		parts[i] = in.show()
	}
	return fmt.Sprintf("%s..%s:[%s]",
		hexShow(e.low), hexShow(e.high), strings.Join(parts, ", "))
}

func (e *LocElem) Cmp(other Value) CmpResult {
	o := other.(*LocElem)
	if e.ctx != o.ctx {
		return CmpFail
	}
	if r := cmpOrd(uint64(e.node.off), uint64(o.node.off)); r != CmpEqual {
		return r
	}
	if r := cmpOrd(e.low, o.low); r != CmpEqual {
		return r
	}
	return cmpOrd(e.high, o.high)
}

type LocOp struct {
	withpos
	ctx  *dwarfContext
	node *dieNode
	inst locInst
}

func (l *LocOp) VType() VType { return TLocOp }
func (l *LocOp) Clone() Value { cp := *l; return &cp }
func (l *LocOp) Show() string { return l.inst.show() }

func (l *LocOp) Cmp(other Value) CmpResult {
	o := other.(*LocOp)
	if l.ctx != o.ctx {
		return CmpFail
	}
	if r := cmpOrd(uint64(l.node.off), uint64(o.node.off)); r != CmpEqual {
		return r
	}
	return cmpOrd(l.inst.offset, o.inst.offset)
}

// ---- producers ---------------------------------------------------------

type locOpProducer struct {
	elem    *LocElem
	idx     int
	forward bool
}

func (p *locOpProducer) next() Value {
	if p.idx >= len(p.elem.insts) {
		return nil
	}
	i := p.idx
	if !p.forward {
		i = len(p.elem.insts) - 1 - p.idx
	}
	v := &LocOp{withpos{p.idx}, p.elem.ctx, p.elem.node, p.elem.insts[i]}
	p.idx++
	return v
}

// locOpValueProducer yields a location operation's operands; type-reference
// operands resolve to DIEs in the owning unit.
type locOpValueProducer struct {
	lop *LocOp
	idx int
}

func (p *locOpValueProducer) next() Value {
	for p.idx < len(p.lop.inst.operands) {
		o := p.lop.inst.operands[p.idx]
		pos := p.idx
		p.idx++
		switch {
		case o.dieRef:
			abs := dwarf.Offset(p.lop.node.unit.hdrOff + o.uval)
			return &DIE{withpos{pos}, p.lop.ctx, p.lop.ctx.dieAt(abs), Cooked, nil}
		case o.block != nil:
			elems := make([]Value, len(o.block))
			for i, b := range o.block {
				elems[i] = CstUint64(uint64(b), DomDec, i)
			}
			return NewSeq(elems, pos)
		case o.signed:
			return CstInt64(o.sval, DomDec, pos)
		case p.lop.inst.opcode == dwop.DW_OP_addr:
			return CstUint64(o.uval, DomAddress, pos)
		default:
			return CstUint64(o.uval, DomDec, pos)
		}
	}
	return nil
}

// ---- .debug_loc --------------------------------------------------------

// locElemsForField materializes location elements for an attribute value:
// a single whole-range element for exprloc blocks, or every entry of the
// referenced .debug_loc list.
func locElemsForField(ctx *dwarfContext, node *dieNode, f dwarf.Field) []Value {
	switch f.Class {
	case dwarf.ClassExprLoc:
		expr := f.Val.([]byte)
		return []Value{newLocElem(ctx, node, 0, ^uint64(0), expr, 0)}

	case dwarf.ClassLocListPtr:
		return parseLoclist(ctx, node, uint64(f.Val.(int64)))

	default:
		return nil
	}
}

func parseLoclist(ctx *dwarfContext, node *dieNode, secOff uint64) []Value {
	if ctx.loc == nil {
		complain("Error: %s has no .debug_loc data.", ctx.name)
		return nil
	}

	base := unitBaseAddress(node.unit)
	data := ctx.loc
	pos := secOff
	asz := uint64(ctx.addrSize)
	var out []Value

	read := func(n uint64) uint64 {
		if pos+n > uint64(len(data)) {
			panic(fault("%s: truncated .debug_loc list", ctx.name))
		}
		var v uint64
		b := data[pos : pos+n]
		for i := int(n) - 1; i >= 0; i-- {
			v = v<<8 | uint64(b[i])
		}
		pos += n
		return v
	}

	for {
		low := read(asz)
		high := read(asz)
		if low == 0 && high == 0 {
			break
		}
		if low == maxAddr(ctx.addrSize) {
			base = high
			continue
		}
		exprLen := read(2)
		if pos+exprLen > uint64(len(data)) {
			panic(fault("%s: truncated .debug_loc expression", ctx.name))
		}
		expr := data[pos : pos+exprLen]
		pos += exprLen
		out = append(out, newLocElem(ctx, node, base+low, base+high, expr, len(out)))
	}
	return out
}

func maxAddr(addrSize int) uint64 {
	if addrSize == 4 {
		return 0xffffffff
	}
	return ^uint64(0)
}

func unitBaseAddress(u *unitInfo) uint64 {
	if f, ok := attrField(u.root, dwarf.AttrLowpc); ok {
		if v, ok := f.Val.(uint64); ok {
			return v
		}
	}
	return 0
}

// registerLoclistBuiltins wires the location-expression word overloads into
// the shared tables.
func registerLoclistBuiltins(elem, relem, label, offsetT, valueT, address *ovlTable) {
	elem.addMany(func(args []Value) producer {
		return &locOpProducer{elem: args[0].(*LocElem), forward: true}
	}, TLocElem)
	relem.addMany(func(args []Value) producer {
		return &locOpProducer{elem: args[0].(*LocElem), forward: false}
	}, TLocElem)

	label.addOnce(func(args []Value) Value {
		return CstUint64(uint64(args[0].(*LocOp).inst.opcode), DomOp, 0)
	}, TLocOp)

	offsetT.addOnce(func(args []Value) Value {
		return CstUint64(uint64(args[0].(*LocOp).inst.offset), DomOffset, 0)
	}, TLocOp)

	valueT.addMany(func(args []Value) producer {
		return &locOpValueProducer{lop: args[0].(*LocOp)}
	}, TLocOp)

	address.addOnce(func(args []Value) Value {
		e := args[0].(*LocElem)
		var cov coverage
		if e.high > e.low {
			cov.add(e.low, e.high-e.low)
		}
		return NewASet(cov, 0)
	}, TLocElem)
}
