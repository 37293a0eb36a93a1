// atval.go
//
// Attribute value extraction: mapping an attribute's form class onto engine
// values. References become DIEs, exprloc and loclist-pointer classes become
// location elements, range pointers become address sets, everything scalar
// becomes a constant in an appropriate domain.
package dwq

import "debug/dwarf"

type sliceProducer struct {
	vals []Value
	idx  int
}

func (p *sliceProducer) next() Value {
	if p.idx >= len(p.vals) {
		return nil
	}
	v := p.vals[p.idx]
	p.idx++
	return v
}

// atValues materializes the value(s) of an attribute. The result may be
// empty (unrepresentable classes) or hold several values (location lists).
func atValues(ctx *dwarfContext, node *dieNode, f dwarf.Field, done Doneness) []Value {
	switch f.Class {
	case dwarf.ClassAddress:
		return []Value{CstUint64(f.Val.(uint64), DomAddress, 0)}

	case dwarf.ClassConstant:
		return []Value{CstInt64(f.Val.(int64), attrValueDomain(uint64(f.Attr)), 0)}

	case dwarf.ClassFlag:
		return []Value{CstBool(f.Val.(bool), 0)}

	case dwarf.ClassString:
		return []Value{NewStr(f.Val.(string), 0)}

	case dwarf.ClassReference:
		target := ctx.dieAt(f.Val.(dwarf.Offset))
		return []Value{&DIE{withpos{0}, ctx, target, done, nil}}

	case dwarf.ClassReferenceSig:
		return []Value{CstUint64(f.Val.(uint64), DomHex, 0)}

	case dwarf.ClassExprLoc, dwarf.ClassLocListPtr:
		return locElemsForField(ctx, node, f)

	case dwarf.ClassRangeListPtr:
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
		return []Value{NewASet(cov, 0)}

	case dwarf.ClassBlock:
		b := f.Val.([]byte)
		elems := make([]Value, len(b))
		for i, by := range b {
			elems[i] = CstUint64(uint64(by), DomDec, i)
		}
		return []Value{NewSeq(elems, 0)}

	case dwarf.ClassLinePtr, dwarf.ClassMacPtr:
		return []Value{CstInt64(f.Val.(int64), DomOffset, 0)}

	default:
		complain("Error: unhandled attribute value class %s at %s.",
			f.Class, attrShow(f.Attr))
		return nil
	}
}
