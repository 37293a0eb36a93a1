// dwarf.go
//
// The DWARF context: one open object file, its debug/dwarf data, and a
// lazily-built index of every DIE. The index doubles as the parent cache —
// child→parent links are populated on first use and are total over all DIEs
// of the file. Raw section bytes are kept where available: .debug_info for
// unit header offsets and versions (debug/dwarf exposes neither), .debug_loc
// for location lists.
//
// Context identity is pointer identity; value equality across files
// discriminates by context, never by offset alone.
package dwq

import (
	"debug/dwarf"
	"debug/elf"
	"encoding/binary"
	"fmt"
)

type dwarfContext struct {
	name string
	data *dwarf.Data

	order    binary.ByteOrder
	addrSize int

	info []byte // raw .debug_info, nil when unavailable
	loc  []byte // raw .debug_loc, nil when unavailable

	sections []sectionInfo
	symbols  []symInfo

	index *dieIndex
}

type dieNode struct {
	off      dwarf.Offset
	tag      dwarf.Tag
	entry    *dwarf.Entry
	parent   *dieNode
	children []*dieNode
	unit     *unitInfo
}

type unitInfo struct {
	root    *dieNode
	hdrOff  uint64
	version int
}

type dieIndex struct {
	byOff map[dwarf.Offset]*dieNode
	units []*unitInfo
}

// openDwarf opens an ELF object and wraps its DWARF data.
func openDwarf(path string) (*dwarfContext, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := f.DWARF()
	if err != nil {
		return nil, fmt.Errorf("%s: %v", path, err)
	}

	ctx := &dwarfContext{
		name:     path,
		data:     data,
		order:    f.ByteOrder,
		addrSize: 8,
	}
	if f.Class == elf.ELFCLASS32 {
		ctx.addrSize = 4
	}
	if s := f.Section(".debug_info"); s != nil {
		if b, err := s.Data(); err == nil {
			ctx.info = b
		}
	}
	if s := f.Section(".debug_loc"); s != nil {
		if b, err := s.Data(); err == nil {
			ctx.loc = b
		}
	}
	loadElfTables(ctx, f)
	return ctx, nil
}

// newDwarfContext wraps pre-built dwarf data; tests use this with synthetic
// section images.
func newDwarfContext(name string, data *dwarf.Data, info, loc []byte) *dwarfContext {
	return &dwarfContext{
		name:     name,
		data:     data,
		order:    binary.LittleEndian,
		addrSize: 8,
		info:     info,
		loc:      loc,
	}
}

// ensureIndex builds the DIE tree on first use.
func (ctx *dwarfContext) ensureIndex() *dieIndex {
	if ctx.index != nil {
		return ctx.index
	}

	idx := &dieIndex{byOff: map[dwarf.Offset]*dieNode{}}
	r := ctx.data.Reader()
	var stack []*dieNode

	for {
		e, err := r.Next()
		if err != nil {
			panic(fault("%s: reading debug info: %v", ctx.name, err))
		}
		if e == nil {
			break
		}
		if e.Tag == 0 {
			// Terminator: end of the current sibling list.
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			continue
		}

		node := &dieNode{off: e.Offset, tag: e.Tag, entry: e}
		if len(stack) == 0 {
			unit := &unitInfo{root: node}
			idx.units = append(idx.units, unit)
			node.unit = unit
		} else {
			parent := stack[len(stack)-1]
			node.parent = parent
			node.unit = parent.unit
			parent.children = append(parent.children, node)
		}
		idx.byOff[e.Offset] = node

		if e.Children {
			stack = append(stack, node)
		}
	}

	ctx.scanUnitHeaders(idx)
	ctx.index = idx
	return idx
}

// scanUnitHeaders walks the raw .debug_info image for unit boundaries and
// versions, then matches units to the indexed roots by offset containment.
// Without raw bytes the root offset stands in for the header offset.
func (ctx *dwarfContext) scanUnitHeaders(idx *dieIndex) {
	type hdr struct {
		off     uint64
		end     uint64
		version int
	}
	var hdrs []hdr

	if ctx.info != nil {
		for pos := uint64(0); pos+6 <= uint64(len(ctx.info)); {
			length := uint64(ctx.order.Uint32(ctx.info[pos : pos+4]))
			hsize := uint64(4)
			if length == 0xffffffff {
				if pos+12 > uint64(len(ctx.info)) {
					break
				}
				length = ctx.order.Uint64(ctx.info[pos+4 : pos+12])
				hsize = 12
			}
			if length == 0 || pos+hsize+length > uint64(len(ctx.info)) {
				break
			}
			version := int(ctx.order.Uint16(ctx.info[pos+hsize : pos+hsize+2]))
			hdrs = append(hdrs, hdr{off: pos, end: pos + hsize + length, version: version})
			pos += hsize + length
		}
	}

	for _, u := range idx.units {
		u.hdrOff = uint64(u.root.off)
		u.version = 4
		for _, h := range hdrs {
			if uint64(u.root.off) >= h.off && uint64(u.root.off) < h.end {
				u.hdrOff = h.off
				u.version = h.version
				break
			}
		}
	}
}

func (ctx *dwarfContext) dieAt(off dwarf.Offset) *dieNode {
	n := ctx.ensureIndex().byOff[off]
	if n == nil {
		panic(fault("%s: no DIE at offset %#x", ctx.name, uint64(off)))
	}
	return n
}

func (ctx *dwarfContext) units() []*unitInfo {
	return ctx.ensureIndex().units
}

// attrField finds an attribute directly on the DIE, in file order.
func attrField(n *dieNode, at dwarf.Attr) (dwarf.Field, bool) {
	for _, f := range n.entry.Field {
		if f.Attr == at {
			return f, true
		}
	}
	return dwarf.Field{}, false
}

// importTarget resolves a DW_TAG_imported_unit's DW_AT_import reference.
func importTarget(ctx *dwarfContext, n *dieNode) *dieNode {
	if n.tag != dwarf.TagImportedUnit {
		return nil
	}
	f, ok := attrField(n, dwarf.AttrImport)
	if !ok {
		return nil
	}
	off, ok := f.Val.(dwarf.Offset)
	if !ok {
		return nil
	}
	return ctx.dieAt(off)
}

func hexShow(v uint64) string {
	if v == 0 {
		return "0"
	}
	return fmt.Sprintf("0x%x", v)
}
