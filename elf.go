// elf.go
//
// ELF values: the container file, its sections and its symbols, as far as
// debug/elf exposes them. Section and symbol tables are captured at open
// time so the file handle does not outlive the context setup.
package dwq

import (
	"debug/elf"
	"fmt"
)

type sectionInfo struct {
	name string
	addr uint64
	size uint64
}

type symInfo struct {
	name  string
	value uint64
	size  uint64
}

// loadElfTables captures section and symbol tables into the context.
func loadElfTables(ctx *dwarfContext, f *elf.File) {
	for _, s := range f.Sections {
		ctx.sections = append(ctx.sections, sectionInfo{
			name: s.Name,
			addr: s.Addr,
			size: s.Size,
		})
	}
	syms, err := f.Symbols()
	if err != nil {
		return
	}
	for _, s := range syms {
		ctx.symbols = append(ctx.symbols, symInfo{
			name:  s.Name,
			value: s.Value,
			size:  s.Size,
		})
	}
}

// ---- values ------------------------------------------------------------

type Elf struct {
	withpos
	ctx *dwarfContext
}

func (e *Elf) VType() VType { return TElf }
func (e *Elf) Clone() Value { cp := *e; return &cp }
func (e *Elf) Show() string { return fmt.Sprintf("<Elf %q>", e.ctx.name) }

func (e *Elf) Cmp(other Value) CmpResult {
	if e.ctx == other.(*Elf).ctx {
		return CmpEqual
	}
	return CmpFail
}

type Section struct {
	withpos
	ctx *dwarfContext
	idx int
}

func (s *Section) VType() VType { return TSection }
func (s *Section) Clone() Value { cp := *s; return &cp }
func (s *Section) Show() string { return s.ctx.sections[s.idx].name }

func (s *Section) Cmp(other Value) CmpResult {
	o := other.(*Section)
	if s.ctx != o.ctx {
		return CmpFail
	}
	return cmpOrd(s.idx, o.idx)
}

type Symbol struct {
	withpos
	ctx *dwarfContext
	idx int
}

func (s *Symbol) VType() VType { return TSymbol }
func (s *Symbol) Clone() Value { cp := *s; return &cp }
func (s *Symbol) Show() string { return s.ctx.symbols[s.idx].name }

func (s *Symbol) Cmp(other Value) CmpResult {
	o := other.(*Symbol)
	if s.ctx != o.ctx {
		return CmpFail
	}
	return cmpOrd(s.idx, o.idx)
}

// ---- operators ---------------------------------------------------------

type sectionProducer struct {
	ctx *dwarfContext
	i   int
}

func (p *sectionProducer) next() Value {
	if p.i >= len(p.ctx.sections) {
		return nil
	}
	v := &Section{withpos{p.i}, p.ctx, p.i}
	p.i++
	return v
}

type symbolProducer struct {
	ctx *dwarfContext
	i   int
}

func (p *symbolProducer) next() Value {
	if p.i >= len(p.ctx.symbols) {
		return nil
	}
	v := &Symbol{withpos{p.i}, p.ctx, p.i}
	p.i++
	return v
}

func registerElfBuiltins(v *Vocabulary, name, address, valueT *ovlTable) {
	elfT := newOvlTable("elf")
	elfT.addOnce(func(args []Value) Value {
		return &Elf{withpos{0}, args[0].(*Dwarf).ctx}
	}, TDwarf)
	v.addOp("elf", wordOp(elfT))

	section := newOvlTable("section")
	section.addMany(func(args []Value) producer {
		return &sectionProducer{ctx: args[0].(*Elf).ctx}
	}, TElf)
	v.addOp("section", wordOp(section))

	symbol := newOvlTable("symbol")
	symbol.addMany(func(args []Value) producer {
		return &symbolProducer{ctx: args[0].(*Elf).ctx}
	}, TElf)
	v.addOp("symbol", wordOp(symbol))

	name.addOnce(func(args []Value) Value {
		return NewStr(args[0].(*Elf).ctx.name, 0)
	}, TElf)
	name.addOnce(func(args []Value) Value {
		s := args[0].(*Section)
		return NewStr(s.ctx.sections[s.idx].name, 0)
	}, TSection)
	name.addOnce(func(args []Value) Value {
		s := args[0].(*Symbol)
		return NewStr(s.ctx.symbols[s.idx].name, 0)
	}, TSymbol)

	address.addOnce(func(args []Value) Value {
		s := args[0].(*Section)
		info := s.ctx.sections[s.idx]
		var cov coverage
		cov.add(info.addr, info.size)
		return NewASet(cov, 0)
	}, TSection)
	address.addOnce(func(args []Value) Value {
		s := args[0].(*Symbol)
		info := s.ctx.symbols[s.idx]
		var cov coverage
		cov.add(info.value, info.size)
		return NewASet(cov, 0)
	}, TSymbol)

	valueT.addOnce(func(args []Value) Value {
		s := args[0].(*Symbol)
		return CstUint64(s.ctx.symbols[s.idx].value, DomAddress, 0)
	}, TSymbol)
}
