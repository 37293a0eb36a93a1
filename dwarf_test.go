package dwq

import (
	"debug/dwarf"
	"encoding/binary"
	"testing"
)

// secw assembles little-endian DWARF section images.
type secw struct {
	b []byte
}

func (w *secw) u8(v byte)  { w.b = append(w.b, v) }
func (w *secw) u16(v uint16) {
	var t [2]byte
	binary.LittleEndian.PutUint16(t[:], v)
	w.b = append(w.b, t[:]...)
}
func (w *secw) u32(v uint32) {
	var t [4]byte
	binary.LittleEndian.PutUint32(t[:], v)
	w.b = append(w.b, t[:]...)
}
func (w *secw) str(s string) { w.b = append(append(w.b, s...), 0) }
func (w *secw) off() int     { return len(w.b) }

// beginUnit writes a DWARF32 v4 unit header and returns a patch closure.
func (w *secw) beginUnit() func() {
	start := w.off()
	w.u32(0) // length, patched
	w.u16(4) // version
	w.u32(0) // abbrev offset
	w.u8(8)  // address size
	return func() {
		binary.LittleEndian.PutUint32(w.b[start:start+4], uint32(w.off()-start-4))
	}
}

const (
	abCompileUnit  = 1 // compile_unit, children, name
	abBaseType     = 2 // base_type, name
	abImportedUnit = 3 // imported_unit, import (ref_addr)
	abPartialUnit  = 4 // partial_unit, children, name
	abVariable     = 5 // variable, name
	abVariableLoc  = 6 // variable, name + location (exprloc)
	abSubpDecl     = 7 // subprogram, name + declaration (flag_present)
	abSubpSpec     = 8 // subprogram, specification (ref_addr)
)

func testAbbrev() []byte {
	w := &secw{}
	entry := func(code, tag byte, children bool, attrs ...byte) {
		w.u8(code)
		w.u8(tag)
		if children {
			w.u8(1)
		} else {
			w.u8(0)
		}
		w.b = append(w.b, attrs...)
		w.u8(0)
		w.u8(0)
	}
	entry(abCompileUnit, 0x11, true, 0x03, 0x08)
	entry(abBaseType, 0x24, false, 0x03, 0x08)
	entry(abImportedUnit, 0x3d, false, 0x18, 0x10)
	entry(abPartialUnit, 0x3c, true, 0x03, 0x08)
	entry(abVariable, 0x34, false, 0x03, 0x08)
	entry(abVariableLoc, 0x34, false, 0x03, 0x08, 0x02, 0x18)
	entry(abSubpDecl, 0x2e, false, 0x03, 0x08, 0x3c, 0x19)
	entry(abSubpSpec, 0x2e, false, 0x47, 0x10)
	w.u8(0)
	return w.b
}

// partialImage builds a CU whose children are a base type, an imported unit
// pulling in a partial unit with one variable, and a located variable:
//
//	compile_unit "a.c"
//	  base_type "int"
//	  imported_unit -> partial_unit "p1" { variable "pv" }
//	  variable "v" (location: DW_OP_reg5)
func partialImage(t *testing.T) *dwarfContext {
	t.Helper()
	w := &secw{}

	end1 := w.beginUnit()
	w.u8(abCompileUnit)
	w.str("a.c")
	w.u8(abBaseType)
	w.str("int")
	w.u8(abImportedUnit)
	importPatch := w.off()
	w.u32(0) // ref_addr to the partial root, patched below
	w.u8(abVariableLoc)
	w.str("v")
	w.u8(1)    // exprloc length
	w.u8(0x55) // DW_OP_reg5
	w.u8(0)    // end of children
	end1()

	end2 := w.beginUnit()
	partialRoot := w.off()
	w.u8(abPartialUnit)
	w.str("p1")
	w.u8(abVariable)
	w.str("pv")
	w.u8(0)
	end2()

	binary.LittleEndian.PutUint32(w.b[importPatch:importPatch+4], uint32(partialRoot))

	return buildContext(t, w.b)
}

// specImage builds a CU exercising attribute integration:
//
//	compile_unit "b.c"
//	  subprogram "foo" (declaration)
//	  subprogram (specification -> foo)
func specImage(t *testing.T) *dwarfContext {
	t.Helper()
	w := &secw{}

	end := w.beginUnit()
	w.u8(abCompileUnit)
	w.str("b.c")
	declOff := w.off()
	w.u8(abSubpDecl)
	w.str("foo")
	w.u8(abSubpSpec)
	w.u32(uint32(declOff))
	w.u8(0)
	end()

	return buildContext(t, w.b)
}

func buildContext(t *testing.T, info []byte) *dwarfContext {
	t.Helper()
	data, err := dwarf.New(testAbbrev(), nil, nil, info, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("dwarf.New: %v", err)
	}
	return newDwarfContext("test", data, info, nil)
}

func dwarfStack(ctx *dwarfContext) *Stack {
	stk := NewStack()
	stk.Push(&Dwarf{ctx: ctx, done: Cooked})
	return stk
}

func wantTopsOn(t *testing.T, ctx *dwarfContext, src string, want ...string) {
	t.Helper()
	got := tops(runQOn(t, src, dwarfStack(ctx)))
	if len(got) != len(want) {
		t.Fatalf("%q: got %v, want %v", src, got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("%q: result %d = %q, want %q", src, i, got[i], want[i])
		}
	}
}

// ---- traversal ---------------------------------------------------------

func Test_Dwarf_Units(t *testing.T) {
	ctx := partialImage(t)

	// Cooked units skip partial units; raw yields everything.
	wantTopsOn(t, ctx, `[unit offset]`, "[0]")
	wantTopsOn(t, ctx, `[raw unit offset]`, "[0, 0x20]")
	wantTopsOn(t, ctx, `[unit version]`, "[4]")
	wantTopsOn(t, ctx, `[raw unit root label]`,
		"[DW_TAG_compile_unit, DW_TAG_partial_unit]")
}

func Test_Dwarf_Entry_ImportIntegration(t *testing.T) {
	ctx := partialImage(t)

	// Cooked traversal yields the imported_unit DIE, then descends into
	// the partial unit (skipping its root), then resumes.
	wantTopsOn(t, ctx, `[entry name]`, "[a.c, int, pv, v]")
	wantTopsOn(t, ctx, `[raw entry name]`, "[a.c, int, v, p1, pv]")

	wantTopsOn(t, ctx, `[entry label]`,
		"[DW_TAG_compile_unit, DW_TAG_base_type, DW_TAG_imported_unit, "+
			"DW_TAG_variable, DW_TAG_variable]")

	// entry == unit entry; both sides run over fresh copies of the input.
	wantTopsOn(t, ctx, `([entry offset] == [unit entry offset]) drop "same"`, "same")
}

func Test_Dwarf_Child(t *testing.T) {
	ctx := partialImage(t)

	// Cooked child of the CU root resolves the import recursively.
	wantTopsOn(t, ctx, `[unit root child name]`, "[int, pv, v]")
	wantTopsOn(t, ctx, `[raw unit (offset == 0) root child name]`, "[int, v]")
}

func Test_Dwarf_Parent_AcrossImport(t *testing.T) {
	ctx := partialImage(t)

	// The parent of the imported variable is resolved in the traversal
	// context: back through the import point to the compile unit.
	wantTopsOn(t, ctx, `entry (name == "pv") parent name`, "a.c")
	// Raw traversal keeps the physical parent.
	wantTopsOn(t, ctx, `raw entry (name == "pv") parent name`, "p1")

	wantTopsOn(t, ctx, `entry (name == "pv") root name`, "a.c")
	wantTopsOn(t, ctx, `raw entry (name == "pv") root name`, "p1")

	wantTopsOn(t, ctx, `[entry ?root name]`, "[a.c]")
	wantTopsOn(t, ctx, `[entry ?haschildren name]`, "[a.c]")
}

func Test_Dwarf_ImportChain_Identity(t *testing.T) {
	ctx := partialImage(t)

	// The partial unit is imported once, so a cooked entry walk reaches
	// the DIE named pv exactly once.
	results := runQOn(t, `entry (name == "pv")`, dwarfStack(ctx))
	if len(results) != 1 {
		t.Fatalf("expected one pv entry, got %d", len(results))
	}

	// Equality holds for the same DIE reached the same way: context,
	// offset and import chain all coincide.
	wantTopsOn(t, ctx,
		`let A := [entry (name == "pv")] elem;
		 let B := [entry (name == "pv")] elem;
		 A B ?eq drop drop "eq"`,
		"eq")
}

func Test_Dwarf_RawCooked_Idempotence(t *testing.T) {
	ctx := partialImage(t)

	wantTopsOn(t, ctx, `[raw raw unit offset]`, "[0, 0x20]")
	wantTopsOn(t, ctx, `[cooked raw unit offset]`, "[0, 0x20]")
	wantTopsOn(t, ctx, `[raw cooked unit offset]`, "[0]")
	wantTopsOn(t, ctx, `[cooked cooked unit offset]`, "[0]")

	// raw/cooked produce new values; the old one is untouched.
	wantTopsOn(t, ctx,
		`(|D| D raw drop [D entry name] length)`, "4")
}

func Test_Dwarf_Name(t *testing.T) {
	ctx := partialImage(t)
	wantTopsOn(t, ctx, `name`, "test")
	wantTopsOn(t, ctx, `unit root @AT_name`, "a.c")
}

func Test_Dwarf_Location(t *testing.T) {
	ctx := partialImage(t)

	wantTopsOn(t, ctx, `entry (name == "v") @AT_location elem label`, "DW_OP_reg5")
	wantTopsOn(t, ctx, `entry (name == "v") @AT_location elem offset`, "0")
	wantTopsOn(t, ctx, `entry (name == "v") @AT_location ?OP_reg5 drop "has"`, "has")
	wantTopsOn(t, ctx, `entry (name == "v") attribute ?AT_location form`,
		"DW_FORM_exprloc")
}

// ---- attribute integration ---------------------------------------------

func Test_Dwarf_Attribute_Integration(t *testing.T) {
	ctx := specImage(t)

	// Cooked attributes integrate the specification target's attributes,
	// except non-integratable ones (declaration); the specification
	// attribute itself is always yielded.
	wantTopsOn(t, ctx, `[entry ?AT_specification attribute label]`,
		"[DW_AT_specification, DW_AT_name]")
	wantTopsOn(t, ctx, `[raw entry ?AT_specification attribute label]`,
		"[DW_AT_specification]")

	wantTopsOn(t, ctx, `entry ?AT_specification @AT_name`, "foo")
	wantTopsOn(t, ctx, `entry ?AT_specification name`, "foo")

	// The declaration DIE itself keeps its flag.
	wantTopsOn(t, ctx, `[entry ?AT_declaration @AT_name]`, "[foo]")
}

func Test_Dwarf_TagPreds(t *testing.T) {
	ctx := partialImage(t)
	wantTopsOn(t, ctx, `[entry ?TAG_variable name]`, "[pv, v]")
	wantTopsOn(t, ctx, `[entry (label == DW_TAG_base_type) name]`, "[int]")
}
