package dwq

import "testing"

func covOf(pairs ...uint64) coverage {
	var c coverage
	for i := 0; i+1 < len(pairs); i += 2 {
		c.add(pairs[i], pairs[i+1])
	}
	return c
}

func covEq(a, b coverage) bool {
	if len(a.ranges) != len(b.ranges) {
		return false
	}
	for i := range a.ranges {
		if a.ranges[i] != b.ranges[i] {
			return false
		}
	}
	return true
}

func Test_Coverage_Canonical(t *testing.T) {
	// Adjacent and overlapping ranges merge; order does not matter.
	c := covOf(0x20, 0x10, 0x10, 0x10, 0x28, 0x4)
	if !covEq(c, covOf(0x10, 0x20)) {
		t.Fatalf("merge failed: %v", c.ranges)
	}

	c = covOf(0, 4, 8, 4)
	if len(c.ranges) != 2 {
		t.Fatalf("disjoint ranges should stay split: %v", c.ranges)
	}
	if c.count() != 8 {
		t.Fatalf("count = %d, want 8", c.count())
	}
}

func Test_Coverage_Remove(t *testing.T) {
	c := covOf(0, 0x10)
	c.remove(4, 4)
	if !covEq(c, covOf(0, 4, 8, 8)) {
		t.Fatalf("hole punch failed: %v", c.ranges)
	}

	c.remove(0, 0x100)
	if len(c.ranges) != 0 {
		t.Fatalf("full removal should empty the set: %v", c.ranges)
	}
}

func Test_Coverage_IntersectOverlap(t *testing.T) {
	a := covOf(0, 0x10, 0x20, 0x10)
	b := covOf(0x8, 0x20)

	got := a.intersect(b)
	if !covEq(got, covOf(0x8, 0x8, 0x20, 0x8)) {
		t.Fatalf("intersect = %v", got.ranges)
	}
	if !a.overlaps(b) {
		t.Fatal("overlaps should hold")
	}
	if a.overlaps(covOf(0x100, 1)) {
		t.Fatal("disjoint sets should not overlap")
	}
	if !a.isCovered(0x22, 2) {
		t.Fatal("contained range should be covered")
	}
	if a.isCovered(0xe, 4) {
		t.Fatal("straddling range should not be covered")
	}
}

func Test_ASet_Words(t *testing.T) {
	wantTops(t, `0x10 0 aset length`, "16")
	wantTops(t, `0 0x10 aset 4 sub length`, "15")
	wantTops(t, `0 0x10 aset 0x8 0x18 aset overlap`, "[0x8, 0x10)")
	wantTops(t, `0 0x10 aset low`, "0")
	wantTops(t, `0 0x10 aset high`, "0x10")

	wantTops(t, `0 0x10 aset 5 ?contains drop drop "in"`, "in")
	if got := runQ(t, `0 0x10 aset 0x20 ?contains`); len(got) != 0 {
		t.Fatal("?contains should drop stacks outside the set")
	}
	wantTops(t, `0 4 aset 2 6 aset ?overlaps drop drop "yes"`, "yes")
	if got := runQ(t, `0 0 aset ?empty drop "empty"`); len(got) != 1 || got[0][0] != "empty" {
		t.Fatalf("empty set should satisfy ?empty, got %v", got)
	}
}

func Test_LocInst_Decode(t *testing.T) {
	ctx := newDwarfContext("t", nil, nil, nil)

	// fbreg -24; reg5; bregx 9 16; piece 8
	expr := []byte{
		0x91, 0x68, // fbreg, sleb(-24)
		0x55,             // reg5
		0x92, 0x09, 0x10, // bregx 9, 16
		0x93, 0x08, // piece 8
	}
	insts := decodeExpr(expr, 8, ctx)
	if len(insts) != 4 {
		t.Fatalf("got %d instructions: %v", len(insts), insts)
	}
	if insts[0].show() != "0:fbreg<-24>" {
		t.Fatalf("fbreg = %q", insts[0].show())
	}
	if insts[1].show() != "2:reg5" {
		t.Fatalf("reg5 = %q", insts[1].show())
	}
	if insts[2].show() != "3:bregx<0x9/16>" {
		t.Fatalf("bregx = %q", insts[2].show())
	}
	if insts[3].offset != 6 {
		t.Fatalf("piece offset = %d", insts[3].offset)
	}
}
