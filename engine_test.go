package dwq

import (
	"strings"
	"testing"
)

// runQOn compiles src and runs it over the given input stack, returning each
// result stack rendered top-first.
func runQOn(t *testing.T, src string, in *Stack) [][]string {
	t.Helper()
	q, err := Compile(src, NewVocabulary())
	if err != nil {
		t.Fatalf("compile %q: %v", src, err)
	}
	results, err := q.Run(in)
	if err != nil {
		t.Fatalf("run %q: %v", src, err)
	}
	out := make([][]string, len(results))
	for i, stk := range results {
		out[i] = stk.Show()
	}
	return out
}

func runQ(t *testing.T, src string) [][]string {
	t.Helper()
	return runQOn(t, src, NewStack())
}

// tops extracts the top-of-stack rendering of each result.
func tops(results [][]string) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r[0]
	}
	return out
}

func wantTops(t *testing.T, src string, want ...string) {
	t.Helper()
	got := tops(runQ(t, src))
	if len(got) != len(want) {
		t.Fatalf("%q: got %v, want %v", src, got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("%q: result %d = %q, want %q", src, i, got[i], want[i])
		}
	}
}

func wantErrContains(t *testing.T, err error, substr string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error containing %q, got nil", substr)
	}
	if !strings.Contains(err.Error(), substr) {
		t.Fatalf("error %q does not contain %q", err.Error(), substr)
	}
}

// ---- scenarios ---------------------------------------------------------

func Test_Seq_AddAndLength(t *testing.T) {
	wantTops(t, `[1, 2, 3] [4, 5, 6] add`, "[1, 2, 3, 4, 5, 6]")
	wantTops(t, `[1, 2, 3] length`, "3")
	// A sub-expression that yields nothing captures an empty sequence.
	wantTops(t, `[1 2 ?gt] length`, "0")
}

func Test_Str_Find(t *testing.T) {
	results := runQ(t, `"foobar" "oba" ?find`)
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	// Both operands stay on the stack.
	if results[0][0] != "oba" || results[0][1] != "foobar" {
		t.Fatalf("stack = %v", results[0])
	}

	if got := runQ(t, `"foobar" "xyz" ?find`); len(got) != 0 {
		t.Fatalf("?find should drop non-matching stacks, got %v", got)
	}
}

func Test_ASet_AddLength(t *testing.T) {
	wantTops(t, `0 0x10 aset 0x100 0x110 aset add length`, "32")
	wantTops(t, `0 0x10 aset 0x100 0x110 aset add range`,
		"[0, 0x10)", "[0x100, 0x110)")
	wantTops(t, `0 3 aset elem`, "0", "0x1", "0x2")
	wantTops(t, `0 3 aset relem`, "0x2", "0x1", "0")
}

func Test_Cst_Arith(t *testing.T) {
	wantTops(t, `1 2 add`, "3")
	wantTops(t, `10 3 mod`, "1")
	wantTops(t, `2 3 mul 4 sub`, "2")
	// Arbitrary magnitude.
	wantTops(t, `0x10000000000000000 0x10000000000000000 mul`,
		"0x100000000000000000000000000000000")
	wantTops(t, `255 hex`, "0xff")
	wantTops(t, `0x10 dec`, "16")
}

func Test_Cst_DivByZeroDropsStack(t *testing.T) {
	if got := runQ(t, `1 0 div`); len(got) != 0 {
		t.Fatalf("division by zero should yield nothing, got %v", got)
	}
}

func Test_Alternation_Merge(t *testing.T) {
	// `,` runs every branch.
	wantTops(t, `(1, 2, 3)`, "1", "2", "3")
	wantTops(t, `[1, 2, 3]`, "[1, 2, 3]")
}

func Test_Alternation_Or(t *testing.T) {
	// `||` commits to the first branch that yields.
	wantTops(t, `(1 || 2)`, "1")
	results := runQ(t, `(2 3 ?gt drop drop 1 || 99)`)
	if len(results) != 1 || results[0][0] != "99" {
		t.Fatalf("fallback branch expected, got %v", results)
	}
}

func Test_Comparisons(t *testing.T) {
	wantTops(t, `[1 2 ?lt drop "yep"]`, "[yep]")
	if got := runQ(t, `2 1 ?lt`); len(got) != 0 {
		t.Fatalf("2 < 1 should not hold, got %v", got)
	}
	// Infix sugar runs sub-pipelines over fresh copies of the input.
	wantTops(t, `3 dup (1 add == 4) drop`, "3")
	if got := runQ(t, `3 (1 add == 5)`); len(got) != 0 {
		t.Fatalf("3+1 == 5 should not hold, got %v", got)
	}
}

func Test_Shuffle(t *testing.T) {
	wantTops(t, `1 2 swap`, "1")
	wantTops(t, `1 2 drop`, "1")
	wantTops(t, `1 dup add`, "2")
	wantTops(t, `1 2 over`, "1")
	wantTops(t, `1 2 3 rot`, "1")
}

func Test_Pos(t *testing.T) {
	wantTops(t, `[7, 8, 9] elem pos`, "0", "1", "2")
	wantTops(t, `[7, 8, 9] elem (pos == 1)`, "8")
}

func Test_Capture_SubExpression(t *testing.T) {
	wantTops(t, `[[1, 2, 3] elem 10 add]`, "[11, 12, 13]")
	// capture(sub) pushes a sequence of every sub-result's TOS.
	wantTops(t, `5 [dup 1 add, dup 2 add]`, "[6, 7]")
}

func Test_TrClosure_Dedup(t *testing.T) {
	// The body reproduces the same stack; the seen-set collapses it, and
	// star-mode also yields the untouched input exactly once.
	results := runQ(t, `1 (dup drop)*`)
	if len(results) != 1 {
		t.Fatalf("duplicate stacks not suppressed: %d results", len(results))
	}

	// Star yields the pass-through input first, then each application.
	wantTops(t, `0 (dup 2 ?lt drop 1 add)*`, "0", "1", "2")

	// Plus requires at least one application.
	wantTops(t, `0 (dup 2 ?lt drop 1 add)+`, "1", "2")
	if got := runQ(t, `5 (dup 4 ?lt drop 1 add)+`); len(got) != 0 {
		t.Fatalf("plus with a non-yielding body should yield nothing, got %v", got)
	}
}

func Test_IfElse(t *testing.T) {
	wantTops(t, `if (1 2 ?lt) then "y" else "n"`, "y")
	wantTops(t, `if (2 1 ?lt) then "y" else "n"`, "n")
}

func Test_Bindings_ScopeAndLet(t *testing.T) {
	wantTops(t, `1 2 (|A B| B A)`, "1")
	wantTops(t, `let X := 5; X X add`, "10")
	// let over a multi-result expression binds each result in turn.
	wantTops(t, `let E := (1, 2, 3); E 10 add`, "11", "12", "13")
}

func Test_Closures(t *testing.T) {
	wantTops(t, `let F := {1 add}; 5 F`, "6")
	// The captured frame is the defining one, not the applying one.
	wantTops(t, `let N := 10; let F := {N add}; 5 F`, "15")
	// apply on an explicitly pushed closure.
	wantTops(t, `5 {2 mul} apply`, "10")
}

func Test_Format(t *testing.T) {
	wantTops(t, `"foo" "%s bar"`, "foo bar")
	wantTops(t, `1 2 "%s and %s"`, "1 and 2")
	wantTops(t, `5 "%( dup 1 add %)-%( dup 2 add %)"`, "6-7")
	// A multi-result interpolation yields one string per sub-result.
	wantTops(t, `"x%( [1, 2] elem %)"`, "x1", "x2")
}

func Test_Assertion_Groups(t *testing.T) {
	wantTops(t, `3 ?( dup 2 ?gt ) "big" swap drop`, "big")
	if got := runQ(t, `1 ?( dup 2 ?gt )`); len(got) != 0 {
		t.Fatalf("?( ) should have dropped the stack, got %v", got)
	}
	wantTops(t, `1 !( dup 2 ?gt ) drop "small"`, "small")
}

func Test_Reset_Reproducibility(t *testing.T) {
	q, err := Compile(`[1, 2, 3] elem 1 add`, NewVocabulary())
	if err != nil {
		t.Fatal(err)
	}
	collect := func() []string {
		results, err := q.Run(NewStack())
		if err != nil {
			t.Fatal(err)
		}
		var out []string
		for _, stk := range results {
			out = append(out, strings.Join(stk.Show(), "|"))
		}
		return out
	}
	first := collect()
	second := collect()
	if strings.Join(first, ";") != strings.Join(second, ";") {
		t.Fatalf("reset did not reproduce outputs: %v vs %v", first, second)
	}
}

func Test_BuildErrors(t *testing.T) {
	_, err := Compile(`frobnicate`, NewVocabulary())
	wantErrContains(t, err, "unknown word")

	_, err = Compile(`(|A A| drop)`, NewVocabulary())
	wantErrContains(t, err, "duplicate binding")

	_, err = Compile(`(1 2`, NewVocabulary())
	wantErrContains(t, err, "PARSE ERROR")
}

func Test_Cmp_Symmetry(t *testing.T) {
	vals := []Value{
		CstInt64(1, DomDec, 0),
		CstInt64(2, DomHex, 0),
		NewStr("a", 0),
		NewSeq([]Value{CstInt64(1, DomDec, 0)}, 0),
	}
	for _, a := range vals {
		for _, b := range vals {
			ra, rb := TotalCmp(a, b), TotalCmp(b, a)
			if ra == CmpFail || rb == CmpFail {
				if ra != rb {
					t.Fatalf("asymmetric fail: %v vs %v", ra, rb)
				}
				continue
			}
			if ra != invertCmp(rb) {
				t.Fatalf("cmp(%s,%s)=%v but cmp(%s,%s)=%v",
					a.Show(), b.Show(), ra, b.Show(), a.Show(), rb)
			}
		}
	}
}
