package dwq

import (
	"strings"
	"testing"
)

func parseOK(t *testing.T, src string) S {
	t.Helper()
	node, err := ParseQuery(src)
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	return node
}

func Test_Parser_Shapes(t *testing.T) {
	if tag := parseOK(t, `entry child`)[0].(string); tag != "cat" {
		t.Fatalf("concatenation should parse to cat, got %q", tag)
	}
	if tag := parseOK(t, `1, 2`)[0].(string); tag != "alt" {
		t.Fatalf("comma should parse to alt, got %q", tag)
	}
	if tag := parseOK(t, `1 || 2`)[0].(string); tag != "or" {
		t.Fatalf("|| should parse to or, got %q", tag)
	}
	if tag := parseOK(t, `[entry]`)[0].(string); tag != "capture" {
		t.Fatalf("brackets should parse to capture, got %q", tag)
	}
	if tag := parseOK(t, `{drop}`)[0].(string); tag != "closure" {
		t.Fatalf("braces should parse to closure, got %q", tag)
	}
	if tag := parseOK(t, `child*`)[0].(string); tag != "close" {
		t.Fatalf("star should parse to close, got %q", tag)
	}
	if tag := parseOK(t, `(|A| A)`)[0].(string); tag != "scope" {
		t.Fatalf("bindings should parse to scope, got %q", tag)
	}
	if tag := parseOK(t, `let X := 1; X`)[0].(string); tag != "let" {
		t.Fatalf("let should parse to let, got %q", tag)
	}
	if tag := parseOK(t, `offset == 0x10`)[0].(string); tag != "cmp" {
		t.Fatalf("infix compare should parse to cmp, got %q", tag)
	}
	if tag := parseOK(t, `if 1 then 2 else 3`)[0].(string); tag != "ifelse" {
		t.Fatalf("if should parse to ifelse, got %q", tag)
	}
}

func Test_Parser_CommaBindsLooserThanOr(t *testing.T) {
	node := parseOK(t, `1, 2 || 3`)
	if node[0].(string) != "alt" {
		t.Fatalf("expected alt at top, got %q", node[0])
	}
	if len(node) != 3 {
		t.Fatalf("expected two alt branches, got %d", len(node)-1)
	}
	if second := node[2].(S); second[0].(string) != "or" {
		t.Fatalf("second branch should be or, got %q", second[0])
	}
}

func Test_Parser_Numbers(t *testing.T) {
	wantTops(t, `0x10`, "0x10")
	wantTops(t, `0b101`, "0b101")
	wantTops(t, `010`, "010")
	wantTops(t, `42`, "42")
}

func Test_Parser_StringEscapes(t *testing.T) {
	wantTops(t, `"a\tb"`, "a\tb")
	wantTops(t, `"100\%"`, "100%")
	wantTops(t, `"say \"hi\""`, `say "hi"`)
}

func Test_Parser_Errors(t *testing.T) {
	cases := []struct {
		src  string
		want string
	}{
		{`"unterminated`, "unterminated string"},
		{`1 =`, "expected '=='"},
		{`(| | drop)`, "variable names"},
		{`let := 1;`, "variable name"},
		{`"%( 1`, "unterminated %("},
		{`if 1 then 2`, "`else'"},
	}
	for _, c := range cases {
		_, err := ParseQuery(c.src)
		if err == nil {
			t.Fatalf("%q: expected error", c.src)
		}
		if !strings.Contains(err.Error(), c.want) {
			t.Fatalf("%q: error %q does not mention %q", c.src, err, c.want)
		}
	}
}

func Test_Parser_CaretSnippet(t *testing.T) {
	_, err := Compile("entry (", NewVocabulary())
	if err == nil {
		t.Fatal("expected parse error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "PARSE ERROR") || !strings.Contains(msg, "^") {
		t.Fatalf("expected caret snippet, got:\n%s", msg)
	}
}

func Test_Lexer_PrefixedWords(t *testing.T) {
	toks, err := tokenize(`?eq !AT_name @AT_location ?( !(`)
	if err != nil {
		t.Fatal(err)
	}
	want := []struct {
		tt  TokenType
		lex string
	}{
		{WORD, "?eq"},
		{WORD, "!AT_name"},
		{WORD, "@AT_location"},
		{QPAREN, "?("},
		{BPAREN, "!("},
		{EOF, ""},
	}
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens, want %d", len(toks), len(want))
	}
	for i, w := range want {
		if toks[i].Type != w.tt || toks[i].Lexeme != w.lex {
			t.Fatalf("token %d = %v %q, want %v %q",
				i, toks[i].Type, toks[i].Lexeme, w.tt, w.lex)
		}
	}
}
