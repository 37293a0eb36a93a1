// errors.go: user-facing error wrapping and caret-snippet rendering
//
// Turns lexer/parser diagnostics into readable snippets with a caret pointing
// at the offending column:
//
//	PARSE ERROR at 1:12: unexpected ")"
//
//	  1 | entry name )
//	    |            ^
//
// Only *LexError and *ParseError are recognized; any other error is returned
// unchanged. Line/column are 1-based and clamped so the caret renders safely
// on short or empty sources.
package dwq

import (
	"fmt"
	"strings"
)

// WrapErrorWithSource augments lex/parse errors with a caret-annotated
// snippet of src; other errors pass through untouched.
func WrapErrorWithSource(err error, src string) error {
	var kind, msg string
	var line, col int

	switch e := err.(type) {
	case *LexError:
		kind, msg, line, col = "LEXICAL ERROR", e.Msg, e.Line, e.Col
	case *ParseError:
		kind, msg, line, col = "PARSE ERROR", e.Msg, e.Line, e.Col
	default:
		return err
	}

	return fmt.Errorf("%s at %d:%d: %s\n\n%s",
		kind, line, col, msg, snippet(src, line, col))
}

func snippet(src string, line, col int) string {
	lines := strings.Split(src, "\n")
	if line < 1 {
		line = 1
	}
	if line > len(lines) {
		line = len(lines)
	}

	var b strings.Builder
	width := len(fmt.Sprint(line + 1))
	put := func(n int) {
		if n < 1 || n > len(lines) {
			return
		}
		fmt.Fprintf(&b, "  %*d | %s\n", width, n, lines[n-1])
	}

	put(line - 1)
	put(line)

	text := lines[line-1]
	if col < 1 {
		col = 1
	}
	if col > len(text)+1 {
		col = len(text) + 1
	}
	pad := strings.Repeat(" ", col-1)
	fmt.Fprintf(&b, "  %s | %s^\n", strings.Repeat(" ", width), pad)

	put(line + 1)
	return b.String()
}
