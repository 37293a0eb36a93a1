package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/peterh/liner"

	dwq "github.com/dwqlang/dwq"
)

const (
	appName     = "dwq"
	historyFile = ".dwq_history"
	promptMain  = "==> "
)

func red(s string) string  { return "\x1b[31m" + s + "\x1b[0m" }
func blue(s string) string { return "\x1b[94m" + s + "\x1b[0m" }

func main() {
	expr := flag.String("e", "", "query expression to run")
	flag.Usage = usage
	flag.Parse()

	voc := dwq.NewVocabulary()

	inputs, err := openInputs(voc, flag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, red(err.Error()))
		os.Exit(1)
	}

	if *expr != "" {
		os.Exit(runOnce(voc, *expr, inputs, false))
	}
	os.Exit(repl(voc, inputs))
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage:
  %s -e 'expr' [file ...]    Run a query over the given object files.
  %s [file ...]              Start an interactive session.

With no files, the query runs on an empty stack; each file otherwise
contributes one input stack holding its Dwarf value.
`, appName, appName)
}

// openInputs evaluates `"path" dwopen` for each file so that opening goes
// through the same word the language exposes.
func openInputs(voc *dwq.Vocabulary, files []string) ([]*dwq.Stack, error) {
	if len(files) == 0 {
		return []*dwq.Stack{dwq.NewStack()}, nil
	}
	q, err := dwq.Compile("dwopen", voc)
	if err != nil {
		return nil, err
	}
	var out []*dwq.Stack
	for _, f := range files {
		stk := dwq.NewStack()
		stk.Push(dwq.NewStr(f, 0))
		results, err := q.Run(stk)
		if err != nil {
			return nil, err
		}
		out = append(out, results...)
	}
	return out, nil
}

func runOnce(voc *dwq.Vocabulary, src string, inputs []*dwq.Stack, color bool) int {
	q, err := dwq.Compile(src, voc)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 2
	}

	for _, in := range inputs {
		q.Feed(in.Clone())
		for {
			stk, err := q.Next()
			if err != nil {
				fmt.Fprintln(os.Stderr, err.Error())
				return 1
			}
			if stk == nil {
				break
			}
			printStack(stk, color)
		}
	}
	return 0
}

func printStack(stk *dwq.Stack, color bool) {
	fmt.Println("---")
	for _, line := range stk.Show() {
		if color {
			line = blue(line)
		}
		fmt.Println(line)
	}
}

func repl(voc *dwq.Vocabulary, inputs []*dwq.Stack) int {
	fmt.Printf("dwq interactive session. Ctrl+C cancels input, Ctrl+D exits.\n")

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigc)
	go func() {
		<-sigc
		ln.Close()
		os.Exit(130)
	}()

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}

	for {
		line, err := ln.Prompt(promptMain)
		if err != nil {
			fmt.Println()
			return 0
		}
		if line == "" {
			continue
		}
		ln.AppendHistory(line)
		runOnce(voc, line, inputs, true)
	}
}
