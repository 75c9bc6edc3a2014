package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/sergev/larch/compile"
	"github.com/sergev/larch/expand"
	"github.com/sergev/larch/hast"
	"github.com/sergev/larch/model"
	"github.com/sergev/larch/reader"
)

// session is one interactive compilation unit. Forms share a compiler
// so macros defined at the prompt stay visible to later input.
type session struct {
	comp    *compile.Compiler
	verbose bool
	history string
}

func newSession(cfg *config) *session {
	return &session{
		comp:    compile.NewCompiler(expand.NewContext("repl"), "<repl>"),
		verbose: cfg.Verbose,
		history: cfg.History,
	}
}

func cmdREPL(cfg *config) int {
	s := newSession(cfg)
	if !isInteractive() {
		s.runBuffered(bufio.NewReader(os.Stdin))
		return 0
	}
	s.runInteractive()
	return 0
}

// show compiles each form and prints its lowered statements followed by
// the trailing expression, when one is pending.
func (s *session) show(forms []model.Object) {
	for _, form := range forms {
		res, err := s.comp.CompileForm(form)
		if err != nil {
			report(err, s.verbose)
			break
		}
		for _, st := range res.Stmts {
			fmt.Println(hast.Dump(st))
		}
		if e := res.Take(); e != nil {
			fmt.Println(hast.Dump(e))
		}
	}
}

func (s *session) runBuffered(in *bufio.Reader) {
	var buffer strings.Builder

	for {
		line, err := in.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				if buffer.Len() == 0 {
					return
				}
			} else {
				fmt.Fprintf(os.Stderr, "read error: %v\n", err)
				return
			}
		}
		buffer.WriteString(line)
		src := buffer.String()
		forms, parseErr := reader.ReadString(src, "<repl>")
		if parseErr != nil {
			if reader.IsIncomplete(parseErr) && !errors.Is(err, io.EOF) {
				continue
			}
			fmt.Fprintf(os.Stderr, "parse error: %v\n", parseErr)
			buffer.Reset()
			if errors.Is(err, io.EOF) {
				return
			}
			continue
		}
		buffer.Reset()
		s.show(forms)
		if errors.Is(err, io.EOF) {
			return
		}
	}
}

func (s *session) runInteractive() {
	state := liner.NewLiner()
	defer state.Close()
	state.SetCtrlCAborts(true)

	historyPath := s.historyPath()
	if historyPath != "" {
		if f, err := os.Open(historyPath); err == nil {
			state.ReadHistory(f)
			f.Close()
		}
		defer func() {
			if f, err := os.Create(historyPath); err == nil {
				state.WriteHistory(f)
				f.Close()
			}
		}()
	}

	var buffer strings.Builder

	for {
		prompt := "larch> "
		if buffer.Len() > 0 {
			prompt = ".... "
		}
		input, err := state.Prompt(prompt)
		if err != nil {
			switch {
			case errors.Is(err, liner.ErrPromptAborted):
				fmt.Println()
				buffer.Reset()
				continue
			case errors.Is(err, io.EOF):
				fmt.Println()
				return
			default:
				fmt.Fprintf(os.Stderr, "read error: %v\n", err)
				return
			}
		}
		buffer.WriteString(input)
		buffer.WriteString("\n")

		src := buffer.String()
		forms, parseErr := reader.ReadString(src, "<repl>")
		if parseErr != nil {
			if reader.IsIncomplete(parseErr) {
				continue
			}
			fmt.Fprintf(os.Stderr, "parse error: %v\n", parseErr)
			buffer.Reset()
			continue
		}

		buffer.Reset()
		if trimmed := strings.TrimSpace(src); trimmed != "" {
			state.AppendHistory(trimmed)
		}
		s.show(forms)
	}
}

func (s *session) historyPath() string {
	if s.history != "" {
		return s.history
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, ".larch_history")
}

func isInteractive() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
