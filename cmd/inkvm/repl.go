package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/funvibe/inkvm/internal/config"
	"github.com/funvibe/inkvm/internal/diagnostics"
	"github.com/funvibe/inkvm/internal/lexer"
	"github.com/funvibe/inkvm/internal/parser"
	"github.com/funvibe/inkvm/internal/pipeline"
)

const (
	historyFile = ".inkvm_history"
	promptMain  = "> "
	promptCont  = ". "
)

// replay keeps every accepted entry. Each new entry is run as the tail of
// the whole session so far, and the output the earlier entries already
// produced is skipped.
type replay struct {
	entries []string
	printed int
}

func (r *replay) program(entry string) string {
	return strings.Join(append(r.entries[:len(r.entries):len(r.entries)], entry), "\n")
}

func (r *replay) accept(entry string, printed int) {
	r.entries = append(r.entries, entry)
	r.printed = printed
}

// skipWriter drops the first skip bytes written to it and counts the rest.
type skipWriter struct {
	w     io.Writer
	skip  int
	total int
}

func (s *skipWriter) Write(p []byte) (int, error) {
	n := len(p)
	s.total += n
	if s.skip > 0 {
		if n <= s.skip {
			s.skip -= n
			return n, nil
		}
		p = p[s.skip:]
		s.skip = 0
	}
	if _, err := s.w.Write(p); err != nil {
		return 0, err
	}
	return n, nil
}

// incomplete reports whether source stops in the middle of an expression,
// a string or a comment, so that the REPL should read another line.
func incomplete(source string) bool {
	l := lexer.New(source)
	tokens := l.Tokenize()
	for _, err := range l.Errors() {
		if err.Code == diagnostics.ErrL002 {
			return true
		}
	}
	ctx := pipeline.NewPipelineContext(source)
	parser.New(tokens, ctx).ParseProgram()
	for _, err := range ctx.Errors {
		if err.Code == diagnostics.ErrP002 {
			return true
		}
	}
	return false
}

func readEntry(ln *liner.State) (string, error) {
	var b strings.Builder
	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := ln.Prompt(prompt)
		if err != nil {
			return "", err
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
		if !incomplete(b.String()) {
			return b.String(), nil
		}
	}
}

func replCommand(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return err
	}
	defer s.close()

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if home, err := os.UserHomeDir(); err == nil {
		histPath := filepath.Join(home, historyFile)
		if f, err := os.Open(histPath); err == nil {
			_, _ = ln.ReadHistory(f)
			_ = f.Close()
		}
		defer func() {
			if f, err := os.Create(histPath); err == nil {
				_, _ = ln.WriteHistory(f)
				_ = f.Close()
			}
		}()
	}

	fmt.Fprintf(s.out, "inkvm v%s, :quit to exit\n", config.Version)
	var session replay
	for {
		entry, err := readEntry(ln)
		if errors.Is(err, liner.ErrPromptAborted) {
			continue
		}
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(s.out)
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "reading input")
		}

		trimmed := strings.TrimSpace(entry)
		switch {
		case trimmed == "":
			continue
		case trimmed == ":quit":
			return nil
		case strings.HasPrefix(trimmed, ":"):
			fmt.Fprintln(s.out, "unknown command, type :quit to exit")
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(entry, "\n", " "))

		w := &skipWriter{w: s.out, skip: session.printed}
		s.backend.SetOutput(w)
		result, ok := s.run(session.program(entry), "")
		if !ok {
			s.logger.Debug("entry rejected", zap.String("entry", entry))
			continue
		}
		session.accept(entry, w.total)
		s.printValue(result)
	}
}
