package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func runApp(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	app := newApp()
	app.Writer = &stdout
	app.ErrWriter = &stderr
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.Run(append([]string{"inkvm"}, args...))
	return stdout.String(), stderr.String(), err
}

func writeProgram(t *testing.T, source string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "main.ink")
	require.NoError(t, os.WriteFile(path, []byte(source), 0o644))
	return path
}

func TestEval(t *testing.T) {
	stdout, stderr, err := runApp(t, "eval", "out('hi'), out(string(6 * 7))")
	require.NoError(t, err)
	assert.Equal(t, "hi42", stdout)
	assert.Empty(t, stderr)
}

func TestEvalPrint(t *testing.T) {
	for _, args := range [][]string{
		{"eval", "-p", "[1, 2].1 + 1"},
		{"--no-opt", "eval", "--print", "[1, 2].1 + 1"},
	} {
		stdout, _, err := runApp(t, args...)
		require.NoError(t, err)
		assert.Equal(t, "3\n", stdout)
	}
}

func TestEvalReportsErrors(t *testing.T) {
	_, stderr, err := runApp(t, "eval", "1 +")
	require.Error(t, err)
	assert.Contains(t, stderr, "P002")

	_, stderr, err = runApp(t, "eval", "missing(1)")
	require.Error(t, err)
	assert.Contains(t, stderr, "A001")
}

func TestRunFile(t *testing.T) {
	path := writeProgram(t, "fib := n => n :: {\n  0 -> 0\n  1 -> 1\n  _ -> fib(n - 1) + fib(n - 2)\n}\nout(string(fib(10)))\n")

	stdout, _, err := runApp(t, "run", path)
	require.NoError(t, err)
	assert.Equal(t, "55", stdout)

	// a bare file argument runs it too
	stdout, _, err = runApp(t, path)
	require.NoError(t, err)
	assert.Equal(t, "55", stdout)
}

func TestRunWithPersistentCache(t *testing.T) {
	path := writeProgram(t, "out('cached')")
	db := filepath.Join(t.TempDir(), "cache", "images.db")

	for i := 0; i < 2; i++ {
		stdout, _, err := runApp(t, "--cache", db, "run", path)
		require.NoError(t, err)
		assert.Equal(t, "cached", stdout)
	}
	assert.FileExists(t, db)
}

func TestRunMissingFile(t *testing.T) {
	_, _, err := runApp(t, "run", filepath.Join(t.TempDir(), "absent.ink"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "absent.ink")
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "inkvm.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("vm:\n  max_frames: 5\n"), 0o644))

	_, stderr, err := runApp(t, "--config", cfg, "--no-opt", "eval", "f := n => n :: {0 -> 0, _ -> 1 + f(n - 1)}, f(100)")
	require.Error(t, err)
	assert.Contains(t, stderr, "R001")
}

func TestDisasm(t *testing.T) {
	path := writeProgram(t, "x := 1 + 2, out(string(x))")
	stdout, _, err := runApp(t, "disasm", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "(block 0)")
}

func TestVersion(t *testing.T) {
	stdout, _, err := runApp(t, "version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "inkvm v")
}

func TestSkipWriter(t *testing.T) {
	var buf bytes.Buffer
	w := &skipWriter{w: &buf, skip: 5}
	for _, chunk := range []string{"ab", "cdef", "gh"} {
		n, err := w.Write([]byte(chunk))
		require.NoError(t, err)
		assert.Equal(t, len(chunk), n)
	}
	assert.Equal(t, "fgh", buf.String())
	assert.Equal(t, 8, w.total)
}

func TestReplay(t *testing.T) {
	var r replay
	assert.Equal(t, "x := 1", r.program("x := 1"))
	r.accept("x := 1", 0)
	r.accept("out('a')", 1)
	assert.Equal(t, "x := 1\nout('a')\nx + 1", r.program("x + 1"))
	assert.Len(t, r.entries, 2)
	assert.Equal(t, 1, r.printed)
}

func TestIncomplete(t *testing.T) {
	tests := map[string]bool{
		"1 + 2":              false,
		"1 +":                true,
		"f := (a, b) =>":     true,
		"x :: {":             true,
		"x :: {\n 1 -> 2":    true,
		"'open":              true,
		"`open":              true,
		"1 )":                false,
		"{a: 1}":             false,
		"out('a')\nout('b')": false,
	}
	for source, want := range tests {
		assert.Equal(t, want, incomplete(source), source)
	}
}
