package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sergev/larch/reader"
)

func TestUnitName(t *testing.T) {
	assert.Equal(t, "util", unitName("lib/util.lar"))
	assert.Equal(t, "main", unitName("-"))
	assert.Equal(t, "main", unitName("<stdin>"))
	assert.Equal(t, "scratch", unitName("scratch"))
}

func TestLoadConfigPrecedence(t *testing.T) {
	cfg, err := loadConfig("", nil)
	require.NoError(t, err)
	assert.False(t, cfg.Verbose)
	assert.Equal(t, "", cfg.History)

	t.Setenv("LARCH_VERBOSE", "true")
	cfg, err = loadConfig("", nil)
	require.NoError(t, err)
	assert.True(t, cfg.Verbose)

	fs := pflag.NewFlagSet("larch", pflag.ContinueOnError)
	fs.BoolP("verbose", "v", false, "")
	fs.String("history", "", "")
	require.NoError(t, fs.Parse([]string{"--verbose=false", "--history", "h.txt"}))
	cfg, err = loadConfig("", fs)
	require.NoError(t, err)
	assert.False(t, cfg.Verbose, "flag overrides env")
	assert.Equal(t, "h.txt", cfg.History)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "larch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("verbose: true\nhistory: /tmp/hist\n"), 0o644))

	cfg, err := loadConfig(path, nil)
	require.NoError(t, err)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, "/tmp/hist", cfg.History)
}

func TestSessionCompilesAcrossForms(t *testing.T) {
	s := newSession(&config{})

	forms, err := reader.ReadString("(defmacro twice [x] `(+ ~x ~x))", "<repl>")
	require.NoError(t, err)
	for _, form := range forms {
		_, err := s.comp.CompileForm(form)
		require.NoError(t, err)
	}

	forms, err = reader.ReadString("(twice 21)", "<repl>")
	require.NoError(t, err)
	res, err := s.comp.CompileForm(forms[0])
	require.NoError(t, err)
	assert.True(t, res.HasExpr(), "macro call should compile to an expression")
}

func TestRunDispatch(t *testing.T) {
	assert.Equal(t, 0, run([]string{"version"}))
	assert.Equal(t, 2, run([]string{"no-such-command"}))
	assert.Equal(t, 2, run(nil))
}

func TestIncompleteInputDetection(t *testing.T) {
	_, err := reader.ReadString("(defn f [", "<repl>")
	require.Error(t, err)
	assert.True(t, reader.IsIncomplete(err))
}
