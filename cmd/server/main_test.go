package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tables.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
modes:
  number:
    - name: Green
      slots: ["", "1", "2"]
`), 0o644))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"table", "--mode", "number", "--table-file", path, "--log-level", "error"})
	require.NoError(t, rootCmd.Execute())

	assert.Contains(t, out.String(), "mode number: 1 groups")
	assert.Contains(t, out.String(), "Green")
}

func TestTableCommand_BadMode(t *testing.T) {
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"table", "--mode", "emoji", "--table-file", ""})
	assert.Error(t, rootCmd.Execute())
}
