package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenumberFiles(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, ".env.ACCOUNTS")
	out := filepath.Join(dir, "env.ACCOUNTS.OUTPUT")
	require.NoError(t, os.WriteFile(in, []byte("ACCOUNT9=a,b,c,d\nACCOUNT3=e,f,g,h\n"), 0o600))

	n, err := renumber(in, out)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "ACCOUNT0001=a,b,c,d\nACCOUNT0002=e,f,g,h\n", string(got))

	_, err = renumber(filepath.Join(dir, "missing"), out)
	assert.Error(t, err)
}
