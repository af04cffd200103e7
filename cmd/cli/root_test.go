package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	asUser = 0
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRunAdminCommand(t *testing.T) {
	t.Setenv("STORAGE_PATH", filepath.Join(t.TempDir(), "himera.db"))
	t.Setenv("ADMIN_USERS", "9")
	t.Setenv("LLM_API_KEY", "")

	out, err := execute(t, "run", "cleanup")
	require.NoError(t, err)
	assert.Contains(t, out, "Cleanup: 0 stale initiations cancelled")

	out, err = execute(t, "run", "/stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Initiations (24h): 0 sent")

	_, err = execute(t, "run", "stats", "--as", "3")
	assert.ErrorContains(t, err, "user 3 is not in ADMIN_USERS")

	_, err = execute(t, "run", "nope")
	assert.ErrorContains(t, err, `unknown command "nope"`)
}

func TestList(t *testing.T) {
	t.Setenv("STORAGE_PATH", filepath.Join(t.TempDir(), "himera.db"))

	out, err := execute(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Administration")
	assert.Contains(t, out, "/writeme_pause")
}
