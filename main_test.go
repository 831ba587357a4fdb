package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcgn/multipart-related/config"
)

func TestRootCommand_DryRun(t *testing.T) {
	stateDir := t.TempDir()
	rootCmd, err := newRootCommand()
	require.NoError(t, err)

	rootCmd.SetArgs([]string{
		"--mbox", filepath.Join("mbox", "test_data", "related.mbox"),
		"--state-dir", stateDir,
		"--dry-run",
		"--log-level", "error",
	})
	require.NoError(t, rootCmd.Execute())

	_, err = os.Stat(filepath.Join(stateDir, "processed.jsonl"))
	assert.True(t, os.IsNotExist(err), "dry run must not write state")
}

func TestRootCommand_RequiresMbox(t *testing.T) {
	rootCmd, err := newRootCommand()
	require.NoError(t, err)
	rootCmd.SetArgs([]string{"--dry-run"})
	rootCmd.SetOut(new(nopWriter))
	rootCmd.SetErr(new(nopWriter))
	assert.Error(t, rootCmd.Execute())
}

func TestSetupLogger_LogDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	logger, cleanup, err := setupLogger(config.Config{LogLevel: "debug", LogDir: dir})
	require.NoError(t, err)
	logger.Debug("hello")
	require.NoError(t, cleanup())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(data), "msg=hello")
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }
