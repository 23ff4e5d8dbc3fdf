package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"run", "batch", "status", "runs"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "ordenes-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRunCommand_Flags(t *testing.T) {
	for _, name := range []string{"input", "mode", "sample", "concurrency", "mirror"} {
		require.NotNil(t, runCmd.Flags().Lookup(name), "run command should have --%s flag", name)
	}

	mode := runCmd.Flags().Lookup("mode")
	assert.Equal(t, "incremental", mode.DefValue)
}

func TestBatchCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range batchCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"init", "run", "status"} {
		assert.True(t, names[name], "expected batch subcommand %q not found", name)
	}
}

func TestRunsCommand_ListFlags(t *testing.T) {
	for _, name := range []string{"status", "mode", "limit"} {
		require.NotNil(t, runsListCmd.Flags().Lookup(name), "runs list should have --%s flag", name)
	}
	assert.Equal(t, "20", runsListCmd.Flags().Lookup("limit").DefValue)
}
