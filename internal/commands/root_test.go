package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncCommand_ForceFlags(t *testing.T) {
	require.NotNil(t, syncCmd.Flags().Lookup("force"))
	require.NotNil(t, syncCmd.Flags().Lookup("force-all"))

	require.NoError(t, syncCmd.Flags().Set("force-all", "true"))
	t.Cleanup(func() {
		_ = syncCmd.Flags().Set("force-all", "false")
		syncForceAll = false
	})
	assert.True(t, syncForceAll)
}

func TestCommandTree(t *testing.T) {
	names := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, expected := range []string{"sync", "deploy", "destroy", "environment", "version"} {
		assert.True(t, names[expected], "command %s not registered", expected)
	}
}
