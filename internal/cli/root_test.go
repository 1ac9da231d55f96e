package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	root := GetRootCmd()

	assert.Equal(t, "calvin", root.Use)
	assert.Equal(t, version, root.Version)
	assert.Equal(t, version, GetVersion())
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := GetRootCmd()

	expected := []string{"serve", "status", "configure"}
	for _, name := range expected {
		found := false
		for _, cmd := range root.Commands() {
			if cmd.Name() == name {
				found = true
				break
			}
		}
		assert.True(t, found, "missing subcommand %s", name)
	}
}

func TestRootCommand_GlobalFlags(t *testing.T) {
	root := GetRootCmd()

	require.NotNil(t, root.PersistentFlags().Lookup("config"))
	require.NotNil(t, root.PersistentFlags().Lookup("log-level"))
}
