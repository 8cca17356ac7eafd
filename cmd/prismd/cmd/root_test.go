package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootCmd_RegistersExpectedSubcommands(t *testing.T) {
	root := NewRootCmd()

	for _, name := range []string{"serve", "version", "search", "index", "schema"} {
		found, _, err := root.Find([]string{name})
		require.NoError(t, err, "expected subcommand %q to exist", name)
		assert.Equal(t, name, found.Name())
	}
}

func TestNewRootCmd_HasDataDirFlag(t *testing.T) {
	root := NewRootCmd()
	flag := root.PersistentFlags().Lookup("data-dir")
	require.NotNil(t, flag)
	assert.Equal(t, ".", flag.DefValue)
}

func TestNewSchemaCmd_HasPushSubcommand(t *testing.T) {
	schemaCmd := newSchemaCmd()
	found, _, err := schemaCmd.Find([]string{"push"})
	require.NoError(t, err)
	assert.Equal(t, "push", found.Name())
}
