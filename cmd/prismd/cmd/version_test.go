package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prism-db/prism/pkg/version"
)

func TestVersionCmd_DefaultOutput(t *testing.T) {
	cmd := newVersionCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)

	require.NoError(t, cmd.Execute())
	output := buf.String()
	assert.Contains(t, output, "prismd")
	assert.Contains(t, output, version.Version)
	assert.Contains(t, output, "commit")
}

func TestVersionCmd_AddedToRoot(t *testing.T) {
	root := NewRootCmd()
	found, _, err := root.Find([]string{"version"})
	require.NoError(t, err)
	assert.Equal(t, "version", found.Name())
}
