package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := NewRootCmd()
	for _, path := range [][]string{
		{"run"}, {"accounts", "list"}, {"accounts", "add"}, {"accounts", "set"},
		{"store", "get"}, {"store", "set"}, {"server"}, {"user", "add"}, {"keys"}, {"version"},
	} {
		c, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], c.Name())
	}
}

func TestRunCmd_RejectsUnknownMode(t *testing.T) {
	root := NewRootCmd()
	root.SetArgs([]string{"run", "--mode", "lottery"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestStoreSet_RejectsBadChunkSize(t *testing.T) {
	root := NewRootCmd()
	root.SetArgs([]string{"store", "set", "NOTIFY_CHUNK_SIZE", "0"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "positive integer")
}

func TestStoreSet_RejectsUnknownKey(t *testing.T) {
	root := NewRootCmd()
	root.SetArgs([]string{"store", "set", "WEAIOVE_ACCOUNTS", "x|y"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown key")
}
