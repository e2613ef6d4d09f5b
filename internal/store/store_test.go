package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	s, err := NewFileStore(path)
	require.NoError(t, err)

	name, err := s.Username()
	assert.NoError(t, err)
	assert.Empty(t, name, "expected no username before one is set")

	require.NoError(t, s.SetUsername("alice"))
	require.NoError(t, s.Set("other", "value"))

	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	name, err = reopened.Username()
	assert.NoError(t, err)
	assert.Equal(t, "alice", name, "expected username to survive a new session")

	require.NoError(t, reopened.SetUsername(""))
	name, err = s.Username()
	assert.NoError(t, err)
	assert.Empty(t, name, "expected empty username to clear the key")

	other, err := s.Get("other")
	assert.NoError(t, err)
	assert.Equal(t, "value", other)
}

func TestFileStore_Errors(t *testing.T) {
	_, err := NewFileStore("")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	s, err := NewFileStore(path)
	require.NoError(t, err)
	_, err = s.Username()
	assert.Error(t, err, "expected corrupt store to surface an error")
}
