package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIKeyFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	_, err := getAPIKeyFile()
	assert.Error(t, err)

	require.NoError(t, saveAPIKeyFile("nwf_k_test123"))

	key, err := getAPIKeyFile()
	require.NoError(t, err)
	assert.Equal(t, "nwf_k_test123", key)

	info, err := os.Stat(filepath.Join(getHomeDir(), keyFileName))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}
