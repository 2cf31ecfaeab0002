package cli

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/nwflabs/nwf/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logging.SetDefaultCLILogger("debug")
	os.Exit(m.Run())
}

func TestNewApp(t *testing.T) {
	app := newApp()
	require.NotNil(t, app)
	assert.Equal(t, appName, app.Name)
	assert.True(t, app.EnableBashCompletion)
	assert.NotNil(t, app.Before)
	assert.NotNil(t, app.After)

	names := make([]string, 0, len(app.Commands))
	for _, cmd := range app.Commands {
		names = append(names, cmd.Name)
	}

	for _, want := range []string{"auth", "import", "update", "query", "substitute", "export", "server", "reset"} {
		assert.Contains(t, names, want)
	}
}

func TestGetHomeDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := getHomeDir()
	assert.Equal(t, filepath.Join(home, ".nwf"), dir)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func captureStdout(t *testing.T, fn func() error) string {
	t.Helper()

	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w
	defer func() { os.Stdout = old }()

	require.NoError(t, fn())
	require.NoError(t, w.Close())

	b, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(b)
}

func TestEncode(t *testing.T) {
	out := captureStdout(t, func() error {
		return encode(map[string]int{"stocks": 3})
	})
	assert.Contains(t, out, `"stocks": 3`)

	outputFormat = formatYAML
	t.Cleanup(func() { outputFormat = formatJSON })

	out = captureStdout(t, func() error {
		return encode(map[string]int{"stocks": 3})
	})
	assert.Contains(t, out, "stocks: 3")
}

func TestOptional(t *testing.T) {
	assert.Nil(t, optional(""))
	assert.Nil(t, optional("undefined"))

	v := optional("HOSE")
	require.NotNil(t, v)
	assert.Equal(t, "HOSE", *v)
}
