package storeconfig

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/tokenreg/address"
	"xdao.co/tokenreg/storage"
	"xdao.co/tokenreg/storage/backend"
	_ "xdao.co/tokenreg/storage/localfs"
	_ "xdao.co/tokenreg/storage/memory"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFileJSON(t *testing.T) {
	path := writeFile(t, "store.json", `{"backend":"localfs","config":{"localfs-dir":"/tmp/x"}}`)
	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "localfs", cfg.Backend)
	assert.Equal(t, "/tmp/x", cfg.Config["localfs-dir"])
}

func TestLoadFileYAML(t *testing.T) {
	path := writeFile(t, "store.yaml", "backend: memory\n")
	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Backend)
}

func TestValidate(t *testing.T) {
	assert.Error(t, Config{}.Validate())
	assert.Error(t, Config{Backend: "memory", Config: map[string]string{"--x": "y"}}.Validate())
	assert.NoError(t, Config{Backend: "memory"}.Validate())
}

func TestOpenLocalFSFromConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Backend: "localfs", Config: map[string]string{"localfs-dir": dir}}
	s, err := cfg.Open(backend.UsageDaemon)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Update(ctx, func(tx storage.Tx) error {
		return tx.Create(ctx, address.Address{1}, storage.Account{Owner: address.Address{2}, Data: []byte("v")})
	}))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.NotEmpty(t, entries, "account should be written under the configured directory")
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Config{Backend: "nope"}.Open(backend.UsageCLI)
	assert.ErrorContains(t, err, "unknown backend")
}

func TestOpenRejectsUnknownConfigKey(t *testing.T) {
	_, err := Config{Backend: "memory", Config: map[string]string{"localfs-dir": "/x"}}.Open(backend.UsageCLI)
	assert.Error(t, err)
}

func TestSelectPrefersConfigFile(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	bindings := backend.RegisterFlags(fs, backend.UsageCLI)
	dir := t.TempDir()
	require.NoError(t, fs.Parse([]string{"-localfs-dir", dir}))

	path := writeFile(t, "store.yaml", "backend: memory\n")
	s, err := Select(path, "localfs", bindings, backend.UsageCLI)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Select("", "localfs", bindings, backend.UsageCLI)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Select("", "", bindings, backend.UsageCLI)
	require.Error(t, err)
}
