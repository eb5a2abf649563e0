package setup

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmatrace-server/internal/memstore"
)

func TestRegister_KeepsOtherServers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client", "config.json")
	require.NoError(t, SaveClientConfig(path, &ClientConfig{MCPServers: map[string]ServerEntry{
		"other": {Command: "/bin/other"},
	}}))

	_, err := Register(Options{ConfigPath: path, BinaryPath: "/opt/mcp-server-lite", DataDir: "/var/lib/pt"})
	require.NoError(t, err)

	cfg, err := LoadClientConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/bin/other", cfg.MCPServers["other"].Command)
	entry := cfg.MCPServers[ServerName]
	assert.Equal(t, "/opt/mcp-server-lite", entry.Command)
	assert.Equal(t, "/var/lib/pt", entry.Env["PHARMATRACE_DATA_DIR"])
}

func TestRegister_RequiresBinary(t *testing.T) {
	_, err := Register(Options{ConfigPath: filepath.Join(t.TempDir(), "c.json")})
	assert.Error(t, err)
}

func TestLoadClientConfig_Missing(t *testing.T) {
	cfg, err := LoadClientConfig(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Empty(t, cfg.MCPServers)
}

func TestWriteSampleSeed(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")

	path, written, err := WriteSampleSeed(dir)
	require.NoError(t, err)
	assert.True(t, written)

	_, written, err = WriteSampleSeed(dir)
	require.NoError(t, err)
	assert.False(t, written)

	store := memstore.New()
	require.NoError(t, store.LoadSeedFile(path))
	m, err := store.Stores().Matches.Get(context.Background(), "demo-patient-1", "NCT00000001")
	require.NoError(t, err)
	assert.Equal(t, 88, m.MatchScore)
}

func TestGetStatus(t *testing.T) {
	tmp := t.TempDir()
	configPath := filepath.Join(tmp, "config.json")

	st, err := GetStatus(configPath, tmp)
	require.NoError(t, err)
	assert.False(t, st.Registered)
	assert.NotEmpty(t, st.Issues)

	bin := filepath.Join(tmp, "mcp-server-lite")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"), 0755))
	_, err = Register(Options{ConfigPath: configPath, BinaryPath: bin})
	require.NoError(t, err)
	_, _, err = WriteSampleSeed(tmp)
	require.NoError(t, err)

	st, err = GetStatus(configPath, tmp)
	require.NoError(t, err)
	assert.True(t, st.Registered)
	assert.True(t, st.SeedFound)
	assert.Empty(t, st.Issues)
}

func TestCLI(t *testing.T) {
	tmp := t.TempDir()
	var out bytes.Buffer
	cli := &CLI{
		DataDir:    tmp,
		ConfigPath: filepath.Join(tmp, "config.json"),
		out:        &out,
		in:         bufio.NewReader(strings.NewReader("n\n")),
	}

	require.NoError(t, cli.Run([]string{"client", "--binary", "/opt/bin"}))
	assert.Contains(t, out.String(), "Cancelled.")
	_, err := os.Stat(cli.ConfigPath)
	assert.True(t, os.IsNotExist(err))

	out.Reset()
	require.NoError(t, cli.Run([]string{"client", "--binary", "/opt/bin", "-y"}))
	assert.Contains(t, out.String(), "Registered.")

	out.Reset()
	require.NoError(t, cli.Run([]string{"seed"}))
	assert.Contains(t, out.String(), "Wrote sample seed")

	out.Reset()
	require.NoError(t, cli.Run([]string{"status"}))
	assert.Contains(t, out.String(), "Registered:    true")
	assert.Contains(t, out.String(), "Seed present:  true")

	out.Reset()
	require.NoError(t, cli.Run(nil))
	assert.Contains(t, out.String(), "Usage:")
}
