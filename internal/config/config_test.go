package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "discord:\n  token: abc\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "abc", cfg.Discord.Token)
	assert.Equal(t, 20, cfg.History.MaxTurns)
	assert.Equal(t, 2000, cfg.History.ChunkSize)
	assert.Equal(t, "file", cfg.Snapshot.Backend)
	assert.Equal(t, "conversations.json", cfg.Snapshot.Path)
	assert.Equal(t, "deepseek-chat", cfg.LLM.Model)
	assert.Equal(t, []string{"deepseek-chat", "deepseek-reasoner"}, cfg.LLM.Models)
	assert.Equal(t, "eleven_monolingual_v1", cfg.TTS.ModelID)
	assert.InDelta(t, 0.3, cfg.TTS.Stability, 1e-9)
}

func TestLoad_Overrides(t *testing.T) {
	path := writeConfig(t, `
history:
  max_turns: 6
snapshot:
  backend: redis
llm:
  models: ["a", "b", "c"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.History.MaxTurns)
	assert.Equal(t, "redis", cfg.Snapshot.Backend)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.LLM.Models)
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeConfig(t, "discord:\n  token: from-file\n")
	t.Setenv("AIKO_DISCORD_TOKEN", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Discord.Token)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
