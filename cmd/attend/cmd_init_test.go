package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/attendbot/attend/internal/projectconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitCommand_NonInteractive(t *testing.T) {
	p := filepath.Join(t.TempDir(), "conf", ".attend.yaml")

	out, err := runCLI(t, "init", "--config", p,
		"--username", "2021001", "--password", "s3cret",
		"--base-url", "https://elearning.kampus.ac.id/", "--timezone", "Asia/Makassar")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+p)

	info, err := os.Stat(p)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	cfg, err := projectconfig.LoadFile(p)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "2021001", cfg.Credentials.Username)
	assert.Equal(t, "https://elearning.kampus.ac.id", cfg.Portal.BaseURL)
	assert.Equal(t, "Asia/Makassar", cfg.Timezone)
}

func TestInitCommand_RefusesOverwrite(t *testing.T) {
	p := writeConfig(t, "")
	before, err := os.ReadFile(p)
	require.NoError(t, err)

	_, err = runCLI(t, "init", "--config", p, "--username", "u2", "--password", "p2")
	assert.ErrorContains(t, err, "already exists")
	after, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	_, err = runCLI(t, "init", "--config", p, "--username", "u2", "--password", "p2", "--force")
	require.NoError(t, err)
	cfg, err := projectconfig.LoadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "u2", cfg.Credentials.Username)
}

func TestInitCommand_RejectsPlaceholder(t *testing.T) {
	p := filepath.Join(t.TempDir(), ".attend.yaml")
	_, err := runCLI(t, "init", "--config", p, "--username", projectconfig.PlaceholderUsername, "--password", "x")

	var ce *projectconfig.ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ExitConfig, exitCode(err))
	assert.NoFileExists(t, p)
}
