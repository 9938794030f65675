package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestLoadFileMergesLocalOverrides(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "scraper.json5")
	writeFile(t, name, `{
		// comments are allowed in json5
		base_url: "http://catalogue.test",
		max_pages: 5,
		delay: "250ms",
		follow_details: false,
	}`)
	writeFile(t, filepath.Join(dir, "scraper.local.json5"), `{
		max_pages: 7,
		output_format: "CSV",
	}`)

	cfg := DefaultConfig()
	require.NoError(t, LoadFile(cfg, name))

	assert.Equal(t, "http://catalogue.test", cfg.BaseURL)
	assert.Equal(t, 7, cfg.MaxPages)
	assert.Equal(t, 250*time.Millisecond, cfg.Delay)
	assert.Equal(t, "csv", cfg.OutputFormat)
	assert.False(t, cfg.FollowDetails)
	// untouched values keep their defaults
	assert.Equal(t, DefaultConfig().Timeout, cfg.Timeout)
	assert.Equal(t, DefaultConfig().AbortThreshold, cfg.AbortThreshold)
	require.NoError(t, cfg.Validate())
}

func TestLoadFileKeepsExplicitZeros(t *testing.T) {
	name := filepath.Join(t.TempDir(), "scraper.json5")
	writeFile(t, name, `{
		max_retries: 0,
		delay: "0s",
		detail_delay: "0s",
		random_delay: "0s",
	}`)

	cfg := DefaultConfig()
	require.NotZero(t, cfg.MaxRetries)
	require.NotZero(t, cfg.Delay)
	require.NoError(t, LoadFile(cfg, name))

	assert.Zero(t, cfg.MaxRetries)
	assert.Zero(t, cfg.Delay)
	assert.Zero(t, cfg.DetailDelay)
	assert.Zero(t, cfg.RandomDelay)
	assert.Equal(t, DefaultConfig().Timeout, cfg.Timeout)
	require.NoError(t, cfg.Validate())
}

func TestLoadFileMissing(t *testing.T) {
	cfg := DefaultConfig()
	err := LoadFile(cfg, filepath.Join(t.TempDir(), "absent.json5"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoadFileBadDuration(t *testing.T) {
	name := filepath.Join(t.TempDir(), "scraper.json5")
	writeFile(t, name, `{timeout: "soon"}`)

	err := LoadFile(DefaultConfig(), name)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("SCRAPER_PAGES", "3")
	t.Setenv("SCRAPER_DELAY", "1500ms")
	t.Setenv("SCRAPER_OUTPUT", "tmp/out.csv")
	t.Setenv("SCRAPER_FOLLOW_DETAILS", "false")

	cfg := DefaultConfig()
	require.NoError(t, ApplyEnv(cfg))

	assert.Equal(t, 3, cfg.MaxPages)
	assert.Equal(t, 1500*time.Millisecond, cfg.Delay)
	assert.Equal(t, "tmp/out.csv", cfg.OutputFile)
	assert.False(t, cfg.FollowDetails)
}

func TestApplyEnvRejectsGarbage(t *testing.T) {
	t.Setenv("SCRAPER_PAGES", "many")
	require.Error(t, ApplyEnv(DefaultConfig()))
}
