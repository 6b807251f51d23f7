package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig_IsValid(t *testing.T) {
	config := NewDefaultConfig()
	require.NoError(t, config.Validate())

	assert.Equal(t, "https://karshak.ap.gov.in/ecrop/", config.Portal.URL)
	assert.Equal(t, 3, config.Scan.MaxRepeatedUpdates)
	assert.Equal(t, "mobile_replacements.txt", config.Audit.ReplacementsFile)
	assert.Equal(t, "invalid_mobile_log.txt", config.Audit.InvalidMobileFile)
	assert.Equal(t, "skipped_khatas.txt", config.Audit.SkippedKhataFile)
	assert.Equal(t, "fatal_error.png", config.Audit.ScreenshotFile)
}

func TestLoadFromFiles_LaterFileOverrides(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.toml")
	override := filepath.Join(dir, "override.toml")

	require.NoError(t, os.WriteFile(base, []byte(`
[server]
port = 9000

[timeouts]
row_discovery = "2s"
`), 0644))
	require.NoError(t, os.WriteFile(override, []byte(`
[server]
port = 9100

[scan]
max_repeated_updates = 0
`), 0644))

	config, err := LoadFromFiles(base, override)
	require.NoError(t, err)

	assert.Equal(t, 9100, config.Server.Port)
	assert.Equal(t, "2s", config.Timeouts.RowDiscovery)
	assert.Equal(t, 0, config.Scan.MaxRepeatedUpdates)
	assert.Equal(t, "10s", config.Timeouts.Transition, "untouched keys keep defaults")
}

func TestLoadFromFiles_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ecrop.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\nport = 9000\n"), 0644))

	t.Setenv("ECROP_SERVER_PORT", "9200")
	t.Setenv("ECROP_BROWSER_HEADLESS", "true")
	t.Setenv("ECROP_LOG_OUTPUT", "stdout, file ,")

	config, err := LoadFromFiles(path)
	require.NoError(t, err)

	assert.Equal(t, 9200, config.Server.Port)
	assert.True(t, config.Browser.Headless)
	assert.Equal(t, []string{"stdout", "file"}, config.Logging.Output)
}

func TestLoadFromFiles_MissingFile(t *testing.T) {
	_, err := LoadFromFiles(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"bad duration", func(c *Config) { c.Timeouts.Settle = "soon" }},
		{"negative duration", func(c *Config) { c.Timeouts.FieldRead = "-1s" }},
		{"negative restart guard", func(c *Config) { c.Scan.MaxRepeatedUpdates = -1 }},
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"license without sheet", func(c *Config) { c.License.Enabled = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := NewDefaultConfig()
			tt.mutate(config)
			assert.Error(t, config.Validate())
		})
	}
}

func TestParseDurationOr(t *testing.T) {
	assert.Equal(t, 1500*time.Millisecond, ParseDurationOr("1.5s", time.Second))
	assert.Equal(t, time.Second, ParseDurationOr("", time.Second))
	assert.Equal(t, time.Second, ParseDurationOr("nope", time.Second))
}

func TestApplyFlagOverrides(t *testing.T) {
	config := NewDefaultConfig()
	ApplyFlagOverrides(config, 0, "")
	assert.Equal(t, 8080, config.Server.Port)

	ApplyFlagOverrides(config, 7000, "0.0.0.0")
	assert.Equal(t, 7000, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
}
