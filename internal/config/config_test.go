package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var overrideVars = []string{
	"HYPCERT_GAP", "HYPCERT_GAP_TIMEOUT", "HYPCERT_KBMAG_DIR", "HYPCERT_KBMAG_TIMEOUT",
	"HYPCERT_DB", "HYPCERT_ADDR", "HYPCERT_LOG_LEVEL",
}

// clearEnv unsets the override variables for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range overrideVars {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.True(t, cfg.Pipeline.ExternalTools)
	assert.True(t, cfg.Pipeline.Minimize)
	assert.Equal(t, time.Minute, cfg.GetGAPTimeout())
	assert.Equal(t, 10*time.Second, cfg.GetKBMAGTimeout())
	assert.Equal(t, 5*time.Minute, cfg.GetRequestTimeout())

	opts := cfg.PipelineOptions()
	assert.True(t, opts.EnableExternalTools)
	assert.True(t, opts.Minimize)
	assert.False(t, opts.CrossCheck)
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), DefaultPath))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), DefaultPath)
	yaml := `
pipeline:
  external_tools: false
  parallel: true
  minimize: true
gap:
  binary: /opt/gap/bin/gap.sh
  timeout: 90s
kbmag:
  bin_dir: /opt/kbmag/bin
  timeout: 3s
  maxeqns: 500
logging:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.False(t, cfg.Pipeline.ExternalTools)
	assert.True(t, cfg.Pipeline.Parallel)
	assert.Equal(t, 90*time.Second, cfg.GetGAPTimeout())
	assert.Equal(t, "1/100", cfg.GAP.Epsilon, "unset keys keep their defaults")
	assert.True(t, cfg.Logging.JSON())

	w := cfg.WalrusConfig()
	assert.Equal(t, "/opt/gap/bin/gap.sh", w.Binary)
	assert.Equal(t, []string{"-q", "-b"}, w.Arguments)
	assert.Equal(t, 90*time.Second, w.Timeout)

	k := cfg.KBMAGAdapterConfig()
	assert.Equal(t, "/opt/kbmag/bin", k.BinDir)
	assert.Equal(t, 3*time.Second, k.Timeout)
	assert.Equal(t, 500, k.MaxEquations)
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), DefaultPath)
	require.NoError(t, os.WriteFile(path, []byte("gap: [unclosed"), 0644))
	_, err := Load(path)
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("HYPCERT_GAP", "/usr/local/bin/gap")
	t.Setenv("HYPCERT_GAP_TIMEOUT", "2m")
	t.Setenv("HYPCERT_KBMAG_DIR", "/srv/kbmag")
	t.Setenv("HYPCERT_KBMAG_TIMEOUT", "30s")
	t.Setenv("HYPCERT_DB", "/tmp/results.db")
	t.Setenv("HYPCERT_LOG_LEVEL", "warn")

	path := filepath.Join(t.TempDir(), DefaultPath)
	require.NoError(t, os.WriteFile(path, []byte("gap:\n  binary: from-file\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/usr/local/bin/gap", cfg.GAP.Binary)
	assert.Equal(t, 2*time.Minute, cfg.GetGAPTimeout())
	assert.Equal(t, "/srv/kbmag", cfg.KBMAG.BinDir)
	assert.Equal(t, 30*time.Second, cfg.GetKBMAGTimeout())
	assert.Equal(t, "/tmp/results.db", cfg.Store.DatabasePath)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_RelativeKBMAGDir(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(DefaultPath, []byte("kbmag:\n  bin_dir: kbmag/bin\n"), 0644))

	cfg, err := Load(DefaultPath)
	require.NoError(t, err)
	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(wd, "kbmag", "bin"), cfg.KBMAG.BinDir)
	assert.Equal(t, cfg.KBMAG.BinDir, cfg.KBMAGAdapterConfig().BinDir)
}

func TestLoad_DotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("HYPCERT_KBMAG_DIR=/from/dotenv\nHYPCERT_DB=/from/dotenv.db\n"), 0644))
	t.Setenv("HYPCERT_DB", "/from/process.db")

	cfg, err := Load(filepath.Join(dir, DefaultPath))
	require.NoError(t, err)
	assert.Equal(t, "/from/dotenv", cfg.KBMAG.BinDir)
	assert.Equal(t, "/from/process.db", cfg.Store.DatabasePath, "process environment wins over .env")
}

func TestConfig_SaveLoad(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", DefaultPath)

	cfg := DefaultConfig()
	cfg.Pipeline.CrossCheck = true
	cfg.KBMAG.ConfNum = 7
	cfg.Server.Addr = "127.0.0.1:9000"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestDurationFallbacks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GAP.Timeout = "soon"
	cfg.KBMAG.Timeout = "-1s"
	cfg.Server.RequestTimeout = ""
	assert.Equal(t, time.Minute, cfg.GetGAPTimeout())
	assert.Equal(t, 10*time.Second, cfg.GetKBMAGTimeout())
	assert.Equal(t, 5*time.Minute, cfg.GetRequestTimeout())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"bad gap timeout", func(c *Config) { c.GAP.Timeout = "soon" }, "gap.timeout"},
		{"negative kbmag timeout", func(c *Config) { c.KBMAG.Timeout = "-5s" }, "kbmag.timeout"},
		{"bad epsilon", func(c *Config) { c.GAP.Epsilon = "zero" }, "epsilon"},
		{"negative maxeqns", func(c *Config) { c.KBMAG.MaxEquations = -1 }, "maxeqns"},
		{"no database", func(c *Config) { c.Store.DatabasePath = "" }, "database_path"},
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.errMsg)
		})
	}
}
