package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaults_Valid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 50, cfg.Retention)
	assert.Equal(t, 20, cfg.HistoryLimit)
	assert.Equal(t, "bbolt", cfg.Backend)
}

func TestLoad_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sitedoc.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen = "0.0.0.0:9000"
backend = "sqlite"
retention = 10
webhook_urls = ["http://a.example/hook", "http://b.example/hook"]
log_format = "text"
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Listen)
	assert.Equal(t, "sqlite", cfg.Backend)
	assert.Equal(t, 10, cfg.Retention)
	assert.Equal(t, 20, cfg.HistoryLimit, "unset keys keep defaults")
	assert.Len(t, cfg.WebhookURLs, 2)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sitedoc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /srv/sitedoc
requests_per_second: 2.5
burst: 5
log_level: debug
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/sitedoc", cfg.DataDir)
	assert.Equal(t, 2.5, cfg.RequestsPerSecond)
	assert.Equal(t, 5, cfg.Burst)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.ini")
	require.NoError(t, os.WriteFile(bad, []byte("x=1"), 0644))
	_, err = Load(bad)
	assert.Error(t, err)

	invalid := filepath.Join(dir, "invalid.toml")
	require.NoError(t, os.WriteFile(invalid, []byte(`retention = 0`), 0644))
	_, err = Load(invalid)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := Defaults()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"SITEDOC_LISTEN":              ":1234",
		"SITEDOC_RETENTION":           "7",
		"SITEDOC_REQUESTS_PER_SECOND": "0.5",
		"SITEDOC_WEBHOOK_URLS":        "http://a, ,http://b",
		"SITEDOC_ADMIN_TOKEN":         "secret",
		"SITEDOC_LOG_LEVEL":           "",
	}))
	require.NoError(t, err)
	assert.Equal(t, ":1234", cfg.Listen)
	assert.Equal(t, 7, cfg.Retention)
	assert.Equal(t, 0.5, cfg.RequestsPerSecond)
	assert.Equal(t, []string{"http://a", "http://b"}, cfg.WebhookURLs)
	assert.Equal(t, "secret", cfg.AdminToken)
	assert.Equal(t, "info", cfg.LogLevel, "empty values are ignored")
}

func TestApplyEnv_BadNumber(t *testing.T) {
	cfg := Defaults()
	err := cfg.ApplyEnv(envMap(map[string]string{"SITEDOC_BURST": "lots"}))
	assert.ErrorContains(t, err, "SITEDOC_BURST")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"backend", func(c *Config) { c.Backend = "postgres" }},
		{"retention", func(c *Config) { c.Retention = 0 }},
		{"history limit", func(c *Config) { c.HistoryLimit = -1 }},
		{"negative rate", func(c *Config) { c.RequestsPerSecond = -1 }},
		{"zero burst", func(c *Config) { c.Burst = 0 }},
		{"short secret", func(c *Config) { c.JWTSecret = "short" }},
		{"tls half", func(c *Config) { c.TLSCert = "cert.pem" }},
		{"log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"log format", func(c *Config) { c.LogFormat = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := Defaults()
	cfg.RequestsPerSecond = 0
	cfg.Burst = 0
	assert.NoError(t, cfg.Validate(), "burst is ignored when rate limiting is off")
}

func TestSave_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"out.toml", "out.yaml"} {
		t.Run(name, func(t *testing.T) {
			cfg := Defaults()
			cfg.Backend = "sqlite"
			cfg.WebhookURLs = []string{"http://hook"}
			path := filepath.Join(dir, name)
			require.NoError(t, cfg.Save(path))

			loaded, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, "sqlite", loaded.Backend)
			assert.Equal(t, []string{"http://hook"}, loaded.WebhookURLs)
		})
	}
}

func TestWorkspace_InitializeAndFind(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Initialize(dir, "sqlite")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, WorkspaceDir), cfg.Root())
	assert.Equal(t, cfg.Root(), cfg.DataDir)
	assert.Equal(t, "sqlite", cfg.Backend)

	_, err = Initialize(dir, "")
	assert.Error(t, err, "second init fails")

	nested := filepath.Join(dir, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))
	root, err := FindRoot(nested)
	require.NoError(t, err)
	assert.Equal(t, cfg.Root(), root)

	_, err = FindRoot(t.TempDir())
	assert.Error(t, err)
}

func TestWorkspace_InitializeRejectsBadBackend(t *testing.T) {
	dir := t.TempDir()
	_, err := Initialize(dir, "postgres")
	assert.Error(t, err)
	assert.NoDirExists(t, filepath.Join(dir, WorkspaceDir))
}

func TestParseLevel(t *testing.T) {
	for _, name := range []string{"debug", "info", "warn", "error", ""} {
		_, err := ParseLevel(name)
		assert.NoError(t, err, name)
	}
	_, err := ParseLevel("trace")
	assert.Error(t, err)
}
