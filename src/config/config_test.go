package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
name: test-broker
log_level: DEBUG
ingestion:
  host: 127.0.0.1
  port: 9003
egress:
  host: 127.0.0.1
  port: 9004
subjects: [AAPL, MSFT]
broker:
  queue_max_depth: 500
  queue_overflow_policy: disconnect
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewConfig_LoadsYAMLAndDefaults(t *testing.T) {
	cfg, err := NewConfig(writeFile(t, "broker.yaml", sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "test-broker", cfg.Name)
	assert.Equal(t, []string{"AAPL", "MSFT"}, cfg.Subjects)
	assert.Equal(t, "127.0.0.1:9003", cfg.IngestionAddr())
	assert.Equal(t, "127.0.0.1:9004", cfg.EgressAddr())
	assert.Equal(t, "", cfg.ControlAddr())

	assert.Equal(t, 120, cfg.Broker.HistoryCapacity)
	assert.Equal(t, 500, cfg.Broker.QueueMaxDepth)
	assert.Equal(t, "disconnect", cfg.Broker.QueueOverflowPolicy)
	assert.Equal(t, 10, cfg.Broker.IdlePollMs)
	assert.Equal(t, 100, cfg.Broker.KeepaliveCycles)
	assert.Equal(t, "/", cfg.Egress.Path)
	assert.Equal(t, int32(2), cfg.Publisher.PriceScale)
}

func TestNewConfig_EnvOverrides(t *testing.T) {
	t.Setenv("BROKER_EGRESS_PORT", "9100")
	t.Setenv("BROKER_SUBJECTS", "GOOG,AMZN")
	t.Setenv("BROKER_CORE_KEEPALIVE_CYCLES", "7")

	cfg, err := NewConfig(writeFile(t, "broker.yaml", sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Egress.Port)
	assert.Equal(t, []string{"GOOG", "AMZN"}, cfg.Subjects)
	assert.Equal(t, 7, cfg.Broker.KeepaliveCycles)
}

func TestNewConfig_SubjectsFile(t *testing.T) {
	list := writeFile(t, "subjects.txt", "# tickers\nMSFT\nTSLA\n\nNVDA\n")
	yml := sampleYAML + "subjects_file: " + list + "\n"

	cfg, err := NewConfig(writeFile(t, "broker.yaml", yml))
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT", "TSLA", "NVDA"}, cfg.Subjects)
}

func TestNewConfig_DedupesSubjects(t *testing.T) {
	list := writeFile(t, "subjects.txt", "MSFT\nAAPL\nTSLA\nTSLA\n")
	yml := strings.Replace(sampleYAML, "[AAPL, MSFT]", "[AAPL, AAPL, MSFT]", 1) + "subjects_file: " + list + "\n"

	cfg, err := NewConfig(writeFile(t, "broker.yaml", yml))
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT", "TSLA"}, cfg.Subjects)
}

func TestNewConfig_RejectsOversizedHistory(t *testing.T) {
	yml := strings.Replace(sampleYAML, "broker:\n", "broker:\n  history_capacity: 500\n  write_timeout_ms: -5\n", 1)

	_, err := NewConfig(writeFile(t, "broker.yaml", yml))
	assert.ErrorContains(t, err, "history capacity")
}

func TestNewConfig_Errors(t *testing.T) {
	_, err := NewConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = NewConfig(writeFile(t, "bad.yaml", "name: [unclosed"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"empty name", func(c *Config) { c.Name = "" }},
		{"low ingestion port", func(c *Config) { c.Ingestion.Port = 80 }},
		{"same addresses", func(c *Config) { c.Egress.Port = c.Ingestion.Port }},
		{"bad control port", func(c *Config) { c.Control.Port = 70000 }},
		{"wildcard subject", func(c *Config) { c.Subjects = []string{"*"} }},
		{"blank subject", func(c *Config) { c.Subjects = []string{" "} }},
		{"zero capacity", func(c *Config) { c.Broker.HistoryCapacity = 0 }},
		{"capacity above 120", func(c *Config) { c.Broker.HistoryCapacity = 500 }},
		{"negative write timeout", func(c *Config) { c.Broker.WriteTimeoutMs = -5 }},
		{"negative max message bytes", func(c *Config) { c.Broker.MaxMessageBytes = -1 }},
		{"negative depth", func(c *Config) { c.Broker.QueueMaxDepth = -1 }},
		{"unknown policy", func(c *Config) { c.Broker.QueueOverflowPolicy = "block" }},
		{"zero keepalive", func(c *Config) { c.Broker.KeepaliveCycles = 0 }},
		{"postgres without dsn", func(c *Config) { c.Publisher.Storage.DBType = "postgres" }},
	}

	require.NoError(t, Default().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")

	c := Default()
	c.Subjects = []string{"AAPL"}
	require.NoError(t, c.Save(path))

	loaded, err := NewConfig(path)
	require.NoError(t, err)
	assert.Equal(t, c.Subjects, loaded.Subjects)
	assert.Equal(t, c.Broker, loaded.Broker)
	assert.Equal(t, c.Publisher.Storage, loaded.Publisher.Storage)
}
