package config

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"market-broker/src/cache"
	"market-broker/src/models"
	"market-broker/src/queue"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "BROKER_"

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// Default returns a config populated with every default value.
func Default() *Config {
	c := &Config{MConfig: &models.MConfig{
		Name:     "market-broker",
		LogLevel: "INFO",
		Ingestion: models.MIngestionConfig{
			Host: "localhost",
			Port: 9003,
		},
		Egress: models.MEgressConfig{
			Host: "localhost",
			Port: 9004,
		},
		Publisher: models.MPublisherConfig{
			BrokerURL: "ws://localhost:9003/",
			Storage:   models.MStorageConfig{DBType: "sqlite", DBPath: "trades.db"},
		},
	}}
	c.applyDefaults()
	return c
}

// -----------------------------------------------------------------------------

// NewConfig creates a new Config instance from YAML file, .env and environment
func NewConfig(configPath string) (*Config, error) {
	// 1. Read the YAML file content
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	// 2. Unmarshal data into the models struct
	var modelConfig models.MConfig
	if err := yaml.Unmarshal(data, &modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	config := &Config{MConfig: &modelConfig}

	// 3. Environment overrides
	if err := config.applyEnv(); err != nil {
		return nil, err
	}

	// 4. Subjects file and defaults
	if err := config.loadSubjectsFile(); err != nil {
		return nil, err
	}
	config.dedupeSubjects()
	config.applyDefaults()

	// 5. Validate the loaded configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

func (c *Config) applyEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	if err := env.ParseWithOptions(c.MConfig, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("failed to parse environment overrides: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

// loadSubjectsFile appends a newline separated subject list to Subjects.
// Blank lines and lines starting with '#' are skipped.
func (c *Config) loadSubjectsFile() error {
	if c.SubjectsFile == "" {
		return nil
	}

	file, err := os.Open(c.SubjectsFile)
	if err != nil {
		return fmt.Errorf("failed to open subjects file '%s': %w", c.SubjectsFile, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		c.Subjects = append(c.Subjects, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read subjects file '%s': %w", c.SubjectsFile, err)
	}
	return nil
}

// -----------------------------------------------------------------------------

// dedupeSubjects drops repeated subjects, keeping the first occurrence.
func (c *Config) dedupeSubjects() {
	seen := make(map[string]struct{}, len(c.Subjects))
	unique := c.Subjects[:0]
	for _, s := range c.Subjects {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		unique = append(unique, s)
	}
	c.Subjects = unique
}

// -----------------------------------------------------------------------------

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = "market-broker"
	}
	if c.LogLevel == "" {
		c.LogLevel = "INFO"
	}
	if c.Ingestion.Path == "" {
		c.Ingestion.Path = "/"
	}
	if c.Egress.Path == "" {
		c.Egress.Path = "/"
	}

	b := &c.Broker
	if b.HistoryCapacity == 0 {
		b.HistoryCapacity = 120
	}
	if b.QueueOverflowPolicy == "" {
		b.QueueOverflowPolicy = string(queue.DropOldest)
	}
	if b.IdlePollMs == 0 {
		b.IdlePollMs = 10
	}
	if b.KeepaliveCycles == 0 {
		b.KeepaliveCycles = 100
	}
	if b.WriteTimeoutMs == 0 {
		b.WriteTimeoutMs = 2000
	}
	if b.MaxMessageBytes == 0 {
		b.MaxMessageBytes = 64 * 1024
	}

	p := &c.Publisher
	if p.PollIntervalMs == 0 {
		p.PollIntervalMs = 1000
	}
	if p.PriceScale == 0 {
		p.PriceScale = 2
	}
	if p.MaxRetries == 0 {
		p.MaxRetries = 5
	}
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	// Listeners
	if c.Ingestion.Host == "" {
		return fmt.Errorf("ingestion host cannot be empty")
	}
	if err := validatePort("ingestion", c.Ingestion.Port); err != nil {
		return err
	}
	if c.Egress.Host == "" {
		return fmt.Errorf("egress host cannot be empty")
	}
	if err := validatePort("egress", c.Egress.Port); err != nil {
		return err
	}
	if c.IngestionAddr() == c.EgressAddr() {
		return fmt.Errorf("ingestion and egress must listen on different addresses (%s)", c.IngestionAddr())
	}
	if c.Control.Port != 0 {
		if err := validatePort("control", c.Control.Port); err != nil {
			return err
		}
	}

	// Subjects
	for i, s := range c.Subjects {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("subject %d cannot be empty", i)
		}
		if s == "*" {
			return fmt.Errorf("subject %d uses the reserved wildcard name", i)
		}
	}

	// Broker
	b := c.Broker
	if b.HistoryCapacity <= 0 || b.HistoryCapacity > cache.DefaultHistoryCapacity {
		return fmt.Errorf("history capacity must be between 1 and %d", cache.DefaultHistoryCapacity)
	}
	if b.QueueMaxDepth < 0 {
		return fmt.Errorf("queue max depth cannot be negative")
	}
	if _, err := queue.ParsePolicy(b.QueueOverflowPolicy); err != nil {
		return err
	}
	if b.IdlePollMs <= 0 {
		return fmt.Errorf("idle poll interval must be greater than 0")
	}
	if b.KeepaliveCycles <= 0 {
		return fmt.Errorf("keepalive cycles must be greater than 0")
	}
	if b.WriteTimeoutMs <= 0 {
		return fmt.Errorf("write timeout must be greater than 0")
	}
	if b.MaxMessageBytes <= 0 {
		return fmt.Errorf("max message bytes must be greater than 0")
	}

	// Publisher
	p := c.Publisher
	if p.PollIntervalMs <= 0 {
		return fmt.Errorf("publisher poll interval must be greater than 0")
	}
	if p.PriceScale < 0 {
		return fmt.Errorf("publisher price scale cannot be negative")
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("publisher max retries cannot be negative")
	}
	if p.Storage.DBType == "sqlite" && p.Storage.DBPath == "" {
		return fmt.Errorf("database path cannot be empty for sqlite")
	}
	if p.Storage.DBType == "postgres" && p.Storage.DBConnectionString == "" {
		return fmt.Errorf("database connection string cannot be empty for postgres")
	}

	return nil
}

// -----------------------------------------------------------------------------

func validatePort(what string, port int) error {
	if port <= 1024 || port > 65535 {
		return fmt.Errorf("invalid %s port number: %d (must be between 1025 and 65535)", what, port)
	}
	return nil
}

// -----------------------------------------------------------------------------

// IngestionAddr is the host:port the ingestion listener binds.
func (c *Config) IngestionAddr() string {
	return fmt.Sprintf("%s:%d", c.Ingestion.Host, c.Ingestion.Port)
}

// EgressAddr is the host:port the egress listener binds.
func (c *Config) EgressAddr() string {
	return fmt.Sprintf("%s:%d", c.Egress.Host, c.Egress.Port)
}

// ControlAddr is the host:port of the gRPC health server, empty when disabled.
func (c *Config) ControlAddr() string {
	if c.Control.Port == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Control.Host, c.Control.Port)
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	// 1. Marshal the struct to YAML
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// 2. Write to file (0644 permissions)
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}
