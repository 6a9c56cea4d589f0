package models

// MConfig Structure
type MConfig struct {
	Name         string           `yaml:"name" env:"NAME"`
	LogLevel     string           `yaml:"log_level" env:"LOG_LEVEL"`
	LogFormat    string           `yaml:"log_format" env:"LOG_FORMAT"`
	Ingestion    MIngestionConfig `yaml:"ingestion" envPrefix:"INGESTION_"`
	Egress       MEgressConfig    `yaml:"egress" envPrefix:"EGRESS_"`
	Control      MControlConfig   `yaml:"control" envPrefix:"CONTROL_"`
	Subjects     []string         `yaml:"subjects" env:"SUBJECTS" envSeparator:","`
	SubjectsFile string           `yaml:"subjects_file" env:"SUBJECTS_FILE"`
	Broker       MBrokerConfig    `yaml:"broker" envPrefix:"CORE_"`
	Publisher    MPublisherConfig `yaml:"publisher" envPrefix:"PUBLISHER_"`
}

type MIngestionConfig struct {
	Host                 string `yaml:"host" env:"HOST"`
	Port                 int    `yaml:"port" env:"PORT"`
	Path                 string `yaml:"path" env:"PATH"`
	ConcurrentPublishers bool   `yaml:"concurrent_publishers" env:"CONCURRENT_PUBLISHERS"`
}

type MEgressConfig struct {
	Host          string `yaml:"host" env:"HOST"`
	Port          int    `yaml:"port" env:"PORT"`
	Path          string `yaml:"path" env:"PATH"`
	PushDirectory bool   `yaml:"push_directory" env:"PUSH_DIRECTORY"`
}

type MControlConfig struct {
	Host string `yaml:"host" env:"HOST"`
	Port int    `yaml:"port" env:"PORT"` // 0 disables the gRPC health server
}

type MBrokerConfig struct {
	HistoryCapacity     int    `yaml:"history_capacity" env:"HISTORY_CAPACITY"`
	QueueMaxDepth       int    `yaml:"queue_max_depth" env:"QUEUE_MAX_DEPTH"` // 0 = unbounded
	QueueOverflowPolicy string `yaml:"queue_overflow_policy" env:"QUEUE_OVERFLOW_POLICY"`
	IdlePollMs          int    `yaml:"idle_poll_ms" env:"IDLE_POLL_MS"`
	KeepaliveCycles     int    `yaml:"keepalive_cycles" env:"KEEPALIVE_CYCLES"`
	WriteTimeoutMs      int    `yaml:"write_timeout_ms" env:"WRITE_TIMEOUT_MS"`
	MaxMessageBytes     int64  `yaml:"max_message_bytes" env:"MAX_MESSAGE_BYTES"`
}

type MPublisherConfig struct {
	BrokerURL       string         `yaml:"broker_url" env:"BROKER_URL"`
	PollIntervalMs  int            `yaml:"poll_interval_ms" env:"POLL_INTERVAL_MS"`
	MarketHoursOnly bool           `yaml:"market_hours_only" env:"MARKET_HOURS_ONLY"`
	PriceScale      int32          `yaml:"price_scale" env:"PRICE_SCALE"`
	MaxRetries      int            `yaml:"max_retries" env:"MAX_RETRIES"`
	Storage         MStorageConfig `yaml:"storage" envPrefix:"STORAGE_"`
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type" env:"DB_TYPE"`
	DBPath             string `yaml:"db_path" env:"DB_PATH"`
	DBConnectionString string `yaml:"db_connection_string" env:"DB_CONNECTION_STRING"`
}

// -----------------------------------------------------------------------------

// GetLogLevel satisfies logger.LevelSource
func (c *MConfig) GetLogLevel() string {
	if c == nil {
		return ""
	}
	return c.LogLevel
}

// GetLogFormat satisfies logger.LevelSource
func (c *MConfig) GetLogFormat() string {
	if c == nil {
		return ""
	}
	return c.LogFormat
}
