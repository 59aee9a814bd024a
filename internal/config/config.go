package config

import "time"

// TraderConfig is the root configuration for a trader instance.
type TraderConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	API      APIConfig      `yaml:"api"`
	Stream   StreamConfig   `yaml:"stream"`
	Strategy StrategyConfig `yaml:"strategy"`
	Storage  StorageConfig  `yaml:"storage"`
	Database DatabaseConfig `yaml:"database"`
	Writers  WritersConfig  `yaml:"writers"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// InstanceConfig identifies this trader.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// APIConfig holds Capital.com REST API settings.
type APIConfig struct {
	BaseURL    string        `yaml:"base_url"`
	StreamURL  string        `yaml:"stream_url"`
	APIKey     string        `yaml:"api_key"`
	Identifier string        `yaml:"identifier"`
	Password   string        `yaml:"password"`
	AccountID  string        `yaml:"account_id"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// StreamConfig holds WebSocket session settings.
type StreamConfig struct {
	ReconnectDelay   time.Duration `yaml:"reconnect_delay"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	PongWait         time.Duration `yaml:"pong_wait"`
	SubscribeDelay   time.Duration `yaml:"subscribe_delay"`
	SubscribeTimeout time.Duration `yaml:"subscribe_timeout"`
	BufferSize       int           `yaml:"buffer_size"`
}

// StrategyConfig holds breakout strategy settings.
type StrategyConfig struct {
	Epics        []string `yaml:"epics"`
	Resolution   string   `yaml:"resolution"`
	RiskPercent  float64  `yaml:"risk_percent"`
	TPPips       float64  `yaml:"tp_pips"`
	PipSize      float64  `yaml:"pip_size"`
	ContractSize float64  `yaml:"contract_size"`
}

// StorageConfig holds CSV persistence settings.
type StorageConfig struct {
	DataDir       string `yaml:"data_dir"`
	TradeBookPath string `yaml:"trade_book_path"`
}

// DatabaseConfig holds the optional TimescaleDB connection for candle and
// trade history. The trader runs without a database when disabled.
type DatabaseConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Timescale DBConfig `yaml:"timescale"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// WritersConfig holds batch writer settings.
type WritersConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// MetricsConfig holds health/metrics endpoint settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
