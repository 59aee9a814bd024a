package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultBaseURL          = "https://demo-api-capital.backend-capital.com/api/v1"
	DefaultStreamURL        = "wss://api-streaming-capital.backend-capital.com/connect"
	DefaultAPITimeout       = 30 * time.Second
	DefaultMaxRetries       = 3
	DefaultReconnectDelay   = 2 * time.Second
	DefaultPingInterval     = 30 * time.Second
	DefaultPongWait         = 10 * time.Second
	DefaultSubscribeDelay   = 100 * time.Millisecond
	DefaultSubscribeTimeout = 10 * time.Second
	DefaultStreamBuffer     = 1000
	DefaultResolution       = "MINUTE_15"
	DefaultRiskPercent      = 2.0
	DefaultTPPips           = 300
	DefaultPipSize          = 0.01
	DefaultContractSize     = 100
	DefaultDataDir          = "data"
	DefaultTradeBookPath    = "data/trade_book.csv"
	DefaultDBPort           = 5432
	DefaultDBSSLMode        = "prefer"
	DefaultMaxConns         = 10
	DefaultMinConns         = 2
	DefaultBatchSize        = 100
	DefaultFlushInterval    = 1 * time.Second
	DefaultWriterBuffer     = 1000
	DefaultMetricsPort      = 9090
	DefaultMetricsPath      = "/metrics"
)

func (c *TraderConfig) applyDefaults() {
	// API defaults
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultBaseURL
	}
	if c.API.StreamURL == "" {
		c.API.StreamURL = DefaultStreamURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}

	// Stream defaults
	if c.Stream.ReconnectDelay == 0 {
		c.Stream.ReconnectDelay = DefaultReconnectDelay
	}
	if c.Stream.PingInterval == 0 {
		c.Stream.PingInterval = DefaultPingInterval
	}
	if c.Stream.PongWait == 0 {
		c.Stream.PongWait = DefaultPongWait
	}
	if c.Stream.SubscribeDelay == 0 {
		c.Stream.SubscribeDelay = DefaultSubscribeDelay
	}
	if c.Stream.SubscribeTimeout == 0 {
		c.Stream.SubscribeTimeout = DefaultSubscribeTimeout
	}
	if c.Stream.BufferSize == 0 {
		c.Stream.BufferSize = DefaultStreamBuffer
	}

	// Strategy defaults
	if c.Strategy.Resolution == "" {
		c.Strategy.Resolution = DefaultResolution
	}
	if c.Strategy.RiskPercent == 0 {
		c.Strategy.RiskPercent = DefaultRiskPercent
	}
	if c.Strategy.TPPips == 0 {
		c.Strategy.TPPips = DefaultTPPips
	}
	if c.Strategy.PipSize == 0 {
		c.Strategy.PipSize = DefaultPipSize
	}
	if c.Strategy.ContractSize == 0 {
		c.Strategy.ContractSize = DefaultContractSize
	}

	// Storage defaults
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = DefaultDataDir
	}
	if c.Storage.TradeBookPath == "" {
		c.Storage.TradeBookPath = DefaultTradeBookPath
	}

	// Database defaults
	if c.Database.Enabled {
		applyDBDefaults(&c.Database.Timescale)
	}

	// Writers defaults
	if c.Writers.BatchSize == 0 {
		c.Writers.BatchSize = DefaultBatchSize
	}
	if c.Writers.FlushInterval == 0 {
		c.Writers.FlushInterval = DefaultFlushInterval
	}
	if c.Writers.BufferSize == 0 {
		c.Writers.BufferSize = DefaultWriterBuffer
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
