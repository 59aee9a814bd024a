// Package writer implements batch writers that mirror closed candles and
// executed trades into TimescaleDB. Writers are append-only and tolerate
// duplicate delivery via ON CONFLICT DO NOTHING.
package writer

import (
	"time"
)

// WriterConfig contains configuration for batch writers.
type WriterConfig struct {
	// BatchSize is the number of rows to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     100,
		FlushInterval: 5 * time.Second,
	}
}

// candleRow represents a row for the candles table.
type candleRow struct {
	Epic       string
	Resolution string
	StartTime  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	EndTime    time.Time
	ClosedAt   time.Time
}

// tradeRow represents a row for the trades table.
type tradeRow struct {
	TradeID        string // UUID
	TradeTime      time.Time
	Epic           string
	Direction      string
	EntryPrice     float64
	StopLoss       float64
	TakeProfit     float64
	PositionSize   float64
	RiskPercent    float64
	AccountBalance float64
	DealID         string
	DealReference  string
	Strategy       string
	Status         string
}

// WriterMetrics holds metrics for a writer.
type WriterMetrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
}
