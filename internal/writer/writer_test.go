package writer

import (
	"context"
	"testing"
	"time"

	"github.com/DhruvalBhuva/trading-algo/internal/model"
)

func TestCandleWriter_Transform(t *testing.T) {
	cfg := DefaultWriterConfig()
	input := make(chan model.Candle, 10)
	w := NewCandleWriter(cfg, "m15", input, nil, nil)

	start := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	candle := model.Candle{
		Epic:      "GOLD",
		Open:      2400.5,
		High:      2410,
		Low:       2395,
		Close:     2405,
		Volume:    123,
		StartTime: start,
		EndTime:   start.Add(15 * time.Minute),
		ClosedAt:  start.Add(15*time.Minute + time.Second),
	}

	row := w.transform(candle)

	if row.Epic != "GOLD" {
		t.Errorf("Epic = %s, want GOLD", row.Epic)
	}
	if row.Resolution != "m15" {
		t.Errorf("Resolution = %s, want m15", row.Resolution)
	}
	if !row.StartTime.Equal(start) {
		t.Errorf("StartTime = %v, want %v", row.StartTime, start)
	}
	if row.Open != 2400.5 || row.Close != 2405 {
		t.Errorf("Open/Close = %v/%v, want 2400.5/2405", row.Open, row.Close)
	}
	if row.Volume != 123 {
		t.Errorf("Volume = %d, want 123", row.Volume)
	}
}

func TestCandleWriter_Lifecycle(t *testing.T) {
	cfg := WriterConfig{
		BatchSize:     10,
		FlushInterval: 100 * time.Millisecond,
	}
	input := make(chan model.Candle, 10)

	// No database attached; this exercises the goroutine lifecycle only.
	w := NewCandleWriter(cfg, "m15", input, nil, nil)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := w.Stop(stopCtx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestCandleWriter_HandleCandle_AddsToBatch(t *testing.T) {
	cfg := WriterConfig{
		BatchSize:     100, // Large batch so no auto-flush
		FlushInterval: time.Hour,
	}
	input := make(chan model.Candle, 10)
	w := NewCandleWriter(cfg, "m15", input, nil, nil)

	w.handleCandle(model.Candle{Epic: "GOLD", StartTime: time.Now()})

	w.batchMu.Lock()
	batchLen := len(w.batch)
	w.batchMu.Unlock()

	if batchLen != 1 {
		t.Errorf("batch length = %d, want 1", batchLen)
	}
}

func TestTradeWriter_Transform(t *testing.T) {
	cfg := DefaultWriterConfig()
	input := make(chan model.TradeRecord, 10)
	w := NewTradeWriter(cfg, input, nil, nil)

	tradeTime := time.Date(2026, 8, 28, 10, 15, 0, 0, time.UTC)
	rec := model.TradeRecord{
		TradeID:        "trade-123",
		TradeTime:      tradeTime,
		Epic:           "GOLD",
		Direction:      model.SideBuy,
		EntryPrice:     2400,
		StopLoss:       2395,
		TakeProfit:     2430,
		PositionSize:   4,
		RiskPercent:    2,
		AccountBalance: 10000,
		DealID:         "DEAL123",
		DealReference:  "ta_abc",
		StrategyName:   "breakout_m15",
		Status:         "SUBMITTED",
	}

	row := w.transform(rec)

	if row.TradeID != "trade-123" {
		t.Errorf("TradeID = %s, want trade-123", row.TradeID)
	}
	if row.Direction != "BUY" {
		t.Errorf("Direction = %s, want BUY", row.Direction)
	}
	if !row.TradeTime.Equal(tradeTime) {
		t.Errorf("TradeTime = %v, want %v", row.TradeTime, tradeTime)
	}
	if row.PositionSize != 4 {
		t.Errorf("PositionSize = %v, want 4", row.PositionSize)
	}
	if row.Strategy != "breakout_m15" {
		t.Errorf("Strategy = %s, want breakout_m15", row.Strategy)
	}
}

func TestTradeWriter_Lifecycle(t *testing.T) {
	cfg := WriterConfig{
		BatchSize:     10,
		FlushInterval: 100 * time.Millisecond,
	}
	input := make(chan model.TradeRecord, 10)
	w := NewTradeWriter(cfg, input, nil, nil)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := w.Stop(stopCtx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestTradeWriter_Stats(t *testing.T) {
	w := NewTradeWriter(DefaultWriterConfig(), make(chan model.TradeRecord), nil, nil)

	stats := w.Stats()
	if stats.Inserts != 0 {
		t.Errorf("initial Inserts = %d, want 0", stats.Inserts)
	}
	if stats.Errors != 0 {
		t.Errorf("initial Errors = %d, want 0", stats.Errors)
	}
}
