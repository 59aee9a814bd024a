package store

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/DhruvalBhuva/trading-algo/internal/model"
)

var tradeHeader = []string{
	"trade_id", "trade_date", "trade_time", "epic", "direction",
	"entry_price", "stop_loss", "take_profit", "position_size",
	"risk_percent", "account_balance", "yesterday_high", "yesterday_low",
	"c1_time", "c2_time", "order_type", "deal_id", "deal_reference",
	"strategy", "status",
}

// TradeBook appends executed trades to a single CSV file.
type TradeBook struct {
	fs     afero.Fs
	path   string
	logger *slog.Logger

	mu sync.Mutex
}

// NewTradeBook creates a trade book at path.
func NewTradeBook(fs afero.Fs, path string, logger *slog.Logger) *TradeBook {
	if logger == nil {
		logger = slog.Default()
	}

	return &TradeBook{
		fs:     fs,
		path:   path,
		logger: logger,
	}
}

// Append writes one trade record, creating the file with a header row on
// first use.
func (b *TradeBook) Append(rec model.TradeRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if dir := filepath.Dir(b.path); dir != "." {
		if err := b.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create trade book dir: %w", err)
		}
	}

	exists, err := afero.Exists(b.fs, b.path)
	if err != nil {
		return err
	}

	f, err := b.fs.OpenFile(b.path, appendFlags, 0o644)
	if err != nil {
		return fmt.Errorf("open trade book: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if !exists {
		if err := w.Write(tradeHeader); err != nil {
			return err
		}
	}

	row := []string{
		rec.TradeID,
		rec.TradeDate.UTC().Format("2006-01-02"),
		rec.TradeTime.UTC().Format(time.RFC3339),
		rec.Epic,
		string(rec.Direction),
		formatFloat(rec.EntryPrice),
		formatFloat(rec.StopLoss),
		formatFloat(rec.TakeProfit),
		formatFloat(rec.PositionSize),
		formatFloat(rec.RiskPercent),
		formatFloat(rec.AccountBalance),
		formatFloat(rec.YesterdayHigh),
		formatFloat(rec.YesterdayLow),
		rec.C1Time.UTC().Format(time.RFC3339),
		rec.C2Time.UTC().Format(time.RFC3339),
		rec.OrderType,
		rec.DealID,
		rec.DealReference,
		rec.StrategyName,
		rec.Status,
	}
	if err := w.Write(row); err != nil {
		return err
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	b.logger.Info("trade recorded",
		"trade_id", rec.TradeID,
		"epic", rec.Epic,
		"direction", rec.Direction,
		"status", rec.Status,
	)

	return nil
}
