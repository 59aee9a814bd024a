// Package store persists closed candles and executed trades to CSV
// files. Files are organized per market and day so a long-running
// instance produces small, greppable artifacts.
package store

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/DhruvalBhuva/trading-algo/internal/model"
)

const appendFlags = os.O_APPEND | os.O_CREATE | os.O_WRONLY

var candleHeader = []string{
	"start_time", "open", "high", "low", "close", "volume",
	"end_time", "closed_at", "epic",
}

// marketNames maps well-known epics to friendly directory names.
var marketNames = map[string]string{
	"GOLD":      "gold",
	"SILVER":    "silver",
	"BTCUSD":    "bitcoin",
	"ETHUSD":    "ethereum",
	"EURUSD":    "eurusd",
	"GBPUSD":    "gbpusd",
	"US500":     "sp500",
	"OIL_CRUDE": "crude_oil",
}

// marketName returns the directory name for an epic, lowercasing and
// cleaning unknown ones.
func marketName(epic string) string {
	if name, ok := marketNames[epic]; ok {
		return name
	}

	var b strings.Builder
	for _, r := range strings.ToLower(epic) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

// CandleStore appends closed candles to one CSV file per market and day.
type CandleStore struct {
	fs         afero.Fs
	dir        string
	resolution string // short form, used in file names
	logger     *slog.Logger

	mu sync.Mutex
}

// NewCandleStore creates a candle store rooted at dir.
func NewCandleStore(fs afero.Fs, dir, resolution string, logger *slog.Logger) *CandleStore {
	if logger == nil {
		logger = slog.Default()
	}

	return &CandleStore{
		fs:         fs,
		dir:        dir,
		resolution: resolution,
		logger:     logger,
	}
}

// Append writes one closed candle.
func (s *CandleStore) Append(candle model.Candle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	market := marketName(candle.Epic)
	dir := filepath.Join(s.dir, market)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create candle dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_%s.csv", s.resolution, candle.Date().Format("2006-01-02")))

	exists, err := afero.Exists(s.fs, path)
	if err != nil {
		return err
	}

	f, err := s.fs.OpenFile(path, appendFlags, 0o644)
	if err != nil {
		return fmt.Errorf("open candle file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if !exists {
		if err := w.Write(candleHeader); err != nil {
			return err
		}
	}

	row := []string{
		candle.StartTime.UTC().Format(time.RFC3339),
		formatFloat(candle.Open),
		formatFloat(candle.High),
		formatFloat(candle.Low),
		formatFloat(candle.Close),
		strconv.FormatInt(candle.Volume, 10),
		candle.EndTime.UTC().Format(time.RFC3339),
		candle.ClosedAt.UTC().Format(time.RFC3339),
		candle.Epic,
	}
	if err := w.Write(row); err != nil {
		return err
	}

	w.Flush()
	return w.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
