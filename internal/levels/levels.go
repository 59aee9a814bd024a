// Package levels resolves and caches previous-day high/low levels per
// epic. Levels are fetched from daily history candles, memoized in
// memory, and persisted to a small CSV file per epic so restarts do not
// refetch days already seen.
package levels

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/DhruvalBhuva/trading-algo/internal/capital"
	"github.com/DhruvalBhuva/trading-algo/internal/model"
	"github.com/DhruvalBhuva/trading-algo/internal/strategy"
)

const (
	dayLayout   = "2006-01-02"
	appendFlags = os.O_APPEND | os.O_CREATE | os.O_WRONLY
)

var csvHeader = []string{"trading_day", "high_bid", "high_ask", "low_bid", "low_ask"}

// HistorySource fetches historical price candles.
type HistorySource interface {
	GetPrices(ctx context.Context, epic, resolution string, from, to time.Time, max int) ([]capital.PriceCandle, error)
}

// Service implements the strategy's levels lookup.
type Service struct {
	source HistorySource
	fs     afero.Fs
	dir    string
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]model.DailyLevels // keyed by epic + "|" + day
}

// NewService creates a levels service persisting under dir.
func NewService(source HistorySource, fs afero.Fs, dir string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		source: source,
		fs:     fs,
		dir:    dir,
		logger: logger,
		cache:  make(map[string]model.DailyLevels),
	}
}

var _ strategy.LevelsSource = (*Service)(nil)

// Levels returns the high/low of the given trading day for an epic,
// consulting the in-memory cache, then the CSV file, then the history
// source.
func (s *Service) Levels(ctx context.Context, epic string, tradingDay time.Time) (model.DailyLevels, error) {
	day := tradingDay.UTC().Truncate(24 * time.Hour)
	key := cacheKey(epic, day)

	s.mu.Lock()
	defer s.mu.Unlock()

	if lv, ok := s.cache[key]; ok {
		return lv, nil
	}

	if lv, ok := s.loadFromFile(epic, day); ok {
		s.cache[key] = lv
		return lv, nil
	}

	lv, err := s.fetch(ctx, epic, day)
	if err != nil {
		return model.DailyLevels{}, err
	}

	s.cache[key] = lv
	if err := s.appendToFile(epic, lv); err != nil {
		s.logger.Warn("failed to persist levels", "epic", epic, "error", err)
	}

	return lv, nil
}

// Warm preloads the previous trading day's levels for each epic. Errors
// are logged, not returned; a cold epic resolves lazily later.
func (s *Service) Warm(ctx context.Context, epics []string, today time.Time) {
	prev := strategy.PreviousTradingDay(today.UTC().Truncate(24 * time.Hour))

	for _, epic := range epics {
		lv, err := s.Levels(ctx, epic, prev)
		if err != nil {
			s.logger.Warn("levels warm-up failed",
				"epic", epic,
				"trading_day", prev.Format(dayLayout),
				"error", err,
			)
			continue
		}
		s.logger.Info("levels warmed",
			"epic", epic,
			"trading_day", prev.Format(dayLayout),
			"high", lv.HighBid,
			"low", lv.LowBid,
		)
	}
}

// fetch pulls the day's candle from the history source.
func (s *Service) fetch(ctx context.Context, epic string, day time.Time) (model.DailyLevels, error) {
	from := day
	to := day.Add(24 * time.Hour)

	candles, err := s.source.GetPrices(ctx, epic, "DAY", from, to, 10)
	if err != nil {
		return model.DailyLevels{}, fmt.Errorf("fetch daily candles: %w", err)
	}

	for _, c := range candles {
		t, err := c.Time()
		if err != nil {
			continue
		}
		if t.UTC().Truncate(24 * time.Hour).Equal(day) {
			return model.DailyLevels{
				TradingDay: day,
				HighBid:    c.High.Bid,
				HighAsk:    c.High.Ask,
				LowBid:     c.Low.Bid,
				LowAsk:     c.Low.Ask,
			}, nil
		}
	}

	return model.DailyLevels{}, fmt.Errorf("no daily candle for %s on %s", epic, day.Format(dayLayout))
}

func (s *Service) filePath(epic string) string {
	return filepath.Join(s.dir, epic+".csv")
}

func (s *Service) loadFromFile(epic string, day time.Time) (model.DailyLevels, bool) {
	f, err := s.fs.Open(s.filePath(epic))
	if err != nil {
		return model.DailyLevels{}, false
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		s.logger.Warn("unreadable levels file", "epic", epic, "error", err)
		return model.DailyLevels{}, false
	}

	want := day.Format(dayLayout)
	for _, rec := range records {
		if len(rec) != len(csvHeader) || rec[0] != want {
			continue
		}
		lv := model.DailyLevels{TradingDay: day}
		var errs [4]error
		lv.HighBid, errs[0] = strconv.ParseFloat(rec[1], 64)
		lv.HighAsk, errs[1] = strconv.ParseFloat(rec[2], 64)
		lv.LowBid, errs[2] = strconv.ParseFloat(rec[3], 64)
		lv.LowAsk, errs[3] = strconv.ParseFloat(rec[4], 64)
		for _, e := range errs {
			if e != nil {
				return model.DailyLevels{}, false
			}
		}
		return lv, true
	}

	return model.DailyLevels{}, false
}

func (s *Service) appendToFile(epic string, lv model.DailyLevels) error {
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}

	path := s.filePath(epic)
	exists, err := afero.Exists(s.fs, path)
	if err != nil {
		return err
	}

	f, err := s.fs.OpenFile(path, appendFlags, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if !exists {
		if err := w.Write(csvHeader); err != nil {
			return err
		}
	}
	row := []string{
		lv.TradingDay.Format(dayLayout),
		formatFloat(lv.HighBid),
		formatFloat(lv.HighAsk),
		formatFloat(lv.LowBid),
		formatFloat(lv.LowAsk),
	}
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func cacheKey(epic string, day time.Time) string {
	return epic + "|" + day.Format(dayLayout)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
