package levels

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DhruvalBhuva/trading-algo/internal/capital"
)

type fakeHistory struct {
	candles []capital.PriceCandle
	err     error
	calls   int
}

func (f *fakeHistory) GetPrices(ctx context.Context, epic, resolution string, from, to time.Time, max int) ([]capital.PriceCandle, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.candles, nil
}

func dayCandle(day string, highBid, highAsk, lowBid, lowAsk float64) capital.PriceCandle {
	return capital.PriceCandle{
		SnapshotTime: day + "T00:00:00",
		High:         capital.PricePair{Bid: highBid, Ask: highAsk},
		Low:          capital.PricePair{Bid: lowBid, Ask: lowAsk},
	}
}

func TestLevels_FetchAndCache(t *testing.T) {
	source := &fakeHistory{
		candles: []capital.PriceCandle{dayCandle("2026-08-26", 2420, 2421, 2380, 2381)},
	}
	fs := afero.NewMemMapFs()
	svc := NewService(source, fs, "data/levels", nil)

	day := time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC)

	lv, err := svc.Levels(context.Background(), "GOLD", day)
	require.NoError(t, err)
	assert.Equal(t, 2420.0, lv.HighBid)
	assert.Equal(t, 2381.0, lv.LowAsk)
	assert.Equal(t, day, lv.TradingDay)
	assert.Equal(t, 1, source.calls)

	// Second lookup hits the cache.
	_, err = svc.Levels(context.Background(), "GOLD", day)
	require.NoError(t, err)
	assert.Equal(t, 1, source.calls)

	// Levels were persisted.
	data, err := afero.ReadFile(fs, "data/levels/GOLD.csv")
	require.NoError(t, err)
	assert.Contains(t, string(data), "2026-08-26,2420,2421,2380,2381")
}

func TestLevels_FileSurvivesRestart(t *testing.T) {
	source := &fakeHistory{
		candles: []capital.PriceCandle{dayCandle("2026-08-26", 2420, 2421, 2380, 2381)},
	}
	fs := afero.NewMemMapFs()
	day := time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC)

	svc := NewService(source, fs, "data/levels", nil)
	_, err := svc.Levels(context.Background(), "GOLD", day)
	require.NoError(t, err)

	// A fresh service on the same filesystem reads the file, not the API.
	svc2 := NewService(&fakeHistory{err: errors.New("should not be called")}, fs, "data/levels", nil)
	lv, err := svc2.Levels(context.Background(), "GOLD", day)
	require.NoError(t, err)
	assert.Equal(t, 2420.0, lv.HighBid)
}

func TestLevels_NoCandleForDay(t *testing.T) {
	source := &fakeHistory{
		candles: []capital.PriceCandle{dayCandle("2026-08-25", 1, 1, 1, 1)},
	}
	svc := NewService(source, afero.NewMemMapFs(), "data/levels", nil)

	_, err := svc.Levels(context.Background(), "GOLD", time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no daily candle")
}

func TestLevels_SourceError(t *testing.T) {
	source := &fakeHistory{err: errors.New("boom")}
	svc := NewService(source, afero.NewMemMapFs(), "data/levels", nil)

	_, err := svc.Levels(context.Background(), "GOLD", time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
}

func TestWarm(t *testing.T) {
	source := &fakeHistory{
		candles: []capital.PriceCandle{dayCandle("2026-08-28", 2420, 2421, 2380, 2381)},
	}
	svc := NewService(source, afero.NewMemMapFs(), "data/levels", nil)

	// Monday warms Friday's levels.
	monday := time.Date(2026, 8, 31, 9, 30, 0, 0, time.UTC)
	svc.Warm(context.Background(), []string{"GOLD"}, monday)
	assert.Equal(t, 1, source.calls)

	friday := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	lv, err := svc.Levels(context.Background(), "GOLD", friday)
	require.NoError(t, err)
	assert.Equal(t, 2420.0, lv.HighBid)
	assert.Equal(t, 1, source.calls)
}
