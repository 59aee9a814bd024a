// Package aggregator turns raw ticks into fixed-interval OHLC candles,
// one in-progress candle per epic. A candle is emitted exactly once, when
// the first tick of the next bucket arrives.
package aggregator

import (
	"log/slog"
	"sync"
	"time"

	"github.com/DhruvalBhuva/trading-algo/internal/model"
)

// Stats holds aggregation counters.
type Stats struct {
	TicksProcessed int64
	CandlesClosed  int64
}

// Aggregator maintains one in-progress candle per epic. OHLC prices are
// bid-driven; volume is the tick count. Late ticks from an earlier bucket
// are folded into the current candle rather than rejected.
type Aggregator struct {
	resolution Resolution
	logger     *slog.Logger

	mu       sync.Mutex
	current  map[string]*model.Candle
	lastTick map[string]model.Tick
	stats    Stats
}

// New creates an aggregator for the given resolution.
func New(resolution Resolution, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}

	return &Aggregator{
		resolution: resolution,
		logger:     logger,
		current:    make(map[string]*model.Candle),
		lastTick:   make(map[string]model.Tick),
	}
}

// ProcessTick folds a tick into the epic's in-progress candle. When the
// tick opens a new bucket, the previous candle is frozen and returned;
// otherwise the return is nil.
func (a *Aggregator) ProcessTick(tick model.Tick) *model.Candle {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stats.TicksProcessed++
	a.lastTick[tick.Epic] = tick

	bucketStart := a.resolution.Truncate(tick.Timestamp)

	cur, ok := a.current[tick.Epic]
	if !ok {
		a.current[tick.Epic] = a.newCandle(tick, bucketStart)
		return nil
	}

	if bucketStart.After(cur.StartTime) {
		closed := *cur
		closed.EndTime = closed.StartTime.Add(a.resolution.Duration())
		closed.ClosedAt = tick.ReceivedAt

		a.current[tick.Epic] = a.newCandle(tick, bucketStart)
		a.stats.CandlesClosed++

		a.logger.Debug("candle closed",
			"epic", closed.Epic,
			"start", closed.StartTime,
			"open", closed.Open,
			"close", closed.Close,
			"volume", closed.Volume,
		)

		return &closed
	}

	// Same bucket, or a late tick from an earlier one.
	if tick.Bid > cur.High {
		cur.High = tick.Bid
	}
	if tick.Bid < cur.Low {
		cur.Low = tick.Bid
	}
	cur.Close = tick.Bid
	cur.Volume++

	return nil
}

func (a *Aggregator) newCandle(tick model.Tick, bucketStart time.Time) *model.Candle {
	return &model.Candle{
		Epic:      tick.Epic,
		Open:      tick.Bid,
		High:      tick.Bid,
		Low:       tick.Bid,
		Close:     tick.Bid,
		Volume:    1,
		StartTime: bucketStart,
	}
}

// CurrentCandle returns a copy of the epic's in-progress candle.
func (a *Aggregator) CurrentCandle(epic string) (model.Candle, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cur, ok := a.current[epic]
	if !ok {
		return model.Candle{}, false
	}
	return *cur, true
}

// LastTick returns the most recent tick seen for the epic.
func (a *Aggregator) LastTick(epic string) (model.Tick, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	tick, ok := a.lastTick[epic]
	return tick, ok
}

// Stats returns current counters.
func (a *Aggregator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}
