// Package strategy implements the breakout/acceptance state machine over
// closed candles. Per epic it waits for a close beyond yesterday's
// high/low (C1), a confirming close on the same side (C2), and then
// emits a stop-order signal priced off the next candle's open (C3). At
// most one signal fires per epic per trading day.
package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/DhruvalBhuva/trading-algo/internal/model"
)

// LevelsSource provides the previous trading day's high/low for an epic.
type LevelsSource interface {
	Levels(ctx context.Context, epic string, tradingDay time.Time) (model.DailyLevels, error)
}

// Config holds the fixed per-instance strategy parameters.
type Config struct {
	RiskPercent  float64 // percentage of balance risked per trade
	TPPips       float64 // take-profit distance in pips
	PipSize      float64
	ContractSize float64
	Balance      float64 // account balance, read once at startup
}

// setup is the per-epic state. today is the UTC date the levels belong
// to; locked survives setup resets until the next day rollover.
type setup struct {
	today     time.Time
	levels    model.DailyLevels
	c1        *model.Candle
	c2        *model.Candle
	direction model.Side
	locked    bool
}

func (s *setup) clear() {
	s.c1 = nil
	s.c2 = nil
	s.direction = ""
}

// Status is a read-only snapshot of an epic's setup state.
type Status struct {
	Today     time.Time
	Locked    bool
	HasC1     bool
	HasC2     bool
	Direction model.Side
}

// Breakout runs the state machine for a set of epics.
type Breakout struct {
	cfg    Config
	levels LevelsSource
	logger *slog.Logger

	mu     sync.Mutex
	states map[string]*setup
}

// New creates a breakout strategy.
func New(cfg Config, levels LevelsSource, logger *slog.Logger) *Breakout {
	if logger == nil {
		logger = slog.Default()
	}

	return &Breakout{
		cfg:    cfg,
		levels: levels,
		logger: logger,
		states: make(map[string]*setup),
	}
}

// OnCandleClose advances the epic's state machine with a closed candle
// and returns the resulting decision. The returned signal always carries
// a decision; Order and Setup are populated only when the decision is
// DecisionSignal.
func (b *Breakout) OnCandleClose(ctx context.Context, candle model.Candle) model.Signal {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.states[candle.Epic]
	if !ok {
		st = &setup{}
		b.states[candle.Epic] = st
	}

	sig := model.Signal{
		Time: candle.StartTime,
		Epic: candle.Epic,
	}

	// Day rollover comes before everything else.
	day := candle.Date()
	if !day.Equal(st.today) {
		prev := PreviousTradingDay(day)
		levels, err := b.levels.Levels(ctx, candle.Epic, prev)
		if err != nil {
			// Keep the old day so the next candle retries the load.
			b.logger.Warn("levels unavailable, skipping candle",
				"epic", candle.Epic,
				"trading_day", prev.Format("2006-01-02"),
				"error", err,
			)
			sig.Decision = model.DecisionNoTrade
			sig.Reason = fmt.Sprintf("levels for %s unavailable: %v", prev.Format("2006-01-02"), err)
			return sig
		}

		st.today = day
		st.levels = levels
		st.locked = false
		st.clear()

		b.logger.Info("trading day initialized",
			"epic", candle.Epic,
			"day", day.Format("2006-01-02"),
			"yesterday_high", levels.HighBid,
			"yesterday_low", levels.LowBid,
		)

		sig.Decision = model.DecisionInitDay
		sig.Reason = fmt.Sprintf("levels loaded for %s: high=%v low=%v", prev.Format("2006-01-02"), levels.HighBid, levels.LowBid)
		return sig
	}

	if st.locked {
		sig.Decision = model.DecisionBlocked
		sig.Reason = "trade already taken today"
		return sig
	}

	high := st.levels.HighBid
	low := st.levels.LowBid

	switch {
	case st.c1 == nil:
		// C1 detection; strict comparisons, a touch does not qualify.
		switch {
		case candle.Close > high:
			c1 := candle
			st.c1 = &c1
			st.direction = model.SideBuy
			sig.Decision = model.DecisionC1
			sig.Reason = fmt.Sprintf("close %v above yesterday high %v", candle.Close, high)
		case candle.Close < low:
			c1 := candle
			st.c1 = &c1
			st.direction = model.SideSell
			sig.Decision = model.DecisionC1
			sig.Reason = fmt.Sprintf("close %v below yesterday low %v", candle.Close, low)
		default:
			sig.Decision = model.DecisionNoTrade
			sig.Reason = fmt.Sprintf("close %v inside range [%v, %v]", candle.Close, low, high)
		}
		return sig

	case st.c2 == nil:
		// C2 must continue the breakout side.
		confirmed := (st.direction == model.SideBuy && candle.Close > high) ||
			(st.direction == model.SideSell && candle.Close < low)
		if !confirmed {
			st.clear()
			sig.Decision = model.DecisionInvalidated
			sig.Reason = fmt.Sprintf("close %v fell back inside range, setup reset", candle.Close)
			return sig
		}
		c2 := candle
		st.c2 = &c2
		sig.Decision = model.DecisionC2
		sig.Reason = fmt.Sprintf("acceptance confirmed %s", st.direction)
		return sig

	default:
		return b.fireEntry(st, candle, sig)
	}
}

// fireEntry builds the order from a completed C1+C2 setup, using the
// entry candle's open. A rejected entry clears the setup but does not
// lock the day.
func (b *Breakout) fireEntry(st *setup, candle model.Candle, sig model.Signal) model.Signal {
	entry := candle.Open

	var stop float64
	if st.direction == model.SideBuy {
		stop = math.Min(st.c1.Low, st.c2.Low)
	} else {
		stop = math.Max(st.c1.High, st.c2.High)
	}

	tpDist := b.cfg.TPPips * b.cfg.PipSize
	var target float64
	if st.direction == model.SideBuy {
		target = entry + tpDist
	} else {
		target = entry - tpDist
	}

	stopDist := math.Abs(entry - stop)
	if stopDist == 0 {
		st.clear()
		sig.Decision = model.DecisionRejected
		sig.Reason = "entry equals stop, zero risk distance"
		return sig
	}

	risk := b.cfg.Balance * b.cfg.RiskPercent / 100
	size := round2(risk / (stopDist * b.cfg.ContractSize))
	if size <= 0 {
		st.clear()
		sig.Decision = model.DecisionRejected
		sig.Reason = fmt.Sprintf("computed size %v is not positive", size)
		return sig
	}

	// Capture the setup before clearing it.
	direction := st.direction
	info := &model.SetupInfo{
		YesterdayHigh:  st.levels.HighBid,
		YesterdayLow:   st.levels.LowBid,
		C1Start:        st.c1.StartTime,
		C2Start:        st.c2.StartTime,
		AccountBalance: b.cfg.Balance,
		RiskPercent:    b.cfg.RiskPercent,
	}

	st.locked = true
	st.clear()

	sig.Decision = model.DecisionSignal
	sig.Reason = fmt.Sprintf("%s breakout entry at %v", direction, entry)
	sig.Order = &model.Order{
		Epic:        candle.Epic,
		Direction:   direction,
		Size:        size,
		OrderType:   "STOP",
		Level:       entry,
		StopLevel:   stop,
		ProfitLevel: target,
	}
	sig.Setup = info

	b.logger.Info("signal fired",
		"epic", candle.Epic,
		"direction", direction,
		"entry", entry,
		"stop", stop,
		"target", target,
		"size", size,
	)

	return sig
}

// Status returns a snapshot of the epic's setup state.
func (b *Breakout) Status(epic string) (Status, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.states[epic]
	if !ok {
		return Status{}, false
	}
	return Status{
		Today:     st.today,
		Locked:    st.locked,
		HasC1:     st.c1 != nil,
		HasC2:     st.c2 != nil,
		Direction: st.direction,
	}, true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
