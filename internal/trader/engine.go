// Package trader wires the streaming session, candle aggregator, and
// breakout strategy into a single event loop. Ticks are processed inline
// on the loop; persistence and order submission are handed off to a
// worker so the loop never blocks on I/O.
package trader

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/DhruvalBhuva/trading-algo/internal/aggregator"
	"github.com/DhruvalBhuva/trading-algo/internal/metrics"
	"github.com/DhruvalBhuva/trading-algo/internal/model"
	"github.com/DhruvalBhuva/trading-algo/internal/strategy"
	"github.com/DhruvalBhuva/trading-algo/internal/stream"
)

// OrderGateway places breakout stop orders with the broker.
type OrderGateway interface {
	PlaceStopOrder(ctx context.Context, order model.Order) (dealRef, dealID string, err error)
}

// CandleSink persists closed candles.
type CandleSink interface {
	Append(candle model.Candle) error
}

// TradeSink persists executed trade records.
type TradeSink interface {
	Append(rec model.TradeRecord) error
}

// Config holds engine identity settings.
type Config struct {
	Resolution   string // short resolution name, recorded with trades
	StrategyName string
}

// Deps collects the engine's collaborators. CandleDB and TradeDB are
// optional; when nil the corresponding rows are not mirrored to the
// database writers.
type Deps struct {
	Events     <-chan stream.Event
	Aggregator *aggregator.Aggregator
	Strategy   *strategy.Breakout
	Gateway    OrderGateway
	Candles    CandleSink
	Trades     TradeSink
	CandleDB   chan<- model.Candle
	TradeDB    chan<- model.TradeRecord
	Metrics    *metrics.Metrics
}

// Engine runs the tick-to-order pipeline.
type Engine struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger

	jobs chan func()
	wg   sync.WaitGroup
}

// New creates an engine.
func New(cfg Config, deps Deps, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New(prometheus.NewRegistry())
	}

	return &Engine{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		jobs:   make(chan func(), 64),
	}
}

// Run consumes session events until the events channel closes, the
// context is cancelled, or a fatal stream error arrives. A fatal error
// is returned; a requested shutdown returns nil.
func (e *Engine) Run(ctx context.Context) error {
	e.wg.Add(1)
	go e.worker()

	defer func() {
		close(e.jobs)
		e.wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-e.deps.Events:
			if !ok {
				e.logger.Info("event stream closed")
				return nil
			}

			switch {
			case ev.Fatal:
				return fmt.Errorf("stream failed: %w", ev.Err)

			case ev.Err != nil:
				e.logger.Warn("stream error", "error", ev.Err)

			case ev.Tick != nil:
				e.handleTick(ctx, *ev.Tick)

			case ev.State != "":
				e.handleState(ev.State)
			}
		}
	}
}

// worker drains the job queue so slow work never runs on the event loop.
func (e *Engine) worker() {
	defer e.wg.Done()
	for job := range e.jobs {
		job()
	}
}

// enqueue hands a job to the worker, dropping it if the queue is full
// and the context is gone.
func (e *Engine) enqueue(ctx context.Context, job func()) {
	select {
	case e.jobs <- job:
	case <-ctx.Done():
	}
}

func (e *Engine) handleState(state stream.State) {
	switch state {
	case stream.StateSubscribed:
		e.deps.Metrics.StreamConnected.Set(1)
	case stream.StateDisconnected:
		e.deps.Metrics.StreamConnected.Set(0)
		e.deps.Metrics.Reconnects.Inc()
	case stream.StateTerminated:
		e.deps.Metrics.StreamConnected.Set(0)
	}
}

func (e *Engine) handleTick(ctx context.Context, tick model.Tick) {
	e.deps.Metrics.TicksReceived.WithLabelValues(tick.Epic).Inc()

	closed := e.deps.Aggregator.ProcessTick(tick)
	if closed == nil {
		return
	}

	e.deps.Metrics.CandlesClosed.WithLabelValues(closed.Epic).Inc()
	e.persistCandle(ctx, *closed)

	sig := e.deps.Strategy.OnCandleClose(ctx, *closed)
	e.deps.Metrics.Signals.WithLabelValues(sig.Epic, string(sig.Decision)).Inc()

	e.logger.Debug("candle evaluated",
		"epic", sig.Epic,
		"decision", sig.Decision,
		"reason", sig.Reason,
	)

	if sig.Decision == model.DecisionSignal {
		e.enqueue(ctx, func() { e.executeSignal(ctx, sig) })
	}
}

func (e *Engine) persistCandle(ctx context.Context, candle model.Candle) {
	e.enqueue(ctx, func() {
		if err := e.deps.Candles.Append(candle); err != nil {
			e.logger.Error("candle persist failed", "epic", candle.Epic, "error", err)
		}
		if e.deps.CandleDB != nil {
			select {
			case e.deps.CandleDB <- candle:
			default:
				e.logger.Warn("candle db buffer full, dropping row", "epic", candle.Epic)
			}
		}
	})
}

// executeSignal places the order and records the trade. Order failures
// are recorded with status FAILED; the trade book keeps the attempt
// either way.
func (e *Engine) executeSignal(ctx context.Context, sig model.Signal) {
	order := *sig.Order

	dealRef, dealID, err := e.deps.Gateway.PlaceStopOrder(ctx, order)
	status := "SUBMITTED"
	if err != nil {
		status = "FAILED"
		e.logger.Error("order submission failed",
			"epic", order.Epic,
			"direction", order.Direction,
			"error", err,
		)
		e.deps.Metrics.OrderFailures.WithLabelValues(order.Epic).Inc()
	} else {
		e.logger.Info("order submitted",
			"epic", order.Epic,
			"direction", order.Direction,
			"size", order.Size,
			"deal_ref", dealRef,
			"deal_id", dealID,
		)
		e.deps.Metrics.OrdersSubmitted.WithLabelValues(order.Epic, string(order.Direction)).Inc()
	}

	rec := model.TradeRecord{
		TradeID:       uuid.NewString(),
		TradeDate:     sig.Time.UTC().Truncate(24 * time.Hour),
		TradeTime:     time.Now().UTC(),
		Epic:          order.Epic,
		Direction:     order.Direction,
		EntryPrice:    order.Level,
		StopLoss:      order.StopLevel,
		TakeProfit:    order.ProfitLevel,
		PositionSize:  order.Size,
		OrderType:     order.OrderType,
		DealID:        dealID,
		DealReference: dealRef,
		StrategyName:  e.cfg.StrategyName,
		Status:        status,
	}
	if sig.Setup != nil {
		rec.RiskPercent = sig.Setup.RiskPercent
		rec.AccountBalance = sig.Setup.AccountBalance
		rec.YesterdayHigh = sig.Setup.YesterdayHigh
		rec.YesterdayLow = sig.Setup.YesterdayLow
		rec.C1Time = sig.Setup.C1Start
		rec.C2Time = sig.Setup.C2Start
	}

	if err := e.deps.Trades.Append(rec); err != nil {
		e.logger.Error("trade book append failed", "trade_id", rec.TradeID, "error", err)
	}
	if e.deps.TradeDB != nil {
		select {
		case e.deps.TradeDB <- rec:
		default:
			e.logger.Warn("trade db buffer full, dropping row", "trade_id", rec.TradeID)
		}
	}
}
