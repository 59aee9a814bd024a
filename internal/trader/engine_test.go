package trader

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DhruvalBhuva/trading-algo/internal/aggregator"
	"github.com/DhruvalBhuva/trading-algo/internal/model"
	"github.com/DhruvalBhuva/trading-algo/internal/strategy"
	"github.com/DhruvalBhuva/trading-algo/internal/stream"
)

type fakeLevels struct {
	levels model.DailyLevels
}

func (f *fakeLevels) Levels(ctx context.Context, epic string, day time.Time) (model.DailyLevels, error) {
	return f.levels, nil
}

type fakeGateway struct {
	mu     sync.Mutex
	orders []model.Order
	err    error
}

func (f *fakeGateway) PlaceStopOrder(ctx context.Context, order model.Order) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, order)
	return "ta_ref", "DEAL1", f.err
}

func (f *fakeGateway) placed() []model.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Order(nil), f.orders...)
}

type fakeCandleSink struct {
	mu      sync.Mutex
	candles []model.Candle
}

func (f *fakeCandleSink) Append(c model.Candle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candles = append(f.candles, c)
	return nil
}

func (f *fakeCandleSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.candles)
}

type fakeTradeSink struct {
	mu      sync.Mutex
	records []model.TradeRecord
}

func (f *fakeTradeSink) Append(r model.TradeRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, r)
	return nil
}

func (f *fakeTradeSink) all() []model.TradeRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.TradeRecord(nil), f.records...)
}

func tickEvent(epic string, bid float64, ts time.Time) stream.Event {
	return stream.Event{Tick: &model.Tick{
		Epic:       epic,
		Bid:        bid,
		Ask:        bid + 0.5,
		Timestamp:  ts,
		ReceivedAt: ts,
	}}
}

func newTestEngine(events chan stream.Event, gw *fakeGateway, cs *fakeCandleSink, ts *fakeTradeSink) *Engine {
	agg := aggregator.New(aggregator.Minute15, nil)
	strat := strategy.New(strategy.Config{
		RiskPercent:  2.0,
		TPPips:       300,
		PipSize:      0.01,
		ContractSize: 100,
		Balance:      10000,
	}, &fakeLevels{levels: model.DailyLevels{HighBid: 98, LowBid: 90}}, nil)

	return New(Config{Resolution: "m15", StrategyName: "breakout_m15"}, Deps{
		Events:     events,
		Aggregator: agg,
		Strategy:   strat,
		Gateway:    gw,
		Candles:    cs,
		Trades:     ts,
	}, nil)
}

func TestEngine_TickToOrderPipeline(t *testing.T) {
	events := make(chan stream.Event, 16)
	gw := &fakeGateway{}
	cs := &fakeCandleSink{}
	trades := &fakeTradeSink{}
	engine := newTestEngine(events, gw, cs, trades)

	day := time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC)

	// One tick per bucket; each candle closes when the next bucket opens.
	bids := []float64{95, 99, 99.8, 100.5, 101}
	for i, bid := range bids {
		events <- tickEvent("GOLD", bid, day.Add(time.Duration(i)*15*time.Minute))
	}
	close(events)

	err := engine.Run(context.Background())
	require.NoError(t, err)

	// Candles: INIT_DAY, C1, C2, then the entry candle fired the signal.
	assert.Equal(t, 4, cs.count())

	orders := gw.placed()
	require.Len(t, orders, 1)
	order := orders[0]
	assert.Equal(t, "GOLD", order.Epic)
	assert.Equal(t, model.SideBuy, order.Direction)
	assert.Equal(t, 100.5, order.Level)
	assert.Equal(t, 99.0, order.StopLevel) // min of C1/C2 lows
	assert.Equal(t, "STOP", order.OrderType)

	recs := trades.all()
	require.Len(t, recs, 1)
	rec := recs[0]
	assert.NotEmpty(t, rec.TradeID)
	assert.Equal(t, "SUBMITTED", rec.Status)
	assert.Equal(t, "DEAL1", rec.DealID)
	assert.Equal(t, "ta_ref", rec.DealReference)
	assert.Equal(t, "breakout_m15", rec.StrategyName)
	assert.Equal(t, 98.0, rec.YesterdayHigh)
	assert.Equal(t, 10000.0, rec.AccountBalance)
}

func TestEngine_OrderFailureStillRecorded(t *testing.T) {
	events := make(chan stream.Event, 16)
	gw := &fakeGateway{err: errors.New("rejected by broker")}
	cs := &fakeCandleSink{}
	trades := &fakeTradeSink{}
	engine := newTestEngine(events, gw, cs, trades)

	day := time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC)
	for i, bid := range []float64{95, 99, 99.8, 100.5, 101} {
		events <- tickEvent("GOLD", bid, day.Add(time.Duration(i)*15*time.Minute))
	}
	close(events)

	require.NoError(t, engine.Run(context.Background()))

	recs := trades.all()
	require.Len(t, recs, 1)
	assert.Equal(t, "FAILED", recs[0].Status)
}

func TestEngine_FatalEventStopsRun(t *testing.T) {
	events := make(chan stream.Event, 1)
	engine := newTestEngine(events, &fakeGateway{}, &fakeCandleSink{}, &fakeTradeSink{})

	events <- stream.Event{Err: errors.New("session renewal: login failed"), Fatal: true}

	err := engine.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stream failed")
}

func TestEngine_TransientErrorKeepsRunning(t *testing.T) {
	events := make(chan stream.Event, 4)
	gw := &fakeGateway{}
	cs := &fakeCandleSink{}
	engine := newTestEngine(events, gw, cs, &fakeTradeSink{})

	day := time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC)
	events <- tickEvent("GOLD", 95, day)
	events <- stream.Event{Err: errors.New("transport: connection reset")}
	events <- stream.Event{State: stream.StateDisconnected}
	events <- tickEvent("GOLD", 96, day.Add(15*time.Minute))
	close(events)

	require.NoError(t, engine.Run(context.Background()))
	assert.Equal(t, 1, cs.count())
}

func TestEngine_ContextCancelReturnsNil(t *testing.T) {
	events := make(chan stream.Event)
	engine := newTestEngine(events, &fakeGateway{}, &fakeCandleSink{}, &fakeTradeSink{})

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
