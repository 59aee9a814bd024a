package model

import "time"

// Side is the direction of an order or setup.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Decision is the outcome of evaluating one closed candle.
type Decision string

const (
	DecisionInitDay     Decision = "INIT_DAY"    // new trading day, levels loaded
	DecisionNoTrade     Decision = "NO_TRADE"    // candle closed inside yesterday's range
	DecisionC1          Decision = "C1"          // breakout candle recorded
	DecisionC2          Decision = "C2"          // acceptance candle recorded
	DecisionInvalidated Decision = "INVALIDATED" // acceptance failed, setup cleared
	DecisionSignal      Decision = "SIGNAL"      // entry triggered, order attached
	DecisionBlocked     Decision = "BLOCKED"     // already traded today
	DecisionRejected    Decision = "REJECTED"    // invalid order parameters, setup cleared
)

// Tick is a single bid/ask quote update for an epic. Ticks are consumed by
// the aggregator and discarded.
type Tick struct {
	Epic       string
	Bid        float64
	Ask        float64
	BidQty     float64
	AskQty     float64
	Timestamp  time.Time // exchange timestamp
	ReceivedAt time.Time // local receive timestamp
}

// Candle is an OHLC bar built from BID prices over a fixed time bucket.
// Volume counts ticks. A candle is mutated in place until its bucket rolls
// over, then frozen and never modified again.
type Candle struct {
	Epic      string
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
	StartTime time.Time
	EndTime   time.Time
	ClosedAt  time.Time // receipt time of the tick that closed the bucket
}

// Date returns the UTC calendar day the candle belongs to.
func (c Candle) Date() time.Time {
	y, m, d := c.StartTime.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DailyLevels holds a trading day's high/low, bid and ask based.
type DailyLevels struct {
	TradingDay time.Time
	HighBid    float64
	HighAsk    float64
	LowBid     float64
	LowAsk     float64
}

// Order holds the parameters for a stop (breakout) working order.
type Order struct {
	Epic        string
	Direction   Side
	Size        float64 // rounded to 2 decimal places
	OrderType   string  // always "STOP"
	Level       float64 // entry price (C3 open)
	StopLevel   float64
	ProfitLevel float64
}

// SetupInfo captures the setup context at the moment a signal fired, for
// trade-book records.
type SetupInfo struct {
	YesterdayHigh  float64
	YesterdayLow   float64
	C1Start        time.Time
	C2Start        time.Time
	AccountBalance float64
	RiskPercent    float64
}

// Signal is the result of running the strategy over one closed candle.
// Order and Setup are set only when Decision is DecisionSignal.
type Signal struct {
	Time     time.Time // start time of the evaluated candle
	Epic     string
	Decision Decision
	Reason   string
	Order    *Order
	Setup    *SetupInfo
}

// Account is a trading account balance snapshot.
type Account struct {
	AccountID string
	Name      string
	Currency  string
	Balance   float64
	Available float64
}

// TradeRecord is one executed-trade row in the trade book.
type TradeRecord struct {
	TradeID        string // locally generated UUID
	TradeDate      time.Time
	TradeTime      time.Time
	Epic           string
	Direction      Side
	EntryPrice     float64
	StopLoss       float64
	TakeProfit     float64
	PositionSize   float64
	RiskPercent    float64
	AccountBalance float64
	YesterdayHigh  float64
	YesterdayLow   float64
	C1Time         time.Time
	C2Time         time.Time
	OrderType      string
	DealID         string
	DealReference  string
	StrategyName   string
	Status         string
}
