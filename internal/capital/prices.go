package capital

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// snapshotTimeLayout is the timezone-free ISO format the prices endpoint
// uses for both query parameters and snapshot times. Values are UTC.
const snapshotTimeLayout = "2006-01-02T15:04:05"

// PricePair holds the bid and ask side of one OHLC component.
type PricePair struct {
	Bid float64 `json:"bid"`
	Ask float64 `json:"ask"`
}

// PriceCandle is one historical candle from the prices endpoint.
type PriceCandle struct {
	SnapshotTime string    `json:"snapshotTime"`
	Open         PricePair `json:"openPrice"`
	High         PricePair `json:"highPrice"`
	Low          PricePair `json:"lowPrice"`
	Close        PricePair `json:"closePrice"`
	Volume       int64     `json:"lastTradedVolume"`
}

// Time parses the candle's snapshot time as UTC.
func (p PriceCandle) Time() (time.Time, error) {
	t, err := time.Parse(snapshotTimeLayout, p.SnapshotTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse snapshot time %q: %w", p.SnapshotTime, err)
	}
	return t.UTC(), nil
}

type pricesResponse struct {
	Prices []PriceCandle `json:"prices"`
}

// GetPrices fetches historical candles for an epic in [from, to].
func (c *Client) GetPrices(ctx context.Context, epic, resolution string, from, to time.Time, max int) ([]PriceCandle, error) {
	query := url.Values{}
	query.Set("resolution", resolution)
	query.Set("from", from.UTC().Format(snapshotTimeLayout))
	query.Set("to", to.UTC().Format(snapshotTimeLayout))
	if max > 0 {
		query.Set("max", strconv.Itoa(max))
	}

	var resp pricesResponse
	if err := c.get(ctx, "/prices/"+epic, query, &resp); err != nil {
		return nil, fmt.Errorf("get prices %s: %w", epic, err)
	}
	return resp.Prices, nil
}
