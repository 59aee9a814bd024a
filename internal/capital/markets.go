package capital

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// Market is a tradeable instrument returned by market search.
type Market struct {
	Epic           string `json:"epic"`
	InstrumentName string `json:"instrumentName"`
	InstrumentType string `json:"instrumentType"`
	MarketStatus   string `json:"marketStatus"`
}

type marketsResponse struct {
	Markets []Market `json:"markets"`
}

// SearchMarkets looks up instruments by search term.
func (c *Client) SearchMarkets(ctx context.Context, term string, limit int) ([]Market, error) {
	if limit <= 0 {
		limit = 20
	}

	query := url.Values{}
	query.Set("searchTerm", term)
	query.Set("limit", strconv.Itoa(limit))

	var resp marketsResponse
	if err := c.get(ctx, "/markets", query, &resp); err != nil {
		return nil, fmt.Errorf("search markets: %w", err)
	}
	return resp.Markets, nil
}
