package capital

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/DhruvalBhuva/trading-algo/internal/model"
)

// Order parameter validation errors.
var (
	ErrInvalidDirection        = errors.New("capital: direction must be BUY or SELL")
	ErrInvalidSize             = errors.New("capital: size must be greater than 0")
	ErrInvalidLevel            = errors.New("capital: level must be greater than 0")
	ErrInvalidOrderType        = errors.New("capital: order type must be LIMIT or STOP")
	ErrStopConflict            = errors.New("capital: guaranteedStop and trailingStop cannot both be set")
	ErrGuaranteedStopNeedsStop = errors.New("capital: guaranteedStop requires stopLevel, stopDistance, or stopAmount")
	ErrTrailingStopNeedsDist   = errors.New("capital: trailingStop requires stopDistance")
	ErrInvalidGoodTillDate     = errors.New("capital: goodTillDate must be in format YYYY-MM-DDTHH:MM:SS")
)

// WorkingOrderRequest holds parameters for creating a limit or stop order.
// Pointer fields are omitted from the request when nil.
type WorkingOrderRequest struct {
	Epic           string
	Direction      model.Side
	Size           float64
	Level          float64
	Type           string // "LIMIT" or "STOP"
	GuaranteedStop bool
	TrailingStop   bool
	StopLevel      *float64
	StopDistance   *float64
	StopAmount     *float64
	ProfitLevel    *float64
	ProfitDistance *float64
	ProfitAmount   *float64
	GoodTillDate   string
	DealReference  string
}

func (r *WorkingOrderRequest) validate() error {
	if r.Direction != model.SideBuy && r.Direction != model.SideSell {
		return ErrInvalidDirection
	}
	if r.Size <= 0 {
		return ErrInvalidSize
	}
	if r.Level <= 0 {
		return ErrInvalidLevel
	}
	if r.Type != "LIMIT" && r.Type != "STOP" {
		return ErrInvalidOrderType
	}
	if r.GuaranteedStop && r.TrailingStop {
		return ErrStopConflict
	}
	if r.GuaranteedStop && r.StopLevel == nil && r.StopDistance == nil && r.StopAmount == nil {
		return ErrGuaranteedStopNeedsStop
	}
	if r.TrailingStop && r.StopDistance == nil {
		return ErrTrailingStopNeedsDist
	}
	if r.GoodTillDate != "" {
		if _, err := time.Parse(snapshotTimeLayout, strings.TrimSuffix(r.GoodTillDate, "Z")); err != nil {
			return ErrInvalidGoodTillDate
		}
	}
	return nil
}

// WorkingOrderResponse is the broker's acknowledgement of a created order.
type WorkingOrderResponse struct {
	DealReference string `json:"dealReference"`
	DealID        string `json:"-"`
}

// CreateWorkingOrder places a limit or stop working order. Validation
// failures are returned as errors without any HTTP call.
func (c *Client) CreateWorkingOrder(ctx context.Context, req WorkingOrderRequest) (*WorkingOrderResponse, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	if req.DealReference == "" {
		req.DealReference = "ta_" + uuid.NewString()
	}

	body := map[string]any{
		"epic":           req.Epic,
		"direction":      string(req.Direction),
		"size":           req.Size,
		"level":          req.Level,
		"type":           req.Type,
		"guaranteedStop": req.GuaranteedStop,
		"trailingStop":   req.TrailingStop,
		"dealReference":  req.DealReference,
	}
	if req.GoodTillDate != "" {
		body["goodTillDate"] = req.GoodTillDate
	}
	if req.StopLevel != nil {
		body["stopLevel"] = *req.StopLevel
	}
	if req.StopDistance != nil {
		body["stopDistance"] = *req.StopDistance
	}
	if req.StopAmount != nil {
		body["stopAmount"] = *req.StopAmount
	}
	if req.ProfitLevel != nil {
		body["profitLevel"] = *req.ProfitLevel
	}
	if req.ProfitDistance != nil {
		body["profitDistance"] = *req.ProfitDistance
	}
	if req.ProfitAmount != nil {
		body["profitAmount"] = *req.ProfitAmount
	}

	var resp WorkingOrderResponse
	if err := c.post(ctx, "/workingorders", body, &resp); err != nil {
		return nil, fmt.Errorf("create working order: %w", err)
	}

	resp.DealID = strings.TrimPrefix(resp.DealReference, "o_")

	c.logger.Info("working order created",
		"type", req.Type,
		"direction", req.Direction,
		"size", req.Size,
		"epic", req.Epic,
		"level", req.Level,
		"deal_reference", resp.DealReference,
	)

	return &resp, nil
}

// WorkingOrder is a pending order as listed by the broker.
type WorkingOrder struct {
	DealID    string
	Epic      string
	Direction model.Side
	Size      float64
	Level     float64
	Type      string
}

type workingOrdersResponse struct {
	WorkingOrders []struct {
		WorkingOrderData struct {
			DealID     string  `json:"dealId"`
			Epic       string  `json:"epic"`
			Direction  string  `json:"direction"`
			OrderSize  float64 `json:"orderSize"`
			OrderLevel float64 `json:"orderLevel"`
			OrderType  string  `json:"orderType"`
		} `json:"workingOrderData"`
	} `json:"workingOrders"`
}

// GetWorkingOrders lists all pending working orders.
func (c *Client) GetWorkingOrders(ctx context.Context) ([]WorkingOrder, error) {
	var resp workingOrdersResponse
	if err := c.get(ctx, "/workingorders", nil, &resp); err != nil {
		return nil, fmt.Errorf("get working orders: %w", err)
	}

	orders := make([]WorkingOrder, 0, len(resp.WorkingOrders))
	for _, wo := range resp.WorkingOrders {
		d := wo.WorkingOrderData
		orders = append(orders, WorkingOrder{
			DealID:    d.DealID,
			Epic:      d.Epic,
			Direction: model.Side(d.Direction),
			Size:      d.OrderSize,
			Level:     d.OrderLevel,
			Type:      d.OrderType,
		})
	}
	return orders, nil
}

// UpdateWorkingOrderRequest holds the amendable fields of a pending order.
// Nil fields are left unchanged.
type UpdateWorkingOrderRequest struct {
	Level          *float64
	StopLevel      *float64
	StopDistance   *float64
	StopAmount     *float64
	ProfitLevel    *float64
	ProfitDistance *float64
	ProfitAmount   *float64
	GoodTillDate   string
}

// UpdateWorkingOrder amends a pending working order.
func (c *Client) UpdateWorkingOrder(ctx context.Context, dealID string, req UpdateWorkingOrderRequest) (*WorkingOrderResponse, error) {
	if req.GoodTillDate != "" {
		if _, err := time.Parse(snapshotTimeLayout, strings.TrimSuffix(req.GoodTillDate, "Z")); err != nil {
			return nil, ErrInvalidGoodTillDate
		}
	}

	body := map[string]any{}
	if req.Level != nil {
		body["level"] = *req.Level
	}
	if req.StopLevel != nil {
		body["stopLevel"] = *req.StopLevel
	}
	if req.StopDistance != nil {
		body["stopDistance"] = *req.StopDistance
	}
	if req.StopAmount != nil {
		body["stopAmount"] = *req.StopAmount
	}
	if req.ProfitLevel != nil {
		body["profitLevel"] = *req.ProfitLevel
	}
	if req.ProfitDistance != nil {
		body["profitDistance"] = *req.ProfitDistance
	}
	if req.ProfitAmount != nil {
		body["profitAmount"] = *req.ProfitAmount
	}
	if req.GoodTillDate != "" {
		body["goodTillDate"] = req.GoodTillDate
	}

	var resp WorkingOrderResponse
	if err := c.put(ctx, "/workingorders/"+dealID, body, &resp); err != nil {
		return nil, fmt.Errorf("update working order %s: %w", dealID, err)
	}

	c.logger.Info("working order updated", "deal_id", dealID, "deal_reference", resp.DealReference)
	return &resp, nil
}

// DeleteWorkingOrder cancels a pending working order.
func (c *Client) DeleteWorkingOrder(ctx context.Context, dealID string) error {
	if err := c.del(ctx, "/workingorders/"+dealID, nil); err != nil {
		return fmt.Errorf("delete working order %s: %w", dealID, err)
	}
	c.logger.Info("working order deleted", "deal_id", dealID)
	return nil
}

// PlaceStopOrder submits a signal's order payload as a stop working order
// with protective stop and profit target attached.
func (c *Client) PlaceStopOrder(ctx context.Context, order model.Order) (dealRef, dealID string, err error) {
	stop := order.StopLevel
	profit := order.ProfitLevel

	resp, err := c.CreateWorkingOrder(ctx, WorkingOrderRequest{
		Epic:        order.Epic,
		Direction:   order.Direction,
		Size:        order.Size,
		Level:       order.Level,
		Type:        order.OrderType,
		StopLevel:   &stop,
		ProfitLevel: &profit,
	})
	if err != nil {
		return "", "", err
	}
	return resp.DealReference, resp.DealID, nil
}
