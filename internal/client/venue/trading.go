package venue

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type PlaceOrderRequest struct {
	ClientRef  string           `json:"client_ref"`
	Account    string           `json:"account,omitempty"`
	Instrument string           `json:"instrument"`
	Contracts  []string         `json:"contracts"`
	Qty        []int64          `json:"qty"`
	OrderType  string           `json:"order_type"`
	LimitPrice *decimal.Decimal `json:"limit_price,omitempty"`
	Algo       string           `json:"algo,omitempty"`
}

type ModifyOrderRequest struct {
	LimitPrice *decimal.Decimal `json:"limit_price,omitempty"`
	Qty        []int64          `json:"qty,omitempty"`
}

type Order struct {
	OrderID     string           `json:"order_id"`
	ClientRef   string           `json:"client_ref"`
	Status      string           `json:"status"`
	FilledQty   []int64          `json:"filled_qty"`
	AvgPrice    *decimal.Decimal `json:"avg_price"`
	Failure     string           `json:"failure_reason"`
	SubmittedAt *time.Time       `json:"submitted_at"`
	UpdatedAt   *time.Time       `json:"updated_at"`
}

// Terminal venue statuses.
const (
	StatusFilled    = "filled"
	StatusCancelled = "cancelled"
	StatusRejected  = "rejected"
)

func (o Order) Done() bool {
	switch strings.ToLower(o.Status) {
	case StatusFilled, StatusCancelled, "canceled", StatusRejected:
		return true
	}
	return false
}

type Fill struct {
	FillID    string          `json:"fill_id"`
	OrderID   string          `json:"order_id"`
	ClientRef string          `json:"client_ref"`
	Qty       []int64         `json:"qty"`
	Price     decimal.Decimal `json:"price"`
	FilledAt  time.Time       `json:"filled_at"`
}

type Position struct {
	Instrument string `json:"instrument"`
	Contract   string `json:"contract"`
	Position   int64  `json:"position"`
}

type Quote struct {
	Instrument string          `json:"instrument"`
	Contracts  []string        `json:"contracts"`
	Bid        decimal.Decimal `json:"bid"`
	Ask        decimal.Decimal `json:"ask"`
	Last       decimal.Decimal `json:"last"`
	At         time.Time       `json:"at"`
}

// Mid returns the bid/ask midpoint, or Last when the book is one-sided.
func (q Quote) Mid() decimal.Decimal {
	if q.Bid.IsZero() || q.Ask.IsZero() {
		return q.Last
	}
	return q.Bid.Add(q.Ask).Div(decimal.NewFromInt(2))
}

func (c *Client) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Order, error) {
	if strings.TrimSpace(req.ClientRef) == "" {
		return nil, fmt.Errorf("client ref is required")
	}
	var out Order
	if err := c.doJSON(ctx, http.MethodPost, "/v1/orders", nil, req, &out); err != nil {
		return nil, err
	}
	return orderOrErr(&out)
}

// GetOrderByClientRef is the authoritative lookup used after a timeout.
// It returns nil, nil when the venue never saw the reference.
func (c *Client) GetOrderByClientRef(ctx context.Context, clientRef string) (*Order, error) {
	clientRef = strings.TrimSpace(clientRef)
	if clientRef == "" {
		return nil, fmt.Errorf("client ref is required")
	}
	var out Order
	err := c.doJSON(ctx, http.MethodGet, "/v1/orders/by-ref/"+url.PathEscape(clientRef), nil, nil, &out)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return orderOrErr(&out)
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) (*Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, fmt.Errorf("order id is required")
	}
	var out Order
	if err := c.doJSON(ctx, http.MethodPost, "/v1/orders/"+url.PathEscape(orderID)+"/cancel", nil, map[string]any{}, &out); err != nil {
		return nil, err
	}
	return orderOrErr(&out)
}

func (c *Client) ModifyOrder(ctx context.Context, orderID string, req ModifyOrderRequest) (*Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, fmt.Errorf("order id is required")
	}
	var out Order
	if err := c.doJSON(ctx, http.MethodPatch, "/v1/orders/"+url.PathEscape(orderID), nil, req, &out); err != nil {
		return nil, err
	}
	return orderOrErr(&out)
}

// ListFills returns fills for one venue order, oldest first.
func (c *Client) ListFills(ctx context.Context, orderID string) ([]Fill, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, fmt.Errorf("order id is required")
	}
	var out []Fill
	if err := c.doJSON(ctx, http.MethodGet, "/v1/orders/"+url.PathEscape(orderID)+"/fills", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListPositions(ctx context.Context, account string) ([]Position, error) {
	query := url.Values{}
	if v := strings.TrimSpace(account); v != "" {
		query.Set("account", v)
	}
	var out []Position
	if err := c.doJSON(ctx, http.MethodGet, "/v1/positions", query, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetQuote(ctx context.Context, instrument string, contracts []string) (*Quote, error) {
	if strings.TrimSpace(instrument) == "" || len(contracts) == 0 {
		return nil, fmt.Errorf("instrument and contracts are required")
	}
	query := url.Values{}
	query.Set("instrument", instrument)
	query.Set("contracts", strings.Join(contracts, ","))
	var out Quote
	if err := c.doJSON(ctx, http.MethodGet, "/v1/quotes", query, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func orderOrErr(o *Order) (*Order, error) {
	if strings.TrimSpace(o.OrderID) == "" {
		return nil, fmt.Errorf("order id missing in response")
	}
	o.Status = strings.ToLower(strings.TrimSpace(o.Status))
	return o, nil
}
