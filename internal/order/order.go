package order

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Grain string

const (
	GrainInstrument Grain = "instrument"
	GrainContract   Grain = "contract"
	GrainBroker     Grain = "broker"
)

type OrderType string

const (
	TypeMarket   OrderType = "market"
	TypeBest     OrderType = "best"
	TypeLimit    OrderType = "limit"
	TypeZeroRoll OrderType = "zero_roll"
	TypeBalance  OrderType = "balance"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// TxState tracks the parent side of a parent/child placement.
type TxState string

const (
	TxNone       TxState = ""
	TxPending    TxState = "pending"
	TxCommitted  TxState = "committed"
	TxRolledBack TxState = "rolled_back"
)

// NoParent is the Parent value of a root order.
const NoParent uint64 = 0

var ErrInvalidOrder = errors.New("invalid order")

type Order struct {
	ID                uint64           `json:"id"`
	Grain             Grain            `json:"grain"`
	StrategyName      string           `json:"strategy_name"`
	InstrumentCode    string           `json:"instrument_code"`
	ContractIDs       []string         `json:"contract_ids"`
	Trade             TradeQuantity    `json:"trade"`
	OrderType         OrderType        `json:"order_type"`
	LimitPrice        *decimal.Decimal `json:"limit_price,omitempty"`
	ReferencePrice    *decimal.Decimal `json:"reference_price,omitempty"`
	ReferenceDatetime time.Time        `json:"reference_datetime"`
	ReferenceContract string           `json:"reference_contract,omitempty"`
	RollOrder         bool             `json:"roll_order"`

	Parent   uint64   `json:"parent,omitempty"`
	Children []uint64 `json:"children,omitempty"`

	Locked   bool       `json:"locked"`
	LockedAt *time.Time `json:"locked_at,omitempty"`
	TxState  TxState    `json:"tx_state,omitempty"`

	// StuckAlertedAt is set once the current lock has been reported as stuck.
	StuckAlertedAt *time.Time `json:"stuck_alerted_at,omitempty"`

	Fill         TradeQuantity    `json:"fill"`
	FilledPrice  *decimal.Decimal `json:"filled_price,omitempty"`
	FillDatetime *time.Time       `json:"fill_datetime,omitempty"`
	Status       Status           `json:"status"`

	Algo              string     `json:"algo,omitempty"`
	BrokerRef         string     `json:"broker_ref,omitempty"`
	SubmittedAt       *time.Time `json:"submitted_at,omitempty"`
	CancelRequestedAt *time.Time `json:"cancel_requested_at,omitempty"`
	Escalated         bool       `json:"escalated"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.ContractIDs = append([]string(nil), o.ContractIDs...)
	c.Trade = o.Trade.Clone()
	c.Fill = o.Fill.Clone()
	c.Children = append([]uint64(nil), o.Children...)
	c.LimitPrice = cloneDecimal(o.LimitPrice)
	c.ReferencePrice = cloneDecimal(o.ReferencePrice)
	c.FilledPrice = cloneDecimal(o.FilledPrice)
	c.LockedAt = cloneTime(o.LockedAt)
	c.StuckAlertedAt = cloneTime(o.StuckAlertedAt)
	c.FillDatetime = cloneTime(o.FillDatetime)
	c.SubmittedAt = cloneTime(o.SubmittedAt)
	c.CancelRequestedAt = cloneTime(o.CancelRequestedAt)
	return &c
}

func (o *Order) Lock(now time.Time) {
	o.Locked = true
	t := now.UTC()
	o.LockedAt = &t
	o.StuckAlertedAt = nil
}

func (o *Order) Unlock() {
	o.Locked = false
	o.LockedAt = nil
	o.StuckAlertedAt = nil
}

func (o *Order) IsActive() bool {
	return o.Status == "" || o.Status == StatusActive
}

func (o *Order) HasChildren() bool {
	return len(o.Children) > 0
}

func (o *Order) HasParent() bool {
	return o.Parent != NoParent
}

func (o *Order) IsSpread() bool {
	return len(o.Trade) > 1
}

// FullyFilled is true for zero-trade orders as well.
func (o *Order) FullyFilled() bool {
	return o.Fill.ZeroPad(len(o.Trade)).Equal(o.Trade)
}

func (o *Order) FillIsZero() bool {
	return o.Fill.IsZero()
}

func (o *Order) Remaining() TradeQuantity {
	return o.Trade.Sub(o.Fill.ZeroPad(len(o.Trade)))
}

// SetFill replaces the cumulative fill and returns the change versus the
// previous fill.
func (o *Order) SetFill(fill TradeQuantity, price *decimal.Decimal, at time.Time) TradeQuantity {
	prev := o.Fill.ZeroPad(len(o.Trade))
	fill = fill.ZeroPad(len(o.Trade))
	o.Fill = fill.Clone()
	if price != nil {
		o.FilledPrice = cloneDecimal(price)
	}
	if !at.IsZero() {
		t := at.UTC()
		o.FillDatetime = &t
	}
	return fill.Sub(prev)
}

// Key identifies orders that must not coexist as active orders on one stack.
func (o *Order) Key() string {
	parts := []string{string(o.Grain), o.StrategyName, o.InstrumentCode}
	switch o.Grain {
	case GrainContract:
		parts = append(parts, strings.Join(o.ContractIDs, "/"))
	case GrainBroker:
		parts = append(parts, strings.Join(o.ContractIDs, "/"), "parent="+strconv.FormatUint(o.Parent, 10))
	}
	return strings.Join(parts, "|")
}

func (o *Order) Validate(allowZero bool) error {
	if o == nil {
		return fmt.Errorf("%w: nil order", ErrInvalidOrder)
	}
	switch o.Grain {
	case GrainInstrument, GrainContract, GrainBroker:
	default:
		return fmt.Errorf("%w: unknown grain %q", ErrInvalidOrder, o.Grain)
	}
	if strings.TrimSpace(o.InstrumentCode) == "" {
		return fmt.Errorf("%w: instrument code is required", ErrInvalidOrder)
	}
	if strings.TrimSpace(o.StrategyName) == "" {
		return fmt.Errorf("%w: strategy name is required", ErrInvalidOrder)
	}
	if len(o.Trade) == 0 {
		return fmt.Errorf("%w: trade has no legs", ErrInvalidOrder)
	}
	if o.Grain == GrainInstrument {
		if len(o.Trade) != 1 {
			return fmt.Errorf("%w: instrument order with %d legs", ErrInvalidOrder, len(o.Trade))
		}
	} else {
		if len(o.ContractIDs) != len(o.Trade) {
			return fmt.Errorf("%w: %d contracts for %d legs", ErrInvalidOrder, len(o.ContractIDs), len(o.Trade))
		}
		seen := make(map[string]struct{}, len(o.ContractIDs))
		for _, id := range o.ContractIDs {
			if strings.TrimSpace(id) == "" {
				return fmt.Errorf("%w: empty contract id", ErrInvalidOrder)
			}
			if _, ok := seen[id]; ok {
				return fmt.Errorf("%w: contract %s appears twice", ErrInvalidOrder, id)
			}
			seen[id] = struct{}{}
		}
	}
	if len(o.Fill) > len(o.Trade) {
		return fmt.Errorf("%w: fill has more legs than trade", ErrInvalidOrder)
	}
	if o.OrderType == TypeLimit && o.LimitPrice == nil {
		return fmt.Errorf("%w: limit order without limit price", ErrInvalidOrder)
	}
	if !allowZero && o.Trade.IsZero() {
		return fmt.Errorf("%w: zero trade", ErrInvalidOrder)
	}
	return nil
}

func (o *Order) String() string {
	if o == nil {
		return "<nil>"
	}
	legs := ""
	if len(o.ContractIDs) > 0 {
		legs = " " + strings.Join(o.ContractIDs, "/")
	}
	return fmt.Sprintf("%s order %d %s/%s%s trade=%v fill=%v", o.Grain, o.ID, o.StrategyName, o.InstrumentCode, legs, []int64(o.Trade), []int64(o.Fill))
}

// SortByID orders a slice in place by ascending id.
func SortByID(items []*Order) {
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
}

func cloneDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func DecimalPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}
