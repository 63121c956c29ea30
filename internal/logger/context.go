package logger

import (
	"go.uber.org/zap"

	"futuresexec/internal/order"
)

// OrderContext is the typed set of attributes attached to every log line
// about one order. Pass it down explicitly rather than through a bag.
type OrderContext struct {
	Stack      string
	OrderID    uint64
	ParentID   uint64
	Strategy   string
	Instrument string
	Contracts  []string
	BrokerRef  string
}

func ForOrder(stackName string, o *order.Order) OrderContext {
	if o == nil {
		return OrderContext{Stack: stackName}
	}
	return OrderContext{
		Stack:      stackName,
		OrderID:    o.ID,
		ParentID:   o.Parent,
		Strategy:   o.StrategyName,
		Instrument: o.InstrumentCode,
		Contracts:  o.ContractIDs,
		BrokerRef:  o.BrokerRef,
	}
}

// InstrumentContext is used when no single order is involved.
type InstrumentContext struct {
	Instrument string
	Strategy   string
	Contract   string
}

func (c OrderContext) Fields() []zap.Field {
	fields := make([]zap.Field, 0, 7)
	if c.Stack != "" {
		fields = append(fields, zap.String("stack", c.Stack))
	}
	if c.OrderID != 0 {
		fields = append(fields, zap.Uint64("order_id", c.OrderID))
	}
	if c.ParentID != 0 {
		fields = append(fields, zap.Uint64("parent_id", c.ParentID))
	}
	if c.Strategy != "" {
		fields = append(fields, zap.String("strategy", c.Strategy))
	}
	if c.Instrument != "" {
		fields = append(fields, zap.String("instrument", c.Instrument))
	}
	if len(c.Contracts) > 0 {
		fields = append(fields, zap.Strings("contracts", c.Contracts))
	}
	if c.BrokerRef != "" {
		fields = append(fields, zap.String("broker_ref", c.BrokerRef))
	}
	return fields
}

// With returns fields plus extra, for one-off log calls.
func (c OrderContext) With(extra ...zap.Field) []zap.Field {
	return append(c.Fields(), extra...)
}

func (c InstrumentContext) Fields() []zap.Field {
	fields := make([]zap.Field, 0, 3)
	if c.Instrument != "" {
		fields = append(fields, zap.String("instrument", c.Instrument))
	}
	if c.Strategy != "" {
		fields = append(fields, zap.String("strategy", c.Strategy))
	}
	if c.Contract != "" {
		fields = append(fields, zap.String("contract", c.Contract))
	}
	return fields
}

func (c InstrumentContext) With(extra ...zap.Field) []zap.Field {
	return append(c.Fields(), extra...)
}
