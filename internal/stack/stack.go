// Package stack holds the three order stacks (instrument, contract, broker)
// and the single-order atomic operations the handler builds on.
package stack

import (
	"context"
	"errors"
	"fmt"

	"futuresexec/internal/order"
)

const (
	NameInstrument = "instrument"
	NameContract   = "contract"
	NameBroker     = "broker"
)

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderLocked        = errors.New("order is locked")
	ErrActiveChildren     = errors.New("order has active children")
	ErrChildrenAlreadySet = errors.New("order already has children")
)

type DuplicateOrderError struct {
	Stack      string
	Key        string
	ExistingID uint64
}

func (e *DuplicateOrderError) Error() string {
	return fmt.Sprintf("%s stack: duplicate of active order %d (%s)", e.Stack, e.ExistingID, e.Key)
}

func IsDuplicate(err error) bool {
	var dup *DuplicateOrderError
	return errors.As(err, &dup)
}

type PutOptions struct {
	AllowZero bool
}

// Stack is an ordered store of orders at one grain. Every mutating call is
// atomic for the single order it touches.
type Stack interface {
	Name() string

	PutOrder(ctx context.Context, o *order.Order, opts PutOptions) (uint64, error)
	GetOrder(ctx context.Context, id uint64) (*order.Order, error)
	LockOrder(ctx context.Context, id uint64) error
	UnlockOrder(ctx context.Context, id uint64) error
	AddChildren(ctx context.Context, id uint64, children []uint64) error
	UpdateOrder(ctx context.Context, id uint64, fn func(o *order.Order) error) (*order.Order, error)
	RemoveOrder(ctx context.Context, id uint64) error

	ActiveOrders(ctx context.Context) ([]*order.Order, error)
	AllOrders(ctx context.Context) ([]*order.Order, error)
	OrdersForStrategyAndInstrument(ctx context.Context, strategy, instrument string) ([]*order.Order, error)
	StrategiesWithOrdersForInstrument(ctx context.Context, instrument string) ([]string, error)
	CountOrders(ctx context.Context) (int64, error)
	AnyActive(ctx context.Context, ids []uint64) (bool, error)

	RemoveAllDeactivated(ctx context.Context) (int, error)
}

// Set groups the three stacks by grain.
type Set struct {
	Instrument Stack
	Contract   Stack
	Broker     Stack
}

func (s Set) All() []Stack {
	return []Stack{s.Instrument, s.Contract, s.Broker}
}

func (s Set) ByName(name string) Stack {
	switch name {
	case NameInstrument:
		return s.Instrument
	case NameContract:
		return s.Contract
	case NameBroker:
		return s.Broker
	}
	return nil
}

// ChildOf returns the stack holding children of orders in parent.
func (s Set) ChildOf(parent Stack) Stack {
	switch parent {
	case s.Instrument:
		return s.Contract
	case s.Contract:
		return s.Broker
	}
	return nil
}
