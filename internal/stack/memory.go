package stack

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"futuresexec/internal/order"
)

// Memory is a process-local Stack. Children is the stack that holds the
// children of orders stored here and may be nil for the broker stack.
type Memory struct {
	name     string
	children Stack

	mu     sync.Mutex
	nextID uint64
	orders map[uint64]*order.Order
}

func NewMemory(name string, children Stack) *Memory {
	return &Memory{
		name:     name,
		children: children,
		orders:   make(map[uint64]*order.Order),
	}
}

func (m *Memory) Name() string { return m.name }

func (m *Memory) PutOrder(ctx context.Context, o *order.Order, opts PutOptions) (uint64, error) {
	if err := o.Validate(opts.AllowZero); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := o.Key()
	for _, existing := range m.orders {
		if existing.IsActive() && existing.Key() == key {
			return 0, &DuplicateOrderError{Stack: m.name, Key: key, ExistingID: existing.ID}
		}
	}
	m.nextID++
	stored := o.Clone()
	stored.ID = m.nextID
	if stored.Status == "" {
		stored.Status = order.StatusActive
	}
	now := time.Now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	m.orders[stored.ID] = stored
	return stored.ID, nil
}

func (m *Memory) GetOrder(ctx context.Context, id uint64) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("%s stack order %d: %w", m.name, id, ErrOrderNotFound)
	}
	return o.Clone(), nil
}

func (m *Memory) LockOrder(ctx context.Context, id uint64) error {
	_, err := m.UpdateOrder(ctx, id, func(o *order.Order) error {
		if !o.Locked {
			o.Lock(time.Now())
		}
		return nil
	})
	return err
}

func (m *Memory) UnlockOrder(ctx context.Context, id uint64) error {
	_, err := m.UpdateOrder(ctx, id, func(o *order.Order) error {
		o.Unlock()
		return nil
	})
	return err
}

func (m *Memory) AddChildren(ctx context.Context, id uint64, children []uint64) error {
	_, err := m.UpdateOrder(ctx, id, func(o *order.Order) error {
		if o.HasChildren() {
			return fmt.Errorf("%s stack order %d: %w", m.name, id, ErrChildrenAlreadySet)
		}
		o.Children = append([]uint64(nil), children...)
		return nil
	})
	return err
}

func (m *Memory) UpdateOrder(ctx context.Context, id uint64, fn func(o *order.Order) error) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("%s stack order %d: %w", m.name, id, ErrOrderNotFound)
	}
	next := o.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = id
	next.UpdatedAt = time.Now().UTC()
	m.orders[id] = next
	return next.Clone(), nil
}

func (m *Memory) RemoveOrder(ctx context.Context, id uint64) error {
	m.mu.Lock()
	o, ok := m.orders[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%s stack order %d: %w", m.name, id, ErrOrderNotFound)
	}
	if o.Locked {
		m.mu.Unlock()
		return fmt.Errorf("%s stack order %d: %w", m.name, id, ErrOrderLocked)
	}
	children := append([]uint64(nil), o.Children...)
	m.mu.Unlock()

	if err := m.checkChildren(ctx, id, children); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.orders[id]; ok && cur.Locked {
		return fmt.Errorf("%s stack order %d: %w", m.name, id, ErrOrderLocked)
	}
	delete(m.orders, id)
	return nil
}

func (m *Memory) checkChildren(ctx context.Context, id uint64, children []uint64) error {
	if m.children == nil || len(children) == 0 {
		return nil
	}
	active, err := m.children.AnyActive(ctx, children)
	if err != nil {
		return err
	}
	if active {
		return fmt.Errorf("%s stack order %d: %w", m.name, id, ErrActiveChildren)
	}
	return nil
}

func (m *Memory) ActiveOrders(ctx context.Context) ([]*order.Order, error) {
	return m.filter(func(o *order.Order) bool { return o.IsActive() }), nil
}

func (m *Memory) AllOrders(ctx context.Context) ([]*order.Order, error) {
	return m.filter(func(o *order.Order) bool { return true }), nil
}

func (m *Memory) OrdersForStrategyAndInstrument(ctx context.Context, strategy, instrument string) ([]*order.Order, error) {
	return m.filter(func(o *order.Order) bool {
		return o.IsActive() && o.StrategyName == strategy && o.InstrumentCode == instrument
	}), nil
}

func (m *Memory) StrategiesWithOrdersForInstrument(ctx context.Context, instrument string) ([]string, error) {
	seen := map[string]struct{}{}
	for _, o := range m.filter(func(o *order.Order) bool {
		return o.IsActive() && o.InstrumentCode == instrument
	}) {
		seen[o.StrategyName] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) CountOrders(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.orders)), nil
}

func (m *Memory) AnyActive(ctx context.Context, ids []uint64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if o, ok := m.orders[id]; ok && o.IsActive() {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) RemoveAllDeactivated(ctx context.Context) (int, error) {
	candidates := m.filter(func(o *order.Order) bool { return !o.IsActive() && !o.Locked })
	removed := 0
	for _, o := range candidates {
		if err := m.checkChildren(ctx, o.ID, o.Children); err != nil {
			continue
		}
		m.mu.Lock()
		if cur, ok := m.orders[o.ID]; ok && !cur.IsActive() && !cur.Locked {
			delete(m.orders, o.ID)
			removed++
		}
		m.mu.Unlock()
	}
	return removed, nil
}

func (m *Memory) filter(keep func(o *order.Order) bool) []*order.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*order.Order, 0, len(m.orders))
	for _, o := range m.orders {
		if keep(o) {
			out = append(out, o.Clone())
		}
	}
	order.SortByID(out)
	return out
}
