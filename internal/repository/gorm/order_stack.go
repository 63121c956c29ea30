package gormrepository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"futuresexec/internal/models"
	"futuresexec/internal/order"
	"futuresexec/internal/stack"
)

// OrderStack is a stack.Stack backed by one table. Single-order changes run
// as SELECT ... FOR UPDATE followed by an update inside one transaction.
type OrderStack struct {
	db         *gorm.DB
	name       string
	table      string
	childTable string
}

var _ stack.Stack = (*OrderStack)(nil)

func NewOrderStack(db *gorm.DB, name, table, childTable string) *OrderStack {
	return &OrderStack{db: db, name: name, table: table, childTable: childTable}
}

// Stacks returns the three persistent stacks linked parent to child.
func (s *Store) Stacks() stack.Set {
	return stack.Set{
		Instrument: NewOrderStack(s.db, stack.NameInstrument, models.TableInstrumentOrders, models.TableContractOrders),
		Contract:   NewOrderStack(s.db, stack.NameContract, models.TableContractOrders, models.TableBrokerOrders),
		Broker:     NewOrderStack(s.db, stack.NameBroker, models.TableBrokerOrders, ""),
	}
}

func (s *OrderStack) Name() string { return s.name }

func (s *OrderStack) notFound(id uint64) error {
	return fmt.Errorf("%s stack order %d: %w", s.name, id, stack.ErrOrderNotFound)
}

func (s *OrderStack) PutOrder(ctx context.Context, o *order.Order, opts stack.PutOptions) (uint64, error) {
	if err := o.Validate(opts.AllowZero); err != nil {
		return 0, err
	}
	in := o.Clone()
	in.ID = 0
	if in.Status == "" {
		in.Status = order.StatusActive
	}
	row, err := rowFromOrder(in)
	if err != nil {
		return 0, err
	}
	key := in.Key()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if row.ActiveKey != nil {
			var existing models.StackOrder
			err := tx.Table(s.table).Select("id").Where("active_key = ?", key).Take(&existing).Error
			if err == nil {
				return &stack.DuplicateOrderError{Stack: s.name, Key: key, ExistingID: existing.ID}
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}
		if err := tx.Table(s.table).Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				return &stack.DuplicateOrderError{Stack: s.name, Key: key}
			}
			return err
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return row.ID, nil
}

func (s *OrderStack) GetOrder(ctx context.Context, id uint64) (*order.Order, error) {
	var row models.StackOrder
	err := s.db.WithContext(ctx).Table(s.table).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, s.notFound(id)
	}
	if err != nil {
		return nil, err
	}
	return orderFromRow(row)
}

func (s *OrderStack) LockOrder(ctx context.Context, id uint64) error {
	_, err := s.UpdateOrder(ctx, id, func(o *order.Order) error {
		if !o.Locked {
			o.Lock(time.Now())
		}
		return nil
	})
	return err
}

func (s *OrderStack) UnlockOrder(ctx context.Context, id uint64) error {
	_, err := s.UpdateOrder(ctx, id, func(o *order.Order) error {
		o.Unlock()
		return nil
	})
	return err
}

func (s *OrderStack) AddChildren(ctx context.Context, id uint64, children []uint64) error {
	_, err := s.UpdateOrder(ctx, id, func(o *order.Order) error {
		if o.HasChildren() {
			return fmt.Errorf("%s stack order %d: %w", s.name, id, stack.ErrChildrenAlreadySet)
		}
		o.Children = append([]uint64(nil), children...)
		return nil
	})
	return err
}

func (s *OrderStack) UpdateOrder(ctx context.Context, id uint64, fn func(o *order.Order) error) (*order.Order, error) {
	var out *order.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.lockRow(tx, id)
		if err != nil {
			return err
		}
		o, err := orderFromRow(row)
		if err != nil {
			return err
		}
		if err := fn(o); err != nil {
			return err
		}
		o.ID = id
		next, err := rowFromOrder(o)
		if err != nil {
			return err
		}
		next.CreatedAt = row.CreatedAt
		next.UpdatedAt = time.Now().UTC()
		if err := tx.Table(s.table).Where("id = ?", id).Select("*").Updates(&next).Error; err != nil {
			if isUniqueViolation(err) {
				return &stack.DuplicateOrderError{Stack: s.name, Key: o.Key()}
			}
			return err
		}
		o.UpdatedAt = next.UpdatedAt
		o.CreatedAt = next.CreatedAt
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *OrderStack) RemoveOrder(ctx context.Context, id uint64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.lockRow(tx, id)
		if err != nil {
			return err
		}
		if row.Locked {
			return fmt.Errorf("%s stack order %d: %w", s.name, id, stack.ErrOrderLocked)
		}
		active, err := s.childrenActive(tx, row)
		if err != nil {
			return err
		}
		if active {
			return fmt.Errorf("%s stack order %d: %w", s.name, id, stack.ErrActiveChildren)
		}
		return tx.Table(s.table).Where("id = ?", id).Delete(&models.StackOrder{}).Error
	})
}

func (s *OrderStack) ActiveOrders(ctx context.Context) ([]*order.Order, error) {
	return s.find(s.db.WithContext(ctx).Table(s.table).Where("status = ?", string(order.StatusActive)))
}

func (s *OrderStack) AllOrders(ctx context.Context) ([]*order.Order, error) {
	return s.find(s.db.WithContext(ctx).Table(s.table))
}

func (s *OrderStack) OrdersForStrategyAndInstrument(ctx context.Context, strategy, instrument string) ([]*order.Order, error) {
	return s.find(s.db.WithContext(ctx).Table(s.table).
		Where("status = ? AND strategy_name = ? AND instrument_code = ?", string(order.StatusActive), strategy, instrument))
}

func (s *OrderStack) StrategiesWithOrdersForInstrument(ctx context.Context, instrument string) ([]string, error) {
	var names []string
	err := s.db.WithContext(ctx).Table(s.table).
		Where("status = ? AND instrument_code = ?", string(order.StatusActive), instrument).
		Distinct("strategy_name").
		Order("strategy_name asc").
		Pluck("strategy_name", &names).Error
	if err != nil {
		return nil, err
	}
	return names, nil
}

func (s *OrderStack) CountOrders(ctx context.Context) (int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Table(s.table).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *OrderStack) AnyActive(ctx context.Context, ids []uint64) (bool, error) {
	return anyActive(s.db.WithContext(ctx), s.table, ids)
}

func (s *OrderStack) RemoveAllDeactivated(ctx context.Context) (int, error) {
	var ids []uint64
	err := s.db.WithContext(ctx).Table(s.table).
		Where("status <> ? AND locked = ?", string(order.StatusActive), false).
		Order("id asc").
		Pluck("id", &ids).Error
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, id := range ids {
		err := s.RemoveOrder(ctx, id)
		if err == nil {
			removed++
			continue
		}
		if errors.Is(err, stack.ErrActiveChildren) || errors.Is(err, stack.ErrOrderLocked) || errors.Is(err, stack.ErrOrderNotFound) {
			continue
		}
		return removed, err
	}
	return removed, nil
}

func (s *OrderStack) lockRow(tx *gorm.DB, id uint64) (models.StackOrder, error) {
	var row models.StackOrder
	err := tx.Table(s.table).Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return row, s.notFound(id)
	}
	return row, err
}

func (s *OrderStack) childrenActive(tx *gorm.DB, row models.StackOrder) (bool, error) {
	if s.childTable == "" {
		return false, nil
	}
	var children []uint64
	if len(row.Children) > 0 {
		if err := json.Unmarshal(row.Children, &children); err != nil {
			return false, err
		}
	}
	return anyActive(tx, s.childTable, children)
}

func anyActive(db *gorm.DB, table string, ids []uint64) (bool, error) {
	if len(ids) == 0 {
		return false, nil
	}
	var n int64
	err := db.Table(table).Where("id IN ? AND status = ?", ids, string(order.StatusActive)).Count(&n).Error
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *OrderStack) find(query *gorm.DB) ([]*order.Order, error) {
	var rows []models.StackOrder
	if err := query.Order("id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*order.Order, 0, len(rows))
	for _, row := range rows {
		o, err := orderFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

func rowFromOrder(o *order.Order) (models.StackOrder, error) {
	contracts, err := marshalJSON(o.ContractIDs, []string{})
	if err != nil {
		return models.StackOrder{}, err
	}
	trade, err := marshalJSON([]int64(o.Trade), []int64{})
	if err != nil {
		return models.StackOrder{}, err
	}
	fill, err := marshalJSON([]int64(o.Fill), []int64{})
	if err != nil {
		return models.StackOrder{}, err
	}
	children, err := marshalJSON(o.Children, []uint64{})
	if err != nil {
		return models.StackOrder{}, err
	}
	row := models.StackOrder{
		ID:                o.ID,
		Grain:             string(o.Grain),
		StrategyName:      o.StrategyName,
		InstrumentCode:    o.InstrumentCode,
		ContractIDs:       contracts,
		Trade:             trade,
		Fill:              fill,
		OrderType:         string(o.OrderType),
		LimitPrice:        o.LimitPrice,
		ReferencePrice:    o.ReferencePrice,
		ReferenceContract: o.ReferenceContract,
		RollOrder:         o.RollOrder,
		ParentID:          o.Parent,
		Children:          children,
		Locked:            o.Locked,
		LockedAt:          o.LockedAt,
		TxState:           string(o.TxState),
		StuckAlertedAt:    o.StuckAlertedAt,
		FilledPrice:       o.FilledPrice,
		FillDatetime:      o.FillDatetime,
		Status:            string(o.Status),
		Algo:              o.Algo,
		BrokerRef:         o.BrokerRef,
		SubmittedAt:       o.SubmittedAt,
		CancelRequestedAt: o.CancelRequestedAt,
		Escalated:         o.Escalated,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
	if !o.ReferenceDatetime.IsZero() {
		t := o.ReferenceDatetime.UTC()
		row.ReferenceDatetime = &t
	}
	if o.IsActive() {
		key := o.Key()
		row.ActiveKey = &key
	}
	return row, nil
}

func orderFromRow(row models.StackOrder) (*order.Order, error) {
	o := &order.Order{
		ID:                row.ID,
		Grain:             order.Grain(row.Grain),
		StrategyName:      row.StrategyName,
		InstrumentCode:    row.InstrumentCode,
		OrderType:         order.OrderType(row.OrderType),
		LimitPrice:        row.LimitPrice,
		ReferencePrice:    row.ReferencePrice,
		ReferenceContract: row.ReferenceContract,
		RollOrder:         row.RollOrder,
		Parent:            row.ParentID,
		Locked:            row.Locked,
		LockedAt:          row.LockedAt,
		TxState:           order.TxState(row.TxState),
		StuckAlertedAt:    row.StuckAlertedAt,
		FilledPrice:       row.FilledPrice,
		FillDatetime:      row.FillDatetime,
		Status:            order.Status(row.Status),
		Algo:              row.Algo,
		BrokerRef:         row.BrokerRef,
		SubmittedAt:       row.SubmittedAt,
		CancelRequestedAt: row.CancelRequestedAt,
		Escalated:         row.Escalated,
		CreatedAt:         row.CreatedAt,
		UpdatedAt:         row.UpdatedAt,
	}
	if row.ReferenceDatetime != nil {
		o.ReferenceDatetime = row.ReferenceDatetime.UTC()
	}
	var trade, fill []int64
	if err := unmarshalJSON(row.ContractIDs, &o.ContractIDs); err != nil {
		return nil, fmt.Errorf("order %d contract ids: %w", row.ID, err)
	}
	if err := unmarshalJSON(row.Trade, &trade); err != nil {
		return nil, fmt.Errorf("order %d trade: %w", row.ID, err)
	}
	if err := unmarshalJSON(row.Fill, &fill); err != nil {
		return nil, fmt.Errorf("order %d fill: %w", row.ID, err)
	}
	if err := unmarshalJSON(row.Children, &o.Children); err != nil {
		return nil, fmt.Errorf("order %d children: %w", row.ID, err)
	}
	o.Trade = order.TradeQuantity(trade)
	if len(fill) > 0 {
		o.Fill = order.TradeQuantity(fill)
	}
	if len(o.ContractIDs) == 0 {
		o.ContractIDs = nil
	}
	if len(o.Children) == 0 {
		o.Children = nil
	}
	return o, nil
}

func marshalJSON[T any](v []T, empty []T) (datatypes.JSON, error) {
	if v == nil {
		v = empty
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func unmarshalJSON[T any](raw datatypes.JSON, out *[]T) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}
