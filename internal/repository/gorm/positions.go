package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"futuresexec/internal/models"
	"futuresexec/internal/repository"
)

// AddContractPosition is a single upsert so concurrent writers never lose
// an update.
func (s *Store) AddContractPosition(ctx context.Context, instrument, contract string, delta int64) error {
	if s == nil || s.db == nil {
		return nil
	}
	instrument = strings.TrimSpace(instrument)
	contract = strings.TrimSpace(contract)
	if instrument == "" || contract == "" {
		return errors.New("instrument and contract are required")
	}
	item := &models.ContractPosition{
		InstrumentCode: instrument,
		ContractID:     contract,
		Position:       delta,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "instrument_code"}, {Name: "contract_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"position":   gorm.Expr("contract_positions.position + excluded.position"),
			"updated_at": time.Now().UTC(),
		}),
	}).Create(item).Error
}

func (s *Store) AddStrategyPosition(ctx context.Context, strategy, instrument string, delta int64) error {
	if s == nil || s.db == nil {
		return nil
	}
	strategy = strings.TrimSpace(strategy)
	instrument = strings.TrimSpace(instrument)
	if strategy == "" || instrument == "" {
		return errors.New("strategy and instrument are required")
	}
	item := &models.StrategyPosition{
		StrategyName:   strategy,
		InstrumentCode: instrument,
		Position:       delta,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "strategy_name"}, {Name: "instrument_code"}},
		DoUpdates: clause.Assignments(map[string]any{
			"position":   gorm.Expr("strategy_positions.position + excluded.position"),
			"updated_at": time.Now().UTC(),
		}),
	}).Create(item).Error
}

func (s *Store) GetContractPosition(ctx context.Context, instrument, contract string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var item models.ContractPosition
	err := s.db.WithContext(ctx).
		Where("instrument_code = ? AND contract_id = ?", strings.TrimSpace(instrument), strings.TrimSpace(contract)).
		Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return item.Position, nil
}

func (s *Store) GetStrategyPosition(ctx context.Context, strategy, instrument string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var item models.StrategyPosition
	err := s.db.WithContext(ctx).
		Where("strategy_name = ? AND instrument_code = ?", strings.TrimSpace(strategy), strings.TrimSpace(instrument)).
		Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return item.Position, nil
}

func (s *Store) ListContractPositions(ctx context.Context, params repository.ListPositionsParams) ([]models.ContractPosition, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.ContractPosition{})
	if params.Instrument != nil && strings.TrimSpace(*params.Instrument) != "" {
		query = query.Where("instrument_code = ?", strings.TrimSpace(*params.Instrument))
	}
	if params.NonZero {
		query = query.Where("position <> 0")
	}
	query = applyOrder(query, params.OrderBy, params.Asc, "instrument_code")
	var items []models.ContractPosition
	if err := query.Limit(normalizeLimit(params.Limit, 500)).Offset(normalizeOffset(params.Offset)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListStrategyPositions(ctx context.Context, params repository.ListPositionsParams) ([]models.StrategyPosition, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.StrategyPosition{})
	if params.Instrument != nil && strings.TrimSpace(*params.Instrument) != "" {
		query = query.Where("instrument_code = ?", strings.TrimSpace(*params.Instrument))
	}
	if params.Strategy != nil && strings.TrimSpace(*params.Strategy) != "" {
		query = query.Where("strategy_name = ?", strings.TrimSpace(*params.Strategy))
	}
	if params.NonZero {
		query = query.Where("position <> 0")
	}
	query = applyOrder(query, params.OrderBy, params.Asc, "instrument_code")
	var items []models.StrategyPosition
	if err := query.Limit(normalizeLimit(params.Limit, 500)).Offset(normalizeOffset(params.Offset)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ContractPositionTotals(ctx context.Context) ([]repository.InstrumentTotal, error) {
	return s.positionTotals(ctx, &models.ContractPosition{})
}

func (s *Store) StrategyPositionTotals(ctx context.Context) ([]repository.InstrumentTotal, error) {
	return s.positionTotals(ctx, &models.StrategyPosition{})
}

func (s *Store) positionTotals(ctx context.Context, model any) ([]repository.InstrumentTotal, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []repository.InstrumentTotal
	err := s.db.WithContext(ctx).Model(model).
		Select("instrument_code, SUM(position) AS position").
		Group("instrument_code").
		Order("instrument_code asc").
		Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
