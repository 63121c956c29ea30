package gormrepository

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"futuresexec/internal/models"
)

func (s *Store) GetRollState(ctx context.Context, instrument string) (*models.RollStateRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	instrument = strings.TrimSpace(instrument)
	if instrument == "" {
		return nil, nil
	}
	var item models.RollStateRecord
	err := s.db.WithContext(ctx).Where("instrument_code = ?", instrument).Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpsertRollState(ctx context.Context, item *models.RollStateRecord) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.InstrumentCode = strings.TrimSpace(item.InstrumentCode)
	if item.InstrumentCode == "" {
		return errors.New("instrument code is required")
	}
	item.UpdatedAt = time.Now().UTC()
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "instrument_code"}},
		DoUpdates: clause.AssignmentColumns([]string{"state", "updated_at"}),
	}).Create(item).Error
}

func (s *Store) ListRollStates(ctx context.Context) ([]models.RollStateRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.RollStateRecord
	if err := s.db.WithContext(ctx).Order("instrument_code asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) GetInstrumentContracts(ctx context.Context, instrument string) (*models.InstrumentContracts, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	instrument = strings.TrimSpace(instrument)
	if instrument == "" {
		return nil, nil
	}
	var item models.InstrumentContracts
	err := s.db.WithContext(ctx).Where("instrument_code = ?", instrument).Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpsertInstrumentContracts(ctx context.Context, item *models.InstrumentContracts) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.InstrumentCode = strings.TrimSpace(item.InstrumentCode)
	if item.InstrumentCode == "" {
		return errors.New("instrument code is required")
	}
	item.UpdatedAt = time.Now().UTC()
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "instrument_code"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"priced_contract_id",
			"forward_contract_id",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) ListInstrumentContracts(ctx context.Context) ([]models.InstrumentContracts, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.InstrumentContracts
	if err := s.db.WithContext(ctx).Order("instrument_code asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) InsertContractPrices(ctx context.Context, items []models.ContractPrice) error {
	if s == nil || s.db == nil || len(items) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).CreateInBatches(items, 200).Error
}

func (s *Store) LatestContractPrice(ctx context.Context, instrument, contract string) (*models.ContractPrice, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.ContractPrice
	err := s.db.WithContext(ctx).
		Where("instrument_code = ? AND contract_id = ?", strings.TrimSpace(instrument), strings.TrimSpace(contract)).
		Order("sampled_at desc").Order("id desc").
		Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// matchWindow bounds how far back matched prices are searched.
const matchWindow = 500

func (s *Store) LastMatchedPrices(ctx context.Context, instrument string, contracts []string) (time.Time, map[string]decimal.Decimal, bool, error) {
	if s == nil || s.db == nil {
		return time.Time{}, nil, false, nil
	}
	contracts = cleanStrings(contracts)
	if len(contracts) == 0 {
		return time.Time{}, nil, false, nil
	}
	var rows []models.ContractPrice
	err := s.db.WithContext(ctx).
		Where("instrument_code = ? AND contract_id IN ?", strings.TrimSpace(instrument), contracts).
		Order("sampled_at desc").Order("id desc").
		Limit(matchWindow * len(contracts)).
		Find(&rows).Error
	if err != nil {
		return time.Time{}, nil, false, err
	}

	byTime := map[int64]map[string]decimal.Decimal{}
	stamps := map[int64]time.Time{}
	for _, row := range rows {
		k := row.SampledAt.UnixNano()
		if byTime[k] == nil {
			byTime[k] = map[string]decimal.Decimal{}
			stamps[k] = row.SampledAt
		}
		if _, ok := byTime[k][row.ContractID]; !ok {
			byTime[k][row.ContractID] = row.Price
		}
	}
	keys := make([]int64, 0, len(byTime))
	for k := range byTime {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] > keys[j] })
	for _, k := range keys {
		prices := byTime[k]
		if len(prices) == len(contracts) {
			return stamps[k].UTC(), prices, true, nil
		}
	}
	return time.Time{}, nil, false, nil
}
