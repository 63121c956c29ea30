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

func (s *Store) InsertFill(ctx context.Context, item *models.FillRecord) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListFills(ctx context.Context, params repository.ListFillsParams) ([]models.FillRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.FillRecord{})
	if params.Instrument != nil && strings.TrimSpace(*params.Instrument) != "" {
		query = query.Where("instrument_code = ?", strings.TrimSpace(*params.Instrument))
	}
	if params.BrokerOrderID != nil {
		query = query.Where("broker_order_id = ?", *params.BrokerOrderID)
	}
	if params.Since != nil {
		query = query.Where("filled_at >= ?", *params.Since)
	}
	query = applyOrder(query, params.OrderBy, params.Asc, "filled_at")
	var items []models.FillRecord
	if err := query.Limit(normalizeLimit(params.Limit, 200)).Offset(normalizeOffset(params.Offset)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) InsertAlert(ctx context.Context, item *models.OperatorAlert) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if len(item.Details) == 0 {
		item.Details = []byte("{}")
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func alertsQuery(db *gorm.DB, params repository.ListAlertsParams) *gorm.DB {
	query := db.Model(&models.OperatorAlert{})
	if params.Level != nil && strings.TrimSpace(*params.Level) != "" {
		query = query.Where("level = ?", strings.TrimSpace(*params.Level))
	}
	if params.Source != nil && strings.TrimSpace(*params.Source) != "" {
		query = query.Where("source = ?", strings.TrimSpace(*params.Source))
	}
	if params.Unacknowledged {
		query = query.Where("acknowledged_at IS NULL")
	}
	return query
}

func (s *Store) ListAlerts(ctx context.Context, params repository.ListAlertsParams) ([]models.OperatorAlert, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyOrder(alertsQuery(s.db.WithContext(ctx), params), params.OrderBy, params.Asc, "created_at")
	var items []models.OperatorAlert
	if err := query.Limit(normalizeLimit(params.Limit, 100)).Offset(normalizeOffset(params.Offset)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountAlerts(ctx context.Context, params repository.ListAlertsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := alertsQuery(s.db.WithContext(ctx), params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) AcknowledgeAlert(ctx context.Context, id uint64, at time.Time) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	res := s.db.WithContext(ctx).Model(&models.OperatorAlert{}).
		Where("id = ? AND acknowledged_at IS NULL", id).
		Update("acknowledged_at", at.UTC())
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.Key = strings.TrimSpace(item.Key)
	if item.Key == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"value",
			"description",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	var item models.SystemSetting
	err := s.db.WithContext(ctx).Model(&models.SystemSetting{}).Where("key = ?", key).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func settingsQuery(db *gorm.DB, params repository.ListSystemSettingsParams) *gorm.DB {
	query := db.Model(&models.SystemSetting{})
	if params.Prefix != nil && strings.TrimSpace(*params.Prefix) != "" {
		query = query.Where("key LIKE ?", strings.TrimSpace(*params.Prefix)+"%")
	}
	return query
}

func (s *Store) ListSystemSettings(ctx context.Context, params repository.ListSystemSettingsParams) ([]models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyOrder(settingsQuery(s.db.WithContext(ctx), params), params.OrderBy, params.Asc, "key")
	var items []models.SystemSetting
	if err := query.Limit(normalizeLimit(params.Limit, 500)).Offset(normalizeOffset(params.Offset)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountSystemSettings(ctx context.Context, params repository.ListSystemSettingsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := settingsQuery(s.db.WithContext(ctx), params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}
