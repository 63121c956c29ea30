package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"futuresexec/internal/models"
)

// PositionRepository applies position deltas. Each call is one atomic
// read-modify-write on a single row.
type PositionRepository interface {
	AddContractPosition(ctx context.Context, instrument, contract string, delta int64) error
	AddStrategyPosition(ctx context.Context, strategy, instrument string, delta int64) error
	GetContractPosition(ctx context.Context, instrument, contract string) (int64, error)
	GetStrategyPosition(ctx context.Context, strategy, instrument string) (int64, error)
	ListContractPositions(ctx context.Context, params ListPositionsParams) ([]models.ContractPosition, error)
	ListStrategyPositions(ctx context.Context, params ListPositionsParams) ([]models.StrategyPosition, error)
	// Totals are summed in the database over every row, so their size does
	// not depend on the list page limit.
	ContractPositionTotals(ctx context.Context) ([]InstrumentTotal, error)
	StrategyPositionTotals(ctx context.Context) ([]InstrumentTotal, error)
}

type InstrumentTotal struct {
	InstrumentCode string
	Position       int64
}

type RollStateRepository interface {
	GetRollState(ctx context.Context, instrument string) (*models.RollStateRecord, error)
	UpsertRollState(ctx context.Context, item *models.RollStateRecord) error
	ListRollStates(ctx context.Context) ([]models.RollStateRecord, error)
}

type InstrumentRepository interface {
	GetInstrumentContracts(ctx context.Context, instrument string) (*models.InstrumentContracts, error)
	UpsertInstrumentContracts(ctx context.Context, item *models.InstrumentContracts) error
	ListInstrumentContracts(ctx context.Context) ([]models.InstrumentContracts, error)
}

type PriceRepository interface {
	InsertContractPrices(ctx context.Context, items []models.ContractPrice) error
	LatestContractPrice(ctx context.Context, instrument, contract string) (*models.ContractPrice, error)
	// LastMatchedPrices finds the latest sample time at which every contract
	// has a price. Found is false when no such time exists.
	LastMatchedPrices(ctx context.Context, instrument string, contracts []string) (at time.Time, prices map[string]decimal.Decimal, found bool, err error)
}

type FillRepository interface {
	InsertFill(ctx context.Context, item *models.FillRecord) error
	ListFills(ctx context.Context, params ListFillsParams) ([]models.FillRecord, error)
}

type AlertRepository interface {
	InsertAlert(ctx context.Context, item *models.OperatorAlert) error
	ListAlerts(ctx context.Context, params ListAlertsParams) ([]models.OperatorAlert, error)
	CountAlerts(ctx context.Context, params ListAlertsParams) (int64, error)
	AcknowledgeAlert(ctx context.Context, id uint64, at time.Time) (bool, error)
}

type SystemSettingRepository interface {
	UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error
	GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error)
	ListSystemSettings(ctx context.Context, params ListSystemSettingsParams) ([]models.SystemSetting, error)
	CountSystemSettings(ctx context.Context, params ListSystemSettingsParams) (int64, error)
}

type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	PositionRepository
	RollStateRepository
	InstrumentRepository
	PriceRepository
	FillRepository
	AlertRepository
	SystemSettingRepository
}

type ListPositionsParams struct {
	Limit      int
	Offset     int
	Instrument *string
	Strategy   *string
	NonZero    bool
	OrderBy    string
	Asc        *bool
}

type ListFillsParams struct {
	Limit         int
	Offset        int
	Instrument    *string
	BrokerOrderID *uint64
	Since         *time.Time
	OrderBy       string
	Asc           *bool
}

type ListAlertsParams struct {
	Limit          int
	Offset         int
	Level          *string
	Source         *string
	Unacknowledged bool
	OrderBy        string
	Asc            *bool
}

type ListSystemSettingsParams struct {
	Limit   int
	Offset  int
	Prefix  *string
	OrderBy string
	Asc     *bool
}
