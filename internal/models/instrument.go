package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type RollStateRecord struct {
	ID             uint64 `gorm:"primaryKey;autoIncrement"`
	InstrumentCode string `gorm:"type:varchar(60);not null;uniqueIndex"`
	State          string `gorm:"type:varchar(20);not null"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (RollStateRecord) TableName() string {
	return "roll_states"
}

// InstrumentContracts maps an instrument to the contract its prices come
// from and the contract it rolls into.
type InstrumentContracts struct {
	ID                uint64 `gorm:"primaryKey;autoIncrement"`
	InstrumentCode    string `gorm:"type:varchar(60);not null;uniqueIndex"`
	PricedContractID  string `gorm:"type:varchar(30);not null"`
	ForwardContractID string `gorm:"type:varchar(30);not null"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (InstrumentContracts) TableName() string {
	return "instrument_contracts"
}

// ContractPrice is one sampled price. Rows sharing SampledAt across the
// priced and forward contracts are matched prices.
type ContractPrice struct {
	ID             uint64          `gorm:"primaryKey;autoIncrement"`
	InstrumentCode string          `gorm:"type:varchar(60);not null;index:idx_contract_prices_lookup"`
	ContractID     string          `gorm:"type:varchar(30);not null;index:idx_contract_prices_lookup"`
	Price          decimal.Decimal `gorm:"type:numeric(20,10);not null"`
	SampledAt      time.Time       `gorm:"not null;index"`
	Source         string          `gorm:"type:varchar(40)"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (ContractPrice) TableName() string {
	return "contract_prices"
}
