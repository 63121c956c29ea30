package models

import "time"

// ContractPosition is the net position held in one futures contract.
type ContractPosition struct {
	ID             uint64 `gorm:"primaryKey;autoIncrement"`
	InstrumentCode string `gorm:"type:varchar(60);not null;uniqueIndex:idx_contract_positions_key"`
	ContractID     string `gorm:"type:varchar(30);not null;uniqueIndex:idx_contract_positions_key"`
	Position       int64  `gorm:"not null"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime;index"`
}

func (ContractPosition) TableName() string {
	return "contract_positions"
}

// StrategyPosition is the position a strategy holds in an instrument,
// independent of which contract carries it.
type StrategyPosition struct {
	ID             uint64 `gorm:"primaryKey;autoIncrement"`
	StrategyName   string `gorm:"type:varchar(120);not null;uniqueIndex:idx_strategy_positions_key"`
	InstrumentCode string `gorm:"type:varchar(60);not null;uniqueIndex:idx_strategy_positions_key"`
	Position       int64  `gorm:"not null"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime;index"`
}

func (StrategyPosition) TableName() string {
	return "strategy_positions"
}
