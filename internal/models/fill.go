package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// FillRecord is an append-only history of fill deltas applied to broker orders.
type FillRecord struct {
	ID              uint64 `gorm:"primaryKey;autoIncrement"`
	BrokerOrderID   uint64 `gorm:"not null;index"`
	ContractOrderID uint64 `gorm:"not null;index"`
	BrokerRef       string `gorm:"type:varchar(100);index"`
	StrategyName    string `gorm:"type:varchar(120);not null"`
	InstrumentCode  string `gorm:"type:varchar(60);not null;index"`

	ContractIDs datatypes.JSON   `gorm:"not null"`
	Qty         datatypes.JSON   `gorm:"not null"`
	Price       *decimal.Decimal `gorm:"type:numeric(20,10)"`

	FilledAt  time.Time `gorm:"not null;index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (FillRecord) TableName() string {
	return "fills"
}
