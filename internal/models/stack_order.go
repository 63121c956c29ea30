package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	TableInstrumentOrders = "instrument_orders"
	TableContractOrders   = "contract_orders"
	TableBrokerOrders     = "broker_orders"
)

// StackOrder is the row layout shared by the three stack tables.
// ActiveKey is set while the order is active and NULL afterwards, so the
// unique index only covers live orders.
type StackOrder struct {
	ID             uint64 `gorm:"primaryKey;autoIncrement"`
	Grain          string `gorm:"type:varchar(16);not null"`
	StrategyName   string `gorm:"type:varchar(120);not null;index"`
	InstrumentCode string `gorm:"type:varchar(60);not null;index"`

	ContractIDs datatypes.JSON `gorm:"not null"`
	Trade       datatypes.JSON `gorm:"not null"`
	Fill        datatypes.JSON

	OrderType         string           `gorm:"type:varchar(20);not null"`
	LimitPrice        *decimal.Decimal `gorm:"type:numeric(20,10)"`
	ReferencePrice    *decimal.Decimal `gorm:"type:numeric(20,10)"`
	ReferenceDatetime *time.Time
	ReferenceContract string `gorm:"type:varchar(120)"`
	RollOrder         bool   `gorm:"not null"`

	ParentID uint64 `gorm:"not null;index"`
	Children datatypes.JSON

	Locked         bool `gorm:"not null;index"`
	LockedAt       *time.Time
	TxState        string `gorm:"type:varchar(20)"`
	StuckAlertedAt *time.Time

	FilledPrice  *decimal.Decimal `gorm:"type:numeric(20,10)"`
	FillDatetime *time.Time
	Status       string  `gorm:"type:varchar(20);not null;index"`
	ActiveKey    *string `gorm:"type:varchar(400);uniqueIndex"`

	Algo              string `gorm:"type:varchar(60)"`
	BrokerRef         string `gorm:"type:varchar(100);index"`
	SubmittedAt       *time.Time
	CancelRequestedAt *time.Time
	Escalated         bool `gorm:"not null"`

	CreatedAt time.Time `gorm:"autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

type InstrumentStackOrder struct{ StackOrder }

func (InstrumentStackOrder) TableName() string { return TableInstrumentOrders }

type ContractStackOrder struct{ StackOrder }

func (ContractStackOrder) TableName() string { return TableContractOrders }

type BrokerStackOrder struct{ StackOrder }

func (BrokerStackOrder) TableName() string { return TableBrokerOrders }
