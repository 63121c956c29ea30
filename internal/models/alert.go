package models

import (
	"time"

	"gorm.io/datatypes"
)

// OperatorAlert is a notification that needs a human to look at it.
type OperatorAlert struct {
	ID             uint64         `gorm:"primaryKey;autoIncrement"`
	Level          string         `gorm:"type:varchar(20);not null;index"`
	Source         string         `gorm:"type:varchar(60);index"`
	Message        string         `gorm:"type:text;not null"`
	Details        datatypes.JSON `gorm:"not null"`
	AcknowledgedAt *time.Time

	CreatedAt time.Time `gorm:"autoCreateTime;index"`
}

func (OperatorAlert) TableName() string {
	return "operator_alerts"
}
