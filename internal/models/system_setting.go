package models

import (
	"time"

	"gorm.io/datatypes"
)

// SystemSetting is a runtime switch an operator can flip without a restart.
type SystemSetting struct {
	ID  uint64 `gorm:"primaryKey;autoIncrement"`
	Key string `gorm:"type:varchar(120);not null;uniqueIndex"`

	// JSON encoded; booleans for feature switches.
	Value       datatypes.JSON `gorm:"not null"`
	Description string         `gorm:"type:text"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime;index"`
}

func (SystemSetting) TableName() string {
	return "system_settings"
}
