package db

import (
	"gorm.io/gorm"

	"futuresexec/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}
	return Migrate(db.Gorm)
}

// Migrate creates or updates every table the service owns. It takes a bare
// gorm handle so tests can run it against sqlite.
func Migrate(g *gorm.DB) error {
	return g.AutoMigrate(
		&models.InstrumentStackOrder{},
		&models.ContractStackOrder{},
		&models.BrokerStackOrder{},
		&models.ContractPosition{},
		&models.StrategyPosition{},
		&models.RollStateRecord{},
		&models.InstrumentContracts{},
		&models.ContractPrice{},
		&models.FillRecord{},
		&models.OperatorAlert{},
		&models.SystemSetting{},
	)
}
