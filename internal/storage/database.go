// Package storage persists only the energy counters, so daily/monthly and
// lifetime totals survive a restart. Telemetry history is deliberately not
// stored.
package storage

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"solarsim/internal/model"
)

// EnergyCounter is one row per plant.
type EnergyCounter struct {
	ID         uint    `gorm:"primarykey"`
	PlantID    string  `gorm:"uniqueIndex"`
	DailyKWh   float64 `gorm:"column:daily_kwh"`
	MonthlyKWh float64 `gorm:"column:monthly_kwh"`
	TotalKWh   float64 `gorm:"column:total_kwh"`
	LastUpdate time.Time
	UpdatedAt  time.Time
}

type Database struct {
	db *gorm.DB
}

func NewDatabase(path string) (*Database, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&EnergyCounter{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Database{db: db}, nil
}

// LoadCounters returns the persisted counters for the plant; a plant that has
// never been checkpointed gets a zero state without error.
func (d *Database) LoadCounters(plantID string) (model.EnergyState, error) {
	var row EnergyCounter
	result := d.db.Where("plant_id = ?", plantID).First(&row)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return model.EnergyState{}, nil
		}
		return model.EnergyState{}, result.Error
	}
	return model.EnergyState{
		DailyKWh:   row.DailyKWh,
		MonthlyKWh: row.MonthlyKWh,
		TotalKWh:   row.TotalKWh,
		LastUpdate: row.LastUpdate,
	}, nil
}

// SaveCounters upserts the plant's counter row.
func (d *Database) SaveCounters(plantID string, e model.EnergyState) error {
	row := EnergyCounter{
		PlantID:    plantID,
		DailyKWh:   e.DailyKWh,
		MonthlyKWh: e.MonthlyKWh,
		TotalKWh:   e.TotalKWh,
		LastUpdate: e.LastUpdate,
	}
	return d.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "plant_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"daily_kwh", "monthly_kwh", "total_kwh", "last_update", "updated_at"}),
	}).Create(&row).Error
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
