package database

import (
	"github.com/quorumtrade/quorum-api/internal/policy"
	"github.com/quorumtrade/quorum-api/internal/riskdata"
	"github.com/quorumtrade/quorum-api/internal/telemetry"
	"github.com/quorumtrade/quorum-api/internal/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDatabase initializes and returns a new GORM DB connection
func NewDatabase(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		dsn = "quorum.db"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	err = db.AutoMigrate(
		&types.TradingDecision{},
		&types.Order{},
		&types.Fill{},
		&policy.Config{},
		&riskdata.RiskMetric{},
		&telemetry.Event{},
	)
	if err != nil {
		return nil, err
	}

	return db, nil
}
