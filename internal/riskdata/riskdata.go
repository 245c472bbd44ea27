// Package riskdata serves current exposure snapshots per account and
// symbol. The pipeline only reads from it; position updates arrive from
// outside the decision path (simulation seeding, future ingest feeds).
package riskdata

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/quorumtrade/quorum-api/internal/types"
)

// RiskMetric is the stored exposure snapshot for one account/symbol pair.
type RiskMetric struct {
	gorm.Model  `json:"-"`
	AccountID   string    `gorm:"index:idx_risk_account_symbol,unique" json:"account_id"`
	Symbol      string    `gorm:"index:idx_risk_account_symbol,unique" json:"symbol"`
	Position    float64   `json:"position"`
	Notional    float64   `json:"notional"`
	ExposurePct float64   `json:"exposure_pct"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store reads and seeds exposure snapshots. It implements
// types.RiskMetricsProvider.
type Store struct {
	db *gorm.DB
}

// NewStore creates a risk data store on the given database.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Metrics returns the current snapshot for an account/symbol pair. An
// unknown pair reads as flat, not as an error.
func (s *Store) Metrics(accountID, symbol string) (types.RiskMetrics, error) {
	var m RiskMetric
	err := s.db.Where("account_id = ? AND symbol = ?", accountID, symbol).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.RiskMetrics{}, nil
		}
		return types.RiskMetrics{}, err
	}
	return types.RiskMetrics{
		Position:    m.Position,
		Notional:    m.Notional,
		ExposurePct: m.ExposurePct,
	}, nil
}

// Upsert creates or replaces the snapshot for an account/symbol pair.
func (s *Store) Upsert(accountID, symbol string, metrics types.RiskMetrics) error {
	var existing RiskMetric
	err := s.db.Where("account_id = ? AND symbol = ?", accountID, symbol).First(&existing).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	existing.AccountID = accountID
	existing.Symbol = symbol
	existing.Position = metrics.Position
	existing.Notional = metrics.Notional
	existing.ExposurePct = metrics.ExposurePct
	return s.db.Save(&existing).Error
}
