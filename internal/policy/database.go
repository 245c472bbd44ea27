package policy

import (
	"errors"

	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// GetConfig returns the stored configuration for an account, or nil when
// the account has never been configured.
func (d *Database) GetConfig(accountID string) (*Config, error) {
	var cfg Config
	if err := d.db.Where("account_id = ?", accountID).First(&cfg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cfg, nil
}

// UpsertConfig creates or replaces the configuration for an account.
func (d *Database) UpsertConfig(cfg *Config) error {
	existing, err := d.GetConfig(cfg.AccountID)
	if err != nil {
		return err
	}
	if existing != nil {
		cfg.ID = existing.ID
		cfg.CreatedAt = existing.CreatedAt
	}
	return d.db.Save(cfg).Error
}
