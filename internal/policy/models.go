package policy

import (
	"time"

	"gorm.io/gorm"
)

// Account trading modes. Paper accounts always execute as dry runs.
const (
	ModePaper = "paper"
	ModeLive  = "live"
)

// Config is the per-account safety configuration. It is read by the
// policy engine on every validation and mutated only through explicit
// administrative operations, never by the decision pipeline itself.
type Config struct {
	gorm.Model          `json:"-"`
	AccountID           string    `gorm:"uniqueIndex" json:"account_id"`
	Mode                string    `json:"mode"` // paper or live
	TradingEnabled      bool      `json:"trading_enabled"`
	ReadOnly            bool      `json:"read_only"`
	KillSwitchActive    bool      `json:"kill_switch_active"`
	KillSwitchReason    string    `json:"kill_switch_reason,omitempty"`
	MaxPositionPerSym   float64   `json:"max_position_per_symbol"`
	MaxNotionalPerTrade float64   `json:"max_notional_per_trade"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// DefaultConfig returns the configuration applied to accounts that have
// never been configured explicitly: paper mode, trading on, conservative
// limits.
func DefaultConfig(accountID string) *Config {
	return &Config{
		AccountID:           accountID,
		Mode:                ModePaper,
		TradingEnabled:      true,
		MaxPositionPerSym:   1000,
		MaxNotionalPerTrade: 25000,
	}
}

// Check is the outcome of a single policy rule.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
}

// Result is the structured outcome of a policy validation. A denial is
// never an error; callers branch on Allowed.
type Result struct {
	Allowed bool    `json:"allowed"`
	Reason  string  `json:"reason,omitempty"`
	Checks  []Check `json:"checks"`
}
