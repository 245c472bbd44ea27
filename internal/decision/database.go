package decision

import (
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"github.com/quorumtrade/quorum-api/internal/agents"
	"github.com/quorumtrade/quorum-api/internal/types"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// verdictColumns maps each agent to the decision column it owns. One
// writer per column, so concurrent agent writes never race.
var verdictColumns = map[string]string{
	agents.AgentStrategy:   "strategy_verdict",
	agents.AgentRisk:       "risk_verdict",
	agents.AgentValidation: "validation_verdict",
}

// CreateDecision persists a new decision record.
func (d *Database) CreateDecision(decision *types.TradingDecision) error {
	return d.db.Create(decision).Error
}

// GetDecision retrieves a decision by client order id.
func (d *Database) GetDecision(clientOrderID string) (*types.TradingDecision, error) {
	var decision types.TradingDecision
	if err := d.db.Where("client_order_id = ?", clientOrderID).First(&decision).Error; err != nil {
		return nil, err
	}
	return &decision, nil
}

// SetVerdict writes one agent's verdict into the column that agent owns.
func (d *Database) SetVerdict(clientOrderID string, verdict types.AgentVerdict) error {
	column, ok := verdictColumns[verdict.Agent]
	if !ok {
		return fmt.Errorf("unknown agent %q", verdict.Agent)
	}

	payload, err := json.Marshal(verdict)
	if err != nil {
		return fmt.Errorf("failed to serialize verdict: %w", err)
	}

	return d.db.Model(&types.TradingDecision{}).
		Where("client_order_id = ?", clientOrderID).
		Update(column, string(payload)).Error
}

// FinalizeConsensus freezes the decision's consensus outcome. The guard on
// the pending state makes the freeze single-shot.
func (d *Database) FinalizeConsensus(clientOrderID, status, rationale string) error {
	return d.db.Model(&types.TradingDecision{}).
		Where("client_order_id = ? AND consensus_status = ?", clientOrderID, types.ConsensusPending).
		Updates(map[string]interface{}{
			"consensus_status": status,
			"rationale":        rationale,
		}).Error
}

// ParseVerdict decodes a stored verdict column. An empty column reads as
// absent.
func ParseVerdict(raw string) *types.AgentVerdict {
	if raw == "" {
		return nil
	}
	var v types.AgentVerdict
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil
	}
	return &v
}
