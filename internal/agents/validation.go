package agents

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quorumtrade/quorum-api/internal/policy"
	"github.com/quorumtrade/quorum-api/internal/types"
)

// AgentValidation is the name the validation agent writes into its verdicts.
const AgentValidation = "validation"

// PolicyChecker revalidates a proposed trade against account policy.
type PolicyChecker interface {
	Validate(accountID, symbol string, quantity int, notional float64) (policy.Result, error)
}

// OrderLookup answers whether an order already advanced past planned.
type OrderLookup interface {
	HasAdvancedOrder(clientOrderID string) (bool, error)
}

// ValidationAgent performs the final pre-trade gate: session open, policy
// still satisfied, and no order already moving under the same client
// order id.
type ValidationAgent struct {
	calendar Calendar
	policy   PolicyChecker
	orders   OrderLookup
}

// NewValidationAgent creates a validation agent.
func NewValidationAgent(calendar Calendar, policy PolicyChecker, orders OrderLookup) *ValidationAgent {
	return &ValidationAgent{
		calendar: calendar,
		policy:   policy,
		orders:   orders,
	}
}

// Evaluate renders the validation verdict for one decision at the given
// notional. Checks short-circuit on the first failure.
func (a *ValidationAgent) Evaluate(ctx context.Context, d *types.TradingDecision, notional float64) (types.AgentVerdict, error) {
	logger := log.With().
		Str("agent", AgentValidation).
		Str("client_order_id", d.ClientOrderID).
		Logger()

	if err := ctx.Err(); err != nil {
		return types.AgentVerdict{}, err
	}

	verdict := types.AgentVerdict{Agent: AgentValidation, Confidence: 1.0}

	if !a.calendar.IsOpen(time.Now()) {
		verdict.Reasoning = "trading session closed"
		logger.Info().Bool("approved", false).Msg("Validation verdict rendered")
		return verdict, nil
	}

	result, err := a.policy.Validate(d.AccountID, d.Symbol, d.Quantity, notional)
	if err != nil {
		return types.AgentVerdict{}, fmt.Errorf("failed to revalidate policy: %w", err)
	}
	if !result.Allowed {
		verdict.Reasoning = fmt.Sprintf("policy denies trade: %s", result.Reason)
		logger.Info().Bool("approved", false).Msg("Validation verdict rendered")
		return verdict, nil
	}

	advanced, err := a.orders.HasAdvancedOrder(d.ClientOrderID)
	if err != nil {
		return types.AgentVerdict{}, fmt.Errorf("failed to check order state: %w", err)
	}
	if advanced {
		verdict.Reasoning = "an order under this client order id already advanced past planned"
		logger.Info().Bool("approved", false).Msg("Validation verdict rendered")
		return verdict, nil
	}

	verdict.Approved = true
	verdict.Confidence = 0.9
	verdict.Reasoning = "session open, policy satisfied, no conflicting order"
	logger.Info().Bool("approved", true).Msg("Validation verdict rendered")
	return verdict, nil
}
