package agents

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/quorumtrade/quorum-api/internal/types"
)

// AgentRisk is the name the risk agent writes into its verdicts.
const AgentRisk = "risk"

// Risk scoring parameters. The composite score averages three component
// scores, each normalized to [0, 1] against these denominators.
const (
	riskMaxPosition  = 1000.0
	riskMaxNotional  = 25000.0
	riskRejectionBar = 0.7
)

// RiskAgent scores the proposed trade against current exposure and sizes
// it down proportionally to the composite risk. A trade the sizing clamps
// below one share is rejected outright rather than bumped back up.
type RiskAgent struct {
	metrics types.RiskMetricsProvider
}

// NewRiskAgent creates a risk agent on the given metrics source.
func NewRiskAgent(metrics types.RiskMetricsProvider) *RiskAgent {
	return &RiskAgent{metrics: metrics}
}

// Evaluate renders the risk verdict for one decision at the given notional.
func (a *RiskAgent) Evaluate(ctx context.Context, d *types.TradingDecision, notional float64) (types.AgentVerdict, error) {
	logger := log.With().
		Str("agent", AgentRisk).
		Str("client_order_id", d.ClientOrderID).
		Logger()

	if err := ctx.Err(); err != nil {
		return types.AgentVerdict{}, err
	}

	m, err := a.metrics.Metrics(d.AccountID, d.Symbol)
	if err != nil {
		return types.AgentVerdict{}, fmt.Errorf("failed to read risk metrics: %w", err)
	}

	positionRisk := clamp(math.Abs(m.Position)/riskMaxPosition, 0, 1)
	notionalRisk := clamp(notional/riskMaxNotional, 0, 1)
	concentrationRisk := clamp(m.ExposurePct/100, 0, 1)
	score := (positionRisk + notionalRisk + concentrationRisk) / 3

	recommended := int(math.Floor(float64(d.Quantity) * (1 - score)))
	var95 := notional * 0.05 * (1 + score)

	verdict := types.AgentVerdict{
		Agent:               AgentRisk,
		Approved:            score < riskRejectionBar && recommended >= 1,
		Confidence:          1 - score,
		RecommendedQuantity: recommended,
		Reasoning: fmt.Sprintf(
			"composite risk %.2f (position %.2f, notional %.2f, concentration %.2f), est 95%% VaR %.2f",
			score, positionRisk, notionalRisk, concentrationRisk, var95),
	}
	if !verdict.Approved {
		verdict.RecommendedQuantity = 0
		if recommended < 1 {
			verdict.Reasoning += "; sizing clamps below one share"
		}
	}

	logger.Info().
		Bool("approved", verdict.Approved).
		Float64("score", score).
		Int("recommended_quantity", verdict.RecommendedQuantity).
		Msg("Risk verdict rendered")
	return verdict, nil
}
