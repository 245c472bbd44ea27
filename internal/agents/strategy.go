package agents

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/quorumtrade/quorum-api/internal/types"
)

// AgentStrategy is the name the strategy agent writes into its verdicts.
const AgentStrategy = "strategy"

// StrategyAgent approves a trade when the current market signal points the
// same way as the requested action with enough conviction.
type StrategyAgent struct {
	signals SignalProvider
}

// NewStrategyAgent creates a strategy agent on the given signal source.
func NewStrategyAgent(signals SignalProvider) *StrategyAgent {
	return &StrategyAgent{signals: signals}
}

// Evaluate renders the strategy verdict for one decision. The signal must
// agree with the action and carry sentiment above 0.2 to approve.
func (a *StrategyAgent) Evaluate(ctx context.Context, d *types.TradingDecision) (types.AgentVerdict, error) {
	logger := log.With().
		Str("agent", AgentStrategy).
		Str("client_order_id", d.ClientOrderID).
		Logger()

	sig, err := a.signals.Signal(ctx, d.Symbol)
	if err != nil {
		return types.AgentVerdict{}, fmt.Errorf("failed to fetch signal: %w", err)
	}

	verdict := types.AgentVerdict{
		Agent:      AgentStrategy,
		Approved:   sig.Direction == d.Action && sig.Sentiment > 0.2,
		Confidence: math.Min(0.95, math.Abs(sig.Sentiment)+sig.Strength),
	}
	if verdict.Approved {
		verdict.Reasoning = fmt.Sprintf("signal %s aligns with %s: %s", sig.Direction, d.Action, sig.Rationale)
	} else {
		verdict.Reasoning = fmt.Sprintf("signal %s (sentiment %.2f) does not support %s: %s",
			sig.Direction, sig.Sentiment, d.Action, sig.Rationale)
	}

	logger.Info().
		Bool("approved", verdict.Approved).
		Float64("confidence", verdict.Confidence).
		Msg("Strategy verdict rendered")
	return verdict, nil
}
