package decision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/quorumtrade/quorum-api/internal/agents"
	"github.com/quorumtrade/quorum-api/internal/consensus"
	"github.com/quorumtrade/quorum-api/internal/orders"
	"github.com/quorumtrade/quorum-api/internal/policy"
	"github.com/quorumtrade/quorum-api/internal/telemetry"
	"github.com/quorumtrade/quorum-api/internal/types"
)

// SourceOrchestrator is the telemetry event source for this package.
const SourceOrchestrator = "decision_orchestrator"

// RequiredApprovals is the consensus quorum: two of the three agents.
const RequiredApprovals = 2

// DefaultAgentTimeout bounds the concurrent agent evaluation phase.
const DefaultAgentTimeout = 5 * time.Second

// PolicyViolationError reports a decision refused by the policy
// pre-screen. No decision record exists when this is returned.
type PolicyViolationError struct {
	Reason string
	Checks []policy.Check
}

func (e *PolicyViolationError) Error() string {
	return fmt.Sprintf("policy violation: %s", e.Reason)
}

// Service owns the lifecycle of one trading decision: intake, concurrent
// agent evaluation, consensus, and hand-off to order preparation.
type Service struct {
	db         *Database
	policy     *policy.Service
	strategy   *agents.StrategyAgent
	risk       *agents.RiskAgent
	validation *agents.ValidationAgent
	signals    agents.SignalProvider
	orders     *orders.Store
	sink       *telemetry.Store
	timeout    time.Duration
}

// NewService creates a decision orchestrator.
func NewService(
	gormDB *gorm.DB,
	policySvc *policy.Service,
	strategy *agents.StrategyAgent,
	risk *agents.RiskAgent,
	validation *agents.ValidationAgent,
	signals agents.SignalProvider,
	orderStore *orders.Store,
	sink *telemetry.Store,
) *Service {
	return &Service{
		db:         NewDatabase(gormDB),
		policy:     policySvc,
		strategy:   strategy,
		risk:       risk,
		validation: validation,
		signals:    signals,
		orders:     orderStore,
		sink:       sink,
		timeout:    DefaultAgentTimeout,
	}
}

// Result is the complete outcome of one decision run.
type Result struct {
	Decision  *types.TradingDecision        `json:"decision"`
	Verdicts  map[string]types.AgentVerdict `json:"verdicts"`
	Consensus consensus.Outcome             `json:"consensus"`
	Order     *types.Order                  `json:"order,omitempty"`
}

type workflowPayload struct {
	ConsensusStatus  string `json:"consensus_status"`
	Approvals        int    `json:"approvals"`
	OrderStatus      string `json:"order_status,omitempty"`
	RequestRationale string `json:"request_rationale,omitempty"`
}

type violationPayload struct {
	Reason string         `json:"reason"`
	Checks []policy.Check `json:"checks"`
}

// RunDecision processes one proposed trade end to end. A repeated call
// with a client order id that already has a decision returns the stored
// outcome without re-running the agents.
func (s *Service) RunDecision(ctx context.Context, userID string, req *types.CreateDecisionRequest) (*Result, error) {
	start := time.Now()

	clientOrderID := req.ClientOrderID
	if clientOrderID == "" {
		clientOrderID = uuid.New().String()
	}

	logger := log.With().
		Str("client_order_id", clientOrderID).
		Str("account_id", req.AccountID).
		Str("service", SourceOrchestrator).
		Logger()

	if existing, err := s.db.GetDecision(clientOrderID); err == nil {
		logger.Info().Str("status", existing.ConsensusStatus).Msg("Decision already exists, returning stored outcome")
		return s.storedResult(existing)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	price := req.LimitPrice
	if price <= 0 {
		p, err := s.signals.LastPrice(req.Symbol)
		if err != nil {
			return nil, fmt.Errorf("failed to price order: %w", err)
		}
		price = p
	}
	notional := float64(req.Quantity) * price

	screen, err := s.policy.Validate(req.AccountID, req.Symbol, req.Quantity, notional)
	if err != nil {
		return nil, err
	}
	if !screen.Allowed {
		s.sink.Append(&telemetry.Event{
			ClientOrderID: clientOrderID,
			AccountID:     req.AccountID,
			EventType:     "policy_violation",
			EventSource:   SourceOrchestrator,
			Payload:       telemetry.Payload(violationPayload{Reason: screen.Reason, Checks: screen.Checks}),
			ErrorCode:     "POLICY_VIOLATION",
			Severity:      telemetry.SeverityWarn,
		})
		logger.Warn().Str("reason", screen.Reason).Msg("Decision refused by policy pre-screen")
		return nil, &PolicyViolationError{Reason: screen.Reason, Checks: screen.Checks}
	}

	decision := &types.TradingDecision{
		ClientOrderID:     clientOrderID,
		AccountID:         req.AccountID,
		UserID:            userID,
		Symbol:            req.Symbol,
		Action:            req.Action,
		OrderType:         req.OrderType,
		Quantity:          req.Quantity,
		LimitPrice:        req.LimitPrice,
		StopPrice:         req.StopPrice,
		TimeInForce:       req.TimeInForce,
		ConsensusStatus:   types.ConsensusPending,
		RequiredApprovals: RequiredApprovals,
	}
	if err := s.db.CreateDecision(decision); err != nil {
		return nil, s.workflowError(logger, decision, err)
	}

	verdicts, timedOut := s.evaluate(ctx, decision, notional)
	for _, v := range verdicts {
		telemetry.RecordVerdict(v.Agent, v.Approved)
		if err := s.db.SetVerdict(clientOrderID, v); err != nil {
			return nil, s.workflowError(logger, decision, err)
		}
	}

	strategyV := verdicts[agents.AgentStrategy]
	riskV := verdicts[agents.AgentRisk]
	validationV := verdicts[agents.AgentValidation]
	outcome := consensus.Calculate(&strategyV, &riskV, &validationV, RequiredApprovals)

	status := types.ConsensusFailed
	switch {
	case outcome.Consensus:
		status = types.ConsensusReached
	case timedOut:
		status = types.ConsensusTimeout
	}
	if err := s.db.FinalizeConsensus(clientOrderID, status, outcome.Reason); err != nil {
		return nil, s.workflowError(logger, decision, err)
	}
	decision.ConsensusStatus = status
	decision.Rationale = outcome.Reason
	telemetry.RecordDecision(status)

	result := &Result{
		Decision:  decision,
		Verdicts:  verdicts,
		Consensus: outcome,
	}

	if outcome.Consensus {
		order, err := s.prepareOrder(decision, riskV)
		if err != nil {
			return nil, s.workflowError(logger, decision, err)
		}
		result.Order = order
	}

	latency := time.Since(start)
	telemetry.ObserveDecisionLatency(latency.Seconds())
	payload := workflowPayload{
		ConsensusStatus:  status,
		Approvals:        outcome.Approvals,
		RequestRationale: req.Rationale,
	}
	if result.Order != nil {
		payload.OrderStatus = result.Order.ExecutionStatus
	}
	s.sink.Append(&telemetry.Event{
		ClientOrderID: clientOrderID,
		AccountID:     decision.AccountID,
		EventType:     "workflow_completed",
		EventSource:   SourceOrchestrator,
		Payload:       telemetry.Payload(payload),
		LatencyMs:     latency.Milliseconds(),
		Severity:      telemetry.SeverityInfo,
	})

	logger.Info().
		Str("status", status).
		Int("approvals", outcome.Approvals).
		Int64("latency_ms", latency.Milliseconds()).
		Msg("Decision workflow completed")
	return result, nil
}

type verdictResult struct {
	verdict types.AgentVerdict
	err     error
	agent   string
}

// evaluate fans the three agents out concurrently and joins on all three
// results. An agent error or timeout degrades to a rejecting verdict so
// the tally never blocks.
func (s *Service) evaluate(ctx context.Context, d *types.TradingDecision, notional float64) (map[string]types.AgentVerdict, bool) {
	evalCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	results := make(chan verdictResult, 3)
	go func() {
		v, err := s.strategy.Evaluate(evalCtx, d)
		results <- verdictResult{verdict: v, err: err, agent: agents.AgentStrategy}
	}()
	go func() {
		v, err := s.risk.Evaluate(evalCtx, d, notional)
		results <- verdictResult{verdict: v, err: err, agent: agents.AgentRisk}
	}()
	go func() {
		v, err := s.validation.Evaluate(evalCtx, d, notional)
		results <- verdictResult{verdict: v, err: err, agent: agents.AgentValidation}
	}()

	verdicts := make(map[string]types.AgentVerdict, 3)
	timedOut := false
	for i := 0; i < 3; i++ {
		r := <-results
		if r.err != nil {
			if errors.Is(r.err, context.DeadlineExceeded) {
				timedOut = true
			}
			verdicts[r.agent] = types.AgentVerdict{
				Agent:     r.agent,
				Approved:  false,
				Reasoning: fmt.Sprintf("evaluation failed: %v", r.err),
			}
			continue
		}
		verdicts[r.agent] = r.verdict
	}
	return verdicts, timedOut
}

// prepareOrder hands an approved decision to the order store. The risk
// agent's sizing wins when it approved; paper and read-only accounts
// always execute as dry runs.
func (s *Service) prepareOrder(decision *types.TradingDecision, riskV types.AgentVerdict) (*types.Order, error) {
	quantity := decision.Quantity
	if riskV.Approved && riskV.RecommendedQuantity >= 1 {
		quantity = riskV.RecommendedQuantity
	}

	cfg, err := s.policy.GetConfig(decision.AccountID)
	if err != nil {
		return nil, err
	}
	dryRun := cfg.ReadOnly || cfg.Mode == policy.ModePaper

	return s.orders.Prepare(decision, quantity, dryRun)
}

// storedResult rebuilds a Result from a persisted decision.
func (s *Service) storedResult(decision *types.TradingDecision) (*Result, error) {
	result := &Result{
		Decision: decision,
		Verdicts: make(map[string]types.AgentVerdict),
	}

	for agent, raw := range map[string]string{
		agents.AgentStrategy:   decision.StrategyVerdict,
		agents.AgentRisk:       decision.RiskVerdict,
		agents.AgentValidation: decision.ValidationVerdict,
	} {
		if v := ParseVerdict(raw); v != nil {
			result.Verdicts[agent] = *v
		}
	}

	result.Consensus = consensus.Calculate(
		ParseVerdict(decision.StrategyVerdict),
		ParseVerdict(decision.RiskVerdict),
		ParseVerdict(decision.ValidationVerdict),
		decision.RequiredApprovals,
	)

	order, err := s.orders.GetOrder(decision.ClientOrderID)
	if err == nil {
		result.Order = order
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return result, nil
}

// GetDecision returns a stored decision with its verdicts and any order.
func (s *Service) GetDecision(clientOrderID string) (*Result, error) {
	decision, err := s.db.GetDecision(clientOrderID)
	if err != nil {
		return nil, err
	}
	return s.storedResult(decision)
}

func (s *Service) workflowError(logger zerolog.Logger, decision *types.TradingDecision, cause error) error {
	s.sink.Append(&telemetry.Event{
		ClientOrderID: decision.ClientOrderID,
		AccountID:     decision.AccountID,
		EventType:     "workflow_error",
		EventSource:   SourceOrchestrator,
		Payload:       telemetry.Payload(map[string]string{"error": cause.Error()}),
		ErrorCode:     "WORKFLOW_ERROR",
		Severity:      telemetry.SeverityError,
	})
	logger.Error().Err(cause).Msg("Decision workflow failed")
	return cause
}
