package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quorumtrade/quorum-api/internal/orders"
	"github.com/quorumtrade/quorum-api/internal/policy"
	"github.com/quorumtrade/quorum-api/internal/telemetry"
	"github.com/quorumtrade/quorum-api/internal/types"
)

// ConfigReader reads the persisted trading controls for an account.
// Policy state can change between decision approval and execution, so
// the adapter re-reads it before every submission.
type ConfigReader interface {
	GetConfig(accountID string) (*policy.Config, error)
}

// SourceExecutionAdapter is the telemetry event source for this package.
const SourceExecutionAdapter = "execution_adapter"

// Default bounds on broker interactions.
const (
	DefaultSubmitTimeout = 10 * time.Second
	DefaultProbeTimeout  = 2 * time.Second
)

// Refusal conditions. The order stays planned when these are returned; a
// later execute call may still proceed.
var (
	ErrCircuitBreakerOpen = errors.New("circuit breaker open for account")
	ErrTradingHalted      = errors.New("trading halted for account")
	ErrGatewayUnhealthy   = errors.New("broker gateway unhealthy")
)

// IdempotenceError reports an execute call for an order that already left
// the planned state. The existing order is returned alongside it.
type IdempotenceError struct {
	ClientOrderID string
	Status        string
}

func (e *IdempotenceError) Error() string {
	return fmt.Sprintf("order %s already executed: status %s", e.ClientOrderID, e.Status)
}

// Adapter drives stored orders through the broker gateway. It owns every
// order transition past planned.
type Adapter struct {
	orders   *orders.Store
	gateway  BrokerGateway
	breaker  *CircuitBreaker
	policies ConfigReader
	sink     *telemetry.Store

	mu     sync.Mutex
	halted map[string]string // account id -> halt reason
}

// NewAdapter creates an execution adapter.
func NewAdapter(store *orders.Store, gateway BrokerGateway, breaker *CircuitBreaker, policies ConfigReader, sink *telemetry.Store) *Adapter {
	return &Adapter{
		orders:   store,
		gateway:  gateway,
		breaker:  breaker,
		policies: policies,
		sink:     sink,
		halted:   make(map[string]string),
	}
}

// EmergencyStop marks an account halted so in-flight and future execute
// calls refuse before reaching the broker. Registered with the policy
// engine's kill switch.
func (a *Adapter) EmergencyStop(accountID, reason string) {
	a.mu.Lock()
	a.halted[accountID] = reason
	a.mu.Unlock()

	log.Warn().
		Str("account_id", accountID).
		Str("reason", reason).
		Msg("Emergency stop engaged for account")
}

func (a *Adapter) haltReason(accountID string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	reason, ok := a.halted[accountID]
	return reason, ok
}

type refusalPayload struct {
	Reason string `json:"reason"`
}

type faultPayload struct {
	Stage string `json:"stage"`
	Error string `json:"error"`
}

// Execute runs one stored order through the guard chain and the broker.
// Guards refuse without touching the order; failures past submission
// fault the order and feed the circuit breaker.
func (a *Adapter) Execute(ctx context.Context, clientOrderID string) (*types.Order, error) {
	start := time.Now()
	logger := log.With().
		Str("client_order_id", clientOrderID).
		Str("service", SourceExecutionAdapter).
		Logger()

	order, err := a.orders.GetOrder(clientOrderID)
	if err != nil {
		return nil, err
	}

	if order.ExecutionStatus != types.StatusPlanned {
		logger.Info().Str("status", order.ExecutionStatus).Msg("Execute refused, order already advanced")
		return order, &IdempotenceError{ClientOrderID: clientOrderID, Status: order.ExecutionStatus}
	}

	if reason, halted := a.haltReason(order.AccountID); halted {
		return a.refuseHalted(logger, order, reason)
	}

	cfg, err := a.policies.GetConfig(order.AccountID)
	if err != nil {
		return nil, err
	}
	switch {
	case cfg.KillSwitchActive:
		reason := "kill switch active for account"
		if cfg.KillSwitchReason != "" {
			reason = fmt.Sprintf("kill switch active: %s", cfg.KillSwitchReason)
		}
		return a.refuseHalted(logger, order, reason)
	case !cfg.TradingEnabled:
		return a.refuseHalted(logger, order, "trading disabled for account")
	}

	open, err := a.breaker.Open(order.AccountID)
	if err != nil {
		return nil, err
	}
	if open {
		a.sink.Append(&telemetry.Event{
			ClientOrderID: clientOrderID,
			AccountID:     order.AccountID,
			EventType:     "circuit_breaker_open",
			EventSource:   SourceExecutionAdapter,
			Payload:       telemetry.Payload(refusalPayload{Reason: "recent execution error rate over threshold"}),
			ErrorCode:     "CIRCUIT_BREAKER_OPEN",
			Severity:      telemetry.SeverityCritical,
		})
		telemetry.RecordBreakerOpen()
		logger.Warn().Msg("Execute refused, circuit breaker open")
		return order, ErrCircuitBreakerOpen
	}

	probeCtx, cancel := context.WithTimeout(ctx, DefaultProbeTimeout)
	err = a.gateway.Healthy(probeCtx)
	cancel()
	if err != nil {
		return a.fault(logger, order, "health_probe", fmt.Errorf("%w: %v", ErrGatewayUnhealthy, err))
	}

	order, err = a.orders.Transition(clientOrderID, orders.EventSubmit, orders.TransitionPayload{})
	if err != nil {
		// A parallel execute for the same order won the race past the
		// guard. The loser reports idempotence, not a transition fault.
		var terr *orders.TransitionError
		if errors.As(err, &terr) {
			current, gerr := a.orders.GetOrder(clientOrderID)
			if gerr != nil {
				return nil, gerr
			}
			logger.Info().Str("status", current.ExecutionStatus).Msg("Execute refused, order already advanced")
			return current, &IdempotenceError{ClientOrderID: clientOrderID, Status: current.ExecutionStatus}
		}
		return nil, err
	}

	submitCtx, cancel := context.WithTimeout(ctx, DefaultSubmitTimeout)
	result, err := a.gateway.Submit(submitCtx, a.buildRequest(order))
	cancel()
	if err != nil {
		return a.fault(logger, order, "submit", err)
	}

	updated, err := a.applyResult(order.ClientOrderID, result)
	if err != nil {
		return a.fault(logger, order, "apply_result", err)
	}
	order = updated

	latency := time.Since(start).Milliseconds()
	a.sink.Append(&telemetry.Event{
		ClientOrderID: clientOrderID,
		AccountID:     order.AccountID,
		EventType:     "execution_completed",
		EventSource:   SourceExecutionAdapter,
		Payload:       telemetry.Payload(result),
		LatencyMs:     latency,
		Severity:      telemetry.SeverityInfo,
	})
	telemetry.RecordExecution(order.ExecutionStatus)

	logger.Info().
		Str("status", order.ExecutionStatus).
		Str("broker_order_id", order.BrokerOrderID).
		Int64("latency_ms", latency).
		Msg("Execution completed")
	return order, nil
}

func (a *Adapter) buildRequest(order *types.Order) ExecutionRequest {
	return ExecutionRequest{
		ClientOrderID: order.ClientOrderID,
		AccountID:     order.AccountID,
		Route:         order.Route,
		Symbol:        order.Symbol,
		SecType:       order.SecType,
		Exchange:      order.Exchange,
		Currency:      order.Currency,
		Action:        order.Action,
		OrderType:     order.OrderType,
		Quantity:      order.Quantity,
		LimitPrice:    order.LimitPrice,
		StopPrice:     order.StopPrice,
		TimeInForce:   order.TimeInForce,
		DryRun:        order.DryRun,
	}
}

// applyResult maps a broker result onto the order state machine. A filled
// status whose reported fills do not cover the full quantity gets a
// synthesized remainder fill so the terminal state is consistent.
func (a *Adapter) applyResult(clientOrderID string, result BrokerResult) (*types.Order, error) {
	order, err := a.orders.AttachBrokerID(clientOrderID, result.BrokerOrderID)
	if err != nil {
		return nil, err
	}

	switch result.Status {
	case BrokerStatusSubmitted:
		return order, nil

	case BrokerStatusDryRun, BrokerStatusFilled, BrokerStatusPartiallyFilled:
		for _, f := range result.Fills {
			order, err = a.orders.Transition(clientOrderID, orders.EventFill, orders.TransitionPayload{
				Fill: &types.Fill{
					ExecutionID: f.ExecutionID,
					Quantity:    f.Quantity,
					Price:       f.Price,
				},
			})
			if err != nil {
				return nil, err
			}
		}
		if (result.Status == BrokerStatusDryRun || result.Status == BrokerStatusFilled) &&
			order.FilledQuantity() < order.Quantity {
			order, err = a.orders.Transition(clientOrderID, orders.EventFill, orders.TransitionPayload{
				Fill: &types.Fill{
					ExecutionID: uuid.New().String(),
					Quantity:    order.Quantity - order.FilledQuantity(),
					Price:       order.LimitPrice,
				},
			})
			if err != nil {
				return nil, err
			}
		}
		return order, nil

	case BrokerStatusCancelled:
		return a.orders.Transition(clientOrderID, orders.EventCancel, orders.TransitionPayload{Reason: result.Reason})

	case BrokerStatusRejected:
		return a.orders.Transition(clientOrderID, orders.EventReject, orders.TransitionPayload{Reason: result.Reason})

	default:
		return nil, fmt.Errorf("unknown broker status %q for order %s", result.Status, clientOrderID)
	}
}

// refuseHalted declines execution for a halted account. The order stays
// planned.
func (a *Adapter) refuseHalted(logger zerolog.Logger, order *types.Order, reason string) (*types.Order, error) {
	a.sink.Append(&telemetry.Event{
		ClientOrderID: order.ClientOrderID,
		AccountID:     order.AccountID,
		EventType:     "execution_refused",
		EventSource:   SourceExecutionAdapter,
		Payload:       telemetry.Payload(refusalPayload{Reason: reason}),
		ErrorCode:     "TRADING_HALTED",
		Severity:      telemetry.SeverityWarn,
	})
	logger.Warn().Str("reason", reason).Msg("Execute refused, trading halted")
	return order, fmt.Errorf("%w: %s", ErrTradingHalted, reason)
}

// fault moves the order to error, records the failure for the breaker and
// returns the underlying cause.
func (a *Adapter) fault(logger zerolog.Logger, order *types.Order, stage string, cause error) (*types.Order, error) {
	faulted, terr := a.orders.Transition(order.ClientOrderID, orders.EventFault, orders.TransitionPayload{
		Reason: cause.Error(),
	})
	if terr != nil {
		logger.Error().Err(terr).Msg("Failed to fault order")
		faulted = order
	}

	a.sink.Append(&telemetry.Event{
		ClientOrderID: order.ClientOrderID,
		AccountID:     order.AccountID,
		EventType:     "execution_error",
		EventSource:   SourceExecutionAdapter,
		Payload:       telemetry.Payload(faultPayload{Stage: stage, Error: cause.Error()}),
		ErrorCode:     "EXECUTION_FAULT",
		Severity:      telemetry.SeverityError,
	})
	telemetry.RecordExecution(types.StatusError)

	logger.Error().Err(cause).Str("stage", stage).Msg("Execution failed")
	return faulted, cause
}
