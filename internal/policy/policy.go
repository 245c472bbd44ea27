package policy

import (
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/quorumtrade/quorum-api/internal/telemetry"
	"github.com/quorumtrade/quorum-api/internal/types"
	"github.com/quorumtrade/quorum-api/pkg/response"
)

// Named policy checks, evaluated in order with short-circuit on the first
// failure.
const (
	CheckKillSwitch     = "kill_switch"
	CheckTradingEnabled = "trading_enabled"
	CheckPositionLimit  = "position_limit"
	CheckNotionalLimit  = "notional_limit"
)

// Service evaluates proposed orders against account-level risk limits and
// global safety flags. Validation is a pure read; the only mutations are
// the explicit administrative operations.
type Service struct {
	db      *Database
	metrics types.RiskMetricsProvider
	sink    *telemetry.Store

	mu           sync.Mutex
	emergencyFns []func(accountID, reason string)
}

// NewService creates a policy service backed by the given database and
// risk metrics source.
func NewService(gormDB *gorm.DB, metrics types.RiskMetricsProvider, sink *telemetry.Store) *Service {
	return &Service{
		db:      NewDatabase(gormDB),
		metrics: metrics,
		sink:    sink,
	}
}

// GetConfig returns the effective configuration for an account, falling
// back to defaults for accounts that were never configured.
func (s *Service) GetConfig(accountID string) (*Config, error) {
	cfg, err := s.db.GetConfig(accountID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return DefaultConfig(accountID), nil
	}
	return cfg, nil
}

// UpdateConfig replaces the configuration for an account.
func (s *Service) UpdateConfig(cfg *Config) error {
	return s.db.UpsertConfig(cfg)
}

// Validate checks a proposed order against the account's safety flags and
// limits. A denial is a structured result, never an error; errors are
// reserved for the stores being unreachable.
func (s *Service) Validate(accountID, symbol string, quantity int, notional float64) (Result, error) {
	cfg, err := s.GetConfig(accountID)
	if err != nil {
		return Result{}, err
	}

	result := Result{}

	if cfg.KillSwitchActive {
		result.Checks = append(result.Checks, Check{Name: CheckKillSwitch, Passed: false})
		result.Reason = "kill switch active for account"
		return result, nil
	}
	result.Checks = append(result.Checks, Check{Name: CheckKillSwitch, Passed: true})

	if !cfg.TradingEnabled {
		result.Checks = append(result.Checks, Check{Name: CheckTradingEnabled, Passed: false})
		result.Reason = "trading disabled for account"
		return result, nil
	}
	result.Checks = append(result.Checks, Check{Name: CheckTradingEnabled, Passed: true})

	metrics, err := s.metrics.Metrics(accountID, symbol)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read risk metrics: %w", err)
	}

	projected := abs(metrics.Position) + float64(quantity)
	if projected > cfg.MaxPositionPerSym {
		result.Checks = append(result.Checks, Check{Name: CheckPositionLimit, Passed: false})
		result.Reason = fmt.Sprintf("projected position %.0f exceeds per-symbol limit %.0f",
			projected, cfg.MaxPositionPerSym)
		return result, nil
	}
	result.Checks = append(result.Checks, Check{Name: CheckPositionLimit, Passed: true})

	if notional > cfg.MaxNotionalPerTrade {
		result.Checks = append(result.Checks, Check{Name: CheckNotionalLimit, Passed: false})
		result.Reason = fmt.Sprintf("notional %.2f exceeds per-trade limit %.2f",
			notional, cfg.MaxNotionalPerTrade)
		return result, nil
	}
	result.Checks = append(result.Checks, Check{Name: CheckNotionalLimit, Passed: true})

	result.Allowed = true
	return result, nil
}

// RegisterEmergencyStop registers a hook invoked when a kill switch is
// activated with emergency=true. The execution adapter uses it to refuse
// in-flight submissions for the account immediately.
func (s *Service) RegisterEmergencyStop(fn func(accountID, reason string)) {
	s.mu.Lock()
	s.emergencyFns = append(s.emergencyFns, fn)
	s.mu.Unlock()
}

type killSwitchPayload struct {
	Reason    string `json:"reason"`
	Emergency bool   `json:"emergency"`
}

// ActivateKillSwitch halts trading for an account. The flag flip is
// persisted before any hook runs so new validations deny first.
func (s *Service) ActivateKillSwitch(accountID, reason string, emergency bool) (*Config, error) {
	logger := log.With().
		Str("account_id", accountID).
		Str("service", "policy").
		Logger()

	cfg, err := s.GetConfig(accountID)
	if err != nil {
		return nil, err
	}

	cfg.KillSwitchActive = true
	cfg.TradingEnabled = false
	cfg.KillSwitchReason = reason
	if err := s.db.UpsertConfig(cfg); err != nil {
		return nil, fmt.Errorf("failed to persist kill switch: %w", err)
	}

	logger.Warn().
		Str("reason", reason).
		Bool("emergency", emergency).
		Msg("kill switch activated")

	s.sink.Append(&telemetry.Event{
		AccountID:   accountID,
		EventType:   "kill_switch_activated",
		EventSource: "policy_engine",
		Payload:     telemetry.Payload(killSwitchPayload{Reason: reason, Emergency: emergency}),
		Severity:    telemetry.SeverityCritical,
	})

	if emergency {
		s.mu.Lock()
		fns := append([]func(string, string){}, s.emergencyFns...)
		s.mu.Unlock()
		for _, fn := range fns {
			fn(accountID, reason)
		}
	}

	return cfg, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// GinHandlers contains HTTP handlers for policy administration endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for policy endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// ActivateKillSwitchHandler handles POST requests to halt trading for an
// account. Requires internal authentication.
// URL parameter: account_id
func (h *GinHandlers) ActivateKillSwitchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := c.Param("account_id")

		var req types.KillSwitchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		cfg, err := h.service.ActivateKillSwitch(accountID, req.Reason, req.Emergency)
		response.Handle(c, cfg, err)
	}
}

// GetConfigHandler handles GET requests for an account's effective policy
// configuration.
func (h *GinHandlers) GetConfigHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := c.Param("account_id")

		cfg, err := h.service.GetConfig(accountID)
		response.Handle(c, cfg, err)
	}
}
