package types

import (
	"time"

	"gorm.io/gorm"
)

// Consensus lifecycle of a trading decision. A decision is mutable only
// while pending; the consensus write is the single point where it freezes.
const (
	ConsensusPending = "pending"
	ConsensusReached = "consensus_reached"
	ConsensusFailed  = "consensus_failed"
	ConsensusTimeout = "timeout"
)

// Order execution states. Legal transitions are enforced by the orders
// package; everything except planned, submitted and partially_filled is
// terminal.
const (
	StatusPlanned         = "planned"
	StatusSubmitted       = "submitted"
	StatusPartiallyFilled = "partially_filled"
	StatusFilled          = "filled"
	StatusCancelled       = "cancelled"
	StatusRejected        = "rejected"
	StatusError           = "error"
)

// TradingDecision is one proposed trade under multi-agent evaluation.
// The three verdict columns hold JSON-serialized AgentVerdict values and
// are written once each, by the agent that owns the column.
type TradingDecision struct {
	gorm.Model        `json:"-"`
	ClientOrderID     string    `gorm:"uniqueIndex" json:"client_order_id"`
	AccountID         string    `json:"account_id"`
	UserID            string    `json:"user_id"`
	Symbol            string    `json:"symbol"`
	Action            string    `json:"action"`     // BUY or SELL
	OrderType         string    `json:"order_type"` // MKT, LMT, STP, STP_LMT
	Quantity          int       `json:"quantity"`
	LimitPrice        float64   `json:"limit_price,omitempty"`
	StopPrice         float64   `json:"stop_price,omitempty"`
	TimeInForce       string    `json:"tif"`
	StrategyVerdict   string    `json:"strategy_verdict,omitempty"`
	RiskVerdict       string    `json:"risk_verdict,omitempty"`
	ValidationVerdict string    `json:"validation_verdict,omitempty"`
	ConsensusStatus   string    `json:"consensus_status"`
	RequiredApprovals int       `json:"required_approvals"`
	Rationale         string    `json:"rationale,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// AgentVerdict is the value one analysis agent renders for one decision.
// RecommendedQuantity is set by the risk agent only; it must be positive
// and no larger than the requested quantity or the verdict counts as a
// rejection.
type AgentVerdict struct {
	Agent               string  `json:"agent"`
	Approved            bool    `json:"approved"`
	Confidence          float64 `json:"confidence"`
	Reasoning           string  `json:"reasoning"`
	RecommendedQuantity int     `json:"recommended_quantity,omitempty"`
}

// Order is the executable artifact derived from an approved decision,
// keyed by the same client order id for idempotence (1:1 with decision).
type Order struct {
	gorm.Model       `json:"-"`
	ClientOrderID    string     `gorm:"uniqueIndex" json:"client_order_id"`
	AccountID        string     `json:"account_id"`
	UserID           string     `json:"user_id"`
	Route            string     `json:"route"`
	Symbol           string     `json:"symbol"`
	SecType          string     `json:"sec_type"`
	Exchange         string     `json:"exchange"`
	Currency         string     `json:"currency"`
	Action           string     `json:"action"`
	OrderType        string     `json:"order_type"`
	Quantity         int        `json:"quantity"`          // risk-adjusted
	OriginalQuantity int        `json:"original_quantity"` // as requested
	RiskAdjusted     bool       `json:"risk_adjusted"`
	LimitPrice       float64    `json:"limit_price,omitempty"`
	StopPrice        float64    `json:"stop_price,omitempty"`
	TimeInForce      string     `json:"tif"`
	ExecutionStatus  string     `json:"execution_status"`
	BrokerOrderID    string     `json:"broker_order_id,omitempty"`
	DryRun           bool       `json:"dry_run"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	Fills            []Fill     `json:"fills,omitempty" gorm:"foreignKey:ClientOrderID;references:ClientOrderID"`
	SubmittedAt      *time.Time `json:"submitted_at,omitempty"`
	FilledAt         *time.Time `json:"filled_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// FilledQuantity sums the quantities of all recorded fills.
func (o *Order) FilledQuantity() int {
	total := 0
	for _, f := range o.Fills {
		total += f.Quantity
	}
	return total
}

// Fill is an immutable record of a partial or full execution. Fills are
// appended only, never mutated.
type Fill struct {
	gorm.Model    `json:"-"`
	ExecutionID   string    `gorm:"uniqueIndex" json:"execution_id"`
	ClientOrderID string    `json:"client_order_id"`
	Quantity      int       `json:"quantity"`
	Price         float64   `json:"price"`
	Timestamp     time.Time `json:"timestamp"`
}

// RiskMetrics is the current exposure snapshot for one account/symbol,
// supplied by an external read-only data source.
type RiskMetrics struct {
	Position    float64 `json:"position"`
	Notional    float64 `json:"notional"`
	ExposurePct float64 `json:"exposure_pct"`
}

// RiskMetricsProvider supplies current position, notional and exposure per
// symbol. Implementations are read-only from the pipeline's perspective.
type RiskMetricsProvider interface {
	Metrics(accountID, symbol string) (RiskMetrics, error)
}
