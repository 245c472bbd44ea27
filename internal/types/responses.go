package types

// CreateDecisionRequest is the decision-intake payload consumed from the
// UI/API layer. ClientOrderID is generated when absent.
type CreateDecisionRequest struct {
	ClientOrderID string  `json:"client_order_id"`
	AccountID     string  `json:"account_id" binding:"required"`
	Symbol        string  `json:"symbol" binding:"required"`
	Action        string  `json:"action" binding:"required,oneof=BUY SELL"`
	OrderType     string  `json:"order_type" binding:"required,oneof=MKT LMT STP STP_LMT"`
	Quantity      int     `json:"quantity" binding:"required,gt=0"`
	LimitPrice    float64 `json:"limit_price,omitempty" binding:"omitempty,gt=0"`
	StopPrice     float64 `json:"stop_price,omitempty" binding:"omitempty,gt=0"`
	TimeInForce   string  `json:"tif,omitempty"`
	Rationale     string  `json:"rationale,omitempty"`
}

// KillSwitchRequest activates the per-account kill switch. Emergency
// additionally aborts new submissions already holding a planned order.
type KillSwitchRequest struct {
	Reason    string `json:"reason" binding:"required"`
	Emergency bool   `json:"emergency"`
}
