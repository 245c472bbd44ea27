package execution

import "context"

// Broker-side order statuses as reported by a gateway. The adapter maps
// these onto the internal order state machine.
const (
	BrokerStatusDryRun          = "dry_run"
	BrokerStatusSubmitted       = "submitted"
	BrokerStatusFilled          = "filled"
	BrokerStatusPartiallyFilled = "partially_filled"
	BrokerStatusCancelled       = "cancelled"
	BrokerStatusRejected        = "rejected"
)

// ExecutionRequest is the broker-neutral payload derived from a stored
// order.
type ExecutionRequest struct {
	ClientOrderID string  `json:"client_order_id"`
	AccountID     string  `json:"account_id"`
	Route         string  `json:"route"`
	Symbol        string  `json:"symbol"`
	SecType       string  `json:"sec_type"`
	Exchange      string  `json:"exchange"`
	Currency      string  `json:"currency"`
	Action        string  `json:"action"`
	OrderType     string  `json:"order_type"`
	Quantity      int     `json:"quantity"`
	LimitPrice    float64 `json:"limit_price,omitempty"`
	StopPrice     float64 `json:"stop_price,omitempty"`
	TimeInForce   string  `json:"tif"`
	DryRun        bool    `json:"dry_run"`
}

// BrokerFill is one execution reported by the gateway.
type BrokerFill struct {
	ExecutionID string  `json:"execution_id"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
}

// BrokerResult is the gateway's view of an order after submission or a
// status poll.
type BrokerResult struct {
	BrokerOrderID string       `json:"broker_order_id"`
	Status        string       `json:"status"`
	Fills         []BrokerFill `json:"fills,omitempty"`
	Reason        string       `json:"reason,omitempty"`
}

// BrokerGateway is the seam to a broker connection. Implementations must
// be safe for concurrent use.
type BrokerGateway interface {
	Healthy(ctx context.Context) error
	Submit(ctx context.Context, req ExecutionRequest) (BrokerResult, error)
	OrderStatus(ctx context.Context, brokerOrderID string) (BrokerResult, error)
}
