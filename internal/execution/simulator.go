package execution

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SimulatedGateway is an in-process broker used for paper trading and the
// simulation binary. Live-looking submissions resolve to a weighted mix
// of outcomes; dry runs always fill in full immediately.
type SimulatedGateway struct {
	mu      sync.Mutex
	rng     *rand.Rand
	pending map[string]ExecutionRequest
	filled  map[string]int
}

// NewSimulatedGateway creates a simulated broker. Pass 0 to seed from the
// clock.
func NewSimulatedGateway(seed int64) *SimulatedGateway {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &SimulatedGateway{
		rng:     rand.New(rand.NewSource(seed)),
		pending: make(map[string]ExecutionRequest),
		filled:  make(map[string]int),
	}
}

// Healthy always succeeds unless the context is already done.
func (g *SimulatedGateway) Healthy(ctx context.Context) error {
	return ctx.Err()
}

func (g *SimulatedGateway) price(req ExecutionRequest) float64 {
	if req.LimitPrice > 0 {
		return req.LimitPrice
	}
	if req.StopPrice > 0 {
		return req.StopPrice
	}
	return 100
}

func fullFill(req ExecutionRequest, price float64) BrokerFill {
	return BrokerFill{
		ExecutionID: uuid.New().String(),
		Quantity:    req.Quantity,
		Price:       price,
	}
}

// Submit accepts an execution request and resolves it to an outcome. Ten
// percent of live-looking submissions fail outright to exercise the fault
// path and the circuit breaker.
func (g *SimulatedGateway) Submit(ctx context.Context, req ExecutionRequest) (BrokerResult, error) {
	if err := ctx.Err(); err != nil {
		return BrokerResult{}, err
	}

	brokerOrderID := uuid.New().String()
	price := g.price(req)

	if req.DryRun {
		return BrokerResult{
			BrokerOrderID: brokerOrderID,
			Status:        BrokerStatusDryRun,
			Fills:         []BrokerFill{fullFill(req, price)},
		}, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	roll := g.rng.Float64()
	switch {
	case roll < 0.10:
		return BrokerResult{}, fmt.Errorf("gateway refused order %s: connection dropped", req.ClientOrderID)

	case roll < 0.65:
		g.filled[brokerOrderID] = req.Quantity
		return BrokerResult{
			BrokerOrderID: brokerOrderID,
			Status:        BrokerStatusFilled,
			Fills:         []BrokerFill{fullFill(req, price)},
		}, nil

	case roll < 0.80:
		partial := req.Quantity / 2
		if partial < 1 {
			partial = 1
		}
		g.pending[brokerOrderID] = req
		g.filled[brokerOrderID] = partial
		return BrokerResult{
			BrokerOrderID: brokerOrderID,
			Status:        BrokerStatusPartiallyFilled,
			Fills: []BrokerFill{{
				ExecutionID: uuid.New().String(),
				Quantity:    partial,
				Price:       price,
			}},
		}, nil

	case roll < 0.90:
		g.pending[brokerOrderID] = req
		return BrokerResult{
			BrokerOrderID: brokerOrderID,
			Status:        BrokerStatusSubmitted,
		}, nil

	case roll < 0.95:
		return BrokerResult{
			BrokerOrderID: brokerOrderID,
			Status:        BrokerStatusCancelled,
			Reason:        "cancelled by venue",
		}, nil

	default:
		return BrokerResult{
			BrokerOrderID: brokerOrderID,
			Status:        BrokerStatusRejected,
			Reason:        "rejected by venue risk checks",
		}, nil
	}
}

// OrderStatus resolves a previously pending order. Most polls complete the
// remaining quantity; the rest report no change.
func (g *SimulatedGateway) OrderStatus(ctx context.Context, brokerOrderID string) (BrokerResult, error) {
	if err := ctx.Err(); err != nil {
		return BrokerResult{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	req, ok := g.pending[brokerOrderID]
	if !ok {
		return BrokerResult{BrokerOrderID: brokerOrderID, Status: BrokerStatusFilled}, nil
	}

	already := g.filled[brokerOrderID]
	if g.rng.Float64() < 0.7 {
		remaining := req.Quantity - already
		delete(g.pending, brokerOrderID)
		g.filled[brokerOrderID] = req.Quantity
		return BrokerResult{
			BrokerOrderID: brokerOrderID,
			Status:        BrokerStatusFilled,
			Fills: []BrokerFill{{
				ExecutionID: uuid.New().String(),
				Quantity:    remaining,
				Price:       g.price(req),
			}},
		}, nil
	}

	status := BrokerStatusSubmitted
	if already > 0 {
		status = BrokerStatusPartiallyFilled
	}
	return BrokerResult{BrokerOrderID: brokerOrderID, Status: status}, nil
}
