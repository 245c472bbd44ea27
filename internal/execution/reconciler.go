package execution

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quorumtrade/quorum-api/internal/orders"
	"github.com/quorumtrade/quorum-api/internal/telemetry"
	"github.com/quorumtrade/quorum-api/internal/types"
)

// DefaultReconcileInterval is how often open orders are polled against the
// broker.
const DefaultReconcileInterval = 5 * time.Second

// Reconciler periodically polls the broker for orders stuck in submitted
// or partially_filled and applies the reported outcomes through the same
// mapping the adapter uses.
type Reconciler struct {
	adapter  *Adapter
	store    *orders.Store
	interval time.Duration
}

// NewReconciler creates a reconciler over the adapter's gateway and order
// store.
func NewReconciler(adapter *Adapter, store *orders.Store) *Reconciler {
	return &Reconciler{
		adapter:  adapter,
		store:    store,
		interval: DefaultReconcileInterval,
	}
}

// Start runs the polling loop until the context is cancelled.
func (r *Reconciler) Start(ctx context.Context) {
	log.Info().
		Dur("interval", r.interval).
		Msg("Starting order reconciler")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Order reconciler stopped")
			return
		case <-ticker.C:
			r.reconcile(ctx)
		}
	}
}

func (r *Reconciler) reconcile(ctx context.Context) {
	open, err := r.store.ListOpen()
	if err != nil {
		log.Error().Err(err).Msg("Failed to list open orders")
		return
	}

	for i := range open {
		order := &open[i]
		if order.BrokerOrderID == "" {
			continue
		}
		r.reconcileOrder(ctx, order)
	}
}

func (r *Reconciler) reconcileOrder(ctx context.Context, order *types.Order) {
	logger := log.With().
		Str("client_order_id", order.ClientOrderID).
		Str("broker_order_id", order.BrokerOrderID).
		Str("service", "order_reconciler").
		Logger()

	pollCtx, cancel := context.WithTimeout(ctx, DefaultProbeTimeout)
	result, err := r.adapter.gateway.OrderStatus(pollCtx, order.BrokerOrderID)
	cancel()
	if err != nil {
		logger.Error().Err(err).Msg("Broker status poll failed")
		return
	}

	before := order.ExecutionStatus
	updated, err := r.adapter.applyResult(order.ClientOrderID, result)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to apply broker status")
		return
	}
	if updated.ExecutionStatus != before {
		logger.Info().
			Str("from", before).
			Str("to", updated.ExecutionStatus).
			Msg("Order reconciled")
		telemetry.RecordExecution(updated.ExecutionStatus)
	}
}
