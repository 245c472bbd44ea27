package orders

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/quorumtrade/quorum-api/internal/types"
)

// Broker-facing defaults applied at preparation time.
const (
	defaultRoute    = "SMART"
	defaultSecType  = "STK"
	defaultExchange = "SMART"
	defaultCurrency = "USD"
)

// Store is the idempotent order store. All mutations for one client order
// id are serialized behind a per-key lock so transitions are applied
// atomically per order.
type Store struct {
	db *Database

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates an order store on the given database.
func NewStore(gormDB *gorm.DB) *Store {
	return &Store{
		db:    NewDatabase(gormDB),
		locks: make(map[string]*sync.Mutex),
	}
}

func (s *Store) keyLock(clientOrderID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[clientOrderID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[clientOrderID] = l
	}
	return l
}

// Prepare creates exactly one order per client order id. A second call
// with the same id returns the existing order unchanged.
func (s *Store) Prepare(decision *types.TradingDecision, quantity int, dryRun bool) (*types.Order, error) {
	logger := log.With().
		Str("client_order_id", decision.ClientOrderID).
		Str("service", "order_store").
		Logger()

	l := s.keyLock(decision.ClientOrderID)
	l.Lock()
	defer l.Unlock()

	existing, err := s.db.GetOrder(decision.ClientOrderID)
	if err == nil {
		logger.Info().Str("status", existing.ExecutionStatus).Msg("Order already prepared")
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	tif := decision.TimeInForce
	if tif == "" {
		tif = "DAY"
	}

	order := &types.Order{
		ClientOrderID:    decision.ClientOrderID,
		AccountID:        decision.AccountID,
		UserID:           decision.UserID,
		Route:            defaultRoute,
		Symbol:           decision.Symbol,
		SecType:          defaultSecType,
		Exchange:         defaultExchange,
		Currency:         defaultCurrency,
		Action:           decision.Action,
		OrderType:        decision.OrderType,
		Quantity:         quantity,
		OriginalQuantity: decision.Quantity,
		RiskAdjusted:     quantity != decision.Quantity,
		LimitPrice:       decision.LimitPrice,
		StopPrice:        decision.StopPrice,
		TimeInForce:      tif,
		ExecutionStatus:  types.StatusPlanned,
		DryRun:           dryRun,
	}
	if err := s.db.CreateOrder(order); err != nil {
		return nil, err
	}

	logger.Info().
		Int("quantity", quantity).
		Bool("risk_adjusted", order.RiskAdjusted).
		Bool("dry_run", dryRun).
		Msg("Order prepared")
	return order, nil
}

// TransitionPayload carries the event-specific data for a transition.
type TransitionPayload struct {
	BrokerOrderID string
	Fill          *types.Fill
	Reason        string
}

// Transition applies one state-machine event to an order. Illegal events
// fail with a TransitionError and leave the order untouched. A fill whose
// execution id was already recorded is a no-op.
func (s *Store) Transition(clientOrderID, event string, payload TransitionPayload) (*types.Order, error) {
	logger := log.With().
		Str("client_order_id", clientOrderID).
		Str("event", event).
		Str("service", "order_store").
		Logger()

	l := s.keyLock(clientOrderID)
	l.Lock()
	defer l.Unlock()

	order, err := s.db.GetOrder(clientOrderID)
	if err != nil {
		return nil, err
	}

	if !canApply(order.ExecutionStatus, event) {
		logger.Warn().Str("status", order.ExecutionStatus).Msg("Illegal transition rejected")
		return nil, &TransitionError{
			ClientOrderID: clientOrderID,
			From:          order.ExecutionStatus,
			Event:         event,
		}
	}

	now := time.Now().UTC()
	switch event {
	case EventSubmit:
		order.ExecutionStatus = types.StatusSubmitted
		order.BrokerOrderID = payload.BrokerOrderID
		order.SubmittedAt = &now

	case EventFill:
		if payload.Fill == nil {
			return nil, errors.New("fill event requires a fill payload")
		}
		for _, f := range order.Fills {
			if f.ExecutionID == payload.Fill.ExecutionID {
				logger.Info().Str("execution_id", f.ExecutionID).Msg("Duplicate fill ignored")
				return order, nil
			}
		}
		fill := *payload.Fill
		fill.ClientOrderID = clientOrderID
		if fill.Timestamp.IsZero() {
			fill.Timestamp = now
		}
		if err := s.db.AppendFill(&fill); err != nil {
			return nil, err
		}
		order.Fills = append(order.Fills, fill)
		if order.FilledQuantity() >= order.Quantity {
			order.ExecutionStatus = types.StatusFilled
			order.FilledAt = &now
		} else {
			order.ExecutionStatus = types.StatusPartiallyFilled
		}

	case EventCancel:
		order.ExecutionStatus = types.StatusCancelled
		order.ErrorMessage = payload.Reason

	case EventReject:
		order.ExecutionStatus = types.StatusRejected
		order.ErrorMessage = payload.Reason

	case EventFault:
		order.ExecutionStatus = types.StatusError
		order.ErrorMessage = payload.Reason

	default:
		return nil, &TransitionError{
			ClientOrderID: clientOrderID,
			From:          order.ExecutionStatus,
			Event:         event,
		}
	}

	if err := s.db.SaveOrder(order); err != nil {
		return nil, err
	}

	logger.Info().Str("status", order.ExecutionStatus).Msg("Order transitioned")
	return order, nil
}

// AttachBrokerID records the broker-assigned id on an order without
// advancing its state. A second attach with a different id is ignored.
func (s *Store) AttachBrokerID(clientOrderID, brokerOrderID string) (*types.Order, error) {
	l := s.keyLock(clientOrderID)
	l.Lock()
	defer l.Unlock()

	order, err := s.db.GetOrder(clientOrderID)
	if err != nil {
		return nil, err
	}
	if order.BrokerOrderID != "" || brokerOrderID == "" {
		return order, nil
	}
	order.BrokerOrderID = brokerOrderID
	if err := s.db.SaveOrder(order); err != nil {
		return nil, err
	}
	return order, nil
}

// GetOrder retrieves an order with its fills.
func (s *Store) GetOrder(clientOrderID string) (*types.Order, error) {
	return s.db.GetOrder(clientOrderID)
}

// HasAdvancedOrder reports whether an order exists for the client order id
// and already moved past planned.
func (s *Store) HasAdvancedOrder(clientOrderID string) (bool, error) {
	order, err := s.db.GetOrder(clientOrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return order.ExecutionStatus != types.StatusPlanned, nil
}

// ListOpen returns orders awaiting a broker outcome, for reconciliation.
func (s *Store) ListOpen() ([]types.Order, error) {
	return s.db.ListByStatus([]string{types.StatusSubmitted, types.StatusPartiallyFilled})
}
