package orders

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/quorumtrade/quorum-api/internal/types"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.Disabled)
	os.Exit(m.Run())
}

func newTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&types.Order{}, &types.Fill{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return NewStore(db)
}

func testDecision(quantity int) *types.TradingDecision {
	return &types.TradingDecision{
		ClientOrderID: uuid.New().String(),
		AccountID:     "ACC_1",
		UserID:        "user-1",
		Symbol:        "AAPL",
		Action:        "BUY",
		OrderType:     "LMT",
		Quantity:      quantity,
		LimitPrice:    150,
	}
}

func fill(quantity int) *types.Fill {
	return &types.Fill{
		ExecutionID: uuid.New().String(),
		Quantity:    quantity,
		Price:       150,
	}
}

func TestStore_PrepareDefaults(t *testing.T) {
	store := newTestStore(t)
	d := testDecision(10)

	order, err := store.Prepare(d, 8, true)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	if order.ExecutionStatus != types.StatusPlanned {
		t.Errorf("ExecutionStatus = %q, want planned", order.ExecutionStatus)
	}
	if order.Quantity != 8 || order.OriginalQuantity != 10 {
		t.Errorf("quantities = %d/%d, want 8/10", order.Quantity, order.OriginalQuantity)
	}
	if !order.RiskAdjusted {
		t.Error("RiskAdjusted = false, want true when sized down")
	}
	if !order.DryRun {
		t.Error("DryRun = false, want true")
	}
	if order.Route != "SMART" || order.SecType != "STK" || order.Currency != "USD" {
		t.Errorf("broker defaults not applied: %s/%s/%s", order.Route, order.SecType, order.Currency)
	}
	if order.TimeInForce != "DAY" {
		t.Errorf("TimeInForce = %q, want DAY default", order.TimeInForce)
	}
}

func TestStore_PrepareIdempotent(t *testing.T) {
	store := newTestStore(t)
	d := testDecision(10)

	first, err := store.Prepare(d, 10, false)
	if err != nil {
		t.Fatalf("first Prepare() error = %v", err)
	}

	// A second call, even with different sizing, returns the stored order
	second, err := store.Prepare(d, 5, true)
	if err != nil {
		t.Fatalf("second Prepare() error = %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("second Prepare created a new order: id %d != %d", second.ID, first.ID)
	}
	if second.Quantity != 10 || second.DryRun {
		t.Error("second Prepare must not mutate the stored order")
	}
}

func TestStore_TransitionFullLifecycle(t *testing.T) {
	store := newTestStore(t)
	d := testDecision(10)
	if _, err := store.Prepare(d, 10, false); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	order, err := store.Transition(d.ClientOrderID, EventSubmit, TransitionPayload{BrokerOrderID: "BRK-1"})
	if err != nil {
		t.Fatalf("submit error = %v", err)
	}
	if order.ExecutionStatus != types.StatusSubmitted || order.SubmittedAt == nil {
		t.Fatalf("after submit: status %q, submittedAt %v", order.ExecutionStatus, order.SubmittedAt)
	}

	order, err = store.Transition(d.ClientOrderID, EventFill, TransitionPayload{Fill: fill(4)})
	if err != nil {
		t.Fatalf("partial fill error = %v", err)
	}
	if order.ExecutionStatus != types.StatusPartiallyFilled {
		t.Fatalf("after partial fill: status %q, want partially_filled", order.ExecutionStatus)
	}

	order, err = store.Transition(d.ClientOrderID, EventFill, TransitionPayload{Fill: fill(6)})
	if err != nil {
		t.Fatalf("final fill error = %v", err)
	}
	if order.ExecutionStatus != types.StatusFilled || order.FilledAt == nil {
		t.Fatalf("after final fill: status %q, filledAt %v", order.ExecutionStatus, order.FilledAt)
	}
	if got := order.FilledQuantity(); got != 10 {
		t.Errorf("FilledQuantity() = %d, want 10", got)
	}
}

func TestStore_DuplicateFillIgnored(t *testing.T) {
	store := newTestStore(t)
	d := testDecision(10)
	if _, err := store.Prepare(d, 10, false); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if _, err := store.Transition(d.ClientOrderID, EventSubmit, TransitionPayload{}); err != nil {
		t.Fatalf("submit error = %v", err)
	}

	f := fill(4)
	if _, err := store.Transition(d.ClientOrderID, EventFill, TransitionPayload{Fill: f}); err != nil {
		t.Fatalf("fill error = %v", err)
	}

	order, err := store.Transition(d.ClientOrderID, EventFill, TransitionPayload{Fill: f})
	if err != nil {
		t.Fatalf("duplicate fill error = %v", err)
	}
	if got := order.FilledQuantity(); got != 4 {
		t.Errorf("FilledQuantity() = %d after duplicate, want 4", got)
	}
	if len(order.Fills) != 1 {
		t.Errorf("len(Fills) = %d, want 1", len(order.Fills))
	}
}

func TestStore_IllegalTransitions(t *testing.T) {
	tests := []struct {
		name  string
		setup []string // events applied first
		event string
	}{
		{"fill before submit", nil, EventFill},
		{"cancel before submit", nil, EventCancel},
		{"reject before submit", nil, EventReject},
		{"double submit", []string{EventSubmit}, EventSubmit},
		{"submit after cancel", []string{EventSubmit, EventCancel}, EventSubmit},
		{"fill after reject", []string{EventSubmit, EventReject}, EventFill},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t)
			d := testDecision(10)
			if _, err := store.Prepare(d, 10, false); err != nil {
				t.Fatalf("Prepare() error = %v", err)
			}
			for _, ev := range tt.setup {
				payload := TransitionPayload{Reason: "setup"}
				if ev == EventFill {
					payload.Fill = fill(10)
				}
				if _, err := store.Transition(d.ClientOrderID, ev, payload); err != nil {
					t.Fatalf("setup event %s error = %v", ev, err)
				}
			}

			before, _ := store.GetOrder(d.ClientOrderID)

			payload := TransitionPayload{Reason: "test"}
			if tt.event == EventFill {
				payload.Fill = fill(1)
			}
			_, err := store.Transition(d.ClientOrderID, tt.event, payload)

			var terr *TransitionError
			if !errors.As(err, &terr) {
				t.Fatalf("error = %v, want TransitionError", err)
			}
			if terr.Event != tt.event || terr.From != before.ExecutionStatus {
				t.Errorf("TransitionError = %+v, want event %q from %q", terr, tt.event, before.ExecutionStatus)
			}

			after, _ := store.GetOrder(d.ClientOrderID)
			if after.ExecutionStatus != before.ExecutionStatus {
				t.Errorf("order mutated by illegal transition: %q -> %q", before.ExecutionStatus, after.ExecutionStatus)
			}
		})
	}
}

func TestStore_FilledIsTerminal(t *testing.T) {
	store := newTestStore(t)
	d := testDecision(5)
	if _, err := store.Prepare(d, 5, false); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if _, err := store.Transition(d.ClientOrderID, EventSubmit, TransitionPayload{}); err != nil {
		t.Fatalf("submit error = %v", err)
	}
	if _, err := store.Transition(d.ClientOrderID, EventFill, TransitionPayload{Fill: fill(5)}); err != nil {
		t.Fatalf("fill error = %v", err)
	}

	for _, ev := range []string{EventSubmit, EventFill, EventCancel, EventReject, EventFault} {
		payload := TransitionPayload{Reason: "test"}
		if ev == EventFill {
			payload.Fill = fill(1)
		}
		_, err := store.Transition(d.ClientOrderID, ev, payload)
		var terr *TransitionError
		if !errors.As(err, &terr) {
			t.Errorf("event %s from filled: error = %v, want TransitionError", ev, err)
		}
	}
}

func TestStore_FaultRecordsMessage(t *testing.T) {
	store := newTestStore(t)
	d := testDecision(5)
	if _, err := store.Prepare(d, 5, false); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	order, err := store.Transition(d.ClientOrderID, EventFault, TransitionPayload{Reason: "gateway timeout"})
	if err != nil {
		t.Fatalf("fault error = %v", err)
	}
	if order.ExecutionStatus != types.StatusError {
		t.Errorf("status = %q, want error", order.ExecutionStatus)
	}
	if order.ErrorMessage != "gateway timeout" {
		t.Errorf("ErrorMessage = %q, want the fault reason", order.ErrorMessage)
	}
}

func TestStore_HasAdvancedOrder(t *testing.T) {
	store := newTestStore(t)
	d := testDecision(5)

	advanced, err := store.HasAdvancedOrder(d.ClientOrderID)
	if err != nil || advanced {
		t.Fatalf("HasAdvancedOrder(missing) = %v, %v; want false, nil", advanced, err)
	}

	if _, err := store.Prepare(d, 5, false); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	advanced, _ = store.HasAdvancedOrder(d.ClientOrderID)
	if advanced {
		t.Error("planned order must not count as advanced")
	}

	if _, err := store.Transition(d.ClientOrderID, EventSubmit, TransitionPayload{}); err != nil {
		t.Fatalf("submit error = %v", err)
	}
	advanced, _ = store.HasAdvancedOrder(d.ClientOrderID)
	if !advanced {
		t.Error("submitted order must count as advanced")
	}
}

func TestStore_ConcurrentFills(t *testing.T) {
	store := newTestStore(t)
	const quantity = 20
	d := testDecision(quantity)
	if _, err := store.Prepare(d, quantity, false); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if _, err := store.Transition(d.ClientOrderID, EventSubmit, TransitionPayload{}); err != nil {
		t.Fatalf("submit error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < quantity; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Transition(d.ClientOrderID, EventFill, TransitionPayload{Fill: fill(1)})
		}()
	}
	wg.Wait()

	order, err := store.GetOrder(d.ClientOrderID)
	if err != nil {
		t.Fatalf("GetOrder() error = %v", err)
	}
	if order.ExecutionStatus != types.StatusFilled {
		t.Errorf("status = %q after %d unit fills, want filled", order.ExecutionStatus, quantity)
	}
	if got := order.FilledQuantity(); got != quantity {
		t.Errorf("FilledQuantity() = %d, want %d", got, quantity)
	}
}
