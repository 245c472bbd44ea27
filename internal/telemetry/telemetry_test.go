package telemetry

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
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
	if err := db.AutoMigrate(&Event{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return NewStore(db)
}

func TestStore_AppendDefaults(t *testing.T) {
	store := newTestStore(t)

	store.Append(&Event{
		AccountID:   "ACC_1",
		EventType:   "workflow_completed",
		EventSource: "decision_orchestrator",
	})

	events, err := store.Query("ACC_1", Filter{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	if events[0].Severity != SeverityInfo {
		t.Errorf("Severity = %q, want info default", events[0].Severity)
	}
	if events[0].Timestamp.IsZero() {
		t.Error("Timestamp must default to now")
	}
}

func TestStore_QueryFilters(t *testing.T) {
	store := newTestStore(t)

	store.Append(&Event{AccountID: "ACC_1", ClientOrderID: "ord-1", EventType: "execution_error", EventSource: "execution_adapter", Severity: SeverityError})
	store.Append(&Event{AccountID: "ACC_1", ClientOrderID: "ord-2", EventType: "workflow_completed", EventSource: "decision_orchestrator"})
	store.Append(&Event{AccountID: "ACC_2", ClientOrderID: "ord-3", EventType: "execution_error", EventSource: "execution_adapter", Severity: SeverityError})

	tests := []struct {
		name      string
		accountID string
		filter    Filter
		want      int
	}{
		{"by account", "ACC_1", Filter{}, 2},
		{"by event type", "ACC_1", Filter{EventType: "execution_error"}, 1},
		{"by severity", "ACC_1", Filter{Severity: SeverityError}, 1},
		{"by client order id", "ACC_1", Filter{ClientOrderID: "ord-2"}, 1},
		{"other account isolated", "ACC_2", Filter{}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := store.Query(tt.accountID, tt.filter)
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			if len(events) != tt.want {
				t.Errorf("len(events) = %d, want %d", len(events), tt.want)
			}
		})
	}
}

func TestStore_CountRecentErrors(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()

	// Two recent errors, one stale, one critical, one from another source
	store.Append(&Event{AccountID: "ACC_1", EventSource: "execution_adapter", Severity: SeverityError, Timestamp: now})
	store.Append(&Event{AccountID: "ACC_1", EventSource: "execution_adapter", Severity: SeverityError, Timestamp: now.Add(-time.Minute)})
	store.Append(&Event{AccountID: "ACC_1", EventSource: "execution_adapter", Severity: SeverityError, Timestamp: now.Add(-time.Hour)})
	store.Append(&Event{AccountID: "ACC_1", EventSource: "execution_adapter", Severity: SeverityCritical, Timestamp: now})
	store.Append(&Event{AccountID: "ACC_1", EventSource: "decision_orchestrator", Severity: SeverityError, Timestamp: now})

	count, err := store.CountRecentErrors("ACC_1", "execution_adapter", now.Add(-15*time.Minute))
	if err != nil {
		t.Fatalf("CountRecentErrors() error = %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2 (stale, critical and foreign-source events excluded)", count)
	}
}
