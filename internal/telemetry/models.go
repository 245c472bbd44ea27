package telemetry

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// Event severities, ordered from routine to page-someone.
const (
	SeverityInfo     = "info"
	SeverityWarn     = "warn"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Event is one append-only telemetry record. Events are never updated or
// deleted; the table is the audit trail for every decision and execution.
type Event struct {
	gorm.Model    `json:"-"`
	ClientOrderID string    `gorm:"index" json:"client_order_id,omitempty"`
	AccountID     string    `gorm:"index" json:"account_id,omitempty"`
	EventType     string    `json:"event_type"`
	EventSource   string    `json:"event_source"`
	Payload       string    `json:"payload,omitempty"` // JSON
	LatencyMs     int64     `json:"latency_ms,omitempty"`
	ErrorCode     string    `json:"error_code,omitempty"`
	Severity      string    `json:"severity"`
	Timestamp     time.Time `gorm:"index" json:"timestamp"`
}

// Filter narrows a telemetry query. Zero values mean "any".
type Filter struct {
	ClientOrderID string
	EventType     string
	Severity      string
	Since         time.Time
	Limit         int
}

// Payload serializes an arbitrary value for storage in Event.Payload.
// Marshal failures degrade to an empty payload rather than dropping the
// event.
func Payload(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
