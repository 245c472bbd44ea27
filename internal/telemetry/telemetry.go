package telemetry

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Store persists telemetry events. Appends must never take down the
// operation that emitted them, so persistence failures are logged and
// swallowed.
type Store struct {
	db *gorm.DB
}

// NewStore creates a telemetry store on the given database.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Append records one event. The timestamp defaults to now, the severity
// to info. Persistence failure is logged, never returned.
func (s *Store) Append(e *Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Severity == "" {
		e.Severity = SeverityInfo
	}

	RecordEvent(e.EventSource, e.Severity)

	logger := log.With().
		Str("event_type", e.EventType).
		Str("event_source", e.EventSource).
		Str("client_order_id", e.ClientOrderID).
		Str("account_id", e.AccountID).
		Logger()
	logEvent(logger, e)

	if err := s.db.Create(e).Error; err != nil {
		logger.Error().Err(err).Msg("Failed to persist telemetry event")
	}
}

func logEvent(logger zerolog.Logger, e *Event) {
	var ev *zerolog.Event
	switch e.Severity {
	case SeverityCritical, SeverityError:
		ev = logger.Error()
	case SeverityWarn:
		ev = logger.Warn()
	default:
		ev = logger.Info()
	}
	if e.ErrorCode != "" {
		ev = ev.Str("error_code", e.ErrorCode)
	}
	if e.LatencyMs > 0 {
		ev = ev.Int64("latency_ms", e.LatencyMs)
	}
	ev.Msg("Telemetry event")
}

// Query returns events for an account, newest first.
func (s *Store) Query(accountID string, f Filter) ([]Event, error) {
	q := s.db.Where("account_id = ?", accountID)
	if f.ClientOrderID != "" {
		q = q.Where("client_order_id = ?", f.ClientOrderID)
	}
	if f.EventType != "" {
		q = q.Where("event_type = ?", f.EventType)
	}
	if f.Severity != "" {
		q = q.Where("severity = ?", f.Severity)
	}
	if !f.Since.IsZero() {
		q = q.Where("timestamp >= ?", f.Since)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	var events []Event
	if err := q.Order("timestamp DESC").Limit(limit).Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// CountRecentErrors counts error-severity events from one source for one
// account since the given time. The circuit breaker computes its window
// from this; critical events are excluded so a breaker-open event cannot
// feed the breaker itself.
func (s *Store) CountRecentErrors(accountID, source string, since time.Time) (int64, error) {
	var count int64
	err := s.db.Model(&Event{}).
		Where("account_id = ? AND event_source = ? AND severity = ? AND timestamp >= ?",
			accountID, source, SeverityError, since).
		Count(&count).Error
	return count, err
}
