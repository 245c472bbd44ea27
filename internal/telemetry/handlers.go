package telemetry

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quorumtrade/quorum-api/pkg/response"
)

// GinHandlers contains HTTP handlers for telemetry endpoints
type GinHandlers struct {
	store *Store
}

// NewGinHandlers creates a new set of HTTP handlers for telemetry endpoints
func NewGinHandlers(store *Store) *GinHandlers {
	return &GinHandlers{
		store: store,
	}
}

// QueryEventsHandler handles GET requests for an account's telemetry
// events. Requires internal authentication.
// URL parameter: account_id
// Query parameters: client_order_id, event_type, severity, since (RFC3339), limit
func (h *GinHandlers) QueryEventsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := c.Param("account_id")

		f := Filter{
			ClientOrderID: c.Query("client_order_id"),
			EventType:     c.Query("event_type"),
			Severity:      c.Query("severity"),
		}
		if since := c.Query("since"); since != "" {
			t, err := time.Parse(time.RFC3339, since)
			if err != nil {
				response.BadRequest(c, "Invalid since timestamp, expected RFC3339")
				return
			}
			f.Since = t
		}
		if limit := c.Query("limit"); limit != "" {
			n, err := strconv.Atoi(limit)
			if err != nil || n <= 0 {
				response.BadRequest(c, "Invalid limit")
				return
			}
			f.Limit = n
		}

		events, err := h.store.Query(accountID, f)
		response.Handle(c, gin.H{"events": events, "count": len(events)}, err)
	}
}
