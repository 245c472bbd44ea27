package orders

import (
	"github.com/gin-gonic/gin"

	"github.com/quorumtrade/quorum-api/pkg/response"
)

// GinHandlers contains HTTP handlers for order endpoints
type GinHandlers struct {
	store *Store
}

// NewGinHandlers creates a new set of HTTP handlers for order endpoints
func NewGinHandlers(store *Store) *GinHandlers {
	return &GinHandlers{
		store: store,
	}
}

// GetOrderHandler handles GET requests for a single order with its fills.
// URL parameter: client_order_id
func (h *GinHandlers) GetOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientOrderID := c.Param("client_order_id")

		order, err := h.store.GetOrder(clientOrderID)
		response.Handle(c, order, err)
	}
}
