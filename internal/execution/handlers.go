package execution

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quorumtrade/quorum-api/pkg/response"
)

// GinHandlers contains HTTP handlers for execution endpoints
type GinHandlers struct {
	adapter *Adapter
}

// NewGinHandlers creates a new set of HTTP handlers for execution endpoints
func NewGinHandlers(adapter *Adapter) *GinHandlers {
	return &GinHandlers{
		adapter: adapter,
	}
}

// ExecuteOrderHandler handles POST requests to execute a prepared order.
// Requires internal authentication.
// URL parameter: client_order_id
func (h *GinHandlers) ExecuteOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientOrderID := c.Param("client_order_id")

		order, err := h.adapter.Execute(c.Request.Context(), clientOrderID)
		if err == nil {
			response.Success(c, order)
			return
		}

		var idem *IdempotenceError
		switch {
		case errors.As(err, &idem):
			response.Conflict(c, response.ErrCodeIdempotence, idem.Error())
		case errors.Is(err, ErrCircuitBreakerOpen):
			response.ServiceUnavailable(c, response.ErrCodeCircuitBreakerOpen, err.Error())
		case errors.Is(err, ErrTradingHalted):
			response.UnprocessableEntity(c, response.ErrCodeTradingHalted, err.Error())
		case errors.Is(err, ErrGatewayUnhealthy):
			response.Fail(c, http.StatusBadGateway, response.ErrCodeExecutionFault, err.Error())
		case order != nil:
			response.Fail(c, http.StatusBadGateway, response.ErrCodeExecutionFault, err.Error())
		default:
			response.Handle(c, nil, err)
		}
	}
}
