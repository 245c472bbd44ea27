package decision

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/quorumtrade/quorum-api/internal/types"
	"github.com/quorumtrade/quorum-api/pkg/response"
)

// GinHandlers contains HTTP handlers for decision endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for decision endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// CreateDecisionHandler handles POST requests to run a trading decision.
// Requires authentication. Resubmitting a client order id returns the
// stored outcome.
func (h *GinHandlers) CreateDecisionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.CreateDecisionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		userID := c.GetString("user_id")

		result, err := h.service.RunDecision(c.Request.Context(), userID, &req)
		if err != nil {
			var violation *PolicyViolationError
			if errors.As(err, &violation) {
				response.UnprocessableEntity(c, response.ErrCodePolicyViolation, violation.Error())
				return
			}
			response.Handle(c, nil, err)
			return
		}

		response.Success(c, result)
	}
}

// GetDecisionHandler handles GET requests for a decision with its
// verdicts and any prepared order.
// URL parameter: client_order_id
func (h *GinHandlers) GetDecisionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientOrderID := c.Param("client_order_id")

		result, err := h.service.GetDecision(clientOrderID)
		response.Handle(c, result, err)
	}
}
