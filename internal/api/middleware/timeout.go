package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/payout-service/payout_service/internal/domain/entities"
)

// TimeoutMiddleware bounds request handling. The deadline rides the
// request context, so repository and provider calls are cancelled along
// with it; a handler that overruns answers 504.
func TimeoutMiddleware(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)

		done := make(chan struct{})
		go func() {
			c.Next()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			c.AbortWithStatusJSON(http.StatusGatewayTimeout, entities.ErrorResponse{
				Code:    "REQUEST_TIMEOUT",
				Message: "Request processing timeout",
			})
		}
	}
}
