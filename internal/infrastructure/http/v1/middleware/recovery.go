// Package middleware provides HTTP middleware components.
package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"seqnum/internal/core/apperror"
	"seqnum/internal/infrastructure/http/v1/dto"
	"seqnum/pkg/logger"
)

// Recovery turns a panic into a 500. A panic inside a write rolls back its
// transaction before it reaches here, so no assigned number is kept.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			logger.Error(c.Request.Context(), "panic recovered",
				"error", rec,
				"route", c.FullPath(),
				"table", c.Param("table"),
				"stack", string(debug.Stack()),
			)

			// ErrorHandler runs inside this frame and was unwound by the panic.
			c.AbortWithStatusJSON(http.StatusInternalServerError, dto.ErrorResponse{
				Code:    apperror.CodeInternal,
				Message: "Internal server error",
				Details: map[string]any{"request_id": c.GetString("request_id")},
			})
		}()
		c.Next()
	}
}
