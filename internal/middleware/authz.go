package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"classsite/internal/authz"
	"classsite/internal/services"
)

// RequireRole lets through callers whose role dominates min.
func RequireRole(min authz.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, role, ok := Identity(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": services.ErrUnauthenticated.Error()})
			return
		}
		if !authz.HasPermission(role, min) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": services.ErrForbidden.Error()})
			return
		}
		c.Next()
	}
}
