package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"classsite/internal/authz"
	"classsite/internal/services"
)

const (
	// AccessCookie carries the access JWT.
	AccessCookie = "token"
	// RefreshCookie carries the opaque refresh token.
	RefreshCookie = "refreshToken"

	CtxUserID   = "user_id"
	CtxRole     = "role"
	CtxFullName = "full_name"
)

// TokenVerifier resolves an access token to its claims, nil when it is not valid.
type TokenVerifier interface {
	VerifyAccessToken(token string) *services.Claims
}

// AccessToken returns the token from the cookie, falling back to the Bearer header.
func AccessToken(c *gin.Context) string {
	if v, err := c.Cookie(AccessCookie); err == nil && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func AuthMiddleware(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		// пропускаем preflight
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		tokenStr := AccessToken(c)
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": services.ErrUnauthenticated.Error()})
			return
		}
		claims := verifier.VerifyAccessToken(tokenStr)
		if claims == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": services.ErrUnauthenticated.Error()})
			return
		}

		c.Set(CtxUserID, claims.UserID)
		c.Set(CtxRole, claims.Role)
		c.Set(CtxFullName, claims.FullName)
		c.Next()
	}
}

// Identity reads what AuthMiddleware stored.
func Identity(c *gin.Context) (userID string, role authz.Role, ok bool) {
	id, exists := c.Get(CtxUserID)
	if !exists {
		return "", "", false
	}
	userID, _ = id.(string)
	r, _ := c.Get(CtxRole)
	role, _ = r.(authz.Role)
	return userID, role, userID != ""
}
