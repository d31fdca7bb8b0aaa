package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"classsite/internal/middleware"
	"classsite/internal/services"
)

const msgInternal = "Внутренняя ошибка сервера"

// CookieOptions controls how session cookies are written.
type CookieOptions struct {
	Secure     bool
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func (o CookieOptions) setSession(c *gin.Context, access, refresh string) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(middleware.AccessCookie, access, int(o.AccessTTL.Seconds()), "/", "", o.Secure, true)
	c.SetCookie(middleware.RefreshCookie, refresh, int(o.RefreshTTL.Seconds()), "/", "", o.Secure, true)
}

func (o CookieOptions) clearSession(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(middleware.AccessCookie, "", -1, "/", "", o.Secure, true)
	c.SetCookie(middleware.RefreshCookie, "", -1, "/", "", o.Secure, true)
}

// statusFor maps a service error to the HTTP status and the message shown to the caller.
// ok is false for unexpected errors.
func statusFor(err error) (status int, msg string, ok bool) {
	var (
		ve *services.ValidationError
		me *services.MessageError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, ve.Msg, true
	case errors.Is(err, services.ErrInvalidOrExpiredCode):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrInvalidCredentials), errors.Is(err, services.ErrUnauthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, services.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, services.ErrRateLimited):
		status = http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError, msgInternal, false
	}
	if errors.As(err, &me) {
		return status, me.Msg, true
	}
	return status, err.Error(), true
}

// respondError writes {"error": ...}. Unexpected errors are logged and hidden.
func respondError(c *gin.Context, log logrus.FieldLogger, op string, err error) {
	status, msg, ok := statusFor(err)
	if !ok {
		log.WithError(err).WithField("op", op).Error("[http] internal error")
	}
	c.JSON(status, gin.H{"error": msg})
}

func badJSON(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "Некорректный формат запроса"})
}

func currentActor(c *gin.Context) (services.Actor, bool) {
	id, role, ok := middleware.Identity(c)
	return services.Actor{UserID: id, Role: role}, ok
}

func clientInfo(c *gin.Context) services.ClientInfo {
	return services.ClientInfo{IP: c.ClientIP(), UserAgent: c.Request.UserAgent()}
}

func queryInt(c *gin.Context, key string, def int) int {
	if v := c.Query(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
