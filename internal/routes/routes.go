package routes

import (
	"github.com/gin-gonic/gin"

	"classsite/internal/authz"
	"classsite/internal/handlers"
	"classsite/internal/middleware"
)

type Handlers struct {
	Auth   *handlers.AuthHandler
	Verify *handlers.VerifyHandler
	Reset  *handlers.PasswordResetHandler
	Users  *handlers.UserHandler
	Health *handlers.HealthHandler
}

func SetupRoutes(r *gin.Engine, h Handlers, verifier middleware.TokenVerifier) *gin.Engine {
	r.GET("/healthz", h.Health.Health)

	api := r.Group("/api")

	// ---- public
	auth := api.Group("/auth")
	{
		auth.POST("/login", h.Auth.Login)
		auth.POST("/logout", h.Auth.Logout)
		auth.POST("/refresh", h.Auth.Refresh)
		auth.POST("/register", h.Auth.Register)
		auth.POST("/verify", h.Verify.RequestCode)
		auth.PUT("/verify", h.Verify.ConfirmCode)
		auth.POST("/reset-password", h.Reset.Request)
		auth.PUT("/reset-password", h.Reset.Confirm)
	}

	// ---- protected
	requireAuth := middleware.AuthMiddleware(verifier)

	profile := auth.Group("/profile", requireAuth)
	{
		profile.GET("", h.Auth.GetProfile)
		profile.PUT("", h.Auth.UpdateProfile)
	}

	users := api.Group("/users", requireAuth, middleware.RequireRole(authz.RoleTeacher))
	{
		users.GET("", h.Users.ListUsers)
		users.POST("", h.Users.CreateUser)
		users.GET("/:id", h.Users.GetUser)
		users.PUT("/:id", h.Users.UpdateUser)
		users.DELETE("/:id", middleware.RequireRole(authz.RoleAdmin), h.Users.DeleteUser)
		users.GET("/:id/login-attempts", middleware.RequireRole(authz.RoleAdmin), h.Users.LoginHistory)
	}

	return r
}
