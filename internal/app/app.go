package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "classsite/docs"
	"classsite/internal/config"
	"classsite/internal/handlers"
	"classsite/internal/middleware"
	"classsite/internal/ratelimit"
	"classsite/internal/repositories"
	"classsite/internal/routes"
	"classsite/internal/services"
	"classsite/internal/sms"
)

const (
	sessionCleanupEvery = time.Hour
	shutdownTimeout     = 10 * time.Second
)

type App struct {
	cfg     *config.Config
	log     *logrus.Logger
	db      *sql.DB
	store   *repositories.Store
	limiter *ratelimit.Limiter
	router  *gin.Engine
}

// New wires every dependency. Close must be called when New succeeds.
func New(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*App, error) {
	// === DB ===
	db, err := repositories.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	store := repositories.NewStore(db)

	// === SMS / Redis ===
	sender, err := sms.New(cfg.SMS, !cfg.IsProduction(), log)
	if err != nil {
		db.Close()
		return nil, err
	}
	var limiter *ratelimit.Limiter
	if cfg.Redis.URL != "" {
		limiter, err = ratelimit.Connect(ctx, cfg.Redis.URL, log)
		if err != nil {
			db.Close()
			return nil, err
		}
	} else {
		log.Warn("REDIS_URL не задан, ограничение частоты запросов отключено")
	}

	// === Services ===
	hasher := services.NewPasswordHasher(cfg.Auth.BcryptCost)
	tokens := services.NewTokenService(store, cfg.Auth)
	codes := services.NewVerificationService(store, sender, cfg.SMS.Timeout, log)
	emailService := services.NewEmailService(cfg.Email)

	authService := services.NewAuthService(store, hasher, tokens, codes, limiter, emailService, log)
	resetService := services.NewPasswordResetService(store, codes, hasher, limiter, log)
	userService := services.NewUserService(store, hasher, emailService, log)

	if admin, err := authService.BootstrapAdmin(ctx, cfg.Admin); err != nil {
		log.WithError(err).Error("не удалось создать администратора")
	} else if admin != nil {
		log.WithField("user_id", admin.ID).Info("создан администратор по умолчанию")
	}

	// === Handlers ===
	cookies := handlers.CookieOptions{
		Secure:     cfg.IsProduction(),
		AccessTTL:  tokens.AccessTTL(),
		RefreshTTL: tokens.RefreshTTL(),
	}
	h := routes.Handlers{
		Auth:   handlers.NewAuthHandler(authService, cookies, log),
		Verify: handlers.NewVerifyHandler(authService, cfg.ShouldExposeCodes(), log),
		Reset:  handlers.NewPasswordResetHandler(resetService, cfg.ShouldExposeCodes(), log),
		Users:  handlers.NewUserHandler(userService, log),
		Health: handlers.NewHealthHandler(store),
	}

	// === Gin ===
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	// Swagger
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	routes.SetupRoutes(router, h, authService)

	return &App{
		cfg:     cfg,
		log:     log,
		db:      db,
		store:   store,
		limiter: limiter,
		router:  router,
	}, nil
}

func (a *App) Handler() http.Handler { return a.router }

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go a.cleanupSessions(ctx)

	errCh := make(chan error, 1)
	go func() {
		a.log.Infof("Сервер запущен на %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.log.Info("Остановка сервера")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// cleanupSessions periodically drops expired refresh sessions.
func (a *App) cleanupSessions(ctx context.Context) {
	t := time.NewTicker(sessionCleanupEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := a.store.Sessions.DeleteExpired(ctx, time.Now().UTC())
			if err != nil {
				a.log.WithError(err).Warn("[sessions] cleanup failed")
				continue
			}
			if n > 0 {
				a.log.WithField("deleted", n).Info("[sessions] expired sessions removed")
			}
		}
	}
}

func (a *App) Close() {
	if err := a.limiter.Close(); err != nil {
		a.log.WithError(err).Warn("Ошибка закрытия Redis")
	}
	if err := a.db.Close(); err != nil {
		a.log.WithError(err).Warn("Ошибка закрытия БД")
	}
}
