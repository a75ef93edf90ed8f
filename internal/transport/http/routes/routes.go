package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-auth/internal/infra/config"
	"github.com/arklim/social-platform-auth/internal/infra/security"
	"github.com/arklim/social-platform-auth/internal/transport/http/handlers"
	"github.com/arklim/social-platform-auth/internal/transport/http/middleware"
	"github.com/arklim/social-platform-auth/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth         *usecase.AuthService
	Registration *usecase.RegistrationService
	TwoFactor    *usecase.TwoFactorService
	Passkeys     *usecase.PasskeyService
	Sessions     *usecase.SessionService
	AntiForgery  *usecase.AntiForgeryService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config       *config.AppConfig
	Logger       *zap.Logger
	RateLimiter  *middleware.RateLimiter
	Services     ServiceSet
	TokenManager *security.TokenManager
	Metrics      *middleware.HTTPMetrics
	Database     DatabaseChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))

	if len(deps.Config.App.AllowedOrigins) > 0 {
		r.Use(middleware.CORS(deps.Config.App.AllowedOrigins))
	}

	if deps.Metrics != nil {
		r.Use(deps.Metrics.Handler())
	}

	healthHandler := handlers.NewHealthHandler()
	if deps.Database != nil {
		healthHandler = handlers.NewHealthHandler(handlers.WithReadinessCheck("database", deps.Database.Ping))
	}
	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	jwksHandler := handlers.NewJWKSHandler(deps.TokenManager)
	r.GET("/.well-known/jwks.json", jwksHandler.Keys)

	api := r.Group("/api/v1")
	{
		if deps.Services.AntiForgery != nil {
			antiForgeryHandler := handlers.NewAntiForgeryHandler(deps.Services.AntiForgery, deps.Config.AntiForgery)
			antiForgeryHandler.RegisterRoutes(api)
		}

		authGroup := api.Group("/auth")

		if deps.Services.AntiForgery != nil {
			authGroup.Use(middleware.AntiForgery(deps.Services.AntiForgery, deps.Config.AntiForgery))
		}

		loginMiddlewares := buildLoginMiddlewares(deps)

		sessionTTL := deps.Config.JWT.SessionTokenTTL
		authHandler := handlers.NewAuthHandler(deps.Services.Auth,
			handlers.WithRegistrationService(deps.Services.Registration),
			handlers.WithSessionTokenTTL(sessionTTL),
		)
		authHandler.RegisterRoutes(authGroup, loginMiddlewares...)

		twoFactorHandler := handlers.NewTwoFactorHandler(deps.Services.Auth, deps.Services.TwoFactor)
		twoFactorHandler.RegisterRoutes(authGroup)

		passkeyHandler := handlers.NewPasskeyHandler(deps.Services.Auth, deps.Services.Passkeys, sessionTTL)
		passkeyHandler.RegisterRoutes(authGroup, loginMiddlewares...)

		sessionHandler := handlers.NewSessionHandler(deps.Services.Auth, deps.Services.Sessions)
		sessionHandler.RegisterRoutes(authGroup)
	}

	return r
}

func buildLoginMiddlewares(deps Dependencies) []gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config == nil {
		return nil
	}

	if !deps.Config.RateLimit.Enabled {
		return nil
	}

	limit := deps.Config.RateLimit.LoginMaxAttempts
	if limit <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Minute
	}

	rule := middleware.RateLimitRule{
		Name:       "auth_login_ip",
		Limit:      limit,
		Window:     window,
		Identifier: middleware.ClientIPIdentifier(),
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(rule)}
}
