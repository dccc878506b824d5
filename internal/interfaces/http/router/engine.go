package router

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/odyssee/backend/internal/domain/tenancy"
	"github.com/odyssee/backend/internal/infrastructure/config"
	"github.com/odyssee/backend/internal/infrastructure/logger"
	"github.com/odyssee/backend/internal/interfaces/http/handler"
	"github.com/odyssee/backend/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// Handlers are the endpoints served by the API
type Handlers struct {
	Health      *handler.HealthHandler
	Generation  *handler.GenerationHandler
	Credentials *handler.CredentialHandler
	Trips       *handler.TripHandler
	Payments    *handler.PaymentHandler
}

// EngineConfig holds what the engine-wide middleware needs
type EngineConfig struct {
	ServiceName    string
	BaseDomain     string
	TracingEnabled bool
	HTTP           config.HTTPConfig
	Tokens         middleware.TokenValidator
	Agencies       middleware.AgencyResolver
	Clock          clockwork.Clock
	Logger         *zap.Logger
}

// NewEngine builds the gin engine with middleware and every route mounted
func NewEngine(cfg EngineConfig, h Handlers) (*gin.Engine, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}

	engine.Use(middleware.RequestID())
	if cfg.TracingEnabled {
		engine.Use(middleware.Tracing(cfg.ServiceName))
	}
	engine.Use(
		logger.Recovery(cfg.Logger),
		logger.GinMiddleware(cfg.Logger),
		middleware.Secure(),
	)

	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	cors.BaseDomain = cfg.BaseDomain
	engine.Use(middleware.CORSWithConfig(cors), middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	engine.GET("/health", h.Health.Health)

	api := []gin.HandlerFunc{
		middleware.JWTAuth(cfg.Tokens, cfg.Logger),
		middleware.Tenant(middleware.TenantConfig{
			BaseDomain: cfg.BaseDomain,
			Resolver:   cfg.Agencies,
			Logger:     cfg.Logger,
		}),
		middleware.SpanAttributes(),
	}
	if cfg.HTTP.RateLimitEnabled {
		limiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow, cfg.Clock)
		api = append(api, middleware.RateLimit(limiter))
	}

	r := NewRouter(engine, WithAPIVersion("v1"), WithMiddleware(api...))
	r.Register(NewDomainGroup("/generations").POST("", h.Generation.Generate))
	r.Register(NewDomainGroup("/quota").GET("", h.Generation.Quota))
	r.Register(NewDomainGroup("/agency").
		Use(middleware.RequireRole(tenancy.RoleAgencyAdmin)).
		GET("/credentials", h.Credentials.Status).
		PUT("/credentials", h.Credentials.Update))
	r.Register(NewDomainGroup("/trips").
		POST("/sheet", h.Trips.Sheet).
		POST("/publish", h.Trips.Publish))
	r.Register(NewDomainGroup("/payments").
		POST("/links", h.Payments.CreateLink).
		POST("/manual", h.Payments.SendManual))
	r.Setup()

	return engine, nil
}
