// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns
// such as tracing, correlation IDs, logging, panic recovery, metrics,
// compression, CORS, security headers, and rate limiting.
//
// Design goals:
//   - Observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/avramides/go-convo-proxy/internal/config"
	"github.com/avramides/go-convo-proxy/internal/domain"
	"github.com/avramides/go-convo-proxy/internal/http/handlers"
	"github.com/avramides/go-convo-proxy/internal/http/middleware"
	"github.com/avramides/go-convo-proxy/internal/repo"
	"github.com/avramides/go-convo-proxy/internal/services"
)

// gormUserStore adapts the repo free functions to the services.UserStore
// interface. This keeps services decoupled from the concrete repo package
// while reusing its functions.
type gormUserStore struct{ db *gorm.DB }

// CreateUser proxies repo.CreateUser.
func (s gormUserStore) CreateUser(ctx context.Context) (*domain.User, error) {
	return repo.CreateUser(ctx, s.db)
}

// UserExists proxies repo.UserExists.
func (s gormUserStore) UserExists(ctx context.Context, id string) (bool, error) {
	return repo.UserExists(ctx, s.db, id)
}

// gormTurnStore adapts the repo free functions to services.TurnStore.
type gormTurnStore struct{ db *gorm.DB }

// AppendTurn proxies repo.CreateTurn.
func (s gormTurnStore) AppendTurn(ctx context.Context, userID, role, content string) (*domain.Turn, error) {
	return repo.CreateTurn(ctx, s.db, userID, role, content)
}

// RecentTurns proxies repo.ListRecentTurns.
func (s gormTurnStore) RecentTurns(ctx context.Context, userID string, limit int) ([]domain.Turn, error) {
	return repo.ListRecentTurns(ctx, s.db, userID, limit)
}

// TurnsPage proxies repo.ListTurnsPage.
func (s gormTurnStore) TurnsPage(ctx context.Context, userID string, offset, limit int) ([]domain.Turn, error) {
	return repo.ListTurnsPage(ctx, s.db, userID, offset, limit)
}

// CountTurns proxies repo.CountTurns.
func (s gormTurnStore) CountTurns(ctx context.Context, userID string) (int64, error) {
	return repo.CountTurns(ctx, s.db, userID)
}

// ClearTurns proxies repo.DeleteTurns.
func (s gormTurnStore) ClearTurns(ctx context.Context, userID string) error {
	return repo.DeleteTurns(ctx, s.db, userID)
}

// NewGormUserStore exposes the user-store shim for main and tests.
func NewGormUserStore(db *gorm.DB) services.UserStore { return gormUserStore{db: db} }

// NewGormTurnStore exposes the turn-store shim for main and tests.
func NewGormTurnStore(db *gorm.DB) services.TurnStore { return gormTurnStore{db: db} }

// Deps carries the injected collaborators for route registration. The
// stores are interfaces so the file-backed history log can stand in for
// the relational store.
type Deps struct {
	Users       services.UserStore
	Turns       services.TurnStore
	Completions services.CompletionClient
	Composer    services.PromptComposer
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given
// Gin engine.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured access logs
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Rate limiter (per identity cookie, IP fallback)
//  8. Gzip, CORS, and security headers
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured access logging
	r.Use(middleware.Logger())

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Token-bucket rate limiter per identity (each allowed POST may
	//    cost a completion call upstream). Opt-in: RATE_RPS=0 keeps the
	//    wire surface free of 429s.
	if cfg.RateRPS > 0 {
		rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByCookieOrIP(cfg.Cookie.Name))
		r.Use(rl.Handler())
	}

	// 8) Compression for JSON payloads (long histories compress well)
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// CORS posture. The identity travels in a cookie, so configured
	// origins get credentialed CORS; without configuration we fall back
	// to a wildcard (credential-less; browser clients then need a
	// configured origin to send the cookie cross-site).
	if len(cfg.CORS.AllowedOrigins) == 0 {
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers. NoStore: conversation content must not be cached.
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: services ← stores/clients
	identitySvc := services.NewIdentityService(deps.Users)
	historySvc := services.NewHistoryService(deps.Turns)
	if cfg.HistoryLimit > 0 {
		historySvc.Limit = cfg.HistoryLimit
	}
	msgSvc := &services.MessageService{
		History:     historySvc,
		Composer:    deps.Composer,
		Completions: deps.Completions,
	}
	h := handlers.New(identitySvc, historySvc, msgSvc, cfg.Cookie)

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath) // e.g. "/api"
	{
		api.POST("/message", h.PostMessage)

		api.GET("/user", h.GetUser)
		api.GET("/user/history", h.ListHistory)
		api.DELETE("/user/cookie", h.ClearCookie)
		api.DELETE("/user/history", h.ClearHistory)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
