// Package httpapi mounts the sync engine's HTTP surface on a Gin engine:
// the OAuth flow at the root, the farm API under the configured base path,
// and the operational endpoints (/health, /metrics, /swagger).
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	_ "github.com/agricapture/fieldsync/docs"
	"github.com/agricapture/fieldsync/internal/app"
	"github.com/agricapture/fieldsync/internal/config"
	"github.com/agricapture/fieldsync/internal/http/handlers"
	"github.com/agricapture/fieldsync/internal/http/middleware"
)

// maxBodyBytes caps request bodies; sync parameters are tiny.
const maxBodyBytes = 1 << 20

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	Environment string `json:"environment"`
	Database    string `json:"database"`
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. The OAuth routes are mounted at the root so the provider redirect
// URI stays stable; everything else lives under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with token and PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Rate limiter (per farmer/IP)
//  8. CORS and Security headers
func RegisterRoutes(r *gin.Engine, a *app.App, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxBodyBytes))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByFarmerOrIP())
	r.Use(rl.Handler())

	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS: cfg.Security.EnableHSTS,
		HSTSMaxAge: cfg.Security.HSTSMaxAge,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", health(a, cfg.Remote.Environment))
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	deps := handlers.Deps{
		Auth:        a.Tokens,
		Connections: a.Remote,
		Hierarchy:   a.Hierarchy,
		Sync:        a.Sync,
		Snapshot:    a.Snapshot,
		Operations:  a.Operations,
		BaseURL:     cfg.BaseURL,
	}
	if a.Archive != nil {
		deps.Archive = a.Archive
	}
	h := handlers.New(deps)

	// OAuth (root; responses must never be cached)
	auth := r.Group("/auth", middleware.NoStore())
	{
		auth.GET("/login", h.Login)
		auth.GET("/callback", h.Callback)
		auth.GET("/connected", h.Connected)
		auth.GET("/success", h.Success)
	}

	guard := middleware.NewSyncGuard()

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		// Hierarchy (live)
		api.GET("/organizations", h.ListOrganizations)
		api.GET("/organizations/:org_id/fields", h.ListFields)

		// Operations
		api.GET("/fields/:field_id/operations", h.RawOperations)
		api.GET("/fields/:field_id/operations/normalized", h.NormalizedOperations)
		api.GET("/farmers/:farmer_id/operations/export", h.ExportOperations)

		// Sync
		api.POST("/fields/:field_id/sync", guard.Handler(), h.SyncField)
		api.POST("/farmers/:farmer_id/sync", guard.Handler(), h.SyncFarmer)
		api.GET("/farmers/:farmer_id/snapshot", h.Snapshot)

		// Sync metadata
		api.GET("/sync-states", h.SyncStates)
		api.GET("/stats", h.Stats)

		// Raw archive
		api.GET("/archive", h.ListArchive)
		api.GET("/archive/objects/*key", h.GetArchive)
	}
}

// health reports liveness plus database reachability.
func health(a *app.App, environment string) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := HealthResponse{Status: "healthy", Environment: environment, Database: "ok"}
		sqlDB, err := a.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("health: database unreachable")
			resp.Status, resp.Database = "degraded", "unreachable"
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// corsMiddleware returns the CORS posture: allow every origin when no
// allowlist is configured, otherwise echo allowed origins only.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderFarmerID},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "Content-Disposition", "X-Operation-Count"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}

	if len(origins) == 0 {
		base.AllowAllOrigins = true
		return []gin.HandlerFunc{
			// Force ACAO: * even for requests without an Origin header.
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	base.AllowOrigins = origins
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(base),
	}
}

// limitBody caps the request body at maxBytes using http.MaxBytesReader.
// Requests exceeding the cap cause downstream body reads to error.
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
