package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/filedepot/filedepot/internal/cache"
	"github.com/filedepot/filedepot/internal/db"
	"github.com/filedepot/filedepot/internal/service"
	"github.com/filedepot/filedepot/pkg/config"
	"github.com/filedepot/filedepot/pkg/logging"
)

// Router sets up API routes
type Router struct {
	cfg      *config.Config
	db       *db.DB
	cache    *cache.Cache
	services *service.Services
	logger   *zap.Logger
}

// NewRouter creates a new API router. redisCache may be nil.
func NewRouter(cfg *config.Config, database *db.DB, redisCache *cache.Cache, services *service.Services) *Router {
	return &Router{
		cfg:      cfg,
		db:       database,
		cache:    redisCache,
		services: services,
		logger:   logging.GetLogger().With(zap.String("component", "api-router")),
	}
}

// Engine builds a gin engine with the middleware stack and every route
func (r *Router) Engine() *gin.Engine {
	engine := gin.New()
	engine.MaxMultipartMemory = r.cfg.Server.MaxMultipartMemory
	engine.Use(gin.Recovery())
	engine.Use(accessLog(r.logger))
	engine.Use(corsMiddleware(r.cfg.Server.AllowedOrigins))

	r.SetupRoutes(engine)
	return engine
}

// SetupRoutes sets up all API routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	// Health check endpoints
	engine.GET("/health", r.healthHandler)
	engine.GET("/.well-known/healthcheck.json", r.healthHandler)

	if r.cfg.Telemetry.PrometheusEnabled {
		engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	engine.Static("/uploads", r.cfg.Storage.UploadDir)

	limit := rateLimit(r.cfg.Server.RateLimitPerMinute)
	api := engine.Group("/api")
	{
		api.GET("/categories", r.listCategories)
		api.POST("/categories", limit, r.createCategory)
		api.PUT("/categories/:id", limit, r.updateCategory)
		api.DELETE("/categories/:id", limit, r.deleteCategory)

		api.GET("/posts", r.listPosts)
		api.GET("/posts/:id", r.getPost)
		api.POST("/posts", limit, r.createPost)
		api.PUT("/posts/:id", limit, r.updatePost)
		api.DELETE("/posts/:id", limit, r.deletePost)
		api.GET("/posts/:id/download", r.downloadPost)
		api.POST("/posts/:id/attachments", limit, r.addAttachment)

		api.GET("/attachments/:id/download", r.downloadAttachment)
		api.DELETE("/attachments/:id", limit, r.deleteAttachment)
	}
}

// healthHandler pings the database and, when enabled, Redis
func (r *Router) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{}
	healthy := true

	if err := r.db.Health(ctx); err != nil {
		checks["database"] = err.Error()
		healthy = false
	} else {
		checks["database"] = "OK"
	}

	switch err := r.cache.Health(ctx); {
	case errors.Is(err, cache.ErrCacheDisabled):
		checks["redis"] = "disabled"
	case err != nil:
		checks["redis"] = err.Error()
		healthy = false
	default:
		checks["redis"] = "OK"
	}

	status, code := "OK", http.StatusOK
	if !healthy {
		status, code = "DEGRADED", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":  status,
		"service": "filedepot-api",
		"checks":  checks,
	})
}
