// Package api exposes the registry, loader and preprocessor over HTTP.
package api

import (
	"net/http"

	"epf-data/internal/api/handlers"
	"epf-data/internal/api/middleware"
	"epf-data/internal/api/models"
	"epf-data/internal/config"
	"epf-data/internal/metrics"
	"epf-data/internal/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ServerOptions configures NewRouter. Logger and Metrics default to a no-op logger and a fresh registry.
type ServerOptions struct {
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
	SQL            *store.SQLStore
	AllowedOrigins []string
}

// NewRouter wires middleware and routes onto a new gin engine.
func NewRouter(cfg *config.Config, opts ServerOptions) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}

	router := gin.New()
	router.Use(middleware.CORS(opts.AllowedOrigins...))
	router.Use(middleware.Logger(opts.Logger))
	router.Use(middleware.Metrics(opts.Metrics))
	router.Use(middleware.ErrorHandler(opts.Logger))

	h := handlers.NewHandler(cfg,
		handlers.WithLogger(opts.Logger),
		handlers.WithMetrics(opts.Metrics),
		handlers.WithSQLStore(opts.SQL),
	)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/categories", h.ListCategories)
		v1.GET("/categories/:category/summary", h.CategorySummary)
		v1.GET("/categories/:category/gaps", h.CategoryGaps)

		v1.POST("/preprocess", h.Preprocess)
		v1.GET("/datasets", h.ListDatasets)
		v1.GET("/datasets/:name", h.GetDataset)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error: models.ErrorDetail{Code: "NOT_FOUND", Message: "no route for " + c.Request.URL.Path},
		})
	})
	return router
}
