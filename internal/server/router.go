package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/mafiaboyhacker/tk-ai-model-gallery-backend/internal/handlers"
	"github.com/mafiaboyhacker/tk-ai-model-gallery-backend/internal/http/middleware"
	"github.com/mafiaboyhacker/tk-ai-model-gallery-backend/internal/observability"
	"github.com/mafiaboyhacker/tk-ai-model-gallery-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log             *logger.Logger
	MediaHandler    *handlers.MediaHandler
	ProgressHandler *handlers.ProgressHandler
	Metrics         *observability.Metrics
	AllowedOrigins  []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(cfg.Log))

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Range", "If-None-Match"},
		ExposeHeaders:    []string{"Content-Range", "Accept-Ranges", "ETag", "X-Storage-Degraded"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := router.Group("/api")
	{
		api.POST("/media", cfg.MediaHandler.Upload)
		api.GET("/media", cfg.MediaHandler.List)
		api.GET("/media/:id", cfg.MediaHandler.Serve)
		api.HEAD("/media/:id", cfg.MediaHandler.Serve)
		api.GET("/media/:id/thumbnail", cfg.MediaHandler.ServeThumbnail)
		api.DELETE("/media/:id", cfg.MediaHandler.Delete)

		api.GET("/progress", cfg.ProgressHandler.Stream)
		api.POST("/progress", cfg.ProgressHandler.Update)
		api.DELETE("/progress", cfg.ProgressHandler.Remove)
	}

	return router
}
