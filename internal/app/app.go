package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/mafiaboyhacker/tk-ai-model-gallery-backend/internal/db"
	"github.com/mafiaboyhacker/tk-ai-model-gallery-backend/internal/handlers"
	"github.com/mafiaboyhacker/tk-ai-model-gallery-backend/internal/observability"
	"github.com/mafiaboyhacker/tk-ai-model-gallery-backend/internal/platform/logger"
	"github.com/mafiaboyhacker/tk-ai-model-gallery-backend/internal/repos"
	"github.com/mafiaboyhacker/tk-ai-model-gallery-backend/internal/server"
	"github.com/mafiaboyhacker/tk-ai-model-gallery-backend/internal/services"
	"github.com/mafiaboyhacker/tk-ai-model-gallery-backend/internal/storage"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Router   *gin.Engine
	Cfg      Config
	Progress *services.ProgressTracker
	Metrics  *observability.Metrics

	cancel context.CancelFunc
}

func New() (*App, error) {
	cfg := LoadConfig()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	database, err := db.New(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := database.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("database automigrate: %w", err)
	}
	theDB := database.DB()

	metrics := observability.NewMetrics()
	resolver := storage.NewResolver(log)
	progress := services.NewProgressTracker(log)

	mediaRepo := repos.NewMediaRepo(theDB, log)
	mediaService := services.NewMediaService(theDB, log, mediaRepo, resolver, metrics)

	mediaHandler := handlers.NewMediaHandler(log, mediaService, progress, metrics)
	progressHandler := handlers.NewProgressHandler(log, progress, metrics)

	router := server.NewRouter(server.RouterConfig{
		Log:             log,
		MediaHandler:    mediaHandler,
		ProgressHandler: progressHandler,
		Metrics:         metrics,
		AllowedOrigins:  cfg.AllowedOrigins,
	})

	return &App{
		Log:      log,
		DB:       theDB,
		Router:   router,
		Cfg:      cfg,
		Progress: progress,
		Metrics:  metrics,
	}, nil
}

// Start launches the background workers (the progress sweep).
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.Progress.Start(ctx)
}

func (a *App) Run() error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Router.Run(":" + a.Cfg.Port)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.Progress != nil {
		a.Progress.Stop()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
