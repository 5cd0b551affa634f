package router

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"bosun/internal/handler/api"
	"bosun/internal/jobs"
	"bosun/internal/middleware"
	"bosun/internal/repository"
)

// Setup configures all routes for the Echo server.
func Setup(
	e *echo.Echo,
	db *gorm.DB,
	dispatcher *jobs.Dispatcher,
	logger *zap.Logger,
	apiKey string,
	dispatchDeduper middleware.DispatchDeduper,
) {
	// Global middleware
	e.Use(echomw.Recover())
	e.Use(middleware.CORS())

	// Repositories
	repos := &api.Repos{
		Job:      repository.NewJobRepository(db),
		Progress: repository.NewProgressRepository(db),
	}

	// Handlers
	jobHandler := api.NewJobHandler(repos, dispatcher, logger)

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	apiGroup := e.Group("/api")
	if apiKey != "" {
		apiGroup.Use(middleware.APIAuth(apiKey))
	}

	apiGroup.POST("/jobs", jobHandler.Create)
	apiGroup.GET("/jobs", jobHandler.List)
	apiGroup.GET("/jobs/:id", jobHandler.Get)
	apiGroup.GET("/jobs/:id/progress", jobHandler.Progress)
	apiGroup.POST("/jobs/dispatch", jobHandler.Dispatch, middleware.DispatchDedup(dispatchDeduper))
}
