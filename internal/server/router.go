package server

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/paperforge/paperforge-backend/internal/handlers"
	"github.com/paperforge/paperforge-backend/internal/platform/envutil"
)

type RouterConfig struct {
	PaperHandler *handlers.PaperHandler
	BankHandler  *handlers.BankHandler
	SSEHandler   *handlers.SSEHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	origins := strings.Split(envutil.Str("CORS_ALLOW_ORIGINS", "http://localhost:3000,http://localhost:5173"), ",")
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	{
		// Paper generation
		api.POST("/papers", cfg.PaperHandler.CreatePaper)
		api.GET("/papers/patterns", cfg.PaperHandler.ListPatterns)
		api.GET("/papers/runs/:id", cfg.PaperHandler.GetRun)
		api.GET("/papers/runs/:id/artifacts/:stage", cfg.PaperHandler.GetArtifact)

		// Question bank
		api.POST("/bank/records", cfg.BankHandler.ImportRecords)
		api.GET("/bank/stats", cfg.BankHandler.Stats)

		// Run events
		api.GET("/events/:run_id", cfg.SSEHandler.StreamRun)
	}

	return router
}
