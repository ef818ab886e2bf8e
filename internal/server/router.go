package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/bespoken/bespoken-backend/internal/handlers"
)

type RouterConfig struct {
	CORSOrigins     []string
	MaxBodyBytes    int64
	UploadHandler   *handlers.UploadHandler
	ScenarioHandler *handlers.ScenarioHandler
	AuthMiddleware  gin.HandlerFunc
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()
	if cfg.MaxBodyBytes > 0 {
		router.MaxMultipartMemory = cfg.MaxBodyBytes
	}

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthcheck", handlers.HealthCheck)
	api := router.Group("/api")
	{
		api.GET("/scenarios", cfg.ScenarioHandler.ListScenarios)
		api.GET("/scenarios/:id", cfg.ScenarioHandler.GetScenario)
		api.GET("/scenarios/:id/turns/:index", cfg.ScenarioHandler.GetTurnContext)
	}

	// ===============
	// || Protected ||
	// ===============
	protected := router.Group("/api")
	if cfg.AuthMiddleware != nil {
		protected.Use(cfg.AuthMiddleware)
	}
	protected.POST("/upload", cfg.UploadHandler.UploadAudio)
	protected.GET("/scenarios/:id/history", cfg.ScenarioHandler.GetHistory)

	return router
}
