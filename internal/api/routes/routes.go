package routes

import (
	"github.com/gin-gonic/gin"

	"smarttest/internal/api/handlers"
	"smarttest/internal/api/middleware"
	"smarttest/internal/config"
)

func SetupRoutes(cfg *config.Config, h *handlers.Handlers) *gin.Engine {
	gin.SetMode(ginMode(cfg.Server.Mode))
	router := gin.New()

	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware())

	v1 := router.Group("/api/v1")
	{
		// Public routes (no auth required)
		auth := v1.Group("/auth")
		{
			auth.POST("/login", h.Login)
			auth.POST("/register", h.Register)
		}

		v1.GET("/health", h.HealthCheck)

		// WebSocket endpoint (token handshake not enforced on upgrade)
		v1.GET("/ws/recording", h.RecordingWebSocket)

		protected := v1.Group("")
		protected.Use(middleware.AuthMiddleware())
		{
			protected.GET("/users/profile", h.GetProfile)

			protected.POST("/analyze", h.AnalyzePage)
			protected.POST("/generate", h.GenerateSuite)
			protected.POST("/execute", h.ExecuteSuite)
			protected.POST("/generate-and-execute", h.GenerateAndExecute)
			protected.POST("/login-check", h.LoginCheck)

			apiTests := protected.Group("/api-tests")
			{
				apiTests.POST("/generate", h.GenerateAPITests)
				apiTests.POST("/execute", h.ExecuteAPITests)
			}

			recording := protected.Group("/recording")
			{
				recording.POST("/start", h.StartRecording)
				recording.POST("/stop", h.StopRecording)
				recording.GET("/status", h.GetRecordingStatus)
				recording.POST("/save", h.SaveRecording)
				recording.GET("/scripts", h.GetRecordings)
			}

			protected.GET("/history", h.GetHistory)
			protected.GET("/reports/:name", h.DownloadReport)

			schedules := protected.Group("/schedules")
			{
				schedules.GET("", h.GetSchedules)
				schedules.POST("", h.CreateSchedule)
				schedules.DELETE("/:id", h.DeleteSchedule)
				schedules.POST("/:id/toggle", h.ToggleSchedule)
			}
		}
	}

	return router
}

func ginMode(mode string) string {
	switch mode {
	case "release":
		return gin.ReleaseMode
	case "test":
		return gin.TestMode
	default:
		return gin.DebugMode
	}
}
