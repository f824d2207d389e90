package main

import (
	"github.com/gin-gonic/gin"
	"github.com/studyblocks/backend/internal/middleware"
	"github.com/studyblocks/backend/pkg/logger"
)

func buildRouter(app *appServices, mode string) *gin.Engine {
	gin.SetMode(mode)

	r := gin.New()
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.Use(middleware.CORS())
	r.Use(middleware.RateLimit(20, 40))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "service": "studyblocks"})
	})

	api := r.Group("/api")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", app.authHandler.Register)
			auth.POST("/login", app.authHandler.Login)
		}

		protected := api.Group("")
		protected.Use(middleware.AuthRequired())
		{
			protected.GET("/auth/me", app.authHandler.Me)

			protected.GET("/blocks", app.blockHandler.List)
			protected.GET("/blocks/:id", app.blockHandler.GetByID)
			protected.POST("/blocks", app.blockHandler.Create)
			protected.PUT("/blocks/:id", app.blockHandler.Update)
			protected.DELETE("/blocks/:id", app.blockHandler.Delete)

			admin := protected.Group("/admin")
			admin.Use(middleware.AdminRequired())
			{
				admin.GET("/scanner", app.adminHandler.ScannerStatus)
				admin.POST("/locks/reap", app.adminHandler.ReapLocks)
			}
		}
	}

	return r
}
