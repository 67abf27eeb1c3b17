package rest

import (
	"github.com/gin-gonic/gin"

	"github.com/lumapics/gallery-backend/internal/api/middleware"
)

// SetupRoutes configures all REST API routes
func SetupRoutes(router *gin.Engine, handler *Handler, authCfg middleware.AuthConfig) {
	// Health check endpoint (no auth, no version prefix)
	router.GET("/health", handler.HealthCheck)

	v1 := router.Group("/api/v1")
	{
		// Read endpoints (public, served by the gallery UI)
		v1.GET("/assets", handler.ListAssets)
		v1.GET("/assets/:id", handler.GetAsset)
		v1.GET("/duplicates", handler.FindDuplicates)

		// Mutating endpoints (upload pipeline and operators)
		v1.PUT("/assets/:id", middleware.Auth(authCfg), handler.UpsertAsset)
		v1.DELETE("/assets/:id", middleware.Auth(authCfg), handler.DeleteAsset)
		v1.POST("/cache/clear", middleware.Auth(authCfg), handler.ClearCache)
	}
}
