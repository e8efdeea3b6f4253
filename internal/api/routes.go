package api

import (
	"github.com/CrossPost-MediaBridg/Publish-Service/internal/api/handlers"
	"github.com/gin-gonic/gin"
)

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, PATCH, PUT, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
			return
		}
		c.Next()
	}
}

func RegisterRoutes(r *gin.Engine, auth gin.HandlerFunc) {
	// Enable CORS for preflight requests
	r.Use(corsMiddleware())

	api := r.Group("/api")
	{
		api.GET("/health", handlers.HealthCheck)
	}

	authed := api.Group("")
	authed.Use(auth)
	{
		// Staging endpoints
		authed.POST("/stage", handlers.StageFile)                          // stage a file, get a reference
		authed.GET("/references/:id", handlers.GetReferenceInfo)           // reference metadata
		authed.GET("/references/:id/download", handlers.DownloadReference) // payload by capability id
		authed.DELETE("/references/:id", handlers.DeleteReference)         // discard before consumption

		// Publish endpoints
		authed.GET("/pending-uploads", handlers.GetPendingUploads) // auto-discoverable pair
		authed.POST("/publish", handlers.PublishUpload)            // start an upload job
		authed.GET("/upload-status/:id", handlers.GetUploadStatus) // poll job progress
		authed.POST("/uploads/:id/cancel", handlers.CancelUpload)  // best-effort cancel

		// Account-level aggregates
		authed.GET("/stats", handlers.GetStats)
	}
}
