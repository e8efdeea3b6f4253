package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetStats reports the caller's staging footprint and upload job counts.
func GetStats(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	refStats, err := staging.Stats(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load reference stats"})
		return
	}

	jobStats, err := orchestrator.Stats(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load upload stats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"references": refStats,
		"uploads":    jobStats,
	})
}
