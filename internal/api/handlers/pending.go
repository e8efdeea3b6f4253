package handlers

import (
	"net/http"

	"github.com/CrossPost-MediaBridg/Publish-Service/internal/models"
	"github.com/gin-gonic/gin"
)

// GetPendingUploads returns the current auto-discoverable {video, thumbnail}
// pair for the caller. Read-only: nothing is consumed until a publish
// actually starts.
func GetPendingUploads(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	pair, err := pairing.Pair(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to discover pending uploads"})
		return
	}

	// Optional platform filter: hide references the platform can't take.
	if platform := c.Query("platform"); platform != "" {
		if pair.Video != nil && !hasPlatform(pair.Video, platform) {
			pair.Video = nil
		}
		if pair.Thumbnail != nil && !hasPlatform(pair.Thumbnail, platform) {
			pair.Thumbnail = nil
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"video":     pair.Video,
		"thumbnail": pair.Thumbnail,
	})
}

func hasPlatform(ref *models.FileReference, platform string) bool {
	for _, p := range ref.DetectedPlatforms {
		if p == platform {
			return true
		}
	}
	return false
}
