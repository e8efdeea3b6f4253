package handlers

import (
	"errors"
	"net/http"

	"github.com/CrossPost-MediaBridg/Publish-Service/internal/models"
	"github.com/CrossPost-MediaBridg/Publish-Service/internal/services"
	"github.com/gin-gonic/gin"
)

type publishRequest struct {
	Platform             string            `json:"platform" binding:"required"`
	PlatformAccountID    string            `json:"platform_account_id"`
	VideoReferenceID     string            `json:"video_reference_id"`
	ThumbnailReferenceID string            `json:"thumbnail_reference_id"`
	Title                string            `json:"title"`
	Description          string            `json:"description"`
	Tags                 []string          `json:"tags"`
	Privacy              string            `json:"privacy"`
	PlatformMetadata     map[string]string `json:"platform_metadata"`
}

// PublishUpload creates an upload job and returns immediately with its id.
// Progress, success and failure are observed by polling the job status.
func PublishUpload(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid publish request: " + err.Error()})
		return
	}

	job, err := orchestrator.Publish(services.PublishRequest{
		OwnerID:              userID,
		Platform:             req.Platform,
		PlatformAccountID:    req.PlatformAccountID,
		VideoReferenceID:     req.VideoReferenceID,
		ThumbnailReferenceID: req.ThumbnailReferenceID,
		Title:                req.Title,
		Description:          req.Description,
		Tags:                 req.Tags,
		Privacy:              req.Privacy,
		PlatformMetadata:     req.PlatformMetadata,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"upload_id": job.ID,
		"status":    job.Status,
	})
}

// GetUploadStatus returns the current job snapshot for polling.
func GetUploadStatus(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	job, err := orchestrator.Job(c.Param("id"), userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "upload not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"upload_id":        job.ID,
		"platform":         job.Platform,
		"status":           job.Status,
		"bytes_uploaded":   job.BytesUploaded,
		"total_bytes":      job.TotalBytes,
		"progress_percent": job.ProgressPercent(),
		"platform_post_id": job.PlatformPostID,
		"platform_url":     job.PlatformURL,
		"error_message":    job.ErrorMessage,
		"created_at":       job.CreatedAt,
		"started_at":       job.StartedAt,
		"completed_at":     job.CompletedAt,
	})
}

// CancelUpload requests cancellation. Before the transfer starts the job
// fails without consuming the staged references; afterwards it is
// best-effort.
func CancelUpload(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	id := c.Param("id")
	if _, err := orchestrator.Job(id, userID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "upload not found"})
		return
	}

	if err := orchestrator.Cancel(id); err != nil {
		if errors.Is(err, models.ErrConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": "upload already finished"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to cancel upload"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"upload_id": id, "cancelled": true})
}
