package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/CrossPost-MediaBridg/Publish-Service/internal/models"
	"github.com/gin-gonic/gin"
)

// GetReferenceInfo returns reference metadata without the payload.
func GetReferenceInfo(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	ref, err := staging.Lookup(c.Param("id"), userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "reference not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"reference": ref})
}

// DownloadReference streams the staged payload by its capability id.
func DownloadReference(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	ref, payload, err := staging.OpenPayload(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "reference not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read payload"})
		return
	}
	defer payload.Close()

	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", "attachment; filename="+ref.FileName)
	c.Header("Content-Length", strconv.FormatInt(ref.Size, 10))
	c.Header("Content-Type", ref.MimeType)

	if _, err := io.Copy(c.Writer, payload); err != nil {
		// Headers are already out; nothing left to do but log via gin.
		_ = c.Error(err)
	}
}

// DeleteReference discards a staged reference before it is consumed.
func DeleteReference(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	id := c.Param("id")
	if err := staging.Discard(c.Request.Context(), id, userID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "reference not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete reference"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "reference deleted",
		"reference_id": id,
	})
}
