package handlers

import (
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/CrossPost-MediaBridg/Publish-Service/internal/models"
	"github.com/CrossPost-MediaBridg/Publish-Service/internal/services"
	"github.com/gin-gonic/gin"
)

// maxStageBytes caps a single staged file before any platform check runs.
const maxStageBytes = 2 << 30 // 2 GB

// stageJSONRequest is the JSON alternative to multipart staging, for
// transports that can only carry base64 (chat tool calls and the like).
type stageJSONRequest struct {
	FileName   string `json:"file_name" binding:"required"`
	MimeType   string `json:"mime_type" binding:"required"`
	DataBase64 string `json:"data_base64" binding:"required"`
	Platform   string `json:"platform"`
	FileType   string `json:"file_type"`
}

// StageFile accepts a file via multipart form or JSON+base64 and returns
// the capability reference. Validation errors are rejected synchronously;
// nothing invalid is ever stored.
func StageFile(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	in, err := readStageInput(c, userID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ref, err := staging.Stage(c.Request.Context(), in)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrUnsupportedFileType):
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "unsupported file type: " + in.MimeType})
		case errors.Is(err, models.ErrFileTooLarge):
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large for every supported platform"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to stage file: " + err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"reference_id":       ref.ID,
		"role":               ref.Role,
		"detected_platforms": ref.DetectedPlatforms,
		"expires_at":         ref.ExpiresAt.Format(time.RFC3339),
	})
}

func readStageInput(c *gin.Context, userID string) (services.StageInput, error) {
	if strings.HasPrefix(c.ContentType(), "application/json") {
		return readJSONStage(c, userID)
	}
	return readMultipartStage(c, userID)
}

func readJSONStage(c *gin.Context, userID string) (services.StageInput, error) {
	var req stageJSONRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return services.StageInput{}, err
	}
	data, err := base64.StdEncoding.DecodeString(req.DataBase64)
	if err != nil {
		return services.StageInput{}, errors.New("data_base64 is not valid base64")
	}
	if len(data) > maxStageBytes {
		return services.StageInput{}, errors.New("file exceeds staging size limit")
	}
	return services.StageInput{
		OwnerID:          userID,
		FileName:         req.FileName,
		MimeType:         req.MimeType,
		DeclaredRole:     models.FileRole(req.FileType),
		IntendedPlatform: req.Platform,
		Data:             data,
	}, nil
}

func readMultipartStage(c *gin.Context, userID string) (services.StageInput, error) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return services.StageInput{}, errors.New("no file provided")
	}
	if fileHeader.Size > maxStageBytes {
		return services.StageInput{}, errors.New("file exceeds staging size limit")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return services.StageInput{}, err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxStageBytes+1))
	if err != nil {
		return services.StageInput{}, err
	}
	if int64(len(data)) > maxStageBytes {
		return services.StageInput{}, errors.New("file exceeds staging size limit")
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	return services.StageInput{
		OwnerID:          userID,
		FileName:         fileHeader.Filename,
		MimeType:         mimeType,
		DeclaredRole:     models.FileRole(c.PostForm("file_type")),
		IntendedPlatform: c.PostForm("platform"),
		Data:             data,
	}, nil
}
