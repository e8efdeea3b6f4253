package handlers

import (
	"net/http"

	"github.com/CrossPost-MediaBridg/Publish-Service/internal/services"
	"github.com/gin-gonic/gin"
)

// Wired at startup; handlers stay plain functions.
var (
	staging      *services.StagingService
	pairing      *services.Pairing
	orchestrator *services.Orchestrator
	payloadCheck func() error
)

// Init wires the handler package to the running services.
func Init(s *services.StagingService, p *services.Pairing, o *services.Orchestrator) {
	staging = s
	pairing = p
	orchestrator = o
}

// InitHealth registers the payload store's connectivity probe. Optional:
// without it the health endpoint only reports liveness.
func InitHealth(check func() error) {
	payloadCheck = check
}

func HealthCheck(c *gin.Context) {
	if payloadCheck != nil {
		if err := payloadCheck(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":        "degraded",
				"payload_store": err.Error(),
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// userIDFromContext returns the authenticated user id set by the auth
// middleware.
func userIDFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get("user_id")
	if !ok {
		return "", false
	}
	userID, ok := v.(string)
	return userID, ok && userID != ""
}
