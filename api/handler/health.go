package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/unirank/unirank/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Health returns a handler for GET /api/v1/health.
//
// Reports "busy" while a refresh is running.
func Health(rn *Runner, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		running := rn.Running()
		status := "healthy"
		if running {
			status = "busy"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:     status,
			Uptime:     time.Since(startTime).Round(time.Second).String(),
			Version:    Version,
			Publishers: rn.Publishers(),
			Running:    running,
		})
	}
}
