package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/unirank/unirank/models"
)

// PostRun returns a handler for POST /api/v1/runs.
// An empty body refreshes every enabled publisher.
func PostRun(rn *Runner) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.RunRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, models.NewScrapeError(models.ErrCodeInvalidInput, err.Error(), err))
				return
			}
		}

		job, err := rn.Start(req.Publishers)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusAccepted, models.RunResponse{
			ID:         job.ID,
			Status:     job.Status,
			Publishers: job.Publishers,
		})
	}
}

// GetCurrentRun returns a handler for GET /api/v1/runs/current.
func GetCurrentRun(rn *Runner) gin.HandlerFunc {
	return func(c *gin.Context) {
		job := rn.Current()
		if job == nil {
			c.JSON(http.StatusNotFound, models.ErrorResponse{
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: "no run has been started",
				},
			})
			return
		}

		c.JSON(http.StatusOK, models.RunStatusResponse{
			ID:         job.ID,
			Status:     job.Status,
			Publishers: job.Publishers,
			Completed:  job.Completed,
			Total:      rn.Total(job.Publishers),
			StartedAt:  job.StartedAt,
			FinishedAt: job.FinishedAt,
			Error:      job.Error,
		})
	}
}
