package handler

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"

	"github.com/unirank/unirank/models"
)

// Rankings returns a handler for GET /api/v1/rankings.
//
// An optional ?publisher= narrows the response to one publisher's map.
func Rankings(rn *Runner) gin.HandlerFunc {
	return func(c *gin.Context) {
		publisher := c.Query("publisher")
		if publisher != "" && !slices.Contains(rn.Publishers(), publisher) {
			respondError(c, models.NewScrapeError(models.ErrCodeInvalidInput, "publisher "+publisher+" is not enabled", nil))
			return
		}

		rec, err := rn.Record()
		if err != nil {
			respondError(c, err)
			return
		}

		rankings := rec.Rankings
		if publisher != "" {
			rankings = map[string]models.RankMap{publisher: rec.Baseline(publisher)}
		}

		c.JSON(http.StatusOK, models.RankingsResponse{
			Success:    true,
			University: rec.University,
			UpdatedAt:  rec.UpdatedAt,
			Rankings:   rankings,
		})
	}
}
