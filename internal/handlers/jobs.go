package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"voice-booking-relay-go/internal/model"
)

// GetJobs returns recent notification jobs
func (h *Handlers) GetJobs(c *gin.Context) {
	limit := listLimit(c)
	jobs, err := h.jobs.ListJobs(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch notification jobs",
			Code:    http.StatusInternalServerError,
		})
		return
	}
	c.JSON(http.StatusOK, jobs)
}

// GetFailures returns the failure-audit records for operator follow-up
func (h *Handlers) GetFailures(c *gin.Context) {
	limit := listLimit(c)
	failures, err := h.jobs.ListFailures(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch notification failures",
			Code:    http.StatusInternalServerError,
		})
		return
	}
	c.JSON(http.StatusOK, failures)
}

func listLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit < 1 || limit > 1000 {
		return 100
	}
	return limit
}
