package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"smarttest/pkg/response"
)

// GetHistory returns the most recent runs, newest first.
func (h *Handlers) GetHistory(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			response.BadRequest(c, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	response.Success(c, gin.H{
		"total":   h.History.Len(),
		"records": h.History.Recent(limit),
	})
}

// DownloadReport serves a previously written report file by name.
func (h *Handlers) DownloadReport(c *gin.Context) {
	name := c.Param("name")
	path, err := h.Reports.Open(name)
	if err != nil {
		response.NotFound(c, err.Error())
		return
	}
	c.FileAttachment(path, name)
}
