package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"smarttest/pkg/response"
)

type APITestRequest struct {
	BaseURL        string `json:"base_url" binding:"required,url"`
	Spec           string `json:"spec" binding:"required"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// GenerateAPITests derives an HTTP test plan from an OpenAPI specification.
func (h *Handlers) GenerateAPITests(c *gin.Context) {
	var req APITestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	res, err := h.Runner.GenerateAPITests(req.BaseURL, req.Spec)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	response.Success(c, res)
}

// ExecuteAPITests generates the plan and runs it against the live service.
func (h *Handlers) ExecuteAPITests(c *gin.Context) {
	var req APITestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	timeout := time.Duration(req.TimeoutSeconds) * time.Second
	res, err := h.Runner.ExecuteAPITests(c.Request.Context(), req.BaseURL, req.Spec, timeout)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	response.Success(c, res)
}
