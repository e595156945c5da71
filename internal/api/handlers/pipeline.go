package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"smarttest/internal/analyzer"
	"smarttest/internal/generator"
	"smarttest/internal/services"
	"smarttest/pkg/response"
)

type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	OTP      string `json:"otp"`
}

func (r *CredentialsRequest) toCredentials() *generator.Credentials {
	if r == nil || (r.Username == "" && r.Password == "") {
		return nil
	}
	return &generator.Credentials{Username: r.Username, Password: r.Password, OTP: r.OTP}
}

type AnalyzeRequest struct {
	URL string `json:"url" binding:"required,url"`
}

type GenerateRequest struct {
	URL         string              `json:"url" binding:"required,url"`
	Credentials *CredentialsRequest `json:"credentials"`
}

type ExecuteRequest struct {
	URL            string              `json:"url" binding:"required,url"`
	Credentials    *CredentialsRequest `json:"credentials"`
	Workers        int                 `json:"workers"`
	TimeoutSeconds int                 `json:"timeout_seconds"`
	CategoryCap    int                 `json:"category_cap"`
}

func (r *ExecuteRequest) overrides() services.RunOverrides {
	return services.RunOverrides{
		Workers:        r.Workers,
		TimeoutSeconds: r.TimeoutSeconds,
		CategoryCap:    r.CategoryCap,
	}
}

func (h *Handlers) reportPipelineError(c *gin.Context, err error) {
	var nav *analyzer.NavigationError
	if errors.As(err, &nav) {
		response.BadRequest(c, err.Error())
		return
	}
	h.Log.Error("pipeline failed", zap.Error(err))
	response.InternalServerError(c, err.Error())
}

// AnalyzePage scans the target URL and returns its element model.
func (h *Handlers) AnalyzePage(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	model, err := h.Runner.Analyze(c.Request.Context(), req.URL)
	if err != nil {
		h.reportPipelineError(c, err)
		return
	}
	response.Success(c, model)
}

// GenerateSuite analyzes the page and returns the derived test suite.
func (h *Handlers) GenerateSuite(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	res, err := h.Runner.Generate(c.Request.Context(), req.URL, req.Credentials.toCredentials())
	if err != nil {
		h.reportPipelineError(c, err)
		return
	}
	response.Success(c, gin.H{
		"run_id":      res.RunID,
		"url":         res.Model.URL,
		"title":       res.Model.Title,
		"total_cases": res.Suite.Total(),
		"suite":       res.Suite,
		"report_path": res.ReportPath,
	})
}

// ExecuteSuite runs the full pipeline and returns only the outcome summary.
func (h *Handlers) ExecuteSuite(c *gin.Context) {
	var req ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	res, err := h.Runner.Execute(c.Request.Context(), req.URL, req.Credentials.toCredentials(), req.overrides())
	if err != nil {
		h.reportPipelineError(c, err)
		return
	}
	response.Success(c, gin.H{
		"run_id":      res.RunID,
		"summary":     res.Summary,
		"results":     res.Results,
		"report_path": res.ReportPath,
	})
}

// GenerateAndExecute runs the full pipeline and returns the generated suite
// alongside the execution results.
func (h *Handlers) GenerateAndExecute(c *gin.Context) {
	var req ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	res, err := h.Runner.Execute(c.Request.Context(), req.URL, req.Credentials.toCredentials(), req.overrides())
	if err != nil {
		h.reportPipelineError(c, err)
		return
	}
	response.Success(c, gin.H{
		"run_id":      res.RunID,
		"suite":       res.Suite,
		"summary":     res.Summary,
		"results":     res.Results,
		"report_path": res.ReportPath,
	})
}

// LoginCheck probes the page for a credential-shaped login form and, when
// credentials were supplied, drives it once.
func (h *Handlers) LoginCheck(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	probe, err := h.Runner.LoginProbe(c.Request.Context(), req.URL, req.Credentials.toCredentials())
	if err != nil {
		h.reportPipelineError(c, err)
		return
	}
	response.Success(c, probe)
}
