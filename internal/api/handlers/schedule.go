package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"

	"smarttest/internal/models"
	"smarttest/pkg/response"
)

type CreateScheduleRequest struct {
	Name           string `json:"name" binding:"required"`
	WebsiteURL     string `json:"website_url" binding:"required,url"`
	CronExpression string `json:"cron_expression" binding:"required"`
	Username       string `json:"username"`
	Password       string `json:"password"`
	Concurrency    int    `json:"concurrency"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

func (h *Handlers) GetSchedules(c *gin.Context) {
	if h.DB == nil {
		response.Success(c, []models.ScheduledRun{})
		return
	}
	var runs []models.ScheduledRun
	if err := h.DB.Order("created_at DESC").Find(&runs).Error; err != nil {
		response.InternalServerError(c, "schedule query failed")
		return
	}
	response.Success(c, runs)
}

func (h *Handlers) CreateSchedule(c *gin.Context) {
	var req CreateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if h.DB == nil {
		response.InternalServerError(c, "schedules require a database")
		return
	}
	if _, err := cron.ParseStandard(req.CronExpression); err != nil {
		response.BadRequest(c, "invalid cron expression: "+err.Error())
		return
	}

	run := models.ScheduledRun{
		Name:           req.Name,
		WebsiteURL:     req.WebsiteURL,
		CronExpression: req.CronExpression,
		Username:       req.Username,
		Password:       req.Password,
		Concurrency:    req.Concurrency,
		TimeoutSeconds: req.TimeoutSeconds,
		Status:         1,
		UserID:         c.GetUint("user_id"),
	}
	if run.Concurrency <= 0 {
		run.Concurrency = 3
	}
	if run.TimeoutSeconds <= 0 {
		run.TimeoutSeconds = 600
	}
	if err := h.DB.Create(&run).Error; err != nil {
		response.InternalServerError(c, "schedule creation failed")
		return
	}

	if err := h.Scheduler.Add(&run); err != nil {
		response.InternalServerError(c, "schedule registration failed")
		return
	}
	response.SuccessWithMessage(c, "schedule created", run)
}

func (h *Handlers) DeleteSchedule(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid schedule id")
		return
	}
	if h.DB == nil {
		response.NotFound(c, "schedule not found")
		return
	}

	var run models.ScheduledRun
	if err := h.DB.First(&run, uint(id)).Error; err != nil {
		response.NotFound(c, "schedule not found")
		return
	}
	if err := h.DB.Delete(&run).Error; err != nil {
		response.InternalServerError(c, "schedule deletion failed")
		return
	}
	h.Scheduler.Remove(run.ID)
	response.SuccessWithMessage(c, "schedule deleted", nil)
}

// ToggleSchedule flips a schedule between enabled and disabled.
func (h *Handlers) ToggleSchedule(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid schedule id")
		return
	}
	if h.DB == nil {
		response.NotFound(c, "schedule not found")
		return
	}

	var run models.ScheduledRun
	if err := h.DB.First(&run, uint(id)).Error; err != nil {
		response.NotFound(c, "schedule not found")
		return
	}

	if run.Status == 1 {
		run.Status = 0
		h.Scheduler.Remove(run.ID)
	} else {
		run.Status = 1
		if err := h.Scheduler.Add(&run); err != nil {
			response.InternalServerError(c, "schedule registration failed")
			return
		}
	}
	if err := h.DB.Model(&run).Update("status", run.Status).Error; err != nil {
		response.InternalServerError(c, "schedule update failed")
		return
	}
	response.Success(c, run)
}
