package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"smarttest/internal/models"
	"smarttest/internal/recorder"
	"smarttest/pkg/response"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type StartRecordingRequest struct {
	URL string `json:"url" binding:"required,url"`
}

func (h *Handlers) StartRecording(c *gin.Context) {
	var req StartRecordingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	snap, err := h.Recorder.Start(c.Request.Context(), req.URL)
	if err != nil {
		response.Conflict(c, err.Error())
		return
	}
	response.SuccessWithMessage(c, "recording started", snap)
}

func (h *Handlers) StopRecording(c *gin.Context) {
	snap := h.Recorder.Status()
	steps, sessionID, err := h.Recorder.Stop(c.Request.Context())
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	url := ""
	if snap != nil {
		url = snap.URL
	}

	threshold := time.Duration(h.Cfg.Recorder.WaitThresholdMs) * time.Millisecond
	script := recorder.SynthesizeWithThreshold(url, steps, threshold)

	h.mu.Lock()
	h.last = &finishedRecording{
		SessionID:  sessionID,
		WebsiteURL: url,
		Steps:      steps,
		Script:     script,
		StoppedAt:  time.Now(),
	}
	h.mu.Unlock()

	response.Success(c, gin.H{
		"session_id": sessionID,
		"url":        url,
		"step_count": len(steps),
		"steps":      steps,
		"script":     script,
	})
}

func (h *Handlers) GetRecordingStatus(c *gin.Context) {
	snap := h.Recorder.Status()
	if snap == nil {
		response.Success(c, gin.H{"active": false})
		return
	}
	response.Success(c, snap)
}

type SaveRecordingRequest struct {
	Name string `json:"name" binding:"required"`
}

// SaveRecording persists the most recently stopped recording.
func (h *Handlers) SaveRecording(c *gin.Context) {
	var req SaveRecordingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	h.mu.Lock()
	rec := h.last
	h.mu.Unlock()
	if rec == nil {
		response.NotFound(c, "no stopped recording to save")
		return
	}
	if h.DB == nil {
		response.InternalServerError(c, "recording persistence requires a database")
		return
	}

	stepsJSON, err := json.Marshal(rec.Steps)
	if err != nil {
		response.InternalServerError(c, "step serialization failed")
		return
	}

	script := models.RecordingScript{
		SessionID:  rec.SessionID,
		Name:       req.Name,
		WebsiteURL: rec.WebsiteURL,
		StepCount:  len(rec.Steps),
		Steps:      string(stepsJSON),
		Script:     rec.Script,
		UserID:     c.GetUint("user_id"),
	}
	if err := h.DB.Create(&script).Error; err != nil {
		response.InternalServerError(c, "recording save failed")
		return
	}
	response.SuccessWithMessage(c, "recording saved", script)
}

func (h *Handlers) GetRecordings(c *gin.Context) {
	if h.DB == nil {
		response.Success(c, []models.RecordingScript{})
		return
	}
	var scripts []models.RecordingScript
	if err := h.DB.Order("created_at DESC").Limit(50).Find(&scripts).Error; err != nil {
		response.InternalServerError(c, "recording query failed")
		return
	}
	response.Success(c, scripts)
}

// RecordingWebSocket streams recorder snapshots to the client until the
// recording stops or the client disconnects.
func (h *Handlers) RecordingWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		snap := h.Recorder.Status()
		payload := gin.H{"active": false}
		if snap != nil {
			payload = gin.H{
				"active":     snap.Active,
				"session_id": snap.SessionID,
				"url":        snap.URL,
				"step_count": len(snap.Steps),
				"steps":      snap.Steps,
				"updated_at": snap.UpdatedAt,
			}
		}
		if err := conn.WriteJSON(payload); err != nil {
			return
		}
		if snap == nil || !snap.Active {
			return
		}
	}
}
