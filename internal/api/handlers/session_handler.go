package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/interviewstream/internal/models"
	"github.com/yoockh/interviewstream/internal/services"
	"github.com/yoockh/interviewstream/internal/utils"
)

// SessionHandler drives the analysis side of a live session.
type SessionHandler struct {
	svc      services.AnalysisService
	registry services.SessionRegistry
}

func NewSessionHandler(svc services.AnalysisService, registry services.SessionRegistry) *SessionHandler {
	return &SessionHandler{svc: svc, registry: registry}
}

type StartAnalysisRequest struct {
	UserID           string                   `json:"user_id"`
	VideoSourceURL   string                   `json:"video_source_url"`
	ScreenSourceURL  string                   `json:"screen_source_url"`
	VideoIntervalMS  int64                    `json:"video_interval_ms"`
	ScreenIntervalMS int64                    `json:"screen_interval_ms"`
	Context          *models.InterviewContext `json:"context"`
}

func (h *SessionHandler) Start(c *gin.Context) {
	const op = "SessionHandler.Start"

	var req StartAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "invalid request body", err))
		return
	}
	userID, ok := resolveUserID(c, op, req.UserID)
	if !ok {
		return
	}

	st, err := h.svc.Start(c.Request.Context(), c.Param("session_id"), services.StartAnalysisInput{
		UserID:          userID,
		VideoSourceURL:  req.VideoSourceURL,
		ScreenSourceURL: req.ScreenSourceURL,
		VideoInterval:   millis(req.VideoIntervalMS),
		ScreenInterval:  millis(req.ScreenIntervalMS),
		Context:         req.Context,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *SessionHandler) Status(c *gin.Context) {
	sessionID := c.Param("session_id")
	if !authorizeSession(c, h.registry, "SessionHandler.Status", sessionID) {
		return
	}

	st, err := h.svc.Status(sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// Stop tears the whole live session down, recordings included.
func (h *SessionHandler) Stop(c *gin.Context) {
	sessionID := c.Param("session_id")
	if !authorizeSession(c, h.registry, "SessionHandler.Stop", sessionID) {
		return
	}

	if err := h.svc.Stop(sessionID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "status": "stopped"})
}

func (h *SessionHandler) Insights(c *gin.Context) {
	sessionID := c.Param("session_id")
	if !authorizeSession(c, h.registry, "SessionHandler.Insights", sessionID) {
		return
	}

	out, err := h.svc.Insights(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
