package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/interviewstream/internal/models"
	"github.com/yoockh/interviewstream/internal/services"
	"github.com/yoockh/interviewstream/internal/utils"
)

type RecordingHandler struct {
	svc      services.RecordingService
	registry services.SessionRegistry
}

func NewRecordingHandler(svc services.RecordingService, registry services.SessionRegistry) *RecordingHandler {
	return &RecordingHandler{svc: svc, registry: registry}
}

type StartRecordingRequest struct {
	UserID          string `json:"user_id"`
	Kind            string `json:"kind"`
	StreamURL       string `json:"stream_url" binding:"required"`
	ChunkIntervalMS int64  `json:"chunk_interval_ms"`
	Forward         bool   `json:"forward"`
}

type UploadRecordingRequest struct {
	Destination string `json:"destination"`
}

func (h *RecordingHandler) Start(c *gin.Context) {
	const op = "RecordingHandler.Start"

	var req StartRecordingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "invalid request body", err))
		return
	}
	userID, ok := resolveUserID(c, op, req.UserID)
	if !ok {
		return
	}

	st, err := h.svc.Start(c.Request.Context(), c.Param("session_id"), services.StartRecordingInput{
		UserID:        userID,
		Kind:          models.MediaKind(req.Kind),
		StreamURL:     req.StreamURL,
		ChunkInterval: millis(req.ChunkIntervalMS),
		Forward:       req.Forward,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *RecordingHandler) Stop(c *gin.Context) {
	sessionID := c.Param("session_id")
	if !authorizeSession(c, h.registry, "RecordingHandler.Stop", sessionID) {
		return
	}

	st, err := h.svc.Stop(sessionID, models.MediaKind(c.Param("kind")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *RecordingHandler) Upload(c *gin.Context) {
	const op = "RecordingHandler.Upload"

	sessionID := c.Param("session_id")
	if !authorizeSession(c, h.registry, op, sessionID) {
		return
	}

	var req UploadRecordingRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, utils.E(utils.CodeInvalidArgument, op, "invalid request body", err))
			return
		}
	}

	row, err := h.svc.Upload(c.Request.Context(), sessionID, models.MediaKind(c.Param("kind")), req.Destination)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, row)
}

func (h *RecordingHandler) List(c *gin.Context) {
	sessionID := c.Param("session_id")

	rows, err := h.svc.List(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	if sub := authUserID(c); sub != "" {
		own := rows[:0]
		for _, r := range rows {
			if r.ProducerID == sub {
				own = append(own, r)
			}
		}
		rows = own
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"recordings": rows,
	})
}
