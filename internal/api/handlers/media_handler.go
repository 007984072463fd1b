package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/interviewstream/internal/services"
	"github.com/yoockh/interviewstream/internal/streamer"
	"github.com/yoockh/interviewstream/internal/utils"
)

// MediaHandler proxies the backend's plain HTTP media endpoints.
type MediaHandler struct {
	api        *streamer.MediaAPI
	registry   services.SessionRegistry
	recordings services.RecordingService
}

func NewMediaHandler(api *streamer.MediaAPI, registry services.SessionRegistry, recordings services.RecordingService) *MediaHandler {
	return &MediaHandler{api: api, registry: registry, recordings: recordings}
}

type StartStreamBody struct {
	UserID     string `json:"user_id"`
	StreamType string `json:"stream_type"`
}

func (h *MediaHandler) StartStream(c *gin.Context) {
	const op = "MediaHandler.StartStream"

	sessionID := c.Param("session_id")
	if !authorizeKnownSession(c, h.registry, h.recordings, op, sessionID) {
		return
	}

	var req StartStreamBody
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, utils.E(utils.CodeInvalidArgument, op, "invalid request body", err))
			return
		}
	}
	userID, ok := resolveUserID(c, op, req.UserID)
	if !ok {
		return
	}

	out, err := h.api.StartStreamingSession(c.Request.Context(), sessionID, userID, req.StreamType)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *MediaHandler) Files(c *gin.Context) {
	sessionID := c.Param("session_id")
	if !authorizeKnownSession(c, h.registry, h.recordings, "MediaHandler.Files", sessionID) {
		return
	}

	out, err := h.api.SessionFiles(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
