package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/interviewstream/internal/services"
	"github.com/yoockh/interviewstream/internal/utils"
)

type APIError struct {
	Code    utils.Code `json:"code"`
	Message string     `json:"message"`
}

func writeError(c *gin.Context, err error) {
	status := utils.HTTPStatus(err)

	var ae *utils.AppError
	if errors.As(err, &ae) {
		c.JSON(status, APIError{
			Code:    ae.Code,
			Message: ae.Message,
		})
		return
	}

	c.JSON(status, APIError{
		Code:    utils.CodeInternal,
		Message: http.StatusText(status),
	})
}

func authUserID(c *gin.Context) string {
	if v, ok := c.Get("user_id"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// resolveUserID prefers the authenticated subject. Without auth the caller
// must name the user in the request.
func resolveUserID(c *gin.Context, op, fromRequest string) (string, bool) {
	if sub := authUserID(c); sub != "" {
		if fromRequest != "" && fromRequest != sub {
			writeError(c, utils.E(utils.CodeUnauthorized, op, "user_id does not match token", nil))
			return "", false
		}
		return sub, true
	}
	if fromRequest == "" {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil))
		return "", false
	}
	return fromRequest, true
}

// authorizeSession hides live sessions owned by someone else. It is a no-op
// when the API runs without auth.
func authorizeSession(c *gin.Context, registry services.SessionRegistry, op, sessionID string) bool {
	sub := authUserID(c)
	if sub == "" {
		return true
	}
	ls, err := registry.Get(sessionID)
	if err != nil {
		writeError(c, err)
		return false
	}
	if ls.UserID != sub {
		writeError(c, utils.E(utils.CodeNotFound, op, "no live session", utils.ErrNotFound))
		return false
	}
	return true
}

// authorizeKnownSession is authorizeSession for routes that also serve ended
// sessions. Ownership comes from the live session, else from archived
// recordings. A session known to neither passes.
func authorizeKnownSession(c *gin.Context, registry services.SessionRegistry, recordings services.RecordingService, op, sessionID string) bool {
	sub := authUserID(c)
	if sub == "" {
		return true
	}
	if ls, err := registry.Get(sessionID); err == nil {
		if ls.UserID == sub {
			return true
		}
		writeError(c, utils.E(utils.CodeNotFound, op, "no live session", utils.ErrNotFound))
		return false
	}
	if recordings == nil {
		return true
	}
	rows, err := recordings.List(c.Request.Context(), sessionID)
	if err != nil || len(rows) == 0 {
		return true
	}
	for _, r := range rows {
		if r.ProducerID == sub {
			return true
		}
	}
	writeError(c, utils.E(utils.CodeNotFound, op, "unknown session", utils.ErrNotFound))
	return false
}

func millis(ms int64) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

func queryLimit(c *gin.Context, def, max int) int {
	if s := c.Query("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= max {
			return n
		}
	}
	return def
}
