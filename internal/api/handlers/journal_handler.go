package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	mongorepo "github.com/yoockh/interviewstream/internal/repositories/mongo"
	"github.com/yoockh/interviewstream/internal/utils"
)

// JournalHandler serves the analysis results kept for a session.
type JournalHandler struct {
	repo mongorepo.JournalRepository
}

func NewJournalHandler(repo mongorepo.JournalRepository) *JournalHandler {
	return &JournalHandler{repo: repo}
}

func (h *JournalHandler) ListBySession(c *gin.Context) {
	const op = "JournalHandler.ListBySession"

	sessionID := c.Param("session_id")
	limit := queryLimit(c, 50, 500)

	rows, err := h.repo.ListBySession(c.Request.Context(), sessionID, int64(limit))
	if err != nil {
		writeError(c, utils.E(utils.CodeInternal, op, "failed to read journal", err))
		return
	}

	// entries from before owners were recorded stay hidden under auth
	if sub := authUserID(c); sub != "" {
		own := rows[:0]
		for _, e := range rows {
			if e.UserID == sub {
				own = append(own, e)
			}
		}
		rows = own
	}

	// repo returns newest first
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"results":    rows,
	})
}
