package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/interviewstream/internal/logger"
	"github.com/yoockh/interviewstream/internal/models"
	"github.com/yoockh/interviewstream/internal/services"
)

const relayBuffer = 64

// WSHandler relays a live session's analysis results to a websocket client.
type WSHandler struct {
	analysis services.AnalysisService
	registry services.SessionRegistry
	upgrader websocket.Upgrader
	log      logrus.FieldLogger
}

func NewWSHandler(analysis services.AnalysisService, registry services.SessionRegistry, log logrus.FieldLogger) *WSHandler {
	return &WSHandler{
		analysis: analysis,
		registry: registry,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // TODO: restrict origin in prod
		},
		log: logger.OrDiscard(log),
	}
}

type wsConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (w *wsConn) writeText(b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.c.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.c.WriteMessage(websocket.TextMessage, b)
}

func (w *wsConn) writeClose(text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, text)
	_ = w.c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

func (h *WSHandler) AnalysisWS(c *gin.Context) {
	sessionID := c.Param("session_id")
	if !authorizeSession(c, h.registry, "WSHandler.AnalysisWS", sessionID) {
		return
	}

	// Subscribe before upgrading so an unknown session is a plain HTTP error.
	results := make(chan models.AnalysisResult, relayBuffer)
	unsubscribe, done, err := h.analysis.Subscribe(sessionID, func(r models.AnalysisResult) {
		select {
		case results <- r:
		default:
			h.log.WithField("session_id", sessionID).Warn("relay buffer full, dropping analysis result")
		}
	})
	if err != nil {
		writeError(c, err)
		return
	}
	defer unsubscribe()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrade already wrote response in most cases
		return
	}
	defer conn.Close()
	wc := &wsConn{c: conn}

	// reader: only detects the client going away
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-readDone:
			return
		case <-done:
			wc.writeClose("session ended")
			return
		case <-ping.C:
			wc.mu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			wc.mu.Unlock()
			if err != nil {
				return
			}
		case r := <-results:
			b, err := json.Marshal(r.Raw)
			if err != nil {
				continue
			}
			if werr := wc.writeText(b); werr != nil {
				return
			}
		}
	}
}
