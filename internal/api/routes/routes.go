package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yoockh/interviewstream/internal/api/handlers"
	"github.com/yoockh/interviewstream/internal/api/middleware"
)

type Deps struct {
	Session   *handlers.SessionHandler
	Recording *handlers.RecordingHandler
	Media     *handlers.MediaHandler
	WS        *handlers.WSHandler
	// Journal is nil when no journal store is configured.
	Journal *handlers.JournalHandler

	// JWTSecret enables bearer auth on every session route.
	JWTSecret string
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	// Health-ish
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/")
	if d.JWTSecret != "" {
		api.Use(middleware.JWTAuth(d.JWTSecret))
	}

	s := api.Group("/sessions/:session_id")
	s.POST("/analysis", d.Session.Start)
	s.GET("/analysis", d.Session.Status)
	s.DELETE("/analysis", d.Session.Stop)
	s.GET("/insights", d.Session.Insights)

	s.POST("/recordings", d.Recording.Start)
	s.GET("/recordings", d.Recording.List)
	s.POST("/recordings/:kind/stop", d.Recording.Stop)
	s.POST("/recordings/:kind/upload", d.Recording.Upload)

	s.POST("/stream", d.Media.StartStream)
	s.GET("/files", d.Media.Files)

	if d.Journal != nil {
		s.GET("/journal", d.Journal.ListBySession)
	}

	// WebSocket
	api.GET("/ws/sessions/:session_id/analysis", d.WS.AnalysisWS)
}
