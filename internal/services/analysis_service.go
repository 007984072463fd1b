package services

import (
	"context"
	"net/http"
	"time"

	"github.com/yoockh/interviewstream/internal/capture"
	"github.com/yoockh/interviewstream/internal/channel"
	"github.com/yoockh/interviewstream/internal/dispatch"
	"github.com/yoockh/interviewstream/internal/models"
	"github.com/yoockh/interviewstream/internal/streamer"
	"github.com/yoockh/interviewstream/internal/utils"
)

type StartAnalysisInput struct {
	UserID          string
	VideoSourceURL  string
	ScreenSourceURL string
	VideoInterval   time.Duration
	ScreenInterval  time.Duration
	Context         *models.InterviewContext
}

type AnalysisStatus struct {
	SessionID string        `json:"session_id"`
	UserID    string        `json:"user_id"`
	Video     channel.State `json:"video"`
	Screen    channel.State `json:"screen"`
	Loops     int           `json:"loops"`
	StartedAt time.Time     `json:"started_at"`
}

type AnalysisService interface {
	Start(ctx context.Context, sessionID string, in StartAnalysisInput) (*AnalysisStatus, error)
	Status(sessionID string) (*AnalysisStatus, error)
	Stop(sessionID string) error
	Insights(ctx context.Context, sessionID string) (map[string]any, error)
	// Subscribe registers cb on the live session. done is closed when the
	// session ends.
	Subscribe(sessionID string, cb dispatch.Callback) (unsubscribe func(), done <-chan struct{}, err error)
}

type analysisService struct {
	registry SessionRegistry
	insights *streamer.Client
	sources  *http.Client
	// base outlives requests so loops keep running after Start returns.
	base context.Context
}

func NewAnalysisService(base context.Context, registry SessionRegistry, insights *streamer.Client, sources *http.Client) AnalysisService {
	if sources == nil {
		sources = &http.Client{Timeout: 10 * time.Second}
	}
	return &analysisService{registry: registry, insights: insights, sources: sources, base: base}
}

func (s *analysisService) Start(ctx context.Context, sessionID string, in StartAnalysisInput) (*AnalysisStatus, error) {
	const op = "AnalysisService.Start"

	if in.VideoSourceURL == "" && in.ScreenSourceURL == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "video_source_url or screen_source_url is required", nil)
	}

	ls, created, err := s.registry.Open(sessionID, in.UserID)
	if err != nil {
		return nil, err
	}
	st, err := s.start(ctx, ls, in)
	if err != nil && created {
		_ = s.registry.Close(sessionID)
	}
	return st, err
}

func (s *analysisService) start(ctx context.Context, ls *LiveSession, in StartAnalysisInput) (*AnalysisStatus, error) {
	const op = "AnalysisService.Start"

	client, sessionID := ls.Client, ls.ID

	if in.VideoSourceURL != "" {
		if err := client.ConnectVideoAnalysis(ctx, sessionID); err != nil {
			return nil, err
		}
		if in.Context != nil && !client.SendInterviewContext(*in.Context) {
			return nil, utils.E(utils.CodeUnavailable, op, "failed to send interview context", nil)
		}
		src := capture.NewHTTPSnapshotSource(in.VideoSourceURL, s.sources)
		loop, err := client.StartVideoAnalysis(s.base, sessionID, src, in.UserID, in.VideoInterval)
		if err != nil {
			return nil, err
		}
		ls.addLoop(loop)
	}

	if in.ScreenSourceURL != "" {
		if err := client.ConnectScreenAnalysis(ctx, sessionID); err != nil {
			return nil, err
		}
		src := capture.NewHTTPSnapshotSource(in.ScreenSourceURL, s.sources)
		loop, err := client.StartScreenAnalysis(s.base, sessionID, src, in.UserID, in.ScreenInterval)
		if err != nil {
			return nil, err
		}
		ls.addLoop(loop)
	}

	return status(ls), nil
}

func status(ls *LiveSession) *AnalysisStatus {
	return &AnalysisStatus{
		SessionID: ls.ID,
		UserID:    ls.UserID,
		Video:     ls.Client.ChannelState("video"),
		Screen:    ls.Client.ChannelState("screen"),
		Loops:     ls.LoopCount(),
		StartedAt: ls.StartedAt,
	}
}

func (s *analysisService) Status(sessionID string) (*AnalysisStatus, error) {
	ls, err := s.registry.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return status(ls), nil
}

func (s *analysisService) Stop(sessionID string) error {
	return s.registry.Close(sessionID)
}

func (s *analysisService) Insights(ctx context.Context, sessionID string) (map[string]any, error) {
	const op = "AnalysisService.Insights"

	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}
	return s.insights.Insights(ctx, sessionID)
}

func (s *analysisService) Subscribe(sessionID string, cb dispatch.Callback) (func(), <-chan struct{}, error) {
	ls, err := s.registry.Get(sessionID)
	if err != nil {
		return nil, nil, err
	}
	return ls.Client.OnAnalysis(cb), ls.Done(), nil
}
