package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/yoockh/interviewstream/internal/logger"
	"github.com/yoockh/interviewstream/internal/models"
	"github.com/yoockh/interviewstream/internal/recording"
	pgrepo "github.com/yoockh/interviewstream/internal/repositories/postgres"
	"github.com/yoockh/interviewstream/internal/storage"
	"github.com/yoockh/interviewstream/internal/utils"
)

type StartRecordingInput struct {
	UserID        string
	Kind          models.MediaKind
	StreamURL     string
	ChunkInterval time.Duration
	// Forward streams every chunk live over the recording socket.
	Forward bool
}

type RecordingStatus struct {
	SessionID  string           `json:"session_id"`
	Kind       models.MediaKind `json:"kind"`
	State      recording.State  `json:"state"`
	MIMEType   string           `json:"mime_type,omitempty"`
	ChunkCount int              `json:"chunk_count"`
}

type RecordingService interface {
	Start(ctx context.Context, sessionID string, in StartRecordingInput) (*RecordingStatus, error)
	Stop(sessionID string, kind models.MediaKind) (*RecordingStatus, error)
	Upload(ctx context.Context, sessionID string, kind models.MediaKind, destination string) (*models.RecordingFile, error)
	List(ctx context.Context, sessionID string) ([]models.RecordingFile, error)
}

type recordingService struct {
	registry     SessionRegistry
	destinations map[string]storage.Destination
	archive      pgrepo.RecordingRepository
	streams      *http.Client
	base         context.Context
	log          logrus.FieldLogger

	// chunkInterval applies when a start request leaves it unset.
	chunkInterval time.Duration
}

// NewRecordingService archives uploads when archive is non-nil. chunkInterval
// is the default segment length.
func NewRecordingService(base context.Context, registry SessionRegistry, destinations []storage.Destination, archive pgrepo.RecordingRepository, streams *http.Client, chunkInterval time.Duration, log logrus.FieldLogger) RecordingService {
	byName := make(map[string]storage.Destination, len(destinations))
	for _, d := range destinations {
		byName[d.Name()] = d
	}
	if streams == nil {
		streams = &http.Client{}
	}
	return &recordingService{
		registry:     registry,
		destinations: byName,
		archive:      archive,
		streams:      streams,
		base:         base,
		log:          logger.OrDiscard(log),

		chunkInterval: chunkInterval,
	}
}

func validKind(k models.MediaKind) bool {
	return k == models.MediaVideo || k == models.MediaAudio
}

// openStream GETs a long-lived media stream. The body outlives the request
// that started the recording.
func (s *recordingService) openStream(op, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(s.base, http.MethodGet, url, nil)
	if err != nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, "invalid stream_url", err)
	}
	resp, err := s.streams.Do(req)
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "failed to open stream", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, utils.E(utils.CodeUnavailable, op, "stream responded "+resp.Status, nil)
	}
	return resp.Body, nil
}

func (s *recordingService) Start(ctx context.Context, sessionID string, in StartRecordingInput) (*RecordingStatus, error) {
	const op = "RecordingService.Start"

	if in.Kind == "" {
		in.Kind = models.MediaVideo
	}
	if !validKind(in.Kind) {
		return nil, utils.E(utils.CodeInvalidArgument, op, "kind must be video or audio", nil)
	}
	if in.StreamURL == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "stream_url is required", nil)
	}

	if in.ChunkInterval <= 0 {
		in.ChunkInterval = s.chunkInterval
	}

	ls, created, err := s.registry.Open(sessionID, in.UserID)
	if err != nil {
		return nil, err
	}
	st, err := s.start(ctx, op, ls, in)
	if err != nil && created {
		_ = s.registry.Close(sessionID)
	}
	return st, err
}

func (s *recordingService) start(ctx context.Context, op string, ls *LiveSession, in StartRecordingInput) (*RecordingStatus, error) {
	sessionID := ls.ID
	if cur := ls.Recording(in.Kind); cur != nil && cur.State() == recording.StateRecording {
		return nil, utils.E(utils.CodeConflict, op, string(in.Kind)+" recording already active", nil)
	}

	opts := recording.Options{
		Kind:   in.Kind,
		UserID: in.UserID,
		Logger: s.log.WithField("session_id", sessionID),
	}
	if in.Forward {
		ch, err := ls.Client.OpenRecordingChannel(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		opts.Forward = ch
	}

	body, err := s.openStream(op, in.StreamURL)
	if err != nil {
		return nil, err
	}

	rs := recording.NewSession(opts)
	if err := rs.Start(body, in.ChunkInterval); err != nil {
		body.Close()
		return nil, err
	}
	ls.setRecording(in.Kind, rs)
	return recordingStatus(sessionID, in.Kind, rs), nil
}

func recordingStatus(sessionID string, kind models.MediaKind, rs *recording.Session) *RecordingStatus {
	return &RecordingStatus{
		SessionID:  sessionID,
		Kind:       kind,
		State:      rs.State(),
		MIMEType:   rs.MIMEType(),
		ChunkCount: rs.ChunkCount(),
	}
}

func (s *recordingService) session(op, sessionID string, kind models.MediaKind) (*LiveSession, *recording.Session, error) {
	if !validKind(kind) {
		return nil, nil, utils.E(utils.CodeInvalidArgument, op, "kind must be video or audio", nil)
	}
	ls, err := s.registry.Get(sessionID)
	if err != nil {
		return nil, nil, err
	}
	rs := ls.Recording(kind)
	if rs == nil {
		return nil, nil, utils.E(utils.CodeNotFound, op, "no "+string(kind)+" recording", utils.ErrNotFound)
	}
	return ls, rs, nil
}

func (s *recordingService) Stop(sessionID string, kind models.MediaKind) (*RecordingStatus, error) {
	_, rs, err := s.session("RecordingService.Stop", sessionID, kind)
	if err != nil {
		return nil, err
	}
	if err := rs.Stop(); err != nil {
		return nil, err
	}
	return recordingStatus(sessionID, kind, rs), nil
}

func (s *recordingService) Upload(ctx context.Context, sessionID string, kind models.MediaKind, destination string) (*models.RecordingFile, error) {
	const op = "RecordingService.Upload"

	if destination == "" {
		destination = "http"
	}
	dest, ok := s.destinations[destination]
	if !ok {
		return nil, utils.E(utils.CodeInvalidArgument, op, "unknown destination "+destination, nil)
	}

	ls, rs, err := s.session(op, sessionID, kind)
	if err != nil {
		return nil, err
	}

	ack, err := rs.Upload(ctx, dest, sessionID, ls.UserID)
	if err != nil {
		return nil, err
	}
	art := rs.Materialize()

	row := &models.RecordingFile{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		ProducerID:  ls.UserID,
		Kind:        string(kind),
		FileName:    ack.FileName,
		Destination: dest.Name(),
		Location:    ack.Location,
		UploadAt:    time.Now().UTC(),
	}
	if art != nil {
		row.FileSize = art.Size()
		row.MimeType = art.MIMEType
		row.ChunkCount = art.ChunkCount
	}
	if ack.Raw != nil {
		if b, err := json.Marshal(ack.Raw); err == nil {
			row.Ack = datatypes.JSON(b)
		}
	}

	if s.archive != nil {
		if err := s.archive.Insert(ctx, row); err != nil {
			return nil, utils.E(utils.CodeInternal, op, "failed to persist recording metadata", err)
		}
	}
	return row, nil
}

func (s *recordingService) List(ctx context.Context, sessionID string) ([]models.RecordingFile, error) {
	const op = "RecordingService.List"

	if s.archive == nil {
		return nil, utils.E(utils.CodeFailedPrecondition, op, "recording archive is not configured", nil)
	}
	rows, err := s.archive.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list recordings", err)
	}
	return rows, nil
}
