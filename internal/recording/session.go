// Package recording captures a continuous media stream into timed chunks,
// optionally forwarding each chunk live, and uploads the finished artifact.
package recording

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/interviewstream/internal/logger"
	"github.com/yoockh/interviewstream/internal/metrics"
	"github.com/yoockh/interviewstream/internal/models"
	"github.com/yoockh/interviewstream/internal/storage"
	"github.com/yoockh/interviewstream/internal/utils"
)

type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
	StateStopped   State = "stopped"
)

const (
	DefaultChunkInterval = time.Second
	defaultReadSize      = 32 << 10
)

var ErrNoRecording = errors.New("no recorded media")

// Sender is satisfied by *channel.Channel.
type Sender interface {
	Send(msg any) bool
}

// Ticker returns a tick channel and its stop func.
type Ticker func(d time.Duration) (<-chan time.Time, func())

func realTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

type Options struct {
	Kind models.MediaKind
	// Supports reports whether a container/codec can be produced. Nil accepts
	// the first preference.
	Supports func(mime string) bool
	// Forward receives every chunk as it is cut. Optional.
	Forward Sender
	UserID  string

	ReadSize int
	Ticker   Ticker
	Clock    func() time.Time
	Logger   logrus.FieldLogger
}

// Artifact is the concatenation of every chunk of one recording.
type Artifact struct {
	Data       []byte
	MIMEType   string
	Ext        string
	Kind       models.MediaKind
	ChunkCount int
}

func (a *Artifact) Size() int64 { return int64(len(a.Data)) }

// FileName follows {kind}_{unix_ms}.{ext}.
func (a *Artifact) FileName(at time.Time) string {
	return fmt.Sprintf("%s_%d.%s", a.Kind, at.UnixMilli(), a.Ext)
}

type Session struct {
	opts Options
	log  logrus.FieldLogger

	mu     sync.Mutex
	state  State
	mime   string
	chunks [][]byte
	stream io.Reader
	stopCh chan struct{}
	done   chan struct{}
}

func NewSession(opts Options) *Session {
	if opts.Kind == "" {
		opts.Kind = models.MediaVideo
	}
	if opts.ReadSize <= 0 {
		opts.ReadSize = defaultReadSize
	}
	if opts.Ticker == nil {
		opts.Ticker = realTicker
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Session{
		opts:  opts,
		log:   logger.OrDiscard(opts.Logger).WithField("kind", string(opts.Kind)),
		state: StateIdle,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) MIMEType() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mime
}

func (s *Session) ChunkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks)
}

// Start begins segmenting stream. Starting from stopped discards the previous
// buffer.
func (s *Session) Start(stream io.Reader, chunkInterval time.Duration) error {
	const op = "RecordingSession.Start"

	if stream == nil {
		return utils.E(utils.CodeInvalidArgument, op, "stream is required", nil)
	}
	if chunkInterval <= 0 {
		chunkInterval = DefaultChunkInterval
	}

	s.mu.Lock()
	if s.state == StateRecording {
		s.mu.Unlock()
		return utils.E(utils.CodeConflict, op, "recording already active", nil)
	}
	s.mime = Negotiate(Preferences(s.opts.Kind), s.opts.Supports)
	s.chunks = nil
	s.stream = stream
	s.state = StateRecording
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	stopCh, done := s.stopCh, s.done
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"mime":           s.mime,
		"chunk_interval": chunkInterval.String(),
	}).Info("recording started")

	go s.segment(stream, chunkInterval, stopCh, done)
	return nil
}

// segment cuts the stream into one chunk per tick. After stop, a closable
// stream is drained until its reader reports, so bytes already read are kept.
func (s *Session) segment(stream io.Reader, interval time.Duration, stopCh, done chan struct{}) {
	defer close(done)

	_, closable := stream.(io.Closer)

	reads := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, s.opts.ReadSize)
		for {
			n, err := stream.Read(buf)
			if n > 0 {
				b := make([]byte, n)
				copy(b, buf[:n])
				select {
				case reads <- b:
				case <-done:
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	ticks, stopTicks := s.opts.Ticker(interval)
	defer stopTicks()

	var pending []byte
	flush := func() {
		if len(pending) == 0 {
			return
		}
		s.appendChunk(pending)
		pending = nil
	}

	stopping := false
	for {
		select {
		case b := <-reads:
			pending = append(pending, b...)
		case <-ticks:
			flush()
		case err := <-readErr:
			flush()
			if !stopping {
				select {
				case <-stopCh:
					stopping = true
				default:
				}
			}
			if !stopping && !errors.Is(err, io.EOF) {
				s.log.WithError(err).Warn("recording stream failed")
			}
			s.mu.Lock()
			if s.state == StateRecording && s.done == done {
				s.state = StateStopped
				s.stopCh = nil
			}
			s.mu.Unlock()
			return
		case <-stopCh:
			if !closable {
				flush()
				return
			}
			stopping = true
			stopCh = nil
		}
	}
}

func (s *Session) appendChunk(b []byte) {
	s.mu.Lock()
	s.chunks = append(s.chunks, b)
	idx := len(s.chunks) - 1
	s.mu.Unlock()

	metrics.RecordingChunksTotal.WithLabelValues(string(s.opts.Kind)).Inc()

	if s.opts.Forward == nil {
		return
	}
	msg := models.NewFrameMessage(models.TypeVideoFrame, base64.StdEncoding.EncodeToString(b), s.opts.UserID, s.opts.Clock())
	if s.opts.Kind == models.MediaAudio {
		msg.Type = models.TypeAudioChunk
		msg.SaveChunk = true
	} else {
		msg.SaveFrame = true
	}
	if !s.opts.Forward.Send(msg) {
		s.log.WithField("chunk_index", idx).Debug("chunk not forwarded")
	}
}

// Stop ends the recording and flushes pending bytes as the final chunk. It is
// a no-op unless recording.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.state != StateRecording {
		s.mu.Unlock()
		return nil
	}
	if s.stopCh != nil {
		close(s.stopCh)
		s.stopCh = nil
	}
	done, stream := s.done, s.stream
	s.mu.Unlock()

	if c, ok := stream.(io.Closer); ok {
		_ = c.Close()
	}
	<-done

	s.mu.Lock()
	if s.done == done {
		s.state = StateStopped
	}
	n := len(s.chunks)
	s.mu.Unlock()

	s.log.WithField("chunks", n).Info("recording stopped")
	return nil
}

// Materialize returns nil unless stopped with at least one chunk.
func (s *Session) Materialize() *Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateStopped || len(s.chunks) == 0 {
		return nil
	}
	return &Artifact{
		Data:       bytes.Join(s.chunks, nil),
		MIMEType:   s.mime,
		Ext:        Extension(s.mime),
		Kind:       s.opts.Kind,
		ChunkCount: len(s.chunks),
	}
}

// Upload sends the materialized artifact to dest. The buffer is kept so a
// failed upload can be retried.
func (s *Session) Upload(ctx context.Context, dest storage.Destination, sessionID, producerID string) (*models.UploadAck, error) {
	const op = "RecordingSession.Upload"

	if dest == nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, "destination is required", nil)
	}
	if st := s.State(); st != StateStopped {
		return nil, utils.E(utils.CodeFailedPrecondition, op, "recording is "+string(st), nil)
	}
	art := s.Materialize()
	if art == nil {
		return nil, utils.E(utils.CodeFailedPrecondition, op, "nothing to upload", ErrNoRecording)
	}

	name := art.FileName(s.opts.Clock())
	ack, err := dest.Put(ctx, storage.Upload{
		SessionID:   sessionID,
		ProducerID:  producerID,
		Kind:        art.Kind,
		FileName:    name,
		ContentType: art.MIMEType,
		Size:        art.Size(),
		Body:        bytes.NewReader(art.Data),
	})
	if err != nil {
		metrics.UploadsTotal.WithLabelValues(dest.Name(), "error").Inc()
		s.log.WithError(err).WithField("session_id", sessionID).Error("upload failed")
		return nil, err
	}
	metrics.UploadsTotal.WithLabelValues(dest.Name(), "ok").Inc()
	if ack == nil {
		ack = &models.UploadAck{}
	}
	if ack.FileName == "" {
		ack.FileName = name
	}
	return ack, nil
}

// Reset returns a stopped session to idle and drops the buffer.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateStopped {
		return
	}
	s.state = StateIdle
	s.chunks = nil
	s.mime = ""
	s.stream = nil
}

// Cleanup stops, clears the buffer and closes the forwarding channel.
func (s *Session) Cleanup() {
	_ = s.Stop()
	s.Reset()
	if c, ok := s.opts.Forward.(io.Closer); ok {
		_ = c.Close()
	}
}
