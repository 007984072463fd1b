package recording

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/yoockh/interviewstream/internal/models"
	"github.com/yoockh/interviewstream/internal/storage"
	"github.com/yoockh/interviewstream/internal/utils"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeTicker struct{ c chan time.Time }

func newFakeTicker() *fakeTicker { return &fakeTicker{c: make(chan time.Time)} }

func (f *fakeTicker) ticker(time.Duration) (<-chan time.Time, func()) { return f.c, func() {} }

// tick returns once the segmenter has taken the tick.
func (f *fakeTicker) tick() { f.c <- time.Time{} }

type sender struct {
	mu     sync.Mutex
	msgs   []models.FrameMessage
	closed bool
}

func (s *sender) Send(msg any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg.(models.FrameMessage))
	return true
}

func (s *sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *sender) sent() []models.FrameMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.FrameMessage(nil), s.msgs...)
}

// feed writes data and waits until the session's reader has moved on to its
// next read, so the bytes are pending in the segmenter.
func feed(t *testing.T, w *io.PipeWriter, data string) {
	t.Helper()
	_, err := w.Write([]byte(data))
	require.NoError(t, err)
	_, err = w.Write(nil)
	require.NoError(t, err)
}

type fakeDest struct {
	mu      sync.Mutex
	fail    error
	uploads []storage.Upload
	bodies  []string
}

func (d *fakeDest) Name() string { return "fake" }

func (d *fakeDest) Put(_ context.Context, u storage.Upload) (*models.UploadAck, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, _ := io.ReadAll(u.Body)
	d.uploads = append(d.uploads, u)
	d.bodies = append(d.bodies, string(b))
	if d.fail != nil {
		return nil, d.fail
	}
	return &models.UploadAck{Location: "mem://" + u.FileName}, nil
}

var fixedNow = time.UnixMilli(1700000000000).UTC()

func TestSession_SegmentsAndForwardsAudio(t *testing.T) {
	ft := newFakeTicker()
	fwd := &sender{}
	s := NewSession(Options{
		Kind:    models.MediaAudio,
		Forward: fwd,
		UserID:  "u1",
		Ticker:  ft.ticker,
		Clock:   func() time.Time { return fixedNow },
	})

	pr, pw := io.Pipe()
	require.NoError(t, s.Start(pr, time.Second))
	assert.Equal(t, StateRecording, s.State())
	assert.Equal(t, "audio/webm;codecs=opus", s.MIMEType())

	feed(t, pw, "aaaa")
	ft.tick()
	feed(t, pw, "bb")
	feed(t, pw, "cc")
	ft.tick()
	feed(t, pw, "dd")

	require.NoError(t, s.Stop())
	assert.Equal(t, StateStopped, s.State())

	art := s.Materialize()
	require.NotNil(t, art)
	assert.Equal(t, "aaaabbccdd", string(art.Data))
	assert.Equal(t, 3, art.ChunkCount)
	assert.Equal(t, "audio/webm;codecs=opus", art.MIMEType)
	assert.Equal(t, "webm", art.Ext)
	assert.Equal(t, "audio_1700000000000.webm", art.FileName(fixedNow))

	msgs := fwd.sent()
	require.Len(t, msgs, 3)
	var joined []string
	for _, m := range msgs {
		assert.Equal(t, models.TypeAudioChunk, m.Type)
		assert.True(t, m.SaveChunk)
		assert.False(t, m.SaveFrame)
		assert.Equal(t, "u1", m.UserID)
		assert.Equal(t, "2023-11-14T22:13:20.000Z", m.Timestamp)
		b, err := base64.StdEncoding.DecodeString(m.Data)
		require.NoError(t, err)
		joined = append(joined, string(b))
	}
	assert.Equal(t, []string{"aaaa", "bbcc", "dd"}, joined)
}

func TestSession_VideoChunksAreSavedFrames(t *testing.T) {
	ft := newFakeTicker()
	fwd := &sender{}
	s := NewSession(Options{Forward: fwd, Ticker: ft.ticker})

	pr, pw := io.Pipe()
	require.NoError(t, s.Start(pr, 0))
	feed(t, pw, "frame")
	require.NoError(t, s.Stop())

	msgs := fwd.sent()
	require.Len(t, msgs, 1)
	assert.Equal(t, models.TypeVideoFrame, msgs[0].Type)
	assert.True(t, msgs[0].SaveFrame)
}

func TestSession_StartWhileRecordingConflicts(t *testing.T) {
	ft := newFakeTicker()
	s := NewSession(Options{Ticker: ft.ticker})

	pr, _ := io.Pipe()
	require.NoError(t, s.Start(pr, time.Second))

	other, _ := io.Pipe()
	err := s.Start(other, time.Second)
	assert.True(t, utils.IsCode(err, utils.CodeConflict))

	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
	assert.Equal(t, StateStopped, s.State())
}

func TestSession_StartRequiresStream(t *testing.T) {
	s := NewSession(Options{})
	assert.True(t, utils.IsCode(s.Start(nil, time.Second), utils.CodeInvalidArgument))
	assert.Equal(t, StateIdle, s.State())
}

func TestSession_EmptyRecording(t *testing.T) {
	s := NewSession(Options{Ticker: newFakeTicker().ticker})
	assert.Nil(t, s.Materialize())
	assert.NoError(t, s.Stop())

	pr, _ := io.Pipe()
	require.NoError(t, s.Start(pr, time.Second))
	require.NoError(t, s.Stop())
	assert.Nil(t, s.Materialize())

	_, err := s.Upload(context.Background(), &fakeDest{}, "s1", "u1")
	assert.True(t, utils.IsCode(err, utils.CodeFailedPrecondition))
	assert.ErrorIs(t, err, ErrNoRecording)
}

func TestSession_StreamEndStopsRecording(t *testing.T) {
	s := NewSession(Options{ReadSize: 3})
	require.NoError(t, s.Start(strings.NewReader("0123456789"), time.Hour))

	require.Eventually(t, func() bool { return s.State() == StateStopped }, 2*time.Second, 5*time.Millisecond)
	art := s.Materialize()
	require.NotNil(t, art)
	assert.Equal(t, "0123456789", string(art.Data))
	assert.NoError(t, s.Stop())
}

func TestSession_UploadOnlyWhenStopped(t *testing.T) {
	s := NewSession(Options{Ticker: newFakeTicker().ticker})
	pr, pw := io.Pipe()
	require.NoError(t, s.Start(pr, time.Second))
	feed(t, pw, "x")

	_, err := s.Upload(context.Background(), &fakeDest{}, "s1", "u1")
	assert.True(t, utils.IsCode(err, utils.CodeFailedPrecondition))
	require.NoError(t, s.Stop())
}

func TestSession_UploadRetriesWithoutRerecording(t *testing.T) {
	s := NewSession(Options{
		Ticker: newFakeTicker().ticker,
		Clock:  func() time.Time { return fixedNow },
		Supports: func(mime string) bool {
			return mime == "video/mp4"
		},
	})
	pr, pw := io.Pipe()
	require.NoError(t, s.Start(pr, time.Second))
	feed(t, pw, "moov")
	require.NoError(t, s.Stop())

	dest := &fakeDest{fail: errors.New("backend down")}
	_, err := s.Upload(context.Background(), dest, "s1", "u1")
	require.Error(t, err)

	dest.fail = nil
	ack, err := s.Upload(context.Background(), dest, "s1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "mem://video_1700000000000.mp4", ack.Location)
	assert.Equal(t, "video_1700000000000.mp4", ack.FileName)

	require.Len(t, dest.uploads, 2)
	u := dest.uploads[1]
	assert.Equal(t, "s1", u.SessionID)
	assert.Equal(t, "u1", u.ProducerID)
	assert.Equal(t, models.MediaVideo, u.Kind)
	assert.Equal(t, "video/mp4", u.ContentType)
	assert.Equal(t, int64(4), u.Size)
	assert.Equal(t, []string{"moov", "moov"}, dest.bodies)
}

func TestSession_ResetAndRestart(t *testing.T) {
	s := NewSession(Options{Ticker: newFakeTicker().ticker})

	pr, pw := io.Pipe()
	require.NoError(t, s.Start(pr, time.Second))
	feed(t, pw, "first")
	require.NoError(t, s.Stop())

	pr2, pw2 := io.Pipe()
	require.NoError(t, s.Start(pr2, time.Second))
	feed(t, pw2, "second")
	require.NoError(t, s.Stop())
	assert.Equal(t, "second", string(s.Materialize().Data))

	s.Reset()
	assert.Equal(t, StateIdle, s.State())
	assert.Nil(t, s.Materialize())
}

func TestSession_CleanupClosesForward(t *testing.T) {
	fwd := &sender{}
	s := NewSession(Options{Forward: fwd, Ticker: newFakeTicker().ticker})
	pr, pw := io.Pipe()
	require.NoError(t, s.Start(pr, time.Second))
	feed(t, pw, "x")

	s.Cleanup()
	assert.Equal(t, StateIdle, s.State())
	assert.Zero(t, s.ChunkCount())
	assert.True(t, fwd.closed)
	assert.NotPanics(t, s.Cleanup)
}
