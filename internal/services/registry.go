package services

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/interviewstream/internal/logger"
	"github.com/yoockh/interviewstream/internal/models"
	"github.com/yoockh/interviewstream/internal/recording"
	"github.com/yoockh/interviewstream/internal/streamer"
	"github.com/yoockh/interviewstream/internal/utils"
)

// LiveSession is everything the agent runs for one interview session.
type LiveSession struct {
	ID        string
	UserID    string
	StartedAt time.Time
	Client    *streamer.Client

	mu         sync.Mutex
	loops      []*streamer.Loop
	recordings map[models.MediaKind]*recording.Session
	done       chan struct{}
	closeOnce  sync.Once
}

// Done is closed once the session has been torn down.
func (s *LiveSession) Done() <-chan struct{} { return s.done }

func (s *LiveSession) addLoop(l *streamer.Loop) {
	s.mu.Lock()
	s.loops = append(s.loops, l)
	s.mu.Unlock()
}

func (s *LiveSession) LoopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, l := range s.loops {
		select {
		case <-l.Done():
		default:
			n++
		}
	}
	return n
}

func (s *LiveSession) Recording(kind models.MediaKind) *recording.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordings[kind]
}

func (s *LiveSession) setRecording(kind models.MediaKind, r *recording.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordings[kind] = r
}

func (s *LiveSession) cleanup() {
	s.mu.Lock()
	loops := s.loops
	s.loops = nil
	recs := s.recordings
	s.recordings = make(map[models.MediaKind]*recording.Session)
	s.mu.Unlock()

	for _, l := range loops {
		l.Stop()
	}
	for _, r := range recs {
		r.Cleanup()
	}
	s.Client.Cleanup()
	s.closeOnce.Do(func() { close(s.done) })
}

type SessionRegistry interface {
	// Open returns the live session, creating it on first use. created
	// reports whether this call made it.
	Open(sessionID, userID string) (ls *LiveSession, created bool, err error)
	Get(sessionID string) (*LiveSession, error)
	Close(sessionID string) error
	CloseAll()
}

type sessionRegistry struct {
	newClient func() *streamer.Client
	sinks     []AnalysisSink
	log       logrus.FieldLogger

	mu       sync.Mutex
	sessions map[string]*LiveSession
}

func NewSessionRegistry(newClient func() *streamer.Client, sinks []AnalysisSink, log logrus.FieldLogger) SessionRegistry {
	return &sessionRegistry{
		newClient: newClient,
		sinks:     sinks,
		log:       logger.OrDiscard(log),
		sessions:  make(map[string]*LiveSession),
	}
}

func (r *sessionRegistry) Open(sessionID, userID string) (*LiveSession, bool, error) {
	const op = "SessionRegistry.Open"

	if sessionID == "" || userID == "" {
		return nil, false, utils.E(utils.CodeInvalidArgument, op, "session_id and user_id are required", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[sessionID]; ok {
		if s.UserID != userID {
			return nil, false, utils.E(utils.CodeConflict, op, "session is owned by another user", nil)
		}
		return s, false, nil
	}

	s := &LiveSession{
		ID:         sessionID,
		UserID:     userID,
		StartedAt:  time.Now().UTC(),
		Client:     r.newClient(),
		recordings: make(map[models.MediaKind]*recording.Session),
		done:       make(chan struct{}),
	}
	if len(r.sinks) > 0 {
		s.Client.OnAnalysis(fanOut(r.sinks, userID, r.log))
	}
	r.sessions[sessionID] = s

	r.log.WithFields(logrus.Fields{"session_id": sessionID, "user_id": userID}).Info("live session opened")
	return s, true, nil
}

func (r *sessionRegistry) Get(sessionID string) (*LiveSession, error) {
	const op = "SessionRegistry.Get"

	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, utils.E(utils.CodeNotFound, op, "no live session", utils.ErrNotFound)
	}
	return s, nil
}

func (r *sessionRegistry) Close(sessionID string) error {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	r.mu.Unlock()

	if !ok {
		return utils.E(utils.CodeNotFound, "SessionRegistry.Close", "no live session", utils.ErrNotFound)
	}
	s.cleanup()
	r.log.WithField("session_id", sessionID).Info("live session closed")
	return nil
}

func (r *sessionRegistry) CloseAll() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*LiveSession)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range all {
		wg.Add(1)
		go func(s *LiveSession) {
			defer wg.Done()
			s.cleanup()
		}(s)
	}
	wg.Wait()
}
