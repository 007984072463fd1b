// Package channel owns one session-scoped streaming connection to the analysis
// backend.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/interviewstream/internal/logger"
	"github.com/yoockh/interviewstream/internal/metrics"
	"github.com/yoockh/interviewstream/internal/models"
	"github.com/yoockh/interviewstream/internal/utils"
)

type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosed     State = "closed"
	StateErrored    State = "errored"
)

// ErrClosed is wrapped by Open when Close wins the race against the dial.
var ErrClosed = errors.New("channel closed")

const defaultWriteTimeout = 10 * time.Second

type Config struct {
	// Name labels logs and metrics ("video", "screen", "recording").
	Name string
	// BaseURL is the websocket origin, ex: ws://localhost:8000.
	BaseURL string
	// Path is joined with the session id, ex: /media/llm/stream.
	Path string

	Dialer       Dialer
	WriteTimeout time.Duration
	Logger       logrus.FieldLogger
}

type Channel struct {
	cfg Config
	log logrus.FieldLogger

	mu         sync.Mutex
	state      State
	sessionID  string
	conn       Transport
	cancelDial context.CancelFunc
	handler    func(models.AnalysisResult)
	lastSend   time.Time
	done       chan struct{}

	writeMu sync.Mutex
}

func New(cfg Config) *Channel {
	if cfg.Dialer == nil {
		cfg.Dialer = NewWebsocketDialer(0)
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Name == "" {
		cfg.Name = "channel"
	}
	return &Channel{
		cfg:   cfg,
		log:   logger.OrDiscard(cfg.Logger).WithField("channel", cfg.Name),
		state: StateIdle,
		done:  make(chan struct{}),
	}
}

// URL returns the endpoint for sessionID.
func (c *Channel) URL(sessionID string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/" + strings.Trim(c.cfg.Path, "/") + "/" + url.PathEscape(sessionID)
}

func (c *Channel) Name() string { return c.cfg.Name }

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// LastSend is the time of the last successful write, zero if none.
func (c *Channel) LastSend() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSend
}

// Done is closed when the read loop exits. It never closes for a channel
// that did not reach the open state.
func (c *Channel) Done() <-chan struct{} { return c.done }

// setState must be called with c.mu held.
func (c *Channel) setState(s State) {
	c.state = s
	metrics.ChannelTransitionsTotal.WithLabelValues(c.cfg.Name, string(s)).Inc()
}

// OnMessage sets the single dispatch point for inbound results. A later call
// replaces the earlier handler.
func (c *Channel) OnMessage(h func(models.AnalysisResult)) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// Open dials the backend for sessionID and returns once the transport is
// ready. A Channel can be opened at most once.
func (c *Channel) Open(ctx context.Context, sessionID string) error {
	const op = "Channel.Open"

	if sessionID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}

	c.mu.Lock()
	if c.state != StateIdle {
		st := c.state
		c.mu.Unlock()
		return utils.E(utils.CodeConflict, op, fmt.Sprintf("channel is %s; open a new channel instead", st), nil)
	}
	dialCtx, cancel := context.WithCancel(ctx)
	c.cancelDial = cancel
	c.sessionID = sessionID
	c.setState(StateConnecting)
	c.mu.Unlock()

	target := c.URL(sessionID)
	conn, err := c.cfg.Dialer.Dial(dialCtx, target)
	cancel()

	c.mu.Lock()
	c.cancelDial = nil
	if c.state == StateClosed {
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return utils.E(utils.CodeUnavailable, op, "closed while connecting", ErrClosed)
	}
	if err != nil {
		c.setState(StateErrored)
		c.mu.Unlock()
		c.log.WithError(err).WithField("session_id", sessionID).Warn("channel dial failed")
		return utils.E(utils.CodeUnavailable, op, "failed to connect to "+target, err)
	}
	c.conn = conn
	c.setState(StateOpen)
	c.mu.Unlock()

	c.log.WithField("session_id", sessionID).Info("channel open")
	go c.readLoop(conn)
	return nil
}

func (c *Channel) readLoop(conn Transport) {
	defer close(c.done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.fail(err)
			return
		}

		res, perr := models.ParseAnalysis(data)
		if perr != nil {
			metrics.InboundDroppedTotal.WithLabelValues(c.cfg.Name).Inc()
			c.log.WithError(perr).WithField("bytes", len(data)).Warn("dropping malformed inbound message")
			continue
		}

		c.mu.Lock()
		h := c.handler
		if res.SessionID == "" {
			res.SessionID = c.sessionID
		}
		c.mu.Unlock()
		res.Channel = c.cfg.Name

		if h != nil {
			c.deliver(h, res)
		}
	}
}

func (c *Channel) deliver(h func(models.AnalysisResult), res models.AnalysisResult) {
	defer func() {
		if rec := recover(); rec != nil {
			c.log.WithField("type", res.Type).Error(fmt.Sprintf("inbound handler panicked: %v", rec))
		}
	}()
	h(res)
}

// fail moves an open channel to closed (clean close from the peer) or errored.
func (c *Channel) fail(err error) {
	c.mu.Lock()
	if c.state != StateOpen {
		c.mu.Unlock()
		return
	}
	clean := websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
	if clean {
		c.setState(StateClosed)
	} else {
		c.setState(StateErrored)
	}
	conn := c.conn
	c.mu.Unlock()

	_ = conn.Close()
	entry := c.log.WithField("session_id", c.SessionID())
	if clean {
		entry.Info("channel closed by peer")
	} else {
		entry.WithError(err).Warn("channel transport error")
	}
}

// Send writes msg as JSON. It reports false, without error, when the channel
// is not open or the write fails: frames are best effort.
func (c *Channel) Send(msg any) bool {
	typ := messageType(msg)

	c.mu.Lock()
	st, conn := c.state, c.conn
	c.mu.Unlock()

	if st != StateOpen {
		metrics.FramesDroppedTotal.WithLabelValues(c.cfg.Name, metrics.ReasonNotOpen).Inc()
		c.log.WithFields(logrus.Fields{"state": st, "type": typ}).Debug("send dropped: channel not open")
		return false
	}

	b, err := json.Marshal(msg)
	if err != nil {
		metrics.FramesDroppedTotal.WithLabelValues(c.cfg.Name, metrics.ReasonEncode).Inc()
		c.log.WithError(err).WithField("type", typ).Warn("send dropped: encode failed")
		return false
	}

	c.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	err = conn.WriteMessage(websocket.TextMessage, b)
	c.writeMu.Unlock()

	if err != nil {
		metrics.FramesDroppedTotal.WithLabelValues(c.cfg.Name, metrics.ReasonWrite).Inc()
		c.fail(err)
		return false
	}

	c.mu.Lock()
	c.lastSend = time.Now()
	c.mu.Unlock()
	metrics.FramesSentTotal.WithLabelValues(c.cfg.Name, typ).Inc()
	return true
}

// Close releases the transport. Safe in every state and idempotent; a
// channel that already errored stays errored.
func (c *Channel) Close() error {
	c.mu.Lock()
	var conn Transport
	switch c.state {
	case StateIdle:
		c.setState(StateClosed)
	case StateConnecting:
		c.setState(StateClosed)
		if c.cancelDial != nil {
			c.cancelDial()
		}
	case StateOpen:
		c.setState(StateClosed)
		conn = c.conn
	}
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()

	c.log.WithField("session_id", c.SessionID()).Info("channel closed")
	return conn.Close()
}

func messageType(msg any) string {
	switch m := msg.(type) {
	case models.FrameMessage:
		return m.Type
	case *models.FrameMessage:
		return m.Type
	case models.ContextMessage, *models.ContextMessage:
		return models.TypeContext
	default:
		return "other"
	}
}
