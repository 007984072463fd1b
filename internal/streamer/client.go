// Package streamer is the session-scoped client the UI layer drives: it owns
// the analysis channels, the throttle state, the periodic capture loops and
// the dispatcher that fans analysis results out to observers.
package streamer

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/yoockh/interviewstream/config"
	"github.com/yoockh/interviewstream/internal/cache"
	"github.com/yoockh/interviewstream/internal/channel"
	"github.com/yoockh/interviewstream/internal/dispatch"
	"github.com/yoockh/interviewstream/internal/logger"
	"github.com/yoockh/interviewstream/internal/models"
	"github.com/yoockh/interviewstream/internal/throttle"
	"github.com/yoockh/interviewstream/internal/utils"
)

// Ticker returns a tick channel and its stop func.
type Ticker func(d time.Duration) (<-chan time.Time, func())

func realTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

type Options struct {
	Endpoints config.Endpoints
	Analysis  config.Analysis

	// Policy governs reconnects on a failed open. Nil never retries.
	Policy     channel.ConnectionPolicy
	Dialer     channel.Dialer
	HTTPClient *http.Client
	// Cache holds insights for Analysis.InsightsTTL. Optional.
	Cache cache.Cache

	Clock  func() time.Time
	Ticker Ticker
	Logger logrus.FieldLogger
}

// stream describes one analysis channel.
type stream struct {
	name        string
	path        string
	throttleKey string
	msgType     string
	width       int
	minInterval time.Duration
}

type Client struct {
	opts       Options
	log        logrus.FieldLogger
	emitter    *throttle.Emitter
	dispatcher *dispatch.Dispatcher

	video  stream
	screen stream

	mu         sync.Mutex
	gen        uint64
	sessionID  string
	channels   map[string]*channel.Channel
	connecting map[uint64]context.CancelFunc
	nextConnID uint64
	loops      map[*Loop]struct{}
}

func New(opts Options) *Client {
	if opts.Analysis.VideoInterval <= 0 {
		opts.Analysis.VideoInterval = 15 * time.Second
	}
	if opts.Analysis.ScreenInterval <= 0 {
		opts.Analysis.ScreenInterval = 30 * time.Second
	}
	if opts.Analysis.VideoWidth <= 0 {
		opts.Analysis.VideoWidth = 640
	}
	if opts.Analysis.ScreenWidth <= 0 {
		opts.Analysis.ScreenWidth = 1024
	}
	if opts.Analysis.JPEGQuality <= 0 {
		opts.Analysis.JPEGQuality = 50
	}
	if opts.Policy == nil {
		opts.Policy = channel.NoRetry{}
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Ticker == nil {
		opts.Ticker = realTicker
	}
	ep := opts.Endpoints
	if ep.VideoStreamPath == "" {
		ep.VideoStreamPath = "/media/llm/stream"
	}
	if ep.ScreenStreamPath == "" {
		ep.ScreenStreamPath = "/media/llm/screen"
	}
	if ep.RecordingPath == "" {
		ep.RecordingPath = "/media/ws"
	}
	if ep.InsightsPath == "" {
		ep.InsightsPath = "/media/llm/insights"
	}
	opts.Endpoints = ep

	log := logger.OrDiscard(opts.Logger)
	return &Client{
		opts:       opts,
		log:        log,
		emitter:    throttle.NewEmitter(),
		dispatcher: dispatch.NewDispatcher(log),
		video: stream{
			name:        "video",
			path:        ep.VideoStreamPath,
			throttleKey: throttle.KeyVideo,
			msgType:     models.TypeVideoFrame,
			width:       opts.Analysis.VideoWidth,
			minInterval: opts.Analysis.VideoInterval,
		},
		screen: stream{
			name:        "screen",
			path:        ep.ScreenStreamPath,
			throttleKey: throttle.KeyScreen,
			msgType:     models.TypeScreenShare,
			width:       opts.Analysis.ScreenWidth,
			minInterval: opts.Analysis.ScreenInterval,
		},
		channels:   make(map[string]*channel.Channel),
		connecting: make(map[uint64]context.CancelFunc),
		loops:      make(map[*Loop]struct{}),
	}
}

// SessionID is the session of the last successful connect, empty after
// Cleanup.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// ChannelState reports the state of the named channel ("video", "screen",
// "recording"); idle when it was never opened.
func (c *Client) ChannelState(name string) channel.State {
	c.mu.Lock()
	ch := c.channels[name]
	c.mu.Unlock()
	if ch == nil {
		return channel.StateIdle
	}
	return ch.State()
}

func (c *Client) channel(name string) *channel.Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channels[name]
}

// OnAnalysis registers cb for every inbound result on every channel.
func (c *Client) OnAnalysis(cb dispatch.Callback) (unsubscribe func()) {
	return c.dispatcher.Subscribe(cb)
}

func (c *Client) ConnectVideoAnalysis(ctx context.Context, sessionID string) error {
	_, _, err := c.connect(ctx, c.video.name, c.video.path, sessionID)
	return err
}

func (c *Client) ConnectScreenAnalysis(ctx context.Context, sessionID string) error {
	_, _, err := c.connect(ctx, c.screen.name, c.screen.path, sessionID)
	return err
}

// OpenRecordingChannel opens the raw recording socket. Recording sessions use
// it to forward chunks live.
func (c *Client) OpenRecordingChannel(ctx context.Context, sessionID string) (*channel.Channel, error) {
	ch, _, err := c.connect(ctx, "recording", c.opts.Endpoints.RecordingPath, sessionID)
	return ch, err
}

// connect opens the named channel unless it is already open or connecting for
// the same session. Cleanup cancels connects in flight. The returned gen is
// the cleanup generation the channel belongs to.
func (c *Client) connect(ctx context.Context, name, path, sessionID string) (*channel.Channel, uint64, error) {
	const op = "Client.Connect"

	if sessionID == "" {
		return nil, 0, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}

	c.mu.Lock()
	gen := c.gen
	if ch := c.channels[name]; ch != nil {
		if st := ch.State(); st == channel.StateOpen || st == channel.StateConnecting {
			same := ch.SessionID() == sessionID
			c.mu.Unlock()
			if same {
				return ch, gen, nil
			}
			return nil, 0, utils.E(utils.CodeConflict, op, name+" channel is bound to another session", nil)
		}
	}
	ctx, cancel := context.WithCancel(ctx)
	c.nextConnID++
	connID := c.nextConnID
	c.connecting[connID] = cancel
	c.mu.Unlock()

	defer func() {
		cancel()
		c.mu.Lock()
		delete(c.connecting, connID)
		c.mu.Unlock()
	}()

	newChannel := func() *channel.Channel {
		ch := channel.New(channel.Config{
			Name:    name,
			BaseURL: c.opts.Endpoints.WebsocketBase(),
			Path:    path,
			Dialer:  c.opts.Dialer,
			Logger:  c.log,
		})
		ch.OnMessage(c.dispatcher.Publish)

		c.mu.Lock()
		if c.gen == gen {
			c.channels[name] = ch
		}
		c.mu.Unlock()
		return ch
	}

	ch, err := channel.OpenWithPolicy(ctx, newChannel, sessionID, c.opts.Policy)
	if err != nil {
		return nil, 0, err
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		_ = ch.Close()
		return nil, 0, utils.E(utils.CodeUnavailable, op, "client cleaned up while connecting", channel.ErrClosed)
	}
	c.sessionID = sessionID
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{"session_id": sessionID, "channel": name}).Info("analysis channel connected")
	return ch, gen, nil
}

// Cleanup stops every loop, cancels connects in flight, closes every channel
// and drops all subscribers. Safe to call at any time and more than once; the
// client can connect again afterwards.
func (c *Client) Cleanup() {
	c.mu.Lock()
	c.gen++
	cancels := c.connecting
	c.connecting = make(map[uint64]context.CancelFunc)
	loops := c.loops
	c.loops = make(map[*Loop]struct{})
	chans := c.channels
	c.channels = make(map[string]*channel.Channel)
	sessionID := c.sessionID
	c.sessionID = ""
	c.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	for l := range loops {
		l.Stop()
	}

	var g errgroup.Group
	for _, ch := range chans {
		ch := ch
		g.Go(ch.Close)
	}
	if err := g.Wait(); err != nil {
		c.log.WithError(err).WithField("session_id", sessionID).Warn("channel close failed")
	}

	c.dispatcher.Clear()
	c.emitter.ResetAll()

	if sessionID != "" {
		c.log.WithField("session_id", sessionID).Info("streamer cleaned up")
	}
}
