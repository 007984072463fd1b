package streamer

import (
	"context"
	"sync"
	"time"

	"github.com/yoockh/interviewstream/internal/capture"
	"github.com/yoockh/interviewstream/internal/channel"
	"github.com/yoockh/interviewstream/internal/utils"
)

// Loop is a periodic capture started by Start*Analysis.
type Loop struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Stop cancels the loop and waits for its goroutine. Idempotent.
func (l *Loop) Stop() {
	l.once.Do(l.cancel)
	<-l.done
}

// Done is closed when the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} { return l.done }

// StartVideoAnalysis connects the video channel if needed, sends one frame
// right away and then attempts one frame per interval. interval is also the
// throttle interval for the loop's attempts. The loop ends on Stop, Cleanup or
// when ctx is done.
func (c *Client) StartVideoAnalysis(ctx context.Context, sessionID string, src capture.Source, userID string, interval time.Duration) (*Loop, error) {
	_, gen, err := c.connect(ctx, c.video.name, c.video.path, sessionID)
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = c.video.minInterval
	}
	return c.startLoop(ctx, c.video, src, userID, interval, gen)
}

func (c *Client) StartScreenAnalysis(ctx context.Context, sessionID string, src capture.Source, userID string, interval time.Duration) (*Loop, error) {
	_, gen, err := c.connect(ctx, c.screen.name, c.screen.path, sessionID)
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = c.screen.minInterval
	}
	return c.startLoop(ctx, c.screen, src, userID, interval, gen)
}

// startLoop refuses to start when a Cleanup ran since the channel was opened
// under gen.
func (c *Client) startLoop(ctx context.Context, s stream, src capture.Source, userID string, interval time.Duration, gen uint64) (*Loop, error) {
	const op = "Client.StartLoop"

	ctx, cancel := context.WithCancel(ctx)
	l := &Loop{cancel: cancel, done: make(chan struct{})}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		cancel()
		return nil, utils.E(utils.CodeUnavailable, op, "client cleaned up before the loop started", channel.ErrClosed)
	}
	c.loops[l] = struct{}{}
	c.mu.Unlock()

	c.sendFrame(ctx, s, src, userID, interval)

	ticks, stopTicks := c.opts.Ticker(interval)
	go func() {
		defer close(l.done)
		defer stopTicks()
		defer func() {
			c.mu.Lock()
			delete(c.loops, l)
			c.mu.Unlock()
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticks:
				c.sendFrame(ctx, s, src, userID, interval)
			}
		}
	}()

	c.log.WithField("channel", s.name).WithField("interval", interval.String()).Info("capture loop started")
	return l, nil
}
