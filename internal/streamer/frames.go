package streamer

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/interviewstream/internal/capture"
	"github.com/yoockh/interviewstream/internal/channel"
	"github.com/yoockh/interviewstream/internal/metrics"
	"github.com/yoockh/interviewstream/internal/models"
)

// SendInterviewContext primes the analyzer on the video channel.
func (c *Client) SendInterviewContext(ictx models.InterviewContext) bool {
	ch := c.channel(c.video.name)
	if ch == nil {
		metrics.FramesDroppedTotal.WithLabelValues(c.video.name, metrics.ReasonNotOpen).Inc()
		return false
	}
	return ch.Send(models.ContextMessage{Context: ictx, Timestamp: c.opts.Clock()})
}

// SendVideoFrame captures src at the video width and sends it, at most once
// per minInterval. Zero minInterval uses the configured default.
func (c *Client) SendVideoFrame(ctx context.Context, src capture.Source, userID string, minInterval time.Duration) bool {
	return c.sendFrame(ctx, c.video, src, userID, minInterval)
}

// SendScreenShare is SendVideoFrame for the screen channel.
func (c *Client) SendScreenShare(ctx context.Context, src capture.Source, userID string, minInterval time.Duration) bool {
	return c.sendFrame(ctx, c.screen, src, userID, minInterval)
}

// SendAudioChunk forwards raw audio on the video channel. Not throttled.
func (c *Client) SendAudioChunk(data []byte, userID string) bool {
	ch := c.channel(c.video.name)
	if ch == nil || len(data) == 0 {
		return false
	}
	msg := models.NewFrameMessage(models.TypeAudioChunk, base64.StdEncoding.EncodeToString(data), userID, c.opts.Clock())
	return ch.Send(msg)
}

// sendFrame consults the throttle only while the channel is open, so frames
// skipped during a disconnect do not burst out on reconnect. An accepted slot
// is spent even when capture then fails.
func (c *Client) sendFrame(ctx context.Context, s stream, src capture.Source, userID string, minInterval time.Duration) bool {
	ch := c.channel(s.name)
	if ch == nil || ch.State() != channel.StateOpen {
		metrics.FramesDroppedTotal.WithLabelValues(s.name, metrics.ReasonNotOpen).Inc()
		return false
	}
	if minInterval <= 0 {
		minInterval = s.minInterval
	}

	now := c.opts.Clock()
	if !c.emitter.ShouldEmit(s.throttleKey, minInterval, now) {
		metrics.FramesDroppedTotal.WithLabelValues(s.name, metrics.ReasonThrottled).Inc()
		return false
	}

	log := c.log.WithFields(logrus.Fields{"channel": s.name, "session_id": ch.SessionID()})

	img, err := capture.CaptureFrame(ctx, src, s.width)
	if err != nil {
		metrics.FramesDroppedTotal.WithLabelValues(s.name, metrics.ReasonCapture).Inc()
		log.WithError(err).Debug("frame capture failed")
		return false
	}
	data, err := capture.EncodeBase64(img, c.opts.Analysis.JPEGQuality)
	if err != nil {
		metrics.FramesDroppedTotal.WithLabelValues(s.name, metrics.ReasonEncode).Inc()
		log.WithError(err).Warn("frame encode failed")
		return false
	}
	return ch.Send(models.NewFrameMessage(s.msgType, data, userID, now))
}
