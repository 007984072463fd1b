package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interviewstream_frames_sent_total",
		Help: "Messages written to an analysis channel, by channel and message type.",
	}, []string{"channel", "type"})

	FramesDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interviewstream_frames_dropped_total",
		Help: "Emissions dropped before reaching the transport, by channel and reason.",
	}, []string{"channel", "reason"})

	ChannelTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interviewstream_channel_transitions_total",
		Help: "Channel state transitions, by channel and target state.",
	}, []string{"channel", "state"})

	InboundDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interviewstream_inbound_dropped_total",
		Help: "Inbound messages that failed to parse.",
	}, []string{"channel"})

	RecordingChunksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interviewstream_recording_chunks_total",
		Help: "Chunks appended to recording buffers, by media kind.",
	}, []string{"kind"})

	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interviewstream_uploads_total",
		Help: "Recording uploads, by destination and result.",
	}, []string{"destination", "result"})

	SubscriberPanicsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "interviewstream_subscriber_panics_total",
		Help: "Analysis subscribers that panicked during publish.",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "interviewstream_http_request_duration_seconds",
		Help:    "Agent API latency, by route and status class.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// Drop reasons.
const (
	ReasonNotOpen   = "not_open"
	ReasonThrottled = "throttled"
	ReasonCapture   = "capture_failed"
	ReasonEncode    = "encode_failed"
	ReasonWrite     = "write_failed"
)
