package workers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/interviewstream/internal/logger"
	"github.com/yoockh/interviewstream/internal/services"
)

const maxAudioBytes = 10 << 20

// StatusChannel carries relay progress for one session.
func StatusChannel(sessionID string) string { return "session:" + sessionID + ":status" }

// AudioRelayPool drains queued audio chunks from a Redis stream and forwards
// each one on its live session's video channel.
type AudioRelayPool struct {
	Redis      *redis.Client
	Sessions   services.SessionRegistry
	HTTP       *http.Client
	NumWorkers int

	Logger logrus.FieldLogger

	Stream         string
	Group          string
	ConsumerPrefix string

	wg sync.WaitGroup
}

func (p *AudioRelayPool) Start(ctx context.Context) error {
	if p.Redis == nil || p.Sessions == nil {
		return errors.New("AudioRelayPool missing dependency: Redis/Sessions must be set")
	}
	if p.Stream == "" {
		p.Stream = "audio:stream"
	}
	if p.Group == "" {
		p.Group = "audio-relay"
	}
	if p.ConsumerPrefix == "" {
		p.ConsumerPrefix = "c"
	}
	if p.NumWorkers <= 0 {
		p.NumWorkers = 2
	}
	if p.HTTP == nil {
		p.HTTP = &http.Client{Timeout: 10 * time.Second}
	}
	p.Logger = logger.OrDiscard(p.Logger)

	_ = p.Redis.XGroupCreateMkStream(ctx, p.Stream, p.Group, "0").Err() // ignore BUSYGROUP

	for i := 0; i < p.NumWorkers; i++ {
		consumer := p.ConsumerPrefix + "-" + strconv.Itoa(i+1)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.runConsumer(ctx, consumer)
		}()
	}
	return nil
}

// Wait blocks until every consumer has exited after ctx ended.
func (p *AudioRelayPool) Wait() { p.wg.Wait() }

func (p *AudioRelayPool) runConsumer(ctx context.Context, consumer string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := p.Redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    p.Group,
			Consumer: consumer,
			Streams:  []string{p.Stream, ">"},
			Count:    10,
			Block:    time.Second,
		}).Result()

		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(500 * time.Millisecond):
			}
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				p.handleMsg(ctx, msg)
				_ = p.Redis.XAck(ctx, p.Stream, p.Group, msg.ID).Err()
			}
		}
	}
}

type relayStatus struct {
	Type       string `json:"type"`
	Status     string `json:"status"`
	Message    string `json:"message"`
	ChunkIndex int64  `json:"chunk_index"`
}

func (p *AudioRelayPool) publishStatus(ctx context.Context, sessionID, status, message string, chunkIndex int64) {
	payload, err := json.Marshal(relayStatus{Type: "status", Status: status, Message: message, ChunkIndex: chunkIndex})
	if err != nil {
		return
	}
	_ = p.Redis.Publish(ctx, StatusChannel(sessionID), payload).Err()
}

func (p *AudioRelayPool) handleMsg(ctx context.Context, msg redis.XMessage) {
	getStr := func(k string) string {
		v, ok := msg.Values[k]
		if !ok || v == nil {
			return ""
		}
		s, _ := v.(string)
		return s
	}

	sessionID := getStr("session_id")
	if sessionID == "" {
		return
	}
	chunkIndex, _ := strconv.ParseInt(getStr("chunk_index"), 10, 64)

	log := p.Logger.WithFields(logrus.Fields{
		"redis_id":    msg.ID,
		"session_id":  sessionID,
		"chunk_index": chunkIndex,
	})

	ls, err := p.Sessions.Get(sessionID)
	if err != nil {
		p.publishStatus(ctx, sessionID, "failed", "no live session", chunkIndex)
		return
	}
	userID := getStr("user_id")
	if userID == "" {
		userID = ls.UserID
	}

	audio, err := p.fetchAudio(ctx, getStr("audio_base64"), getStr("audio_url"))
	if err != nil {
		log.WithError(err).Warn("audio chunk unreadable")
		p.publishStatus(ctx, sessionID, "failed", err.Error(), chunkIndex)
		return
	}

	if !ls.Client.SendAudioChunk(audio, userID) {
		p.publishStatus(ctx, sessionID, "failed", "video channel not open", chunkIndex)
		return
	}
	p.publishStatus(ctx, sessionID, "sent", "audio chunk forwarded", chunkIndex)
}

func (p *AudioRelayPool) fetchAudio(ctx context.Context, b64, url string) ([]byte, error) {
	switch {
	case b64 != "":
		raw := b64
		if i := strings.Index(raw, ","); i >= 0 {
			raw = raw[i+1:] // strip data:...;base64,
		}
		b, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, errors.New("invalid audio_base64")
		}
		return b, nil
	case url != "":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, errors.New("invalid audio_url")
		}
		resp, err := p.HTTP.Do(req)
		if err != nil {
			return nil, errors.New("failed to fetch audio_url")
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
		if resp.StatusCode < 200 || resp.StatusCode > 299 || len(body) == 0 {
			return nil, errors.New("empty audio")
		}
		return body, nil
	default:
		return nil, errors.New("audio_base64 or audio_url required")
	}
}
