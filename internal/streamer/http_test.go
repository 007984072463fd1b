package streamer

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoockh/interviewstream/config"
	"github.com/yoockh/interviewstream/internal/cache"
	"github.com/yoockh/interviewstream/internal/utils"
)

func TestSessionInsights_CachedInRedis(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/media/llm/insights/s1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"summary":"steady eye contact","score":8}`)
	}))
	defer srv.Close()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	h := newHarness(t, func(o *Options) {
		o.Endpoints.HTTPBaseURL = srv.URL
		o.Endpoints.WSBaseURL = "ws://backend"
		o.HTTPClient = srv.Client()
		o.Cache = cache.NewRedisCache(rdb)
		o.Analysis.InsightsTTL = 10 * time.Second
	})
	ctx := context.Background()

	_, err := h.client.SessionInsights(ctx)
	assert.True(t, utils.IsCode(err, utils.CodeFailedPrecondition))

	require.NoError(t, h.client.ConnectVideoAnalysis(ctx, "s1"))

	first, err := h.client.SessionInsights(ctx)
	require.NoError(t, err)
	assert.Equal(t, "steady eye contact", first["summary"])

	second, err := h.client.SessionInsights(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, hits.Load())
	assert.True(t, mr.Exists("session:s1:insights"))

	mr.FastForward(11 * time.Second)
	_, err = h.client.SessionInsights(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, hits.Load())
}

func TestInsights_BackendErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/media/llm/insights/missing" {
			http.Error(w, "no such session", http.StatusNotFound)
			return
		}
		http.Error(w, "analyzer overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(Options{Endpoints: config.Endpoints{HTTPBaseURL: srv.URL}, HTTPClient: srv.Client()})

	_, err := c.Insights(context.Background(), "missing")
	assert.True(t, utils.IsCode(err, utils.CodeNotFound))
	assert.Contains(t, err.Error(), "no such session")

	_, err = c.Insights(context.Background(), "s1")
	assert.True(t, utils.IsCode(err, utils.CodeUnavailable))
	assert.Contains(t, err.Error(), "analyzer overloaded")
}

func TestMediaAPI(t *testing.T) {
	type call struct {
		method, path string
		body         StartStreamRequest
	}
	calls := make(chan call, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := call{method: r.Method, path: r.URL.Path}
		if r.Method == http.MethodPost {
			_ = json.NewDecoder(r.Body).Decode(&c.body)
		}
		calls <- c
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/media/stream/start":
			_, _ = io.WriteString(w, `{"status":"started","session_id":"s1"}`)
		default:
			_, _ = io.WriteString(w, `{"files":[{"name":"video_1.webm"}]}`)
		}
	}))
	defer srv.Close()

	api := NewMediaAPI(config.Endpoints{HTTPBaseURL: srv.URL}, srv.Client())
	ctx := context.Background()

	out, err := api.StartStreamingSession(ctx, "s1", "u1", "")
	require.NoError(t, err)
	assert.Equal(t, "started", out["status"])
	c := <-calls
	assert.Equal(t, http.MethodPost, c.method)
	assert.Equal(t, "/media/stream/start", c.path)
	assert.Equal(t, StartStreamRequest{SessionID: "s1", UserID: "u1", StreamType: "video"}, c.body)

	files, err := api.SessionFiles(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, files["files"], 1)
	c = <-calls
	assert.Equal(t, http.MethodGet, c.method)
	assert.Equal(t, "/media/session/s1/files", c.path)

	_, err = api.SessionFiles(ctx, "")
	assert.True(t, utils.IsCode(err, utils.CodeInvalidArgument))
}
