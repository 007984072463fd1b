package workers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoockh/interviewstream/config"
	"github.com/yoockh/interviewstream/internal/channel/channeltest"
	"github.com/yoockh/interviewstream/internal/services"
	"github.com/yoockh/interviewstream/internal/streamer"
)

func TestAudioRelayPool_ForwardsQueuedChunks(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	d := channeltest.NewDialer()
	reg := services.NewSessionRegistry(func() *streamer.Client {
		return streamer.New(streamer.Options{
			Endpoints: config.Endpoints{HTTPBaseURL: "http://backend"},
			Dialer:    d,
		})
	}, nil, nil)
	defer reg.CloseAll()

	ls, _, err := reg.Open("s1", "u1")
	require.NoError(t, err)
	require.NoError(t, ls.Client.ConnectVideoAnalysis(context.Background(), "s1"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := rdb.Subscribe(ctx, StatusChannel("s1"), StatusChannel("gone"))
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	pool := &AudioRelayPool{Redis: rdb, Sessions: reg, NumWorkers: 1}
	require.NoError(t, pool.Start(ctx))

	audio := base64.StdEncoding.EncodeToString([]byte("pcm-frame"))
	require.NoError(t, rdb.XAdd(ctx, &redis.XAddArgs{Stream: "audio:stream", Values: map[string]any{
		"session_id":   "s1",
		"chunk_index":  "1",
		"audio_base64": "data:audio/webm;base64," + audio,
	}}).Err())
	require.NoError(t, rdb.XAdd(ctx, &redis.XAddArgs{Stream: "audio:stream", Values: map[string]any{
		"session_id":   "gone",
		"chunk_index":  "2",
		"audio_base64": audio,
	}}).Err())

	statuses := map[string]string{}
	for len(statuses) < 2 {
		select {
		case m := <-sub.Channel():
			var st map[string]any
			require.NoError(t, json.Unmarshal([]byte(m.Payload), &st))
			statuses[m.Channel] = st["status"].(string)
		case <-time.After(3 * time.Second):
			t.Fatalf("statuses so far: %v", statuses)
		}
	}
	assert.Equal(t, "sent", statuses["session:s1:status"])
	assert.Equal(t, "failed", statuses["session:gone:status"])

	msgs := d.For("ws://backend/media/llm/stream/s1").Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "audio_chunk", msgs[0]["type"])
	assert.Equal(t, "u1", msgs[0]["user_id"])
	assert.Equal(t, audio, msgs[0]["data"])

	cancel()
	pool.Wait()
}

func TestAudioRelayPool_FetchAudio(t *testing.T) {
	p := &AudioRelayPool{}

	_, err := p.fetchAudio(context.Background(), "", "")
	assert.Error(t, err)

	_, err = p.fetchAudio(context.Background(), "%%%", "")
	assert.EqualError(t, err, "invalid audio_base64")

	b, err := p.fetchAudio(context.Background(), base64.StdEncoding.EncodeToString([]byte("x")), "")
	require.NoError(t, err)
	assert.Equal(t, "x", string(b))
}

func TestAudioRelayPool_StatusPayloadIsEscaped(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	ctx := context.Background()

	sub := rdb.Subscribe(ctx, StatusChannel("s1"))
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	p := &AudioRelayPool{Redis: rdb}
	p.publishStatus(ctx, "s1", "failed", `bad "quote" \ and`+"\n newline", 7)

	select {
	case m := <-sub.Channel():
		var st map[string]any
		require.NoError(t, json.Unmarshal([]byte(m.Payload), &st))
		assert.Equal(t, "status", st["type"])
		assert.Equal(t, "failed", st["status"])
		assert.Equal(t, `bad "quote" \ and`+"\n newline", st["message"])
		assert.Equal(t, float64(7), st["chunk_index"])
	case <-time.After(2 * time.Second):
		t.Fatal("no status published")
	}
}

func TestAudioRelayPool_RequiresDeps(t *testing.T) {
	assert.Error(t, (&AudioRelayPool{}).Start(context.Background()))
}
