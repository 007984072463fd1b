package recording

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/yoockh/interviewstream/internal/models"
)

func TestNegotiate(t *testing.T) {
	only := func(ok ...string) func(string) bool {
		return func(m string) bool {
			for _, o := range ok {
				if o == m {
					return true
				}
			}
			return false
		}
	}

	assert.Equal(t, "video/webm;codecs=vp9", Negotiate(VideoPreferences, nil))
	assert.Equal(t, "video/webm;codecs=vp8", Negotiate(VideoPreferences, only("video/mp4", "video/webm;codecs=vp8")))
	assert.Equal(t, "video/webm", Negotiate(VideoPreferences, only()))
	assert.Equal(t, "audio/mp4", Negotiate(AudioPreferences, only("audio/mp4", "audio/wav")))
	assert.Equal(t, "audio/webm", Negotiate(AudioPreferences, only()))
	assert.Equal(t, AudioPreferences, Preferences(models.MediaAudio))
	assert.Equal(t, VideoPreferences, Preferences(models.MediaVideo))
}

func TestExtension(t *testing.T) {
	for mime, want := range map[string]string{
		"video/webm;codecs=vp9":  "webm",
		"audio/webm;codecs=opus": "webm",
		"video/mp4":              "mp4",
		"audio/mp4":              "mp4",
		"audio/wav":              "wav",
		"application/x-unknown":  "webm",
		"":                       "webm",
	} {
		assert.Equal(t, want, Extension(mime), mime)
	}
}
