package recording

import (
	"strings"

	"github.com/yoockh/interviewstream/internal/models"
)

var (
	VideoPreferences = []string{
		"video/webm;codecs=vp9",
		"video/webm;codecs=vp8",
		"video/webm",
		"video/mp4",
	}
	AudioPreferences = []string{
		"audio/webm;codecs=opus",
		"audio/webm",
		"audio/mp4",
		"audio/wav",
	}
)

func Preferences(kind models.MediaKind) []string {
	if kind == models.MediaAudio {
		return AudioPreferences
	}
	return VideoPreferences
}

// Negotiate returns the first entry of prefs accepted by supports. A nil
// supports accepts everything. With no match it falls back to plain webm of
// the same media type.
func Negotiate(prefs []string, supports func(mime string) bool) string {
	for _, p := range prefs {
		if supports == nil || supports(p) {
			return p
		}
	}
	return Fallback(prefs)
}

func Fallback(prefs []string) string {
	if len(prefs) > 0 && strings.HasPrefix(BaseMIME(prefs[0]), "audio/") {
		return "audio/webm"
	}
	return "video/webm"
}

// BaseMIME strips codec parameters: "audio/webm;codecs=opus" -> "audio/webm".
func BaseMIME(mime string) string {
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return strings.TrimSpace(strings.ToLower(mime))
}

func Extension(mime string) string {
	switch BaseMIME(mime) {
	case "video/mp4", "audio/mp4":
		return "mp4"
	case "audio/wav", "audio/wave", "audio/x-wav":
		return "wav"
	default:
		return "webm"
	}
}
