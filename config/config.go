package config

import (
	"errors"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
)

// Endpoints locates the media backend. Every path is joined with the session
// id where the endpoint is session scoped.
type Endpoints struct {
	HTTPBaseURL string `env:"MEDIA_BASE_URL" envDefault:"http://localhost:8000"`
	WSBaseURL   string `env:"MEDIA_WS_URL"`

	VideoStreamPath  string `env:"MEDIA_VIDEO_PATH" envDefault:"/media/llm/stream"`
	ScreenStreamPath string `env:"MEDIA_SCREEN_PATH" envDefault:"/media/llm/screen"`
	RecordingPath    string `env:"MEDIA_RECORDING_PATH" envDefault:"/media/ws"`
	InsightsPath     string `env:"MEDIA_INSIGHTS_PATH" envDefault:"/media/llm/insights"`
	StreamStartPath  string `env:"MEDIA_STREAM_START_PATH" envDefault:"/media/stream/start"`
	SessionFilesPath string `env:"MEDIA_SESSION_FILES_PATH" envDefault:"/media/session"`
	UploadVideoPath  string `env:"MEDIA_UPLOAD_VIDEO_PATH" envDefault:"/media/upload/video"`
	UploadAudioPath  string `env:"MEDIA_UPLOAD_AUDIO_PATH" envDefault:"/media/upload/audio"`
}

// WebsocketBase returns WSBaseURL, or HTTPBaseURL with its scheme swapped.
func (e Endpoints) WebsocketBase() string {
	if e.WSBaseURL != "" {
		return e.WSBaseURL
	}
	switch {
	case strings.HasPrefix(e.HTTPBaseURL, "https://"):
		return "wss://" + strings.TrimPrefix(e.HTTPBaseURL, "https://")
	case strings.HasPrefix(e.HTTPBaseURL, "http://"):
		return "ws://" + strings.TrimPrefix(e.HTTPBaseURL, "http://")
	default:
		return e.HTTPBaseURL
	}
}

type Analysis struct {
	VideoInterval  time.Duration `env:"VIDEO_FRAME_INTERVAL" envDefault:"15s"`
	ScreenInterval time.Duration `env:"SCREEN_FRAME_INTERVAL" envDefault:"30s"`
	VideoWidth     int           `env:"VIDEO_FRAME_WIDTH" envDefault:"640"`
	ScreenWidth    int           `env:"SCREEN_FRAME_WIDTH" envDefault:"1024"`
	JPEGQuality    int           `env:"JPEG_QUALITY" envDefault:"50"`
	ChunkInterval  time.Duration `env:"RECORDING_CHUNK_INTERVAL" envDefault:"1s"`
	InsightsTTL    time.Duration `env:"INSIGHTS_CACHE_TTL" envDefault:"10s"`
}

type Policy struct {
	Name     string        `env:"CONNECT_POLICY" envDefault:"none"`
	Attempts int           `env:"CONNECT_ATTEMPTS" envDefault:"3"`
	Delay    time.Duration `env:"CONNECT_DELAY" envDefault:"1s"`
}

type Config struct {
	Env      string `env:"GO_ENV" envDefault:"development"`
	Port     string `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	Endpoints Endpoints
	Analysis  Analysis
	Policy    Policy

	// Optional sinks. Empty disables the component.
	RedisAddr   string        `env:"REDIS_ADDR"`
	MongoURI    string        `env:"MONGO_URI"`
	MongoDB     string        `env:"MONGO_DB" envDefault:"interviewstream"`
	JournalTTL  time.Duration `env:"ANALYSIS_JOURNAL_TTL" envDefault:"24h"`
	PostgresURI string        `env:"POSTGRES_URI"`
	GCSBucket   string        `env:"GCS_BUCKET"`
	GCSPublic   bool          `env:"GCS_PUBLIC"`

	// JWTSecret enables bearer auth on the agent API.
	JWTSecret string `env:"AGENT_JWT_SECRET"`
}

func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, err
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	if c.Endpoints.HTTPBaseURL == "" {
		return errors.New("MEDIA_BASE_URL must not be empty")
	}
	if c.Analysis.VideoWidth <= 0 || c.Analysis.ScreenWidth <= 0 {
		return errors.New("frame widths must be positive")
	}
	if c.Analysis.JPEGQuality < 1 || c.Analysis.JPEGQuality > 100 {
		return errors.New("JPEG_QUALITY must be within 1..100")
	}
	return nil
}
