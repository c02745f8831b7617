package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/bobarin/mathcast/internal/render"
	"github.com/bobarin/mathcast/internal/segment"
)

// TTS providers accepted by TTS_PROVIDER.
const (
	TTSElevenLabs = "elevenlabs"
	TTSOpenAI     = "openai"
	TTSGemini     = "gemini"
	TTSCartesia   = "cartesia"
	TTSNone       = "none"
)

type Config struct {
	// Server
	APIPort            string
	WorkerEnabled      bool
	BackendAPIKey      string // API key for authenticating requests (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)
	LogMode            string // "production" for JSON logs, anything else for console

	// Redis (empty = in-process queue and cache)
	RedisURL string

	// Supabase (optional: completed videos are published when set)
	SupabaseURL           string
	SupabaseServiceKey    string
	SupabaseStorageBucket string

	// Output
	OutputDir string
	TempDir   string

	// Rendering
	RenderWidth  int
	RenderHeight int
	RenderFPS    int
	SampleRate   int
	Captions     bool

	// Segment durations
	IntroDuration      time.Duration
	AnalysisDuration   time.Duration
	StepDuration       time.Duration
	ConclusionDuration time.Duration

	// Narration
	TTSProvider     string
	TTSCacheEntries int           // In-memory cache size when Redis is not configured
	TTSCacheTTL     time.Duration // Redis cache TTL

	// ElevenLabs
	ElevenLabsKey     string
	ElevenLabsVoiceID string

	// OpenAI
	OpenAIKey   string
	OpenAIVoice string

	// Gemini
	GeminiKey   string
	GeminiVoice string

	// Cartesia
	CartesiaKey     string
	CartesiaURL     string
	CartesiaVoiceID string

	// Audio
	BackgroundMusicPath string // Path to background music file (empty = no music)

	// Worker
	MaxConcurrentJobs int
	JobRetention      time.Duration
	QueueCapacity     int
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	defaults := segment.DefaultDurations()
	format := render.DefaultFormat()

	cfg := &Config{
		APIPort:               getEnv("API_PORT", "8080"),
		WorkerEnabled:         getEnvBool("WORKER_ENABLED", true),
		BackendAPIKey:         getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins:    getEnv("CORS_ALLOWED_ORIGINS", ""),
		LogMode:               getEnv("LOG_MODE", "development"),
		RedisURL:              getEnv("REDIS_URL", ""),
		SupabaseURL:           getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:    getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseStorageBucket: getEnv("SUPABASE_STORAGE_BUCKET", "math-videos"),
		OutputDir:             getEnv("OUTPUT_DIR", "output"),
		TempDir:               getEnv("TEMP_DIR", filepath.Join(os.TempDir(), "mathcast")),
		RenderWidth:           getEnvInt("RENDER_WIDTH", format.Width),
		RenderHeight:          getEnvInt("RENDER_HEIGHT", format.Height),
		RenderFPS:             getEnvInt("RENDER_FPS", format.FPS),
		SampleRate:            getEnvInt("SAMPLE_RATE", 24000),
		Captions:              getEnvBool("CAPTIONS_ENABLED", true),
		IntroDuration:         getEnvDuration("INTRO_DURATION", defaults.Intro),
		AnalysisDuration:      getEnvDuration("ANALYSIS_DURATION", defaults.Analysis),
		StepDuration:          getEnvDuration("STEP_DURATION", defaults.Step),
		ConclusionDuration:    getEnvDuration("CONCLUSION_DURATION", defaults.Conclusion),
		TTSProvider:           strings.ToLower(getEnv("TTS_PROVIDER", "")),
		TTSCacheEntries:       getEnvInt("TTS_CACHE_ENTRIES", 512),
		TTSCacheTTL:           getEnvDuration("TTS_CACHE_TTL", 7*24*time.Hour),
		ElevenLabsKey:         getEnv("ELEVENLABS_API_KEY", ""),
		ElevenLabsVoiceID:     getEnv("ELEVENLABS_VOICE_ID", ""),
		OpenAIKey:             getEnv("OPENAI_API_KEY", ""),
		OpenAIVoice:           getEnv("OPENAI_TTS_VOICE", "alloy"),
		GeminiKey:             getEnv("GEMINI_API_KEY", ""),
		GeminiVoice:           getEnv("GEMINI_TTS_VOICE", "Kore"),
		CartesiaKey:           getEnv("CARTESIA_API_KEY", ""),
		CartesiaURL:           getEnv("CARTESIA_API_URL", "https://api.cartesia.ai"),
		CartesiaVoiceID:       getEnv("CARTESIA_VOICE_ID", ""),
		BackgroundMusicPath:   getEnv("BACKGROUND_MUSIC_PATH", ""),
		MaxConcurrentJobs:     getEnvInt("MAX_CONCURRENT_JOBS", 2),
		JobRetention:          getEnvDuration("JOB_RETENTION", 24*time.Hour),
		QueueCapacity:         getEnvInt("QUEUE_CAPACITY", 100),
	}

	if cfg.TTSProvider == "" {
		cfg.TTSProvider = detectProvider(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail deep inside a job.
func (c *Config) Validate() error {
	if err := c.Format().Validate(); err != nil {
		return fmt.Errorf("invalid render format: %w", err)
	}
	if err := c.Durations().Validate(c.RenderFPS); err != nil {
		return fmt.Errorf("invalid segment durations: %w", err)
	}
	if c.SampleRate < 8000 || c.SampleRate > 48000 {
		return fmt.Errorf("SAMPLE_RATE must be between 8000 and 48000, got %d", c.SampleRate)
	}
	if c.MaxConcurrentJobs < 1 {
		return fmt.Errorf("MAX_CONCURRENT_JOBS must be at least 1")
	}

	// The selected TTS provider must have its key
	switch c.TTSProvider {
	case TTSNone:
	case TTSElevenLabs:
		if c.ElevenLabsKey == "" || c.ElevenLabsVoiceID == "" {
			return fmt.Errorf("ELEVENLABS_API_KEY and ELEVENLABS_VOICE_ID are required for TTS_PROVIDER=elevenlabs")
		}
	case TTSOpenAI:
		if c.OpenAIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for TTS_PROVIDER=openai")
		}
	case TTSGemini:
		if c.GeminiKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for TTS_PROVIDER=gemini")
		}
	case TTSCartesia:
		if c.CartesiaKey == "" || c.CartesiaVoiceID == "" {
			return fmt.Errorf("CARTESIA_API_KEY and CARTESIA_VOICE_ID are required for TTS_PROVIDER=cartesia")
		}
	default:
		return fmt.Errorf("unknown TTS_PROVIDER %q", c.TTSProvider)
	}

	// Without Redis the queue and job status live in this process only
	if !c.WorkerEnabled && c.RedisURL == "" {
		return fmt.Errorf("WORKER_ENABLED=false requires REDIS_URL so another process can run the queued jobs")
	}

	// Publishing is all or nothing
	if (c.SupabaseURL == "") != (c.SupabaseServiceKey == "") {
		return fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY must be set together")
	}
	return nil
}

func (c *Config) Format() render.Format {
	return render.Format{Width: c.RenderWidth, Height: c.RenderHeight, FPS: c.RenderFPS}
}

func (c *Config) Durations() segment.Durations {
	return segment.Durations{
		Intro:      c.IntroDuration,
		Analysis:   c.AnalysisDuration,
		Step:       c.StepDuration,
		Conclusion: c.ConclusionDuration,
	}
}

func (c *Config) PublishEnabled() bool {
	return c.SupabaseURL != "" && c.SupabaseServiceKey != ""
}

// detectProvider picks the first provider with a key, ElevenLabs preferred.
func detectProvider(c *Config) string {
	switch {
	case c.ElevenLabsKey != "":
		return TTSElevenLabs
	case c.OpenAIKey != "":
		return TTSOpenAI
	case c.GeminiKey != "":
		return TTSGemini
	case c.CartesiaKey != "":
		return TTSCartesia
	default:
		return TTSNone
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("4s", "1h") or bare seconds ("4",
// "2.5").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultValue
}
