package config

import (
	"strings"
	"testing"
	"time"
)

// clearEnv blanks every key Load reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"API_PORT", "WORKER_ENABLED", "BACKEND_API_KEY", "CORS_ALLOWED_ORIGINS", "LOG_MODE",
		"REDIS_URL", "SUPABASE_URL", "SUPABASE_SERVICE_KEY", "SUPABASE_STORAGE_BUCKET",
		"OUTPUT_DIR", "TEMP_DIR", "RENDER_WIDTH", "RENDER_HEIGHT", "RENDER_FPS", "SAMPLE_RATE",
		"CAPTIONS_ENABLED", "INTRO_DURATION", "ANALYSIS_DURATION", "STEP_DURATION", "CONCLUSION_DURATION",
		"TTS_PROVIDER", "TTS_CACHE_ENTRIES", "TTS_CACHE_TTL",
		"ELEVENLABS_API_KEY", "ELEVENLABS_VOICE_ID", "OPENAI_API_KEY", "OPENAI_TTS_VOICE",
		"GEMINI_API_KEY", "GEMINI_TTS_VOICE", "CARTESIA_API_KEY", "CARTESIA_API_URL", "CARTESIA_VOICE_ID",
		"BACKGROUND_MUSIC_PATH", "MAX_CONCURRENT_JOBS", "JOB_RETENTION", "QUEUE_CAPACITY",
	} {
		t.Setenv(k, "")
	}
	t.Chdir(t.TempDir()) // no stray .env
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("defaults should be valid: %v", err)
	}
	if cfg.TTSProvider != TTSNone {
		t.Errorf("expected no provider without keys, got %s", cfg.TTSProvider)
	}
	d := cfg.Durations()
	if d.Intro != 4*time.Second || d.Analysis != 3*time.Second || d.Step != 4*time.Second || d.Conclusion != 3*time.Second {
		t.Errorf("unexpected default durations %+v", d)
	}
	if f := cfg.Format(); f.Width != 1280 || f.Height != 720 {
		t.Errorf("unexpected default format %+v", f)
	}
	if cfg.PublishEnabled() {
		t.Error("publishing should be off by default")
	}
}

func TestLoadDetectsProvider(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("CARTESIA_API_KEY", "c-test")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.TTSProvider != TTSOpenAI {
		t.Errorf("expected openai, got %s", cfg.TTSProvider)
	}
}

func TestLoadDurations(t *testing.T) {
	clearEnv(t)
	t.Setenv("STEP_DURATION", "5")
	t.Setenv("INTRO_DURATION", "2500ms")
	t.Setenv("RENDER_FPS", "2")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.StepDuration != 5*time.Second || cfg.IntroDuration != 2500*time.Millisecond {
		t.Errorf("durations not parsed: step=%v intro=%v", cfg.StepDuration, cfg.IntroDuration)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"fractional frame", map[string]string{"STEP_DURATION": "4.05", "RENDER_FPS": "10"}, "segment durations"},
		{"odd width", map[string]string{"RENDER_WIDTH": "1281"}, "render format"},
		{"unknown provider", map[string]string{"TTS_PROVIDER": "espeak"}, "unknown TTS_PROVIDER"},
		{"provider without key", map[string]string{"TTS_PROVIDER": "elevenlabs"}, "ELEVENLABS_API_KEY"},
		{"half supabase", map[string]string{"SUPABASE_URL": "https://x.supabase.co"}, "SUPABASE"},
		{"no workers", map[string]string{"MAX_CONCURRENT_JOBS": "0"}, "MAX_CONCURRENT_JOBS"},
		{"sample rate", map[string]string{"SAMPLE_RATE": "1000"}, "SAMPLE_RATE"},
		{"worker off without redis", map[string]string{"WORKER_ENABLED": "false"}, "REDIS_URL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadAPIOnlyWithRedis(t *testing.T) {
	clearEnv(t)
	t.Setenv("WORKER_ENABLED", "false")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("API-only mode with redis should be valid: %v", err)
	}
	if cfg.WorkerEnabled {
		t.Error("worker should be disabled")
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("X_DUR", "garbage")
	if got := getEnvDuration("X_DUR", time.Second); got != time.Second {
		t.Errorf("garbage should fall back to default, got %v", got)
	}
	t.Setenv("X_DUR", "1.5")
	if got := getEnvDuration("X_DUR", 0); got != 1500*time.Millisecond {
		t.Errorf("expected 1.5s, got %v", got)
	}
}
