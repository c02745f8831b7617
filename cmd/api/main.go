package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/bobarin/mathcast/internal/api"
	"github.com/bobarin/mathcast/internal/config"
	"github.com/bobarin/mathcast/internal/logger"
	"github.com/bobarin/mathcast/internal/media"
	"github.com/bobarin/mathcast/internal/pipeline"
	"github.com/bobarin/mathcast/internal/queue"
	"github.com/bobarin/mathcast/internal/services"
	"github.com/bobarin/mathcast/internal/storage"
	"github.com/bobarin/mathcast/internal/tracker"
	"github.com/bobarin/mathcast/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		boot, _ := logger.New("development")
		boot.Fatal("failed to load config", "error", err)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("starting mathcast API")

	// Redis backs the queue, job status and the narration cache when configured
	var rdb *redis.Client
	var q queue.Queue
	if cfg.RedisURL != "" {
		rdb, err = queue.Connect(cfg.RedisURL)
		if err != nil {
			log.Fatal("failed to connect to redis", "error", err)
		}
		q = queue.NewWithClient(rdb)
		log.Info("connected to redis queue")
	} else {
		q = queue.NewMemory(cfg.QueueCapacity)
		log.Warn("REDIS_URL not set, using in-process queue")
	}
	defer q.Close()

	// Job status lives next to the queue so API-only and worker-only
	// processes agree on it
	var jobs tracker.Store
	if rdb != nil {
		jobs = tracker.NewRedis(rdb, cfg.JobRetention)
	} else {
		jobs = tracker.New()
	}

	ffmpeg := media.New(log)
	if err := ffmpeg.Available(); err != nil {
		log.Warn("ffmpeg not available, every render will fail", "error", err)
	}

	synth := newSynthesizer(context.Background(), cfg, rdb, log)

	pipe := pipeline.New(pipeline.Config{
		Format:     cfg.Format(),
		Durations:  cfg.Durations(),
		SampleRate: cfg.SampleRate,
		OutputDir:  cfg.OutputDir,
		TempDir:    cfg.TempDir,
		MusicPath:  cfg.BackgroundMusicPath,
		Captions:   cfg.Captions,
	}, synth, ffmpeg, ffmpeg, ffmpeg, log)

	var publisher worker.Publisher
	if cfg.PublishEnabled() {
		publisher = storage.New(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseStorageBucket, log)
		log.Info("publishing to supabase storage", "bucket", cfg.SupabaseStorageBucket)
	}

	w := worker.New(q, jobs, pipe, publisher, log, worker.Options{Retention: cfg.JobRetention})

	// Create API handler
	handler := api.NewHandler(w, log)
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	}, log)

	if cfg.BackendAPIKey != "" {
		log.Info("API key authentication enabled")
	} else {
		log.Warn("no BACKEND_API_KEY set, API is unprotected (dev mode)")
	}

	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start worker if enabled
	workerCtx, workerCancel := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	if cfg.WorkerEnabled {
		go func() {
			defer close(workerDone)
			if err := w.Start(workerCtx, cfg.MaxConcurrentJobs); err != nil {
				log.Error("worker stopped", "error", err)
			}
		}()
	} else {
		close(workerDone)
		log.Info("worker disabled, jobs will only be queued")
	}

	go func() {
		log.Info("API server listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", "error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	// Running jobs see cancellation between segments and fail cleanly
	workerCancel()
	select {
	case <-workerDone:
	case <-ctx.Done():
		log.Warn("worker did not stop in time")
	}

	log.Info("server exited")
}

// newSynthesizer builds the configured provider behind a shared cache.
// Returns nil when narration is disabled.
func newSynthesizer(ctx context.Context, cfg *config.Config, rdb *redis.Client, log *logger.Logger) services.SpeechSynthesizer {
	var synth services.SpeechSynthesizer
	switch cfg.TTSProvider {
	case config.TTSElevenLabs:
		synth = services.NewElevenLabsSynthesizer(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID, log)
	case config.TTSOpenAI:
		synth = services.NewOpenAISynthesizer(cfg.OpenAIKey, cfg.OpenAIVoice, log)
	case config.TTSGemini:
		g, err := services.NewGeminiSynthesizer(ctx, cfg.GeminiKey, cfg.GeminiVoice, log)
		if err != nil {
			log.Error("gemini synthesizer unavailable, narration disabled", "error", err)
			return nil
		}
		synth = g
	case config.TTSCartesia:
		synth = services.NewCartesiaSynthesizer(cfg.CartesiaKey, cfg.CartesiaURL, cfg.CartesiaVoiceID, log)
	default:
		log.Warn("no TTS provider configured, videos will have silent narration")
		return nil
	}
	log.Info("TTS provider configured", "provider", cfg.TTSProvider)

	var cache services.AudioCache
	if rdb != nil {
		cache = services.NewRedisCache(rdb, cfg.TTSCacheTTL)
	} else {
		cache = services.NewMemoryCache(cfg.TTSCacheEntries)
	}
	return services.NewCachingSynthesizer(synth, cache, log)
}
