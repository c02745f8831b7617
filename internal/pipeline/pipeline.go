// Package pipeline renders one job end to end, falling back through
// progressively simpler tiers until one produces a file.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/bobarin/mathcast/internal/audio"
	"github.com/bobarin/mathcast/internal/logger"
	"github.com/bobarin/mathcast/internal/media"
	"github.com/bobarin/mathcast/internal/models"
	"github.com/bobarin/mathcast/internal/render"
	"github.com/bobarin/mathcast/internal/segment"
	"github.com/bobarin/mathcast/internal/services"
	"github.com/bobarin/mathcast/internal/timeline"
)

// ErrAbandoned is returned when every tier failed.
var ErrAbandoned = errors.New("all rendering tiers failed")

// Encoder opens a frame stream into a video file.
type Encoder interface {
	OpenVideo(ctx context.Context, outputPath string, spec media.VideoSpec) (media.VideoWriter, error)
}

type Muxer interface {
	Mux(ctx context.Context, in media.MuxInput) error
}

// Prober verifies finished files. Optional.
type Prober interface {
	ProbeDuration(ctx context.Context, path string) (time.Duration, error)
}

var (
	_ Encoder = (*media.FFmpeg)(nil)
	_ Muxer   = (*media.FFmpeg)(nil)
	_ Prober  = (*media.FFmpeg)(nil)
)

type assembler interface {
	Assemble(ctx context.Context, plans []segment.Plan, sink timeline.FrameSink, progress timeline.ProgressFunc) (*timeline.Timeline, error)
}

type Config struct {
	Format          render.Format
	Durations       segment.Durations
	SampleRate      int
	OutputDir       string
	TempDir         string
	MusicPath       string
	Captions        bool
	VerifyTolerance time.Duration
}

// ProgressFunc receives a percentage in [0, 100] and a status message.
type ProgressFunc func(percent int, message string)

type Request struct {
	JobID    uuid.UUID
	Problem  models.ProblemRecord
	Solution models.SolutionRecord
}

type Result struct {
	OutputPath string
	Tier       Tier
	Duration   time.Duration
	Attempts   []TierResult
}

type Pipeline struct {
	cfg     Config
	synth   services.SpeechSynthesizer
	encoder Encoder
	muxer   Muxer
	prober  Prober
	log     *logger.Logger

	newAssembler func(r *render.Renderer, synth services.SpeechSynthesizer) assembler
}

// New wires a pipeline. synth may be nil, in which case narrated tiers get
// an all-silent track. prober may be nil to skip output verification.
func New(cfg Config, synth services.SpeechSynthesizer, encoder Encoder, muxer Muxer, prober Prober, log *logger.Logger) *Pipeline {
	if synth == nil {
		synth = services.Unavailable{}
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.DefaultSampleRate
	}
	if cfg.VerifyTolerance <= 0 {
		cfg.VerifyTolerance = 500 * time.Millisecond
	}
	p := &Pipeline{
		cfg:     cfg,
		synth:   synth,
		encoder: encoder,
		muxer:   muxer,
		prober:  prober,
		log:     log,
	}
	p.newAssembler = func(r *render.Renderer, s services.SpeechSynthesizer) assembler {
		return timeline.NewAssembler(r, s, p.cfg.SampleRate, p.log)
	}
	return p
}

// Run renders req. Malformed records fail with models.ErrUpstreamData before
// any work; otherwise tiers are tried in order until one completes. The
// job's temp directory is removed on every exit path.
func (p *Pipeline) Run(ctx context.Context, req Request, progress ProgressFunc) (*Result, error) {
	if progress == nil {
		progress = func(int, string) {}
	}
	log := p.log.With("job_id", req.JobID)

	plans, err := segment.Build(req.Problem, req.Solution, p.cfg.Durations)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(p.cfg.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	if err := os.MkdirAll(p.cfg.TempDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	jobDir, err := os.MkdirTemp(p.cfg.TempDir, "job-"+req.JobID.String()+"-")
	if err != nil {
		return nil, fmt.Errorf("failed to create job dir: %w", err)
	}
	defer os.RemoveAll(jobDir)

	output := filepath.Join(p.cfg.OutputDir, fmt.Sprintf("solution_%s.mp4", uuid.NewString()))
	log.Info("rendering started", "segments", len(plans), "planned", segment.Total(plans))
	bar := &progressBar{report: progress}
	bar.set(5, fmt.Sprintf("Planned %d segments", len(plans)))

	var attempts []TierResult
	state := StateTryEnhanced
	for !state.Terminal() {
		bar.floor = bar.last
		res := p.attempt(ctx, state.Tier(), plans, jobDir, output, bar)
		attempts = append(attempts, res)
		next := Next(state, res)
		if !res.OK() {
			log.Warn("tier failed", "tier", res.Tier, "next", next, "error", res.Err)
		}
		state = next
	}

	last := attempts[len(attempts)-1]
	if state == StateCompleted {
		log.Info("rendering completed", "tier", last.Tier, "output", last.OutputPath, "duration", last.Duration)
		bar.set(100, "Video ready")
		return &Result{
			OutputPath: last.OutputPath,
			Tier:       last.Tier,
			Duration:   last.Duration,
			Attempts:   attempts,
		}, nil
	}
	if last.Fatal() {
		return nil, last.Err
	}
	return nil, fmt.Errorf("%w: %w", ErrAbandoned, last.Err)
}

// progressBar spreads each tier over the band between where the previous
// tier stopped and 95, so a fallback never reports less than was shown.
type progressBar struct {
	report ProgressFunc
	floor  int
	last   int
}

func (b *progressBar) set(percent int, message string) {
	b.last = max(b.last, percent)
	b.report(b.last, message)
}

// tier reports frac of the current tier's work, frac in [0, 1].
func (b *progressBar) tier(frac float64, message string) {
	b.set(b.floor+int(float64(95-b.floor)*frac), message)
}

// attempt runs one tier inside its own temp directory. Any failure, panics
// included, aborts an open encoder and removes the tier's partial output.
func (p *Pipeline) attempt(ctx context.Context, tier Tier, plans []segment.Plan, jobDir, output string, bar *progressBar) (res TierResult) {
	res.Tier = tier
	var writer media.VideoWriter
	closed := false
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("tier %s panicked: %v", tier, r)
		}
		if res.Err != nil {
			if writer != nil && !closed {
				writer.Abort()
			}
			os.Remove(output)
		}
	}()

	dir, err := os.MkdirTemp(jobDir, tier.String()+"-")
	if err != nil {
		res.Err = fmt.Errorf("failed to create tier dir: %w", err)
		return res
	}
	defer os.RemoveAll(dir)

	renderer, err := render.New(p.cfg.Format, tier.Fidelity())
	if err != nil {
		res.Err = err
		return res
	}
	var synth services.SpeechSynthesizer
	if tier.Narrated() {
		synth = p.synth
	}

	videoPath := filepath.Join(dir, "video.mp4")
	writer, err = p.encoder.OpenVideo(ctx, videoPath, media.VideoSpec{
		Width:  p.cfg.Format.Width,
		Height: p.cfg.Format.Height,
		FPS:    p.cfg.Format.FPS,
	})
	if err != nil {
		res.Err = err
		return res
	}

	bar.tier(0, fmt.Sprintf("Rendering (%s)", tier))
	tl, err := p.newAssembler(renderer, synth).Assemble(ctx, plans, writer, func(done, total int) {
		bar.tier(0.9*float64(done)/float64(total), fmt.Sprintf("Rendered segment %d of %d (%s)", done, total, tier))
	})
	if err != nil {
		res.Err = err
		return res
	}
	closed = true
	if err := writer.Close(); err != nil {
		res.Err = err
		return res
	}

	in := media.MuxInput{VideoPath: videoPath, OutputPath: output, Duration: tl.Video}
	if tl.Audio != nil {
		in.AudioPath = filepath.Join(dir, "narration.wav")
		if err := audio.WriteWAVFile(in.AudioPath, tl.Audio); err != nil {
			res.Err = fmt.Errorf("%w: %v", media.ErrEncoding, err)
			return res
		}
		in.MusicPath = p.musicPath()
		if tier.Captioned() && p.cfg.Captions {
			in.CaptionsPath = p.writeCaptions(dir, tl)
		}
	}

	bar.tier(0.95, fmt.Sprintf("Muxing (%s)", tier))
	if err := p.muxer.Mux(ctx, in); err != nil {
		res.Err = err
		return res
	}

	if p.prober != nil {
		got, err := p.prober.ProbeDuration(ctx, output)
		if err == nil {
			err = media.VerifyDuration(got, tl.Video, p.cfg.VerifyTolerance)
		}
		if err != nil {
			res.Err = err
			return res
		}
	}

	res.OutputPath = output
	res.Timeline = tl
	res.Duration = tl.Video
	return res
}

func (p *Pipeline) musicPath() string {
	if p.cfg.MusicPath == "" {
		return ""
	}
	if _, err := os.Stat(p.cfg.MusicPath); err != nil {
		p.log.Warn("background music not found, skipping", "path", p.cfg.MusicPath)
		return ""
	}
	return p.cfg.MusicPath
}

// writeCaptions returns the caption path, or "" when captions are skipped.
func (p *Pipeline) writeCaptions(dir string, tl *timeline.Timeline) string {
	words := tl.CaptionWords()
	if len(words) == 0 {
		return ""
	}
	path := filepath.Join(dir, "captions.ass")
	if err := media.WriteASS(path, words, p.cfg.Format.Width, p.cfg.Format.Height); err != nil {
		p.log.Warn("caption generation failed, continuing without captions", "error", err)
		return ""
	}
	return path
}
