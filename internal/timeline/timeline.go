// Package timeline assembles segment plans into one continuous timeline:
// frames streamed to a sink in order, and a narration track whose length is
// held to the video's length segment by segment.
package timeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bobarin/mathcast/internal/audio"
	"github.com/bobarin/mathcast/internal/canvas"
	"github.com/bobarin/mathcast/internal/logger"
	"github.com/bobarin/mathcast/internal/media"
	"github.com/bobarin/mathcast/internal/narration"
	"github.com/bobarin/mathcast/internal/render"
	"github.com/bobarin/mathcast/internal/segment"
	"github.com/bobarin/mathcast/internal/services"
)

// ErrAssemblyInvariant means the assembled audio and video disagree. It is a
// bug, not an environmental failure, and is never retried.
var ErrAssemblyInvariant = errors.New("timeline assembly invariant violated")

// FrameSink receives frames in presentation order.
type FrameSink interface {
	WriteFrame(frame *canvas.Frame) error
}

// ProgressFunc is called after each segment with completed/total counts.
type ProgressFunc func(done, total int)

// Entry is one placed segment.
type Entry struct {
	Plan      segment.Plan
	Offset    time.Duration
	Frames    int
	Narration string
	// Spoken is how long the raw narration ran before reconciliation,
	// capped at the plan duration. Zero when the segment is silent.
	Spoken time.Duration
	Silent bool
}

// Timeline is the result of one assembler run.
type Timeline struct {
	Entries []Entry
	Frames  int
	// Video is frames / fps.
	Video time.Duration
	// Audio is nil when the run had no narration.
	Audio *audio.Track
}

// End is the offset just past the last segment.
func (t *Timeline) End() time.Duration {
	if len(t.Entries) == 0 {
		return 0
	}
	last := t.Entries[len(t.Entries)-1]
	return last.Offset + last.Plan.Duration
}

// CaptionWords spreads each narrated segment's text over its spoken window.
func (t *Timeline) CaptionWords() []media.Word {
	var words []media.Word
	for _, e := range t.Entries {
		if e.Silent || e.Narration == "" {
			continue
		}
		words = append(words, media.SpreadWords(e.Narration, e.Offset, e.Spoken)...)
	}
	return words
}

// Assembler runs one job attempt. It is single-use per goroutine: it holds a
// renderer and a per-run narration memo.
type Assembler struct {
	renderer   *render.Renderer
	synth      services.SpeechSynthesizer
	sampleRate int
	log        *logger.Logger
	memo       map[string]*audio.Clip
}

// NewAssembler builds an assembler. A nil synth produces a silent,
// video-only timeline with no audio track.
func NewAssembler(renderer *render.Renderer, synth services.SpeechSynthesizer, sampleRate int, log *logger.Logger) *Assembler {
	if sampleRate <= 0 {
		sampleRate = audio.DefaultSampleRate
	}
	return &Assembler{
		renderer:   renderer,
		synth:      synth,
		sampleRate: sampleRate,
		log:        log,
		memo:       make(map[string]*audio.Clip),
	}
}

// Assemble renders and narrates plans strictly in order. Cancellation is
// observed between segments.
func (a *Assembler) Assemble(ctx context.Context, plans []segment.Plan, sink FrameSink, progress ProgressFunc) (*Timeline, error) {
	if len(plans) == 0 {
		return nil, fmt.Errorf("%w: no segments to assemble", ErrAssemblyInvariant)
	}
	format := a.renderer.Format()

	tl := &Timeline{Entries: make([]Entry, 0, len(plans))}
	if a.synth != nil {
		tl.Audio = audio.NewTrack(a.sampleRate)
	}

	var offset time.Duration
	for i, plan := range plans {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		frames, err := a.renderer.Render(plan, sink.WriteFrame)
		if err != nil {
			return nil, fmt.Errorf("segment %s: %w", plan.Name(), err)
		}

		entry := Entry{Plan: plan, Offset: offset, Frames: frames, Silent: true}
		if tl.Audio != nil {
			text := narration.Script(plan)
			raw := a.narrate(ctx, plan, text)
			if raw != nil {
				entry.Narration = text
				entry.Silent = false
				entry.Spoken = min(raw.Duration(), plan.Duration)
			} else {
				raw = audio.Silence(plan.Duration, a.sampleRate)
			}
			if err := tl.Audio.Append(audio.Reconcile(raw, plan.Duration)); err != nil {
				return nil, fmt.Errorf("%w: segment %s: %v", ErrAssemblyInvariant, plan.Name(), err)
			}
		}

		tl.Entries = append(tl.Entries, entry)
		tl.Frames += frames
		offset += plan.Duration

		if progress != nil {
			progress(i+1, len(plans))
		}
	}
	tl.Video = format.Duration(tl.Frames)

	if err := verify(tl, format); err != nil {
		return nil, err
	}
	return tl, nil
}

// narrate returns the raw clip for text at the track rate, or nil when
// synthesis failed and the segment should be silent.
func (a *Assembler) narrate(ctx context.Context, plan segment.Plan, text string) *audio.Clip {
	if text == "" {
		return nil
	}
	key := services.CacheKey(text)
	if clip, ok := a.memo[key]; ok {
		return clip
	}

	clip, err := a.synth.Synthesize(ctx, text)
	if err != nil || clip == nil || len(clip.Samples) == 0 {
		a.log.Warn("narration unavailable, using silence", "segment", plan.Name(), "error", err)
		return nil
	}
	if clip.SampleRate != a.sampleRate {
		clip = audio.Resample(clip, a.sampleRate)
	}
	a.memo[key] = clip
	return clip
}

// verify checks offset continuity and that audio and video lengths agree
// to within one frame period.
func verify(tl *Timeline, format render.Format) error {
	var want time.Duration
	for _, e := range tl.Entries {
		if e.Offset != want {
			return fmt.Errorf("%w: segment %s starts at %v, expected %v", ErrAssemblyInvariant, e.Plan.Name(), e.Offset, want)
		}
		want += e.Plan.Duration
	}

	period := format.FramePeriod()
	if d := absDiff(tl.Video, tl.End()); d >= period {
		return fmt.Errorf("%w: video runs %v but segments total %v", ErrAssemblyInvariant, tl.Video, tl.End())
	}
	if tl.Audio != nil {
		if d := absDiff(tl.Audio.Duration(), tl.Video); d >= period {
			return fmt.Errorf("%w: audio runs %v but video runs %v", ErrAssemblyInvariant, tl.Audio.Duration(), tl.Video)
		}
	}
	return nil
}

func absDiff(a, b time.Duration) time.Duration {
	if a > b {
		return a - b
	}
	return b - a
}
