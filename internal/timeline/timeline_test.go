package timeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bobarin/mathcast/internal/audio"
	"github.com/bobarin/mathcast/internal/canvas"
	"github.com/bobarin/mathcast/internal/logger"
	"github.com/bobarin/mathcast/internal/models"
	"github.com/bobarin/mathcast/internal/render"
	"github.com/bobarin/mathcast/internal/segment"
	"github.com/bobarin/mathcast/internal/services"
)

var testFormat = render.Format{Width: 160, Height: 90, FPS: 2}

// fakeSynth returns clips whose length depends on the text, and fails for
// any text containing failOn.
type fakeSynth struct {
	mu     sync.Mutex
	calls  map[string]int
	failOn string
	length func(text string) time.Duration
	rate   int
}

func newFakeSynth() *fakeSynth {
	return &fakeSynth{
		calls: make(map[string]int),
		length: func(text string) time.Duration {
			return time.Duration(len(text)) * 60 * time.Millisecond
		},
		rate: audio.DefaultSampleRate,
	}
}

func (f *fakeSynth) Synthesize(ctx context.Context, text string) (*audio.Clip, error) {
	f.mu.Lock()
	f.calls[text]++
	f.mu.Unlock()
	if f.failOn != "" && strings.Contains(text, f.failOn) {
		return nil, services.ErrSynthesisUnavailable
	}
	n := audio.SamplesFor(f.length(text), f.rate)
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = 1000
	}
	return audio.NewClip(samples, f.rate), nil
}

type countingSink struct {
	frames int
	fail   error
}

func (s *countingSink) WriteFrame(*canvas.Frame) error {
	if s.fail != nil {
		return s.fail
	}
	s.frames++
	return nil
}

func buildPlans(t *testing.T, steps int) []segment.Plan {
	t.Helper()
	sol := models.SolutionRecord{FinalAnswer: "x = 2"}
	for i := 1; i <= steps; i++ {
		sol.Steps = append(sol.Steps, models.Step{Index: i, Description: strings.Repeat("work ", i), Equation: "x = 2"})
	}
	plans, err := segment.Build(models.ProblemRecord{OriginalText: "2x + 3 = 7", ProblemType: models.ProblemTypeEquation}, sol, segment.DefaultDurations())
	if err != nil {
		t.Fatal(err)
	}
	return plans
}

func newAssembler(t *testing.T, synth services.SpeechSynthesizer) *Assembler {
	t.Helper()
	r, err := render.New(testFormat, render.Basic)
	if err != nil {
		t.Fatal(err)
	}
	return NewAssembler(r, synth, audio.DefaultSampleRate, logger.Nop())
}

func TestAssembleContinuityAndDurations(t *testing.T) {
	plans := buildPlans(t, 4)
	sink := &countingSink{}
	var progressCalls []int

	tl, err := newAssembler(t, newFakeSynth()).Assemble(context.Background(), plans, sink, func(done, total int) {
		if total != len(plans) {
			t.Errorf("progress total %d, want %d", total, len(plans))
		}
		progressCalls = append(progressCalls, done)
	})
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	var want time.Duration
	for i, e := range tl.Entries {
		if e.Offset != want {
			t.Errorf("entry %d offset %v, want %v", i, e.Offset, want)
		}
		if e.Frames != testFormat.FrameCount(e.Plan.Duration) {
			t.Errorf("entry %d has %d frames", i, e.Frames)
		}
		want += e.Plan.Duration
	}
	if tl.End() != segment.Total(plans) || tl.Video != segment.Total(plans) {
		t.Errorf("end=%v video=%v total=%v", tl.End(), tl.Video, segment.Total(plans))
	}
	if tl.Audio == nil || tl.Audio.Duration() != tl.Video {
		t.Fatalf("audio %v does not match video %v", tl.Audio.Duration(), tl.Video)
	}
	if sink.frames != tl.Frames {
		t.Errorf("sink saw %d frames, timeline reports %d", sink.frames, tl.Frames)
	}
	if len(progressCalls) != len(plans) || progressCalls[len(progressCalls)-1] != len(plans) {
		t.Errorf("unexpected progress calls %v", progressCalls)
	}
}

func TestAssembleReconcilesEverySegment(t *testing.T) {
	for _, length := range []time.Duration{100 * time.Millisecond, 4 * time.Second, 30 * time.Second} {
		synth := newFakeSynth()
		synth.length = func(string) time.Duration { return length }

		tl, err := newAssembler(t, synth).Assemble(context.Background(), buildPlans(t, 2), &countingSink{}, nil)
		if err != nil {
			t.Fatalf("length %v: %v", length, err)
		}
		if got := tl.Audio.Len(); got != audio.SamplesFor(tl.Video, audio.DefaultSampleRate) {
			t.Errorf("length %v: %d samples for %v of video", length, got, tl.Video)
		}
		for _, e := range tl.Entries {
			if e.Spoken > e.Plan.Duration {
				t.Errorf("spoken window %v exceeds plan %v", e.Spoken, e.Plan.Duration)
			}
		}
	}
}

func TestAssembleSilentFallback(t *testing.T) {
	synth := newFakeSynth()
	synth.failOn = "Step 2"
	synth.length = func(string) time.Duration { return 10 * time.Second }
	plans := buildPlans(t, 3)

	tl, err := newAssembler(t, synth).Assemble(context.Background(), plans, &countingSink{}, nil)
	if err != nil {
		t.Fatalf("synthesis failure must not fail assembly: %v", err)
	}
	if tl.Audio.Duration() != tl.Video {
		t.Errorf("audio %v != video %v", tl.Audio.Duration(), tl.Video)
	}

	silent := tl.Entries[3]
	if silent.Plan.Step.Index != 2 || !silent.Silent || silent.Spoken != 0 {
		t.Fatalf("expected step 2 to be silent, got %+v", silent)
	}

	// The silent window is all zeros; its neighbours are not.
	samples := tl.Audio.Samples()
	rate := audio.DefaultSampleRate
	from := audio.SamplesFor(silent.Offset, rate)
	to := audio.SamplesFor(silent.Offset+silent.Plan.Duration, rate)
	for i := from; i < to; i++ {
		if samples[i] != 0 {
			t.Fatalf("sample %d in silent segment is %d", i, samples[i])
		}
	}
	if samples[from-1] == 0 {
		t.Error("previous segment should carry narration up to its end")
	}

	if words := tl.CaptionWords(); len(words) == 0 {
		t.Error("expected caption words for narrated segments")
	} else {
		for _, w := range words {
			if w.Start >= silent.Offset && w.Start < silent.Offset+silent.Plan.Duration {
				t.Fatalf("caption %q placed inside silent segment", w.Text)
			}
		}
	}
}

func TestAssembleAllSynthesisFails(t *testing.T) {
	tl, err := newAssembler(t, services.Unavailable{}).Assemble(context.Background(), buildPlans(t, 2), &countingSink{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range tl.Audio.Samples() {
		if s != 0 {
			t.Fatal("expected an all-silent track")
		}
	}
	if tl.Audio.Duration() != tl.Video {
		t.Errorf("audio %v != video %v", tl.Audio.Duration(), tl.Video)
	}
}

func TestAssembleWithoutNarration(t *testing.T) {
	tl, err := newAssembler(t, nil).Assemble(context.Background(), buildPlans(t, 1), &countingSink{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if tl.Audio != nil {
		t.Error("expected no audio track")
	}
	if len(tl.CaptionWords()) != 0 {
		t.Error("expected no captions without narration")
	}
}

func TestAssembleSynthesizesRepeatedTextOnce(t *testing.T) {
	synth := newFakeSynth()
	sol := models.SolutionRecord{Steps: []models.Step{
		{Index: 1, Description: "Simplify"},
		{Index: 2, Description: "Simplify"},
	}}
	plans, err := segment.Build(models.ProblemRecord{OriginalText: "x"}, sol, segment.DefaultDurations())
	if err != nil {
		t.Fatal(err)
	}
	// Make two plans produce the same script.
	plans[3].Step.Index = 1

	if _, err := newAssembler(t, synth).Assemble(context.Background(), plans, &countingSink{}, nil); err != nil {
		t.Fatal(err)
	}
	for text, n := range synth.calls {
		if n != 1 {
			t.Errorf("%q synthesized %d times", text, n)
		}
	}
}

func TestAssembleCancelledBetweenSegments(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	synth := newFakeSynth()
	plans := buildPlans(t, 3)

	done := 0
	_, err := newAssembler(t, synth).Assemble(ctx, plans, &countingSink{}, func(d, total int) {
		done = d
		if d == 2 {
			cancel()
		}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if done != 2 {
		t.Errorf("expected to stop after 2 segments, stopped after %d", done)
	}
}

func TestAssembleSinkFailure(t *testing.T) {
	boom := errors.New("encoder died")
	_, err := newAssembler(t, newFakeSynth()).Assemble(context.Background(), buildPlans(t, 1), &countingSink{fail: boom}, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected sink error, got %v", err)
	}
}

func TestVerifyDetectsMismatch(t *testing.T) {
	plan := segment.Plan{Role: segment.RoleIntro, Duration: 4 * time.Second}

	track := audio.NewTrack(audio.DefaultSampleRate)
	track.Append(audio.Reconcile(nil, 3*time.Second))
	tl := &Timeline{
		Entries: []Entry{{Plan: plan}},
		Frames:  8,
		Video:   4 * time.Second,
		Audio:   track,
	}
	if err := verify(tl, testFormat); !errors.Is(err, ErrAssemblyInvariant) {
		t.Fatalf("expected ErrAssemblyInvariant for short audio, got %v", err)
	}

	tl.Audio = nil
	tl.Entries = append(tl.Entries, Entry{Plan: plan, Offset: time.Second})
	tl.Video = 8 * time.Second
	if err := verify(tl, testFormat); !errors.Is(err, ErrAssemblyInvariant) {
		t.Fatalf("expected ErrAssemblyInvariant for offset gap, got %v", err)
	}

	if _, err := newAssembler(t, nil).Assemble(context.Background(), nil, &countingSink{}, nil); !errors.Is(err, ErrAssemblyInvariant) {
		t.Fatalf("expected ErrAssemblyInvariant for empty plan list, got %v", err)
	}
}
