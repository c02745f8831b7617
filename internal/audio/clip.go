// Package audio holds narration clips and the duration reconciler that
// forces every clip onto its segment's planned on-screen time.
//
// All audio is signed 16-bit little-endian mono PCM.
package audio

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// DefaultSampleRate matches the PCM output of every supported speech provider.
const DefaultSampleRate = 24000

// Clip is a mono PCM clip. A clip leaves Reconcile in the reconciled state;
// only reconciled clips may be appended to a Track.
type Clip struct {
	Samples    []int16
	SampleRate int
	reconciled bool
}

// NewClip wraps raw synthesizer output.
func NewClip(samples []int16, sampleRate int) *Clip {
	return &Clip{Samples: samples, SampleRate: sampleRate}
}

// Silence returns a raw clip of zero samples lasting d.
func Silence(d time.Duration, sampleRate int) *Clip {
	return &Clip{Samples: make([]int16, SamplesFor(d, sampleRate)), SampleRate: sampleRate}
}

func (c *Clip) Reconciled() bool { return c.reconciled }

func (c *Clip) Duration() time.Duration {
	return DurationOf(len(c.Samples), c.SampleRate)
}

// SamplesFor returns round(d × rate), never negative.
func SamplesFor(d time.Duration, sampleRate int) int {
	if d <= 0 || sampleRate <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * float64(sampleRate)))
}

// DurationOf is the playback time of n samples.
func DurationOf(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(sampleRate))
}

// Reconcile forces clip to exactly target: longer clips are truncated to
// [0, target), shorter ones padded with trailing silence, equal ones kept.
// A nil clip is treated as empty at DefaultSampleRate. It never fails.
func Reconcile(clip *Clip, target time.Duration) *Clip {
	rate := DefaultSampleRate
	var src []int16
	if clip != nil {
		src = clip.Samples
		if clip.SampleRate > 0 {
			rate = clip.SampleRate
		}
	}

	want := SamplesFor(target, rate)
	out := make([]int16, want)
	copy(out, src)
	return &Clip{Samples: out, SampleRate: rate, reconciled: true}
}

// Resample converts clip to rate by linear interpolation. The result is raw.
func Resample(clip *Clip, rate int) *Clip {
	if clip == nil || rate <= 0 {
		return clip
	}
	if clip.SampleRate == rate || len(clip.Samples) == 0 {
		return &Clip{Samples: append([]int16(nil), clip.Samples...), SampleRate: rate}
	}

	n := int(int64(len(clip.Samples)) * int64(rate) / int64(clip.SampleRate))
	out := make([]int16, n)
	step := float64(clip.SampleRate) / float64(rate)
	last := len(clip.Samples) - 1
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= last {
			out[i] = clip.Samples[last]
			continue
		}
		frac := pos - float64(j)
		a, b := float64(clip.Samples[j]), float64(clip.Samples[j+1])
		out[i] = int16(math.Round(a + (b-a)*frac))
	}
	return &Clip{Samples: out, SampleRate: rate}
}

var ErrNotReconciled = errors.New("clip is not reconciled")

// Track is the concatenated narration of a whole timeline.
type Track struct {
	SampleRate int
	samples    []int16
}

func NewTrack(sampleRate int) *Track {
	return &Track{SampleRate: sampleRate}
}

// Append adds a reconciled clip at the end of the track.
func (t *Track) Append(c *Clip) error {
	if c == nil || !c.reconciled {
		return ErrNotReconciled
	}
	if c.SampleRate != t.SampleRate {
		return fmt.Errorf("clip sample rate %d does not match track rate %d", c.SampleRate, t.SampleRate)
	}
	t.samples = append(t.samples, c.Samples...)
	return nil
}

func (t *Track) Samples() []int16 { return t.samples }

func (t *Track) Len() int { return len(t.samples) }

func (t *Track) Duration() time.Duration {
	return DurationOf(len(t.samples), t.SampleRate)
}
