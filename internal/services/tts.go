package services

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/bobarin/mathcast/internal/audio"
)

// ---------------------------------------------------------------------------
// Speech synthesis.
// Every provider returns raw 16-bit mono PCM wrapped in an audio.Clip so the
// timeline can reconcile it without decoding compressed formats.
// ---------------------------------------------------------------------------

// ErrSynthesisUnavailable is returned for any provider failure. Callers
// substitute silence; it never fails a job on its own.
var ErrSynthesisUnavailable = errors.New("speech synthesis unavailable")

// PCMSampleRate is the rate requested from every provider.
const PCMSampleRate = audio.DefaultSampleRate

// maxPCMBytes bounds a provider response (~10 minutes of 24kHz audio).
const maxPCMBytes = 2 * PCMSampleRate * 600

// SpeechSynthesizer converts narration text into a raw clip.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string) (*audio.Clip, error)
}

// Unavailable is the synthesizer used when no provider is configured.
type Unavailable struct{}

var _ SpeechSynthesizer = Unavailable{}

func (Unavailable) Synthesize(context.Context, string) (*audio.Clip, error) {
	return nil, fmt.Errorf("no provider configured: %w", ErrSynthesisUnavailable)
}

func unavailable(provider string, err error) error {
	return fmt.Errorf("%s: %w: %w", provider, ErrSynthesisUnavailable, err)
}

// readPCM drains a raw s16le body into a clip.
func readPCM(provider string, body io.Reader, sampleRate int) (*audio.Clip, error) {
	data, err := io.ReadAll(io.LimitReader(body, maxPCMBytes))
	if err != nil {
		return nil, unavailable(provider, fmt.Errorf("failed to read audio: %w", err))
	}
	if len(data) < 2 {
		return nil, unavailable(provider, errors.New("empty audio"))
	}
	return audio.NewClip(audio.DecodePCM(data), sampleRate), nil
}
