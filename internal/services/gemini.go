package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bobarin/mathcast/internal/audio"
	"github.com/bobarin/mathcast/internal/logger"
	"google.golang.org/genai"
)

const (
	geminiTTSModel     = "gemini-2.5-flash-preview-tts"
	geminiDefaultVoice = "Kore"
)

// GeminiSynthesizer uses Gemini's native audio output. Responses carry
// inline PCM with the rate in the MIME type ("audio/L16;codec=pcm;rate=24000").
type GeminiSynthesizer struct {
	client *genai.Client
	model  string
	voice  string
	log    *logger.Logger
}

var _ SpeechSynthesizer = (*GeminiSynthesizer)(nil)

func NewGeminiSynthesizer(ctx context.Context, apiKey, voice string, log *logger.Logger) (*GeminiSynthesizer, error) {
	return NewGeminiSynthesizerWithOptions(ctx, apiKey, voice, genai.HTTPOptions{}, log)
}

func NewGeminiSynthesizerWithOptions(ctx context.Context, apiKey, voice string, opts genai.HTTPOptions, log *logger.Logger) (*GeminiSynthesizer, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: opts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	if voice == "" {
		voice = geminiDefaultVoice
	}
	return &GeminiSynthesizer{
		client: client,
		model:  geminiTTSModel,
		voice:  voice,
		log:    log.With("provider", "gemini"),
	}, nil
}

func (s *GeminiSynthesizer) Synthesize(ctx context.Context, text string) (*audio.Clip, error) {
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: s.voice},
			},
		},
	}
	prompt := "Read this aloud clearly, like a patient math teacher: " + text

	resp, err := s.client.Models.GenerateContent(ctx, s.model, genai.Text(prompt), config)
	if err != nil {
		return nil, unavailable("gemini", err)
	}

	var pcm []byte
	rate := PCMSampleRate
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			pcm = append(pcm, part.InlineData.Data...)
			if r := rateFromMIME(part.InlineData.MIMEType); r > 0 {
				rate = r
			}
		}
		if len(pcm) > 0 {
			break
		}
	}
	if len(pcm) < 2 {
		return nil, unavailable("gemini", errors.New("response contained no audio"))
	}

	clip := audio.NewClip(audio.DecodePCM(pcm), rate)
	if rate != PCMSampleRate {
		clip = audio.Resample(clip, PCMSampleRate)
	}
	s.log.Debug("speech generated", "voice", s.voice, "duration", clip.Duration())
	return clip, nil
}

// rateFromMIME extracts rate=N from an audio/L16 MIME type.
func rateFromMIME(mime string) int {
	for _, param := range strings.Split(mime, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(param), "=")
		if ok && strings.EqualFold(k, "rate") {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				return n
			}
		}
	}
	return 0
}
