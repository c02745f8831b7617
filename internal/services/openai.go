package services

import (
	"context"
	"fmt"

	"github.com/bobarin/mathcast/internal/audio"
	"github.com/bobarin/mathcast/internal/logger"
	openai "github.com/sashabaranov/go-openai"
)

const openAIVoiceInstructions = "Speak like a patient math teacher: clear, warm, and evenly paced."

// OpenAISynthesizer uses the speech endpoint with PCM output
// (24kHz, 16-bit, mono, no header).
type OpenAISynthesizer struct {
	client *openai.Client
	model  openai.SpeechModel
	voice  openai.SpeechVoice
	log    *logger.Logger
}

var _ SpeechSynthesizer = (*OpenAISynthesizer)(nil)

func NewOpenAISynthesizer(apiKey, voice string, log *logger.Logger) *OpenAISynthesizer {
	return NewOpenAISynthesizerWithConfig(openai.DefaultConfig(apiKey), voice, log)
}

// NewOpenAISynthesizerWithConfig allows overriding the base URL.
func NewOpenAISynthesizerWithConfig(cfg openai.ClientConfig, voice string, log *logger.Logger) *OpenAISynthesizer {
	v := openai.VoiceAlloy
	if voice != "" {
		v = openai.SpeechVoice(voice)
	}
	return &OpenAISynthesizer{
		client: openai.NewClientWithConfig(cfg),
		model:  openai.TTSModelGPT4oMini,
		voice:  v,
		log:    log.With("provider", "openai"),
	}
}

func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text string) (*audio.Clip, error) {
	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          s.model,
		Input:          text,
		Voice:          s.voice,
		Instructions:   openAIVoiceInstructions,
		ResponseFormat: openai.SpeechResponseFormatPcm,
	})
	if err != nil {
		return nil, unavailable("openai", fmt.Errorf("speech request failed: %w", err))
	}
	defer resp.Close()

	clip, err := readPCM("openai", resp, PCMSampleRate)
	if err != nil {
		return nil, err
	}
	s.log.Debug("speech generated", "voice", s.voice, "duration", clip.Duration())
	return clip, nil
}
