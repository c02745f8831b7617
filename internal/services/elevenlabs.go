package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bobarin/mathcast/internal/audio"
	"github.com/bobarin/mathcast/internal/logger"
)

// ---------------------------------------------------------------------------
// ElevenLabs Text-to-Speech
// Model: eleven_flash_v2_5. Output requested as raw PCM at 24kHz so the
// response body is the sample data itself.
// ---------------------------------------------------------------------------

const (
	elevenLabsBaseURL      = "https://api.elevenlabs.io"
	elevenLabsDefaultModel = "eleven_flash_v2_5"
	elevenLabsDefaultVoice = "pNInz6obpgDQGcFmaJgB"
	elevenLabsOutputFormat = "pcm_24000"
)

type ElevenLabsSynthesizer struct {
	apiKey  string
	voiceID string
	modelID string
	baseURL string
	client  *http.Client
	log     *logger.Logger
}

// Ensure ElevenLabsSynthesizer implements SpeechSynthesizer at compile time.
var _ SpeechSynthesizer = (*ElevenLabsSynthesizer)(nil)

func NewElevenLabsSynthesizer(apiKey, voiceID string, log *logger.Logger) *ElevenLabsSynthesizer {
	if voiceID == "" {
		voiceID = elevenLabsDefaultVoice
	}
	return &ElevenLabsSynthesizer{
		apiKey:  apiKey,
		voiceID: voiceID,
		modelID: elevenLabsDefaultModel,
		baseURL: elevenLabsBaseURL,
		client:  &http.Client{Timeout: 90 * time.Second},
		log:     log.With("provider", "elevenlabs"),
	}
}

// WithBaseURL points the client at another endpoint (tests, proxies).
func (s *ElevenLabsSynthesizer) WithBaseURL(u string) *ElevenLabsSynthesizer {
	s.baseURL = u
	return s
}

type elevenLabsRequest struct {
	Text          string                   `json:"text"`
	ModelID       string                   `json:"model_id"`
	VoiceSettings *elevenLabsVoiceSettings `json:"voice_settings,omitempty"`
}

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

func (s *ElevenLabsSynthesizer) Synthesize(ctx context.Context, text string) (*audio.Clip, error) {
	reqBody := elevenLabsRequest{
		Text:    text,
		ModelID: s.modelID,
		VoiceSettings: &elevenLabsVoiceSettings{
			Stability:       0.70, // steady classroom delivery
			SimilarityBoost: 0.80,
			Speed:           0.95,
		},
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, unavailable("elevenlabs", fmt.Errorf("failed to marshal request: %w", err))
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s",
		s.baseURL, url.PathEscape(s.voiceID), elevenLabsOutputFormat)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, unavailable("elevenlabs", fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", s.apiKey)

	s.log.Debug("generating speech", "voice", s.voiceID, "model", s.modelID, "text_len", len(text))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, unavailable("elevenlabs", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, unavailable("elevenlabs", fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
	}

	clip, err := readPCM("elevenlabs", resp.Body, PCMSampleRate)
	if err != nil {
		return nil, err
	}
	s.log.Debug("speech generated", "duration", clip.Duration())
	return clip, nil
}
