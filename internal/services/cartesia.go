package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bobarin/mathcast/internal/audio"
	"github.com/bobarin/mathcast/internal/logger"
)

const (
	CartesiaAPIURL     = "https://api.cartesia.ai"
	CartesiaAPIVersion = "2024-06-10"

	cartesiaDefaultVoice = "a0e99841-438c-4a64-b679-ae501e7d6091"
	cartesiaModel        = "sonic-english"
)

type CartesiaSynthesizer struct {
	apiKey     string
	apiURL     string
	apiVersion string
	voiceID    string
	client     *http.Client
	log        *logger.Logger
}

// Ensure CartesiaSynthesizer implements SpeechSynthesizer at compile time.
var _ SpeechSynthesizer = (*CartesiaSynthesizer)(nil)

func NewCartesiaSynthesizer(apiKey, apiURL, voiceID string, log *logger.Logger) *CartesiaSynthesizer {
	if apiURL == "" {
		apiURL = CartesiaAPIURL
	}
	if voiceID == "" {
		voiceID = cartesiaDefaultVoice
	}
	return &CartesiaSynthesizer{
		apiKey:     apiKey,
		apiURL:     apiURL,
		apiVersion: CartesiaAPIVersion,
		voiceID:    voiceID,
		client:     &http.Client{Timeout: 60 * time.Second},
		log:        log.With("provider", "cartesia"),
	}
}

type CartesiaRequest struct {
	ModelID      string                 `json:"model_id"`
	Transcript   string                 `json:"transcript"`
	Voice        CartesiaVoiceSpecifier `json:"voice"`
	Language     string                 `json:"language,omitempty"`
	OutputFormat CartesiaOutputFormat   `json:"output_format"`
}

type CartesiaVoiceSpecifier struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

type CartesiaOutputFormat struct {
	Container  string `json:"container"`
	Encoding   string `json:"encoding,omitempty"`
	SampleRate int    `json:"sample_rate"`
}

func (s *CartesiaSynthesizer) Synthesize(ctx context.Context, text string) (*audio.Clip, error) {
	reqBody := CartesiaRequest{
		ModelID:    cartesiaModel,
		Transcript: text,
		Voice:      CartesiaVoiceSpecifier{Mode: "id", ID: s.voiceID},
		Language:   "en",
		OutputFormat: CartesiaOutputFormat{
			Container:  "raw",
			Encoding:   "pcm_s16le",
			SampleRate: PCMSampleRate,
		},
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, unavailable("cartesia", fmt.Errorf("failed to marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL+"/tts/bytes", bytes.NewReader(jsonData))
	if err != nil {
		return nil, unavailable("cartesia", fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cartesia-Version", s.apiVersion)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, unavailable("cartesia", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, unavailable("cartesia", fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
	}
	return readPCM("cartesia", resp.Body, PCMSampleRate)
}
