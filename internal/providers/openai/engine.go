package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"voiceclick/internal/audio"
	"voiceclick/internal/ports"
)

// Config controls the OpenAI transcription request.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Prompt  string
	TempDir string
}

// Engine uploads each recording as WAV to the transcriptions endpoint.
type Engine struct {
	cfg    Config
	client openai.Client
}

func NewEngine(cfg Config) *Engine {
	if cfg.Model == "" {
		cfg.Model = string(openai.AudioModelWhisper1)
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(1)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Engine{cfg: cfg, client: openai.NewClient(opts...)}
}

func (e *Engine) Name() string { return "openai" }

// Transcribe maps temperature and language onto the request. Beam size and
// conditioning have no API equivalent.
func (e *Engine) Transcribe(ctx context.Context, samples []float32, sampleRate int, params ports.DecodeParams) (string, error) {
	if strings.TrimSpace(e.cfg.APIKey) == "" {
		return "", errors.New("OPENAI_API_KEY is not configured")
	}
	if len(samples) == 0 {
		return "", nil
	}

	path, err := audio.WriteTempWAV(e.cfg.TempDir, samples, sampleRate)
	if err != nil {
		return "", err
	}
	defer os.Remove(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read temp wav: %w", err)
	}

	request := openai.AudioTranscriptionNewParams{
		File:        openai.File(bytes.NewReader(data), "recording.wav", "audio/wav"),
		Model:       openai.AudioModel(e.cfg.Model),
		Temperature: openai.Float(params.Temperature),
	}
	if params.Language != "" {
		request.Language = openai.String(params.Language)
	}
	if params.ConditionOnPrevious && e.cfg.Prompt != "" {
		request.Prompt = openai.String(e.cfg.Prompt)
	}

	resp, err := e.client.Audio.Transcriptions.New(ctx, request)
	if err != nil {
		return "", fmt.Errorf("openai transcription failed: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
