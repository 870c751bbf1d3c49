package whispercpp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"voiceclick/internal/audio"
	"voiceclick/internal/ports"
)

// ErrModelMissing is returned when no model file is configured or found.
var ErrModelMissing = errors.New("whisper model not found")

// Config controls the whisper.cpp CLI invocation.
type Config struct {
	Binary    string
	ModelPath string
	// Device is "cpu", "cuda" or "auto". Only "cpu" disables the GPU.
	Device  string
	Threads int
	TempDir string
}

// Engine runs whisper-cli once per decode pass on a temporary WAV file.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	if strings.TrimSpace(cfg.Binary) == "" {
		cfg.Binary = "whisper-cli"
	}
	if cfg.Device == "" {
		cfg.Device = "auto"
	}
	return &Engine{cfg: cfg}
}

func (e *Engine) Name() string { return "whispercpp" }

func (e *Engine) Transcribe(ctx context.Context, samples []float32, sampleRate int, params ports.DecodeParams) (string, error) {
	if len(samples) == 0 {
		return "", nil
	}
	if strings.TrimSpace(e.cfg.ModelPath) == "" {
		return "", ErrModelMissing
	}
	if _, err := os.Stat(e.cfg.ModelPath); err != nil {
		return "", fmt.Errorf("%w: %s", ErrModelMissing, e.cfg.ModelPath)
	}

	wavPath, err := audio.WriteTempWAV(e.cfg.TempDir, samples, sampleRate)
	if err != nil {
		return "", err
	}
	defer os.Remove(wavPath)

	outBase := strings.TrimSuffix(wavPath, ".wav")
	jsonPath := outBase + ".json"
	defer os.Remove(jsonPath)

	cmd := exec.CommandContext(ctx, e.cfg.Binary, e.args(wavPath, outBase, params)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("whisper-cli failed: %w: %s", err, trimOutput(stderr.String()))
	}

	payload, err := os.ReadFile(jsonPath)
	if err != nil {
		return "", fmt.Errorf("whisper-cli produced no output: %w", err)
	}
	return parseOutput(payload)
}

func (e *Engine) args(wavPath, outBase string, params ports.DecodeParams) []string {
	language := params.Language
	if language == "" {
		language = "auto"
	}
	beam := params.BeamSize
	if beam <= 0 {
		beam = 5
	}

	args := []string{
		"-m", e.cfg.ModelPath,
		"-f", wavPath,
		"-l", language,
		"-oj",
		"-of", outBase,
		"-np",
		"-bs", strconv.Itoa(beam),
		"-tp", strconv.FormatFloat(params.Temperature, 'f', -1, 64),
	}
	if !params.ConditionOnPrevious {
		args = append(args, "-mc", "0")
	}
	if strings.EqualFold(e.cfg.Device, "cpu") {
		args = append(args, "-ng")
	}
	if e.cfg.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(e.cfg.Threads))
	}
	return args
}

type whisperOutput struct {
	Transcription []struct {
		Text string `json:"text"`
	} `json:"transcription"`
}

func parseOutput(payload []byte) (string, error) {
	var out whisperOutput
	if err := json.Unmarshal(payload, &out); err != nil {
		return "", fmt.Errorf("failed to parse whisper output: %w", err)
	}
	parts := make([]string, 0, len(out.Transcription))
	for _, segment := range out.Transcription {
		if text := strings.TrimSpace(segment.Text); text != "" && !isNonSpeechMarker(text) {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

// isNonSpeechMarker matches whisper annotations like "[BLANK_AUDIO]" or "(music)".
func isNonSpeechMarker(text string) bool {
	return (strings.HasPrefix(text, "[") && strings.HasSuffix(text, "]")) ||
		(strings.HasPrefix(text, "(") && strings.HasSuffix(text, ")"))
}

func trimOutput(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 400 {
		return s[len(s)-400:]
	}
	return s
}
