package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"voiceclick/internal/audio"
	"voiceclick/internal/ports"
)

const defaultChunkSamples = 3200

// Config controls Deepgram websocket settings.
type Config struct {
	APIKey       string
	APIBaseURL   string
	Model        string
	Language     string
	SmartFormat  bool
	ChunkSamples int
}

// Engine implements ports.TranscriptionEngine by replaying a finished recording
// over Deepgram's live websocket and collecting the final results.
type Engine struct {
	cfg    Config
	dialer *websocket.Dialer
}

func NewEngine(cfg Config) *Engine {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "https://api.deepgram.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.ChunkSamples <= 0 {
		cfg.ChunkSamples = defaultChunkSamples
	}
	return &Engine{cfg: cfg, dialer: websocket.DefaultDialer}
}

func (e *Engine) Name() string { return "deepgram" }

// Transcribe ignores beam size, temperature and conditioning. Deepgram exposes
// none of them.
func (e *Engine) Transcribe(ctx context.Context, samples []float32, sampleRate int, params ports.DecodeParams) (string, error) {
	if strings.TrimSpace(e.cfg.APIKey) == "" {
		return "", errors.New("DEEPGRAM_API_KEY is not configured")
	}
	if len(samples) == 0 {
		return "", nil
	}

	language := e.cfg.Language
	if params.Language != "" {
		language = params.Language
	}
	wsURL, err := buildListenURL(e.cfg, language, sampleRate)
	if err != nil {
		return "", err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+e.cfg.APIKey)

	conn, _, err := e.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		return "", fmt.Errorf("failed to connect to Deepgram websocket: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	s := &session{conn: conn}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.write(audio.PCM16LE(samples), e.cfg.ChunkSamples*2)
	}()
	s.read()
	_ = conn.Close()
	wg.Wait()

	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if err := s.waitErr(); err != nil {
		return "", err
	}
	return s.finals.Text(), nil
}

type session struct {
	conn   *websocket.Conn
	finals finalsCollector

	errMu sync.Mutex
	err   error
}

func (s *session) waitErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *session) setErr(err error) {
	if err == nil {
		return
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *session) write(pcm []byte, chunk int) {
	for start := 0; start < len(pcm); start += chunk {
		end := min(start+chunk, len(pcm))
		if err := s.conn.WriteMessage(websocket.BinaryMessage, pcm[start:end]); err != nil {
			s.setErr(fmt.Errorf("failed to send audio: %w", err))
			return
		}
	}

	if err := s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`)); err != nil {
		s.setErr(fmt.Errorf("failed to close stream: %w", err))
	}
}

// read consumes results until the server closes the socket after CloseStream.
func (s *session) read() {
	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				return
			}
			s.setErr(fmt.Errorf("failed to read provider event: %w", err))
			return
		}

		var response deepgramResponse
		if err := json.Unmarshal(payload, &response); err != nil {
			continue
		}

		if strings.EqualFold(response.Type, "Error") {
			message := strings.TrimSpace(response.Message)
			if message == "" {
				message = "deepgram returned an unknown error"
			}
			s.setErr(errors.New(message))
			return
		}

		s.finals.Add(extractTranscript(response), response.IsFinal || response.SpeechFinal)
	}
}

// finalsCollector joins final segments. When nothing was finalized it falls
// back to the last interim hypothesis.
type finalsCollector struct {
	finals      []string
	lastInterim string
}

func (c *finalsCollector) Add(text string, final bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if final {
		c.finals = append(c.finals, text)
		c.lastInterim = ""
		return
	}
	c.lastInterim = text
}

func (c *finalsCollector) Text() string {
	joined := strings.TrimSpace(strings.Join(c.finals, " "))
	if c.lastInterim == "" {
		return joined
	}
	return strings.TrimSpace(joined + " " + c.lastInterim)
}

type deepgramResponse struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`

	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func extractTranscript(response deepgramResponse) string {
	if len(response.Channel.Alternatives) == 0 {
		return ""
	}
	return strings.TrimSpace(response.Channel.Alternatives[0].Transcript)
}

func buildListenURL(cfg Config, language string, sampleRate int) (string, error) {
	base := strings.TrimSpace(cfg.APIBaseURL)
	if base == "" {
		base = "https://api.deepgram.com/v1"
	}

	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	listenURL, err := url.Parse(base + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid Deepgram API base URL: %w", err)
	}
	if sampleRate <= 0 {
		sampleRate = 16000
	}

	query := listenURL.Query()
	query.Set("model", cfg.Model)
	query.Set("encoding", "linear16")
	query.Set("sample_rate", fmt.Sprintf("%d", sampleRate))
	query.Set("channels", "1")
	query.Set("interim_results", "false")
	query.Set("punctuate", "true")
	query.Set("smart_format", fmt.Sprintf("%t", cfg.SmartFormat))
	if language != "" {
		query.Set("language", language)
	}
	listenURL.RawQuery = query.Encode()
	return listenURL.String(), nil
}
