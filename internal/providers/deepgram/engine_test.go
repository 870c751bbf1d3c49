package deepgram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"

	"voiceclick/internal/ports"
)

func TestNewEngineDefaults(t *testing.T) {
	t.Parallel()

	e := NewEngine(Config{})
	if e.cfg.APIBaseURL != "https://api.deepgram.com/v1" {
		t.Fatalf("unexpected base url: %q", e.cfg.APIBaseURL)
	}
	if e.cfg.Model != "nova-2" || e.cfg.ChunkSamples != defaultChunkSamples {
		t.Fatalf("unexpected defaults: %+v", e.cfg)
	}
}

func TestTranscribeRequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := NewEngine(Config{}).Transcribe(context.Background(), []float32{0.1}, 16000, ports.DecodeParams{})
	if err == nil {
		t.Fatalf("expected missing key error")
	}
}

func TestBuildListenURLDefaults(t *testing.T) {
	t.Parallel()

	url, err := buildListenURL(Config{APIBaseURL: "https://api.deepgram.com/v1", Model: "nova-2"}, "", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, want := range []string{"wss://api.deepgram.com/v1/listen", "encoding=linear16", "sample_rate=16000", "channels=1", "interim_results=false"} {
		if !strings.Contains(url, want) {
			t.Fatalf("expected %q in url: %s", want, url)
		}
	}
	if strings.Contains(url, "language=") {
		t.Fatalf("unexpected language in url: %s", url)
	}
}

func TestBuildListenURLWithLanguageAndSmartFormat(t *testing.T) {
	t.Parallel()

	url, err := buildListenURL(Config{APIBaseURL: "http://localhost:8080/v1", Model: "m", SmartFormat: true}, "en-US", 8000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(url, "ws://localhost:8080/v1/listen") {
		t.Fatalf("unexpected ws url: %s", url)
	}
	if !strings.Contains(url, "language=en-US") || !strings.Contains(url, "smart_format=true") || !strings.Contains(url, "sample_rate=8000") {
		t.Fatalf("unexpected query: %s", url)
	}
}

func TestBuildListenURLInvalidBase(t *testing.T) {
	t.Parallel()

	if _, err := buildListenURL(Config{APIBaseURL: ":// bad"}, "", 16000); err == nil {
		t.Fatalf("expected invalid base url error")
	}
}

func TestFinalsCollector(t *testing.T) {
	t.Parallel()

	var c finalsCollector
	c.Add("hello", false)
	c.Add("hello world", true)
	c.Add("   ", true)
	c.Add("again", false)
	if got := c.Text(); got != "hello world again" {
		t.Fatalf("unexpected transcript: %q", got)
	}

	var empty finalsCollector
	if got := empty.Text(); got != "" {
		t.Fatalf("expected empty transcript, got %q", got)
	}
}

func TestSessionSetErrIgnoresCloseErrors(t *testing.T) {
	t.Parallel()

	s := &session{}
	s.setErr(&websocket.CloseError{Code: websocket.CloseNormalClosure, Text: "closed"})
	if s.waitErr() != nil {
		t.Fatalf("expected close error to be ignored")
	}
}

func TestTranscribeAgainstFakeServer(t *testing.T) {
	t.Parallel()

	srv := newFakeDeepgram(t, []string{
		`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"hello"}]}}`,
		`not json`,
		`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"there"}]}}`,
	})
	defer srv.Close()

	e := NewEngine(Config{APIKey: "key", APIBaseURL: srv.URL, ChunkSamples: 2})
	text, err := e.Transcribe(context.Background(), []float32{0.1, 0.2, 0.3}, 16000, ports.DecodeParams{Language: "de"})
	if err != nil {
		t.Fatalf("transcribe failed: %v", err)
	}
	if text != "hello there" {
		t.Fatalf("unexpected text: %q", text)
	}

	got := srv.snapshot()
	if got.auth != "Token key" {
		t.Fatalf("unexpected auth header: %q", got.auth)
	}
	if got.language != "de" {
		t.Fatalf("expected decode language to override config, got %q", got.language)
	}
	if got.audioBytes != 6 || got.binaryFrames != 2 {
		t.Fatalf("unexpected audio framing: %d bytes in %d frames", got.audioBytes, got.binaryFrames)
	}
}

func TestTranscribeSurfacesProviderError(t *testing.T) {
	t.Parallel()

	srv := newFakeDeepgram(t, []string{`{"type":"Error","message":"bad model"}`})
	defer srv.Close()

	_, err := NewEngine(Config{APIKey: "key", APIBaseURL: srv.URL}).Transcribe(context.Background(), []float32{0.1}, 16000, ports.DecodeParams{})
	if err == nil || !strings.Contains(err.Error(), "bad model") {
		t.Fatalf("expected provider error, got %v", err)
	}
}

type fakeCapture struct {
	auth         string
	language     string
	audioBytes   int
	binaryFrames int
}

type fakeDeepgram struct {
	*httptest.Server
	mu  sync.Mutex
	got fakeCapture
}

func (f *fakeDeepgram) snapshot() fakeCapture {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.got
}

// newFakeDeepgram reads audio until CloseStream, replies with responses and
// closes normally.
func newFakeDeepgram(t *testing.T, responses []string) *fakeDeepgram {
	t.Helper()

	f := &fakeDeepgram{}
	upgrader := websocket.Upgrader{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		f.mu.Lock()
		f.got.auth = r.Header.Get("Authorization")
		f.got.language = r.URL.Query().Get("language")
		f.mu.Unlock()

		for {
			kind, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if kind == websocket.BinaryMessage {
				f.mu.Lock()
				f.got.audioBytes += len(payload)
				f.got.binaryFrames++
				f.mu.Unlock()
				continue
			}
			if strings.Contains(string(payload), "CloseStream") {
				break
			}
		}

		for _, response := range responses {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(response)); err != nil {
				return
			}
		}
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	return f
}
