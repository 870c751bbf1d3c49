package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir string, contents string) string {
	t.Helper()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("VOICECLICK_CONFIG", "")
	t.Setenv("VOICECLICK_ENGINE", "")
	t.Setenv("DEEPGRAM_API_KEY", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.File != "" {
		t.Fatalf("expected no config file, got %q", cfg.File)
	}

	configDir := filepath.Join(home, ".config", "voiceclick")
	if cfg.Rules.Path != filepath.Join(configDir, "substitutions.rules") {
		t.Fatalf("unexpected rules path: %q", cfg.Rules.Path)
	}
	if cfg.History.Dir != filepath.Join(configDir, "history") || cfg.History.MaxEntries != 100 {
		t.Fatalf("unexpected history config: %+v", cfg.History)
	}
	if !cfg.Activation.AutoStartOnClick || cfg.Activation.AutoStartOnFocus {
		t.Fatalf("unexpected activation defaults: %+v", cfg.Activation)
	}
	if cfg.Session.SilenceSeconds != 8 || cfg.Session.MaxRecordingSeconds != 300 || cfg.Session.VolumeThreshold != 0.02 {
		t.Fatalf("unexpected session defaults: %+v", cfg.Session)
	}
	if cfg.Engine.Provider != "whispercpp" || cfg.Engine.FallbackTemperature != 0.4 {
		t.Fatalf("unexpected engine defaults: %+v", cfg.Engine)
	}
	if cfg.Hotkeys.Toggle != "ctrl+shift+v" || cfg.Hotkeys.Cancel != "ctrl+shift+x" {
		t.Fatalf("unexpected hotkeys: %+v", cfg.Hotkeys)
	}
}

func TestLoadFileThenEnvironment(t *testing.T) {
	home := t.TempDir()
	path := writeConfig(t, home, `
[engine]
provider = "deepgram"
language = "de"

[deepgram]
api_key = "from-file"
model = "nova-3"

[activation]
auto_start_on_focus = true
blacklist = ["KeePass", "1Password"]

[session]
silence_seconds = 4.5
`)

	t.Setenv("HOME", home)
	t.Setenv("VOICECLICK_CONFIG", path)
	t.Setenv("VOICECLICK_ENGINE", "")
	t.Setenv("DEEPGRAM_API_KEY", "from-env")
	t.Setenv("DEEPGRAM_SMART_FORMAT", "false")
	t.Setenv("VOICECLICK_AUDIO_BACKEND", "ffmpeg")
	t.Setenv("VOICECLICK_SAMPLE_RATE", "22050")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.File != path {
		t.Fatalf("expected file %q, got %q", path, cfg.File)
	}
	if cfg.Engine.Provider != "deepgram" || cfg.Engine.Language != "de" {
		t.Fatalf("unexpected engine config: %+v", cfg.Engine)
	}
	if cfg.Deepgram.APIKey != "from-env" || cfg.Deepgram.Model != "nova-3" || cfg.Deepgram.SmartFormat {
		t.Fatalf("unexpected deepgram config: %+v", cfg.Deepgram)
	}
	if !cfg.Activation.AutoStartOnFocus || len(cfg.Activation.Blacklist) != 2 {
		t.Fatalf("unexpected activation config: %+v", cfg.Activation)
	}
	if !cfg.Activation.AutoStartOnClick {
		t.Fatalf("expected unspecified keys to keep defaults")
	}
	if cfg.Session.SilenceSeconds != 4.5 {
		t.Fatalf("unexpected silence seconds: %v", cfg.Session.SilenceSeconds)
	}
	if cfg.Audio.Backend != "ffmpeg" || cfg.Audio.SampleRate != 22050 {
		t.Fatalf("unexpected audio config: %+v", cfg.Audio)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	home := t.TempDir()
	path := writeConfig(t, home, `
[session]
silense_seconds = 3
`)
	t.Setenv("HOME", home)
	t.Setenv("VOICECLICK_CONFIG", path)

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "session.silense_seconds") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestLoadRejectsInvalidTOML(t *testing.T) {
	home := t.TempDir()
	path := writeConfig(t, home, "[engine\nprovider = ")
	t.Setenv("HOME", home)
	t.Setenv("VOICECLICK_CONFIG", path)

	if _, err := Load(); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("VOICECLICK_CONFIG", "")
	t.Setenv("VOICECLICK_ENGINE", "Vosk")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "vosk") {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestNormalizeRestoresInvalidValues(t *testing.T) {
	t.Parallel()

	cfg := Defaults(t.TempDir())
	cfg.Watchers.FocusPollMS = 0
	cfg.Session.VolumeThreshold = -1
	cfg.Audio.BlockSize = 16
	cfg.VAD.Mode = 9
	cfg.Engine.Provider = " OpenAI "
	cfg.normalize()

	if cfg.Watchers.FocusPollMS != 50 || cfg.Session.VolumeThreshold != 0.02 {
		t.Fatalf("unexpected normalized values: %+v %+v", cfg.Watchers, cfg.Session)
	}
	if cfg.Audio.BlockSize != 1024 || cfg.VAD.Mode != 2 {
		t.Fatalf("unexpected normalized audio/vad: %+v %+v", cfg.Audio, cfg.VAD)
	}
	if cfg.Engine.Provider != "openai" {
		t.Fatalf("expected normalized provider, got %q", cfg.Engine.Provider)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config: %v", err)
	}
}

func TestDurationHelpers(t *testing.T) {
	t.Parallel()

	if Millis(120) != 120*time.Millisecond {
		t.Fatalf("unexpected millis conversion")
	}
	if Seconds(1.5) != 1500*time.Millisecond {
		t.Fatalf("unexpected seconds conversion")
	}
}
