package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config stores runtime configuration. Load layers defaults, the TOML file and
// environment overrides, in that order.
type Config struct {
	Watchers   WatcherConfig    `toml:"watchers"`
	Activation ActivationConfig `toml:"activation"`
	Session    SessionConfig    `toml:"session"`
	Audio      AudioConfig      `toml:"audio"`
	Engine     EngineConfig     `toml:"engine"`
	Whisper    WhisperConfig    `toml:"whisper"`
	OpenAI     OpenAIConfig     `toml:"openai"`
	Deepgram   DeepgramConfig   `toml:"deepgram"`
	VAD        VADConfig        `toml:"vad"`
	Detector   DetectorConfig   `toml:"detector"`
	Rules      RulesConfig      `toml:"rules"`
	History    HistoryConfig    `toml:"history"`
	Feedback   FeedbackConfig   `toml:"feedback"`
	Hotkeys    HotkeyConfig     `toml:"hotkeys"`
	Log        LogConfig        `toml:"log"`

	// File is the config file that was read, empty when none existed.
	File string `toml:"-"`
}

type WatcherConfig struct {
	FocusPollMS       int `toml:"focus_poll_ms"`
	FocusDebounceMS   int `toml:"focus_debounce_ms"`
	ClickDebounceMS   int `toml:"click_debounce_ms"`
	CooldownMS        int `toml:"cooldown_ms"`
	ClickSettleMS     int `toml:"click_settle_ms"`
	BoundsTolerancePX int `toml:"bounds_tolerance_px"`
}

type ActivationConfig struct {
	AutoStartOnFocus      bool     `toml:"auto_start_on_focus"`
	AutoStartOnClick      bool     `toml:"auto_start_on_click"`
	IgnorePasswordFields  bool     `toml:"ignore_password_fields"`
	IgnoreFullscreenGames bool     `toml:"ignore_fullscreen_games"`
	RequireTextField      bool     `toml:"require_text_field"`
	EnableManualStop      bool     `toml:"enable_manual_stop"`
	MouseShakeThresholdPX int      `toml:"mouse_shake_threshold_px"`
	MouseShakeTimeMS      int      `toml:"mouse_shake_time_ms"`
	Whitelist             []string `toml:"whitelist"`
	Blacklist             []string `toml:"blacklist"`
}

type SessionConfig struct {
	SilenceAutoStop     bool    `toml:"silence_auto_stop"`
	SilenceSeconds      float64 `toml:"silence_seconds"`
	MaxRecordingSeconds int     `toml:"max_recording_seconds"`
	VolumeThreshold     float64 `toml:"volume_threshold"`
	MinRecordingMS      int     `toml:"min_recording_ms"`
	MonitorIntervalMS   int     `toml:"monitor_interval_ms"`
	ShutdownTimeoutMS   int     `toml:"shutdown_timeout_ms"`
}

type AudioConfig struct {
	// Backend is "portaudio" or "ffmpeg".
	Backend         string `toml:"backend"`
	RecorderCommand string `toml:"recorder_command"`
	InputFormat     string `toml:"input_format"`
	InputDevice     string `toml:"input_device"`
	SampleRate      int    `toml:"sample_rate"`
	Channels        int    `toml:"channels"`
	BlockSize       int    `toml:"block_size"`
}

type EngineConfig struct {
	// Provider is "whispercpp", "openai" or "deepgram".
	Provider string `toml:"provider"`
	// Language is an ISO code or "auto".
	Language            string  `toml:"language"`
	BeamSize            int     `toml:"beam_size"`
	FallbackTemperature float64 `toml:"fallback_temperature"`
}

type WhisperConfig struct {
	Binary    string `toml:"binary"`
	ModelPath string `toml:"model_path"`
	Device    string `toml:"device"`
	Threads   int    `toml:"threads"`
}

type OpenAIConfig struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
	Model   string `toml:"model"`
	Prompt  string `toml:"prompt"`
}

type DeepgramConfig struct {
	APIKey      string `toml:"api_key"`
	APIBaseURL  string `toml:"api_base_url"`
	Model       string `toml:"model"`
	SmartFormat bool   `toml:"smart_format"`
}

type VADConfig struct {
	Mode    int `toml:"mode"`
	FrameMS int `toml:"frame_ms"`
	PadMS   int `toml:"pad_ms"`
}

type DetectorConfig struct {
	VocabularyPath string `toml:"vocabulary_path"`
	FocusProbe     string `toml:"focus_probe"`
}

type RulesConfig struct {
	Path              string `toml:"path"`
	IterationLimit    int    `toml:"iteration_limit"`
	SpokenPunctuation bool   `toml:"spoken_punctuation"`
	Capitalize        bool   `toml:"capitalize"`
}

type HistoryConfig struct {
	Dir        string `toml:"dir"`
	MaxEntries int    `toml:"max_entries"`
}

type FeedbackConfig struct {
	Sounds           bool `toml:"sounds"`
	Notifications    bool `toml:"notifications"`
	RestoreClipboard bool `toml:"restore_clipboard"`
}

type HotkeyConfig struct {
	Toggle string `toml:"toggle"`
	Cancel string `toml:"cancel"`
}

type LogConfig struct {
	Level string `toml:"level"`
	// Format is "text" or "json".
	Format string `toml:"format"`
}

var knownProviders = []string{"whispercpp", "openai", "deepgram"}

// Load resolves configuration for the current user.
func Load() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}
	configDir := filepath.Join(home, ".config", "voiceclick")

	cfg := Defaults(configDir)
	path := envOrDefault("VOICECLICK_CONFIG", filepath.Join(configDir, "config.toml"))
	if err := cfg.decodeFile(path); err != nil {
		return Config{}, err
	}
	cfg.applyEnv()
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Defaults returns the built-in configuration rooted at configDir.
func Defaults(configDir string) Config {
	return Config{
		Watchers: WatcherConfig{
			FocusPollMS:       50,
			FocusDebounceMS:   100,
			ClickDebounceMS:   200,
			CooldownMS:        2000,
			ClickSettleMS:     120,
			BoundsTolerancePX: 5,
		},
		Activation: ActivationConfig{
			AutoStartOnFocus:      false,
			AutoStartOnClick:      true,
			IgnorePasswordFields:  true,
			IgnoreFullscreenGames: true,
			RequireTextField:      true,
			EnableManualStop:      true,
			MouseShakeThresholdPX: 50,
			MouseShakeTimeMS:      100,
		},
		Session: SessionConfig{
			SilenceAutoStop:     true,
			SilenceSeconds:      8,
			MaxRecordingSeconds: 300,
			VolumeThreshold:     0.02,
			MinRecordingMS:      300,
			MonitorIntervalMS:   100,
			ShutdownTimeoutMS:   5000,
		},
		Audio: AudioConfig{
			Backend:         "portaudio",
			RecorderCommand: "ffmpeg",
			InputFormat:     "pulse",
			InputDevice:     "default",
			SampleRate:      16000,
			Channels:        1,
			BlockSize:       1024,
		},
		Engine: EngineConfig{
			Provider:            "whispercpp",
			Language:            "en",
			BeamSize:            5,
			FallbackTemperature: 0.4,
		},
		Whisper: WhisperConfig{
			Binary:    "whisper-cli",
			ModelPath: filepath.Join(configDir, "models", "ggml-base.bin"),
			Device:    "cpu",
		},
		OpenAI: OpenAIConfig{
			Model: "whisper-1",
		},
		Deepgram: DeepgramConfig{
			APIBaseURL:  "https://api.deepgram.com/v1",
			Model:       "nova-2",
			SmartFormat: true,
		},
		VAD: VADConfig{
			Mode:    2,
			FrameMS: 30,
			PadMS:   300,
		},
		Detector: DetectorConfig{
			VocabularyPath: filepath.Join(configDir, "vocabulary.yaml"),
			FocusProbe:     "x11",
		},
		Rules: RulesConfig{
			Path:              filepath.Join(configDir, "substitutions.rules"),
			IterationLimit:    30,
			SpokenPunctuation: true,
			Capitalize:        true,
		},
		History: HistoryConfig{
			Dir:        filepath.Join(configDir, "history"),
			MaxEntries: 100,
		},
		Feedback: FeedbackConfig{
			Sounds:           true,
			Notifications:    true,
			RestoreClipboard: false,
		},
		Hotkeys: HotkeyConfig{
			Toggle: "ctrl+shift+v",
			Cancel: "ctrl+shift+x",
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// decodeFile overlays path onto cfg. A missing file is not an error; keys the
// struct does not know are.
func (c *Config) decodeFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file %q: %w", path, err)
	}
	meta, err := toml.DecodeFile(path, c)
	if err != nil {
		return fmt.Errorf("failed to parse config file %q: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		sort.Strings(keys)
		return fmt.Errorf("config file %q has unknown keys: %s", path, strings.Join(keys, ", "))
	}
	c.File = path
	return nil
}

func (c *Config) applyEnv() {
	c.Engine.Provider = envOrDefault("VOICECLICK_ENGINE", c.Engine.Provider)
	c.Engine.Language = envOrDefault("VOICECLICK_LANGUAGE", c.Engine.Language)

	c.Whisper.Binary = envOrDefault("WHISPER_CLI", c.Whisper.Binary)
	c.Whisper.ModelPath = envOrDefault("WHISPER_MODEL", c.Whisper.ModelPath)
	c.Whisper.Device = envOrDefault("WHISPER_DEVICE", c.Whisper.Device)
	c.Whisper.Threads = envOrDefaultInt("WHISPER_THREADS", c.Whisper.Threads)

	c.OpenAI.APIKey = envOrDefault("OPENAI_API_KEY", c.OpenAI.APIKey)
	c.OpenAI.BaseURL = envOrDefault("OPENAI_BASE_URL", c.OpenAI.BaseURL)
	c.OpenAI.Model = envOrDefault("OPENAI_TRANSCRIBE_MODEL", c.OpenAI.Model)

	c.Deepgram.APIKey = envOrDefault("DEEPGRAM_API_KEY", c.Deepgram.APIKey)
	c.Deepgram.APIBaseURL = envOrDefault("DEEPGRAM_API_BASE", c.Deepgram.APIBaseURL)
	c.Deepgram.Model = envOrDefault("DEEPGRAM_MODEL", c.Deepgram.Model)
	c.Deepgram.SmartFormat = envOrDefaultBool("DEEPGRAM_SMART_FORMAT", c.Deepgram.SmartFormat)

	c.Audio.Backend = envOrDefault("VOICECLICK_AUDIO_BACKEND", c.Audio.Backend)
	c.Audio.RecorderCommand = envOrDefault("VOICECLICK_FFMPEG_COMMAND", c.Audio.RecorderCommand)
	c.Audio.InputFormat = envOrDefault("VOICECLICK_AUDIO_INPUT_FORMAT", c.Audio.InputFormat)
	c.Audio.InputDevice = envOrDefault("VOICECLICK_AUDIO_INPUT_DEVICE", c.Audio.InputDevice)
	c.Audio.SampleRate = envOrDefaultInt("VOICECLICK_SAMPLE_RATE", c.Audio.SampleRate)

	c.Session.SilenceAutoStop = envOrDefaultBool("VOICECLICK_SILENCE_AUTO_STOP", c.Session.SilenceAutoStop)
	c.Session.MaxRecordingSeconds = envOrDefaultInt("VOICECLICK_MAX_RECORDING_SECONDS", c.Session.MaxRecordingSeconds)

	c.Rules.Path = envOrDefault("VOICECLICK_RULES_FILE", c.Rules.Path)
	c.Detector.VocabularyPath = envOrDefault("VOICECLICK_VOCABULARY_FILE", c.Detector.VocabularyPath)
	c.History.Dir = envOrDefault("VOICECLICK_HISTORY_DIR", c.History.Dir)
	c.Log.Level = envOrDefault("VOICECLICK_LOG_LEVEL", c.Log.Level)
	c.Log.Format = envOrDefault("VOICECLICK_LOG_FORMAT", c.Log.Format)
}

// normalize replaces out-of-range values with their defaults.
func (c *Config) normalize() {
	d := Defaults("")
	positive := func(v *int, fallback int) {
		if *v <= 0 {
			*v = fallback
		}
	}
	positive(&c.Watchers.FocusPollMS, d.Watchers.FocusPollMS)
	positive(&c.Watchers.CooldownMS, d.Watchers.CooldownMS)
	positive(&c.Watchers.ClickSettleMS, d.Watchers.ClickSettleMS)
	positive(&c.Activation.MouseShakeThresholdPX, d.Activation.MouseShakeThresholdPX)
	positive(&c.Activation.MouseShakeTimeMS, d.Activation.MouseShakeTimeMS)
	positive(&c.Session.MaxRecordingSeconds, d.Session.MaxRecordingSeconds)
	positive(&c.Session.MonitorIntervalMS, d.Session.MonitorIntervalMS)
	positive(&c.Session.ShutdownTimeoutMS, d.Session.ShutdownTimeoutMS)
	positive(&c.Audio.SampleRate, d.Audio.SampleRate)
	positive(&c.Audio.Channels, d.Audio.Channels)
	positive(&c.Engine.BeamSize, d.Engine.BeamSize)
	positive(&c.Rules.IterationLimit, d.Rules.IterationLimit)
	positive(&c.History.MaxEntries, d.History.MaxEntries)
	if c.Audio.BlockSize < 256 {
		c.Audio.BlockSize = d.Audio.BlockSize
	}
	if c.Session.SilenceSeconds <= 0 {
		c.Session.SilenceSeconds = d.Session.SilenceSeconds
	}
	if c.Session.VolumeThreshold <= 0 {
		c.Session.VolumeThreshold = d.Session.VolumeThreshold
	}
	if c.VAD.Mode < 0 || c.VAD.Mode > 3 {
		c.VAD.Mode = d.VAD.Mode
	}
	c.Engine.Provider = strings.ToLower(strings.TrimSpace(c.Engine.Provider))
	c.Audio.Backend = strings.ToLower(strings.TrimSpace(c.Audio.Backend))
}

// Validate reports settings that cannot be fixed up silently.
func (c Config) Validate() error {
	valid := false
	for _, p := range knownProviders {
		if c.Engine.Provider == p {
			valid = true
		}
	}
	if !valid {
		return fmt.Errorf("unknown engine provider %q (want one of %s)", c.Engine.Provider, strings.Join(knownProviders, ", "))
	}
	if c.Audio.Backend != "portaudio" && c.Audio.Backend != "ffmpeg" {
		return fmt.Errorf("unknown audio backend %q (want portaudio or ffmpeg)", c.Audio.Backend)
	}
	return nil
}

// Millis converts a millisecond setting to a duration.
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// Seconds converts a fractional-second setting to a duration.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
