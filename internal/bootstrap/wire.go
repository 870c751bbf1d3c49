package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"voiceclick/internal/audio"
	"voiceclick/internal/config"
	"voiceclick/internal/detector"
	"voiceclick/internal/domain"
	"voiceclick/internal/history"
	"voiceclick/internal/platform"
	"voiceclick/internal/ports"
	"voiceclick/internal/providers/deepgram"
	"voiceclick/internal/providers/openai"
	"voiceclick/internal/providers/whispercpp"
	"voiceclick/internal/rules"
	"voiceclick/internal/transcribe"
	"voiceclick/internal/usecase"
	"voiceclick/internal/vad"
	"voiceclick/internal/watcher"
)

// Overrides replaces platform adapters. Nil fields get the real implementation.
type Overrides struct {
	Device   ports.AudioDevice
	Engine   ports.TranscriptionEngine
	Focus    ports.FocusSource
	Pointer  ports.PointerSource
	Inserter ports.TextInserter
	Feedback ports.Feedback
	Logger   *slog.Logger
}

// Services is the assembled runtime graph.
type Services struct {
	Config      config.Config
	Controller  *usecase.SessionController
	Coordinator *transcribe.Coordinator
	Engine      ports.TranscriptionEngine
	Detector    *detector.Detector
	Router      *usecase.ActivationRouter
	Clicks      *usecase.ClickControls
	FocusWatch  *watcher.FocusWatcher
	ClickWatch  *watcher.ClickWatcher
	Hotkeys     *platform.Hotkeys
	History     *history.Store

	focus   ports.FocusSource
	closers []func()
	logger  *slog.Logger
}

// Build loads configuration and wires all backend dependencies. Nothing
// listens until Start.
func Build(ctx context.Context, eventSink ports.EventSink, overrides Overrides) (*Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return BuildWithConfig(ctx, cfg, eventSink, overrides)
}

// BuildWithConfig wires the graph for an already resolved configuration.
func BuildWithConfig(ctx context.Context, cfg config.Config, eventSink ports.EventSink, overrides Overrides) (*Services, error) {
	logger := overrides.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Services{Config: cfg, logger: logger}

	vocab, err := detector.LoadVocabulary(cfg.Detector.VocabularyPath)
	if err != nil {
		return nil, err
	}
	s.Detector = detector.New(vocab, logger)

	rulesEngine, err := rules.Load(cfg.Rules.Path, rules.Options{
		LoopLimit:         cfg.Rules.IterationLimit,
		SpokenPunctuation: cfg.Rules.SpokenPunctuation,
		Capitalize:        cfg.Rules.Capitalize,
	})
	if err != nil {
		return nil, err
	}

	store, err := history.Open(history.Options{
		Path:       cfg.History.Dir,
		MaxEntries: cfg.History.MaxEntries,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	s.History = store
	s.closers = append(s.closers, func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close history", "error", err)
		}
	})

	s.Engine = overrides.Engine
	if s.Engine == nil {
		s.Engine, err = newEngine(cfg)
		if err != nil {
			s.Close()
			return nil, err
		}
	}

	var filter ports.SpeechFilter
	if vf, err := vad.New(vad.Config{Mode: cfg.VAD.Mode, FrameMS: cfg.VAD.FrameMS, PadMS: cfg.VAD.PadMS}); err != nil {
		logger.Warn("speech filter unavailable, decoding unfiltered audio", "error", err)
	} else {
		filter = vf
	}

	coordCfg := transcribe.DefaultConfig()
	coordCfg.SampleRate = cfg.Audio.SampleRate
	coordCfg.Language = cfg.Engine.Language
	coordCfg.Primary.BeamSize = cfg.Engine.BeamSize
	coordCfg.Fallback.BeamSize = cfg.Engine.BeamSize
	coordCfg.Fallback.Temperature = cfg.Engine.FallbackTemperature
	s.Coordinator = transcribe.NewCoordinator(s.Engine, filter, coordCfg, logger)

	device := overrides.Device
	if device == nil {
		device = newDevice(cfg)
	}
	recorder := audio.NewCapture(device, ports.AudioConfig{
		SampleRate:  cfg.Audio.SampleRate,
		Channels:    cfg.Audio.Channels,
		BlockSize:   cfg.Audio.BlockSize,
		InputFormat: cfg.Audio.InputFormat,
		InputDevice: cfg.Audio.InputDevice,
	}, logger)

	s.focus = overrides.Focus
	if s.focus == nil {
		s.focus = newFocusSource(cfg)
	}
	pointer := overrides.Pointer
	if pointer == nil {
		hookSource := platform.NewHookPointerSource(logger)
		s.closers = append(s.closers, hookSource.Close)
		pointer = hookSource
	}
	inserter := overrides.Inserter
	if inserter == nil {
		inserter = platform.NewPasteInserter(platform.InserterConfig{
			RestoreClipboard: cfg.Feedback.RestoreClipboard,
		}, logger)
	}
	feedback := overrides.Feedback
	if feedback == nil {
		feedback = platform.NewBeepFeedback(ctx, platform.FeedbackConfig{
			Sounds:        cfg.Feedback.Sounds,
			Notifications: cfg.Feedback.Notifications,
		}, logger)
	}

	s.Controller = usecase.NewSessionController(ctx, usecase.Dependencies{
		Recorder:    recorder,
		Coordinator: s.Coordinator,
		Rules:       rulesEngine,
		Inserter:    inserter,
		Focus:       s.focus,
		History:     store,
		Feedback:    feedback,
		Events:      eventSink,
		Logger:      logger,
	}, usecase.Config{
		SilenceDuration: config.Seconds(cfg.Session.SilenceSeconds),
		MaxDuration:     time.Duration(cfg.Session.MaxRecordingSeconds) * time.Second,
		VolumeThreshold: cfg.Session.VolumeThreshold,
		SilenceAutoStop: cfg.Session.SilenceAutoStop,
		MinRecording:    config.Millis(cfg.Session.MinRecordingMS),
		MonitorInterval: config.Millis(cfg.Session.MonitorIntervalMS),
	})

	s.Router = usecase.NewActivationRouter(ctx, s.Controller,
		detector.NewFullscreenGuard(s.focus, vocab, logger),
		usecase.RouterConfig{
			AutoStartOnFocus:      cfg.Activation.AutoStartOnFocus,
			AutoStartOnClick:      cfg.Activation.AutoStartOnClick,
			IgnorePasswordFields:  cfg.Activation.IgnorePasswordFields,
			IgnoreFullscreenGames: cfg.Activation.IgnoreFullscreenGames,
			Whitelist:             cfg.Activation.Whitelist,
			Blacklist:             cfg.Activation.Blacklist,
		}, logger)

	s.Clicks = usecase.NewClickControls(ctx, s.Controller, s.Detector, s.focus, usecase.ClickControlsConfig{
		EnableManualStop: cfg.Activation.EnableManualStop,
		RequireTextField: cfg.Activation.RequireTextField,
		ShakeThreshold:   cfg.Activation.MouseShakeThresholdPX,
		ShakeWindow:      config.Millis(cfg.Activation.MouseShakeTimeMS),
	}, logger)

	s.FocusWatch = watcher.NewFocusWatcher(s.focus, s.Detector, watcher.FocusConfig{
		Interval:        config.Millis(cfg.Watchers.FocusPollMS),
		BoundsTolerance: cfg.Watchers.BoundsTolerancePX,
		Options: watcher.Options{
			Debounce: config.Millis(cfg.Watchers.FocusDebounceMS),
			Cooldown: config.Millis(cfg.Watchers.CooldownMS),
			Logger:   logger,
		},
	})
	s.FocusWatch.Register("router", s.Router.Handle)

	s.ClickWatch = watcher.NewClickWatcher(pointer, s.focus, s.Detector, watcher.ClickConfig{
		SettleDelay: config.Millis(cfg.Watchers.ClickSettleMS),
		Options: watcher.Options{
			Debounce: config.Millis(cfg.Watchers.ClickDebounceMS),
			Cooldown: config.Millis(cfg.Watchers.CooldownMS),
			Logger:   logger,
		},
	})
	s.ClickWatch.Register("router", s.Router.Handle)
	s.ClickWatch.Observe("click-controls", s.Clicks.Observe)

	s.Hotkeys = platform.NewHotkeys([]platform.HotkeyBinding{
		{Name: "toggle", Combo: cfg.Hotkeys.Toggle, Action: func() { s.toggleFromHotkey(ctx) }},
		{Name: "cancel", Combo: cfg.Hotkeys.Cancel, Action: func() { s.cancelFromHotkey() }},
	}, logger)

	return s, nil
}

// Start begins listening for activations. Hotkey registration failures are
// logged; dictation still works through the mouse.
func (s *Services) Start(ctx context.Context) {
	if s.Config.Activation.AutoStartOnFocus {
		s.FocusWatch.Start(ctx)
	}
	s.ClickWatch.Start(ctx)
	if err := s.Hotkeys.Start(ctx); err != nil {
		s.logger.Warn("hotkeys unavailable", "error", err)
	}
}

// Shutdown stops watchers, drains the session controller and releases
// resources. It returns the first error encountered.
func (s *Services) Shutdown(timeout time.Duration) error {
	var errs []error
	for _, w := range []interface{ Stop(time.Duration) error }{s.FocusWatch, s.ClickWatch} {
		if err := w.Stop(timeout); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.Controller.Shutdown(timeout); err != nil {
		errs = append(errs, err)
	}
	s.Close()
	return errors.Join(errs...)
}

// Close releases resources without draining sessions.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

func (s *Services) toggleFromHotkey(ctx context.Context) {
	event := domain.ActivationEvent{
		Field:  s.Detector.ClassifyFrom(ctx, s.focus),
		Source: domain.ActivationHotkey,
		At:     time.Now(),
	}
	if err := s.Controller.Toggle(ctx, event); err != nil && !errors.Is(err, usecase.ErrSessionActive) {
		s.logger.Warn("hotkey toggle failed", "error", err)
	}
}

func (s *Services) cancelFromHotkey() {
	if err := s.Controller.Cancel(); err != nil && !errors.Is(err, usecase.ErrNoActiveSession) {
		s.logger.Warn("hotkey cancel failed", "error", err)
	}
}

func newEngine(cfg config.Config) (ports.TranscriptionEngine, error) {
	switch cfg.Engine.Provider {
	case "whispercpp":
		return whispercpp.NewEngine(whispercpp.Config{
			Binary:    cfg.Whisper.Binary,
			ModelPath: cfg.Whisper.ModelPath,
			Device:    cfg.Whisper.Device,
			Threads:   cfg.Whisper.Threads,
		}), nil
	case "openai":
		return openai.NewEngine(openai.Config{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.OpenAI.Model,
			Prompt:  cfg.OpenAI.Prompt,
		}), nil
	case "deepgram":
		return deepgram.NewEngine(deepgram.Config{
			APIKey:      cfg.Deepgram.APIKey,
			APIBaseURL:  cfg.Deepgram.APIBaseURL,
			Model:       cfg.Deepgram.Model,
			SmartFormat: cfg.Deepgram.SmartFormat,
		}), nil
	default:
		return nil, fmt.Errorf("unknown engine provider %q", cfg.Engine.Provider)
	}
}

func newDevice(cfg config.Config) ports.AudioDevice {
	if cfg.Audio.Backend == "ffmpeg" {
		return audio.NewFFmpegDevice(cfg.Audio.RecorderCommand)
	}
	return audio.NewPortAudioDevice()
}

func newFocusSource(cfg config.Config) ports.FocusSource {
	if cfg.Detector.FocusProbe == "none" {
		return unavailableFocus{}
	}
	return platform.NewX11FocusSource()
}

var errNoFocusProbe = errors.New("focus probing disabled")

type unavailableFocus struct{}

func (unavailableFocus) ProbeFocus(context.Context) (domain.FocusProbe, error) {
	return domain.FocusProbe{}, errNoFocusProbe
}
