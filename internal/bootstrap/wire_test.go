package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"voiceclick/internal/config"
	"voiceclick/internal/domain"
	"voiceclick/internal/ports"
)

func testOverrides() Overrides {
	return Overrides{
		Device:   noopDevice{},
		Focus:    noopFocus{},
		Pointer:  noopPointer{},
		Inserter: noopInserter{},
		Feedback: noopFeedback{},
	}
}

func TestBuildSuccess(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("VOICECLICK_CONFIG", "")
	t.Setenv("VOICECLICK_ENGINE", "")

	services, err := Build(context.Background(), noopEventSink{}, testOverrides())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer services.Close()

	if services.Controller == nil || services.Router == nil || services.Clicks == nil {
		t.Fatalf("expected session components: %+v", services)
	}
	if services.Engine.Name() != "whispercpp" {
		t.Fatalf("expected default whispercpp engine, got %s", services.Engine.Name())
	}
	if services.ClickWatch.Subscribers() != 1 || services.FocusWatch.Subscribers() != 1 {
		t.Fatalf("expected router registered on both watchers")
	}
	if services.Controller.Status().State != domain.SessionStateIdle {
		t.Fatalf("expected idle controller")
	}
}

func TestBuildSelectsConfiguredEngine(t *testing.T) {
	t.Parallel()

	for _, provider := range []string{"openai", "deepgram"} {
		cfg := config.Defaults(t.TempDir())
		cfg.History.Dir = ""
		cfg.Engine.Provider = provider

		services, err := BuildWithConfig(context.Background(), cfg, noopEventSink{}, testOverrides())
		if err != nil {
			t.Fatalf("%s: build failed: %v", provider, err)
		}
		if services.Engine.Name() != provider {
			t.Fatalf("expected %s engine, got %s", provider, services.Engine.Name())
		}
		services.Close()
	}
}

func TestBuildFailsOnInvalidRules(t *testing.T) {
	home := t.TempDir()
	rules := filepath.Join(home, "bad.rules")
	if err := os.WriteFile(rules, []byte("not a valid rule\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	t.Setenv("HOME", home)
	t.Setenv("VOICECLICK_CONFIG", "")
	t.Setenv("VOICECLICK_RULES_FILE", rules)

	_, err := Build(context.Background(), noopEventSink{}, testOverrides())
	if err == nil {
		t.Fatalf("expected build error due to invalid rules")
	}
}

func TestBuildFailsOnInvalidVocabulary(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := config.Defaults(dir)
	cfg.History.Dir = ""
	cfg.Detector.VocabularyPath = filepath.Join(dir, "vocabulary.yaml")
	if err := os.WriteFile(cfg.Detector.VocabularyPath, []byte("ibeam_cursors: [oops\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	if _, err := BuildWithConfig(context.Background(), cfg, noopEventSink{}, testOverrides()); err == nil {
		t.Fatalf("expected build error due to invalid vocabulary")
	}
}

func TestServicesStartAndShutdown(t *testing.T) {
	t.Parallel()

	cfg := config.Defaults(t.TempDir())
	cfg.History.Dir = ""
	cfg.Hotkeys = config.HotkeyConfig{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	services, err := BuildWithConfig(ctx, cfg, noopEventSink{}, testOverrides())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	services.Start(ctx)
	if !services.ClickWatch.Running() {
		t.Fatalf("expected click watcher running")
	}
	if services.FocusWatch.Running() {
		t.Fatalf("focus watcher should stay off when focus auto-start is disabled")
	}
	if err := services.Shutdown(time.Second); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
}

func TestHotkeyCancelWithoutSessionIsQuiet(t *testing.T) {
	t.Parallel()

	cfg := config.Defaults(t.TempDir())
	cfg.History.Dir = ""
	services, err := BuildWithConfig(context.Background(), cfg, noopEventSink{}, testOverrides())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer services.Close()

	services.cancelFromHotkey()
	if services.Controller.Status().State != domain.SessionStateIdle {
		t.Fatalf("expected idle controller")
	}
}

type noopEventSink struct{}

func (noopEventSink) SessionStateChanged(domain.SessionState, domain.SessionStateReason) {}
func (noopEventSink) SessionError(domain.ErrorCode, string)                              {}
func (noopEventSink) OnVolumeChange(int)                                                 {}
func (noopEventSink) OnStatusChange(string)                                              {}
func (noopEventSink) OnTranscriptionProgress(string)                                     {}
func (noopEventSink) OnTranscriptionComplete(string)                                     {}
func (noopEventSink) OnTranscriptionFailed(string)                                       {}

type noopDevice struct{}

func (noopDevice) Open(context.Context, ports.AudioConfig, ports.AudioSink) (ports.AudioStream, error) {
	return nil, errors.New("no device in tests")
}

type noopFocus struct{}

func (noopFocus) ProbeFocus(context.Context) (domain.FocusProbe, error) {
	return domain.FocusProbe{}, errors.New("no focus in tests")
}

type noopPointer struct{}

func (noopPointer) Pointer(ctx context.Context) (<-chan domain.PointerEvent, error) {
	ch := make(chan domain.PointerEvent)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

type noopInserter struct{}

func (noopInserter) InsertText(context.Context, string) error { return nil }

type noopFeedback struct{}

func (noopFeedback) Play(domain.Cue) {}
