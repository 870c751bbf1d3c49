package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"voiceclick/internal/bootstrap"
	"voiceclick/internal/config"
	"voiceclick/internal/domain"
	"voiceclick/internal/usecase"
)

const (
	eventState    = "voiceclick:state"
	eventError    = "voiceclick:error"
	eventVolume   = "voiceclick:volume"
	eventStatus   = "voiceclick:status"
	eventProgress = "voiceclick:progress"
	eventComplete = "voiceclick:complete"
	eventFailed   = "voiceclick:failed"
)

// App is the Wails application root.
type App struct {
	ctx    context.Context
	logger *slog.Logger
	emit   func(ctx context.Context, name string, data ...interface{})

	services *bootstrap.Services
	cfg      config.Config
	bootErr  error
}

func NewApp(logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{logger: logger, emit: runtime.EventsEmit}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(ctx, a, bootstrap.Overrides{Logger: a.logger})
	if err != nil {
		a.bootErr = err
		a.logger.Error("startup failed", "error", err)
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.cfg = services.Config
	a.services = services
	services.Start(ctx)
	a.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonReady)
}

func (a *App) shutdown(_ context.Context) {
	if a.services == nil {
		return
	}
	if err := a.services.Shutdown(config.Millis(a.cfg.Session.ShutdownTimeoutMS)); err != nil {
		a.logger.Warn("shutdown incomplete", "error", err)
	}
}

// StartDictation starts recording into the currently focused control.
func (a *App) StartDictation() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	event := domain.ActivationEvent{Source: domain.ActivationManual, At: time.Now()}
	if err := a.services.Controller.Start(a.ctx, event); err != nil {
		return a.services.Controller.Status(), err
	}
	return a.services.Controller.Status(), nil
}

// StopDictation stops recording; the transcript arrives as an event.
func (a *App) StopDictation() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.services.Controller.Stop(a.ctx); err != nil && !errors.Is(err, usecase.ErrNoActiveSession) {
		return a.services.Controller.Status(), err
	}
	return a.services.Controller.Status(), nil
}

// CancelDictation discards an in-progress recording or transcription.
func (a *App) CancelDictation() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := a.services.Controller.Cancel(); err != nil && !errors.Is(err, usecase.ErrNoActiveSession) {
		return err
	}
	return nil
}

// GetStatus returns the current session status.
func (a *App) GetStatus() domain.Status {
	if a.services == nil {
		if a.bootErr != nil {
			return domain.Status{State: domain.SessionStateError, Active: false, Message: a.bootErr.Error()}
		}
		return domain.Status{State: domain.SessionStateIdle, Active: false}
	}
	return a.services.Controller.Status()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}
	return runtimeInfo(a.cfg)
}

// GetHistory returns up to limit recent transcriptions, newest first.
func (a *App) GetHistory(limit int) ([]domain.HistoryRecord, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	return a.services.History.Recent(a.ctx, limit)
}

// ClearHistory removes every saved transcription.
func (a *App) ClearHistory() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.History.Clear(a.ctx)
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.services == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

func runtimeInfo(cfg config.Config) map[string]string {
	model := cfg.Whisper.ModelPath
	switch cfg.Engine.Provider {
	case "openai":
		model = cfg.OpenAI.Model
	case "deepgram":
		model = cfg.Deepgram.Model
	}
	return map[string]string{
		"provider":     cfg.Engine.Provider,
		"model":        model,
		"language":     cfg.Engine.Language,
		"rulesFile":    cfg.Rules.Path,
		"historyDir":   cfg.History.Dir,
		"audioBackend": cfg.Audio.Backend,
		"audioInput":   cfg.Audio.InputDevice,
		"configFile":   cfg.File,
	}
}

func (a *App) send(name string, data interface{}) {
	if a.ctx == nil {
		return
	}
	a.emit(a.ctx, name, data)
}

// SessionStateChanged emits session lifecycle updates to the frontend.
func (a *App) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	a.send(eventState, map[string]string{
		"state":   string(state),
		"reason":  string(reason),
		"message": sessionReasonMessage(reason),
	})
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	a.send(eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func (a *App) OnVolumeChange(level int) {
	a.send(eventVolume, map[string]int{"level": level})
}

func (a *App) OnStatusChange(message string) {
	a.send(eventStatus, map[string]string{"message": message})
}

func (a *App) OnTranscriptionProgress(message string) {
	a.send(eventProgress, map[string]string{"message": message})
}

func (a *App) OnTranscriptionComplete(text string) {
	a.send(eventComplete, map[string]string{"text": text})
}

func (a *App) OnTranscriptionFailed(reason string) {
	a.send(eventFailed, map[string]string{"reason": reason})
}

func sessionReasonMessage(reason domain.SessionStateReason) string {
	switch reason {
	case domain.SessionReasonReady:
		return "Ready"
	case domain.SessionReasonRecordingStarted:
		return "Recording started"
	case domain.SessionReasonManualStop:
		return "Recording stopped"
	case domain.SessionReasonSilence:
		return "Stopped after silence"
	case domain.SessionReasonMaxDuration:
		return "Maximum recording length reached"
	case domain.SessionReasonTranscribing:
		return "Transcribing..."
	case domain.SessionReasonTextInserted:
		return "Text inserted"
	case domain.SessionReasonInsertFailed:
		return "Transcript ready (insertion failed)"
	case domain.SessionReasonRecordingCancelled:
		return "Recording cancelled"
	case domain.SessionReasonNoAudio:
		return "No audio captured"
	case domain.SessionReasonTooShort:
		return "Recording too short"
	case domain.SessionReasonNoTranscript:
		return "No speech detected"
	case domain.SessionReasonTranscriptionFailed:
		return "Transcription failed"
	case domain.SessionReasonAudioDeviceFailed:
		return "Microphone error"
	case domain.SessionReasonShutdown:
		return "Shutting down"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeAudioDevice:
		return "Microphone unavailable"
	case domain.ErrorCodeAudioStop:
		return "Audio stop issue"
	case domain.ErrorCodeTranscription:
		return "Transcription error"
	case domain.ErrorCodeRules:
		return "Rules processing failed"
	case domain.ErrorCodeInsert:
		return "Text insertion failed"
	case domain.ErrorCodeHistory:
		return "History could not be saved"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
