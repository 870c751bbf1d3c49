package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"voiceclick/internal/audio"
	"voiceclick/internal/domain"
	"voiceclick/internal/ports"
	"voiceclick/internal/transcribe"
)

var (
	ErrNoActiveSession   = errors.New("no active recording session")
	ErrSessionActive     = errors.New("a recording session is already active")
	ErrShuttingDown      = errors.New("dictation is shutting down")
	ErrInvalidTransition = errors.New("invalid session state transition")

	// ErrFinalizing is returned by Cancel once the transcript is being inserted.
	ErrFinalizing = fmt.Errorf("%w: transcript is already being inserted", ErrNoActiveSession)
)

// Config controls recording limits and auto-stop behavior.
type Config struct {
	SilenceDuration time.Duration
	MaxDuration     time.Duration
	VolumeThreshold float64
	SilenceAutoStop bool
	MinRecording    time.Duration
	MonitorInterval time.Duration
}

// DefaultConfig mirrors the shipped settings.
func DefaultConfig() Config {
	return Config{
		SilenceDuration: 8 * time.Second,
		MaxDuration:     300 * time.Second,
		VolumeThreshold: 0.02,
		SilenceAutoStop: true,
		MinRecording:    300 * time.Millisecond,
		MonitorInterval: 100 * time.Millisecond,
	}
}

// Dependencies are the collaborators of SessionController. Focus, History and
// Feedback may be nil.
type Dependencies struct {
	Recorder    ports.AudioRecorder
	Coordinator *transcribe.Coordinator
	Rules       ports.RulesEngine
	Inserter    ports.TextInserter
	Focus       ports.FocusSource
	History     ports.HistoryStore
	Feedback    ports.Feedback
	Events      ports.EventSink
	Clock       ports.Clock
	Logger      *slog.Logger
}

// SessionController owns the dictation state machine. At most one session is
// outside Idle at any time. EventSink methods are invoked under the state lock
// and must not call back into the controller.
type SessionController struct {
	recorder    ports.AudioRecorder
	coordinator *transcribe.Coordinator
	feedback    ports.Feedback
	events      ports.EventSink
	clock       ports.Clock
	logger      *slog.Logger
	finalizer   transcriptFinalizer
	tasks       *Supervisor
	cfg         Config

	mu      sync.Mutex
	state   domain.SessionState
	current *recordingSession
	closed  bool
}

func NewSessionController(ctx context.Context, deps Dependencies, cfg Config) *SessionController {
	defaults := DefaultConfig()
	if cfg.SilenceDuration <= 0 {
		cfg.SilenceDuration = defaults.SilenceDuration
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = defaults.MaxDuration
	}
	if cfg.VolumeThreshold <= 0 {
		cfg.VolumeThreshold = defaults.VolumeThreshold
	}
	if cfg.MinRecording < 0 {
		cfg.MinRecording = 0
	}
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = defaults.MonitorInterval
	}
	if deps.Clock == nil {
		deps.Clock = systemClock{}
	}
	if deps.Feedback == nil {
		deps.Feedback = silentFeedback{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	logger := deps.Logger.With("component", "session")

	return &SessionController{
		recorder:    deps.Recorder,
		coordinator: deps.Coordinator,
		feedback:    deps.Feedback,
		events:      deps.Events,
		clock:       deps.Clock,
		logger:      logger,
		finalizer:   newTranscriptFinalizer(deps, logger),
		tasks:       NewSupervisor(ctx, logger),
		cfg:         cfg,
		state:       domain.SessionStateIdle,
	}
}

// Start opens the microphone and enters Recording.
func (c *SessionController) Start(_ context.Context, event domain.ActivationEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrShuttingDown
	}
	if c.state != domain.SessionStateIdle {
		return ErrSessionActive
	}

	session := &recordingSession{
		origin:    event.Field,
		source:    event.Source,
		startedAt: c.clock.Now(),
	}
	capture, err := c.recorder.Start(c.tasks.Context(),
		func(_ []float32, rms float64) { c.onBlock(session, rms) },
		func(err error) { c.tasks.Go("device-failure", func(context.Context) { c.deviceFailed(session, err) }) },
	)
	if err != nil {
		c.logger.Error("failed to start audio capture", "error", err)
		c.events.SessionError(domain.ErrorCodeAudioDevice, err.Error())
		c.events.OnStatusChange(fmt.Sprintf("Microphone unavailable: %v", err))
		c.feedback.Play(domain.CueError)
		return err
	}
	session.capture = capture

	if err := c.transition(domain.SessionStateRecording, domain.SessionReasonRecordingStarted); err != nil {
		capture.Discard()
		_ = capture.Stop()
		return err
	}
	c.current = session

	watchCtx, stopWatch := context.WithCancel(c.tasks.Context())
	session.stopWatch = stopWatch
	c.tasks.Go("monitor", func(context.Context) { c.monitor(watchCtx, session) })

	c.logger.Info("recording started", "source", event.Source, "app", event.Field.ApplicationName)
	c.feedback.Play(domain.CueStart)
	c.events.OnStatusChange("Recording...")
	return nil
}

// Stop ends recording and hands the audio to the transcription worker. The
// outcome is reported through the event sink.
func (c *SessionController) Stop(_ context.Context) error {
	c.mu.Lock()
	session := c.current
	c.mu.Unlock()
	if session == nil {
		return ErrNoActiveSession
	}
	return c.stopSession(session, domain.SessionReasonManualStop)
}

// Cancel discards the active session. In-flight transcription is invalidated so
// its result is never delivered.
func (c *SessionController) Cancel() error {
	c.mu.Lock()
	session := c.current
	if session == nil {
		c.mu.Unlock()
		return ErrNoActiveSession
	}
	if session.finalizing {
		c.mu.Unlock()
		return ErrFinalizing
	}
	wasRecording := c.state == domain.SessionStateRecording
	c.current = nil
	session.stopWatch()
	_ = c.transition(domain.SessionStateCancelled, domain.SessionReasonRecordingCancelled)
	_ = c.transition(domain.SessionStateIdle, domain.SessionReasonRecordingCancelled)
	c.events.OnStatusChange("Recording cancelled")
	c.mu.Unlock()

	session.capture.Discard()
	if wasRecording {
		if err := session.capture.Stop(); err != nil {
			c.logger.Warn("audio stop after cancel failed", "error", err)
		}
	} else {
		c.coordinator.Invalidate()
	}
	c.logger.Info("recording cancelled")
	c.feedback.Play(domain.CueCancel)
	return nil
}

// Toggle starts when idle and stops while recording. Other states ignore it.
func (c *SessionController) Toggle(ctx context.Context, event domain.ActivationEvent) error {
	switch c.Status().State {
	case domain.SessionStateIdle:
		return c.Start(ctx, event)
	case domain.SessionStateRecording:
		return c.Stop(ctx)
	default:
		return nil
	}
}

// Status returns the current backend status.
func (c *SessionController) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	status := domain.Status{State: c.state, Active: c.state != domain.SessionStateIdle}
	if c.current != nil {
		status.Elapsed = c.clock.Now().Sub(c.current.startedAt).Seconds()
	}
	return status
}

// Shutdown cancels any session and joins background work within timeout. A
// timeout is logged, never fatal.
func (c *SessionController) Shutdown(timeout time.Duration) error {
	c.mu.Lock()
	c.closed = true
	session := c.current
	c.current = nil
	if session != nil {
		session.stopWatch()
		_ = c.transition(domain.SessionStateIdle, domain.SessionReasonShutdown)
	}
	c.mu.Unlock()

	if session != nil {
		session.capture.Discard()
		_ = session.capture.Stop()
	}
	c.coordinator.Invalidate()

	err := c.tasks.Shutdown(timeout)
	if err != nil {
		c.logger.Warn("session shutdown incomplete", "error", err)
	}
	if waitErr := c.coordinator.Wait(timeout); waitErr != nil {
		c.logger.Warn("transcription worker still running at shutdown", "error", waitErr)
	}
	return err
}

func (c *SessionController) stopSession(session *recordingSession, reason domain.SessionStateReason) error {
	c.mu.Lock()
	if c.current != session || c.state != domain.SessionStateRecording {
		c.mu.Unlock()
		return ErrNoActiveSession
	}
	session.stopWatch()
	_ = c.transition(domain.SessionStateStopping, reason)
	c.events.OnStatusChange("Processing...")
	c.mu.Unlock()

	c.feedback.Play(domain.CueStop)
	if err := session.capture.Stop(); err != nil {
		c.logger.Warn("audio stop failed", "error", err)
		c.events.SessionError(domain.ErrorCodeAudioStop, "failed to stop audio capture cleanly")
	}
	samples := session.capture.Drain()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != session {
		return nil
	}

	rate := c.recorder.SampleRate()
	switch {
	case len(samples) == 0:
		c.fail(session, "no audio", domain.SessionReasonNoAudio)
		return nil
	case audio.Duration(len(samples), rate) < c.cfg.MinRecording:
		c.fail(session, "recording too short", domain.SessionReasonTooShort)
		return nil
	}

	audio.Normalize(samples)
	duration := audio.Duration(len(samples), rate)
	_ = c.transition(domain.SessionStateTranscribing, domain.SessionReasonTranscribing)
	session.job = c.coordinator.Submit(c.tasks.Context(), samples, c.events.OnTranscriptionProgress)
	if !c.tasks.Go("transcription", func(ctx context.Context) { c.complete(ctx, session, duration) }) {
		c.fail(session, "shutting down", domain.SessionReasonShutdown)
	}
	return nil
}

// complete waits for the transcription job and finalizes the session.
func (c *SessionController) complete(ctx context.Context, session *recordingSession, duration time.Duration) {
	select {
	case <-session.job.Done():
	case <-ctx.Done():
		return
	}
	result := session.job.Result()
	if errors.Is(result.Err, transcribe.ErrSuperseded) {
		return
	}

	if result.Err != nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.current != session {
			return
		}
		if errors.Is(result.Err, transcribe.ErrEmptyResult) {
			c.fail(session, "no speech detected", domain.SessionReasonNoTranscript)
			return
		}
		c.logger.Error("transcription failed", "error", result.Err)
		c.events.SessionError(domain.ErrorCodeTranscription, result.Err.Error())
		c.fail(session, fmt.Sprintf("transcription failed: %v", result.Err), domain.SessionReasonTranscriptionFailed)
		return
	}

	if !c.isCurrent(session) {
		return
	}
	text := c.finalizer.Transform(result.Text)
	if !c.beginFinalize(session) {
		return
	}
	stop, reason := c.finalizer.Deliver(ctx, session, result.Text, text, duration)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != session {
		return
	}
	c.current = nil
	_ = c.transition(domain.SessionStateIdle, reason)
	c.events.OnTranscriptionComplete(stop.FinalTranscript)
	c.events.OnStatusChange("Ready")
	c.feedback.Play(domain.CueSuccess)
	c.logger.Info("transcription complete", "pass", result.Pass, "inserted", stop.Inserted, "focus_changed", stop.FocusChanged)
}

func (c *SessionController) isCurrent(session *recordingSession) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current == session
}

// beginFinalize commits session to insertion. After it returns true, Cancel
// no longer applies to the session.
func (c *SessionController) beginFinalize(session *recordingSession) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != session {
		return false
	}
	session.finalizing = true
	return true
}

// deviceFailed aborts a recording whose device broke mid-stream.
func (c *SessionController) deviceFailed(session *recordingSession, err error) {
	c.mu.Lock()
	if c.current != session || c.state != domain.SessionStateRecording {
		c.mu.Unlock()
		return
	}
	c.current = nil
	session.stopWatch()
	_ = c.transition(domain.SessionStateError, domain.SessionReasonAudioDeviceFailed)
	c.events.SessionError(domain.ErrorCodeAudioDevice, err.Error())
	c.events.OnStatusChange(fmt.Sprintf("Audio device error: %v", err))
	_ = c.transition(domain.SessionStateIdle, domain.SessionReasonAudioDeviceFailed)
	c.mu.Unlock()

	c.logger.Error("audio device failed during recording", "error", err)
	session.capture.Discard()
	_ = session.capture.Stop()
	c.feedback.Play(domain.CueError)
}

// fail ends session through Error back to Idle. Callers hold c.mu.
func (c *SessionController) fail(session *recordingSession, message string, reason domain.SessionStateReason) {
	if c.current != session {
		return
	}
	c.current = nil
	_ = c.transition(domain.SessionStateError, reason)
	c.events.OnTranscriptionFailed(message)
	c.events.OnStatusChange("Ready")
	_ = c.transition(domain.SessionStateIdle, reason)
	c.feedback.Play(domain.CueError)
	c.logger.Info("session failed", "reason", message)
}

// transition validates and applies a state change. Callers hold c.mu.
func (c *SessionController) transition(to domain.SessionState, reason domain.SessionStateReason) error {
	if !canTransition(c.state, to) {
		c.logger.Error("rejected state transition", "from", c.state, "to", to)
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.state, to)
	}
	c.state = to
	c.events.SessionStateChanged(to, reason)
	return nil
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type silentFeedback struct{}

func (silentFeedback) Play(domain.Cue) {}
