package ports

import (
	"context"
	"time"

	"voiceclick/internal/domain"
)

// FocusSource probes the platform for the currently focused control.
type FocusSource interface {
	ProbeFocus(ctx context.Context) (domain.FocusProbe, error)
}

// PointerSource delivers the global pointer stream. The channel closes when ctx ends.
type PointerSource interface {
	Pointer(ctx context.Context) (<-chan domain.PointerEvent, error)
}

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	BlockSize   int
	InputFormat string
	InputDevice string
}

// AudioSink receives blocks from a device. OnBlock must not block.
type AudioSink interface {
	OnBlock(samples []float32)
	OnError(err error)
}

// AudioStream is an open device stream.
type AudioStream interface {
	Stop() error
}

// AudioDevice opens microphone streams.
type AudioDevice interface {
	Open(ctx context.Context, cfg AudioConfig, sink AudioSink) (AudioStream, error)
}

// CaptureSession is one open recording with its sample queue.
type CaptureSession interface {
	Stop() error
	Drain() []float32
	Discard()
	Queued() int
}

// AudioRecorder starts capture sessions. onBlock receives each block and its RMS
// on the device goroutine.
type AudioRecorder interface {
	Start(ctx context.Context, onBlock func(samples []float32, rms float64), onError func(error)) (CaptureSession, error)
	SampleRate() int
}

// DecodeParams tune a single decode pass.
type DecodeParams struct {
	SpeechFilter        bool
	Temperature         float64
	BeamSize            int
	ConditionOnPrevious bool
	Language            string
}

// TranscriptionEngine turns normalized mono samples into text.
type TranscriptionEngine interface {
	Name() string
	Transcribe(ctx context.Context, samples []float32, sampleRate int, params DecodeParams) (string, error)
}

// SpeechFilter removes non-speech audio before decoding.
type SpeechFilter interface {
	Filter(samples []float32, sampleRate int) ([]float32, error)
}

// RulesEngine transforms transcripts using deterministic rules.
type RulesEngine interface {
	Apply(text string) (string, error)
}

// TextInserter types or pastes text into the focused control.
type TextInserter interface {
	InsertText(ctx context.Context, text string) error
}

// FullscreenDetector reports exclusive fullscreen applications such as games.
type FullscreenDetector interface {
	IsFullscreenExclusive(ctx context.Context) bool
}

// Feedback plays audible cues.
type Feedback interface {
	Play(cue domain.Cue)
}

// HistoryStore persists finished transcriptions.
type HistoryStore interface {
	Add(ctx context.Context, record domain.HistoryRecord) error
	Recent(ctx context.Context, limit int) ([]domain.HistoryRecord, error)
	Clear(ctx context.Context) error
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// EventSink emits backend state/events to the UI.
type EventSink interface {
	SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason)
	SessionError(code domain.ErrorCode, detail string)
	OnVolumeChange(level int)
	OnStatusChange(message string)
	OnTranscriptionProgress(message string)
	OnTranscriptionComplete(text string)
	OnTranscriptionFailed(reason string)
}
