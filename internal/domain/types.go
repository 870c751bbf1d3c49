package domain

import "time"

// SessionState models the dictation recording lifecycle.
type SessionState string

const (
	SessionStateIdle         SessionState = "idle"
	SessionStateRecording    SessionState = "recording"
	SessionStateStopping     SessionState = "stopping"
	SessionStateTranscribing SessionState = "transcribing"
	SessionStateCancelled    SessionState = "cancelled"
	SessionStateError        SessionState = "error"
)

// SessionStateReason provides a structured reason for state transitions.
type SessionStateReason string

const (
	SessionReasonReady               SessionStateReason = "ready"
	SessionReasonRecordingStarted    SessionStateReason = "recording_started"
	SessionReasonManualStop          SessionStateReason = "manual_stop"
	SessionReasonSilence             SessionStateReason = "silence"
	SessionReasonMaxDuration         SessionStateReason = "max_duration"
	SessionReasonTranscribing        SessionStateReason = "transcribing"
	SessionReasonTextInserted        SessionStateReason = "text_inserted"
	SessionReasonInsertFailed        SessionStateReason = "insert_failed"
	SessionReasonRecordingCancelled  SessionStateReason = "recording_cancelled"
	SessionReasonNoAudio             SessionStateReason = "no_audio"
	SessionReasonTooShort            SessionStateReason = "too_short"
	SessionReasonNoTranscript        SessionStateReason = "no_transcript"
	SessionReasonTranscriptionFailed SessionStateReason = "transcription_failed"
	SessionReasonAudioDeviceFailed   SessionStateReason = "audio_device_failed"
	SessionReasonShutdown            SessionStateReason = "shutdown"
)

// ErrorCode identifies non-fatal and fatal backend errors.
type ErrorCode string

const (
	ErrorCodeStartup       ErrorCode = "startup"
	ErrorCodeAudioDevice   ErrorCode = "audio_device"
	ErrorCodeAudioStop     ErrorCode = "audio_stop"
	ErrorCodeTranscription ErrorCode = "transcription"
	ErrorCodeRules         ErrorCode = "rules"
	ErrorCodeInsert        ErrorCode = "insert"
	ErrorCodeHistory       ErrorCode = "history"
)

// Rect is a screen-space rectangle in pixels.
type Rect struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

// Within reports whether every edge of r is within tolerance pixels of other.
func (r Rect) Within(other Rect, tolerance int) bool {
	return abs(r.Left-other.Left) <= tolerance &&
		abs(r.Top-other.Top) <= tolerance &&
		abs(r.Right-other.Right) <= tolerance &&
		abs(r.Bottom-other.Bottom) <= tolerance
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// FocusProbe is a raw snapshot of the platform's current focus signals.
type FocusProbe struct {
	CursorID        int64
	ControlType     string
	WindowClass     string
	WindowTitle     string
	ApplicationName string
	Multiline       bool
	Password        bool
	CaretVisible    bool
	Fullscreen      bool
	Bounds          *Rect
}

// TextFieldInfo is the classification of a focused control.
type TextFieldInfo struct {
	IsTextField     bool     `json:"isTextField"`
	IsPasswordField bool     `json:"isPasswordField"`
	ApplicationName string   `json:"applicationName,omitempty"`
	WindowTitle     string   `json:"windowTitle,omitempty"`
	ControlType     string   `json:"controlType,omitempty"`
	Bounds          *Rect    `json:"bounds,omitempty"`
	Score           int      `json:"score"`
	Reasons         []string `json:"reasons,omitempty"`
}

// ActivationSource names what triggered an activation.
type ActivationSource string

const (
	ActivationFocus  ActivationSource = "focus"
	ActivationClick  ActivationSource = "click"
	ActivationHotkey ActivationSource = "hotkey"
	ActivationManual ActivationSource = "manual"
)

// ActivationEvent is delivered to watcher subscribers.
type ActivationEvent struct {
	Field  TextFieldInfo    `json:"field"`
	Source ActivationSource `json:"source"`
	At     time.Time        `json:"at"`
}

// PointerButton identifies a mouse button.
type PointerButton int

const (
	PointerOther PointerButton = iota
	PointerPrimary
	PointerSecondary
	PointerMiddle
)

// PointerKind identifies a pointer transition.
type PointerKind int

const (
	PointerPress PointerKind = iota + 1
	PointerRelease
	PointerMove
)

// PointerEvent is one item of the global pointer stream.
type PointerEvent struct {
	Kind   PointerKind
	Button PointerButton
	X      int
	Y      int
	At     time.Time
}

// Cue is an audible feedback signal.
type Cue string

const (
	CueStart   Cue = "start"
	CueStop    Cue = "stop"
	CueSuccess Cue = "success"
	CueError   Cue = "error"
	CueCancel  Cue = "cancel"
)

// StopResult is produced once a transcription has been finalized.
type StopResult struct {
	RawTranscript   string `json:"rawTranscript"`
	FinalTranscript string `json:"finalTranscript"`
	Inserted        bool   `json:"inserted"`
	FocusChanged    bool   `json:"focusChanged"`
}

// Status summarizes the current runtime status.
type Status struct {
	State   SessionState `json:"state"`
	Active  bool         `json:"active"`
	Elapsed float64      `json:"elapsed,omitempty"`
	Message string       `json:"message,omitempty"`
}

// HistoryRecord is one saved transcription.
type HistoryRecord struct {
	ID              string    `json:"id"`
	RawText         string    `json:"rawText"`
	Text            string    `json:"text"`
	CreatedAt       time.Time `json:"createdAt"`
	DurationSeconds float64   `json:"durationSeconds"`
	AverageVolume   float64   `json:"averageVolume"`
	WordCount       int       `json:"wordCount"`
	Application     string    `json:"application,omitempty"`
	WindowTitle     string    `json:"windowTitle,omitempty"`
	Inserted        bool      `json:"inserted"`
}
