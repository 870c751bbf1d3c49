package usecase

import (
	"context"
	"sync"
	"time"

	"voiceclick/internal/domain"
	"voiceclick/internal/ports"
	"voiceclick/internal/transcribe"
)

// transitions lists the legal moves of the session state machine. Cancelled and
// Error are transient and always fall through to Idle.
var transitions = map[domain.SessionState][]domain.SessionState{
	domain.SessionStateIdle:         {domain.SessionStateRecording},
	domain.SessionStateRecording:    {domain.SessionStateStopping, domain.SessionStateCancelled, domain.SessionStateError, domain.SessionStateIdle},
	domain.SessionStateStopping:     {domain.SessionStateTranscribing, domain.SessionStateCancelled, domain.SessionStateError, domain.SessionStateIdle},
	domain.SessionStateTranscribing: {domain.SessionStateIdle, domain.SessionStateCancelled, domain.SessionStateError},
	domain.SessionStateCancelled:    {domain.SessionStateIdle},
	domain.SessionStateError:        {domain.SessionStateIdle},
}

func canTransition(from, to domain.SessionState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// recordingSession is the per-activation state owned by SessionController.
type recordingSession struct {
	origin    domain.TextFieldInfo
	source    domain.ActivationSource
	startedAt time.Time
	capture   ports.CaptureSession
	stopWatch context.CancelFunc
	job       *transcribe.Job

	// finalizing is guarded by SessionController.mu.
	finalizing bool

	levelMu      sync.Mutex
	silenceStart time.Time
	rmsSum       float64
	blocks       int
}

// track updates the silence timer with one block's RMS.
func (s *recordingSession) track(now time.Time, rms float64, threshold float64) {
	s.levelMu.Lock()
	defer s.levelMu.Unlock()
	s.rmsSum += rms
	s.blocks++
	if rms < threshold {
		if s.silenceStart.IsZero() {
			s.silenceStart = now
		}
		return
	}
	s.silenceStart = time.Time{}
}

// silentFor is how long RMS has stayed below the threshold as of now.
func (s *recordingSession) silentFor(now time.Time) time.Duration {
	s.levelMu.Lock()
	defer s.levelMu.Unlock()
	if s.silenceStart.IsZero() {
		return 0
	}
	return now.Sub(s.silenceStart)
}

func (s *recordingSession) averageRMS() float64 {
	s.levelMu.Lock()
	defer s.levelMu.Unlock()
	if s.blocks == 0 {
		return 0
	}
	return s.rmsSum / float64(s.blocks)
}
