package platform

import (
	"context"
	"log/slog"
	"time"

	"github.com/gen2brain/beeep"

	"voiceclick/internal/domain"
)

type tone struct {
	freq     float64
	duration int // milliseconds
}

var cueTones = map[domain.Cue][]tone{
	domain.CueStart:   {{1000, 80}, {1200, 80}},
	domain.CueStop:    {{1000, 80}, {800, 80}},
	domain.CueSuccess: {{1000, 60}, {1200, 60}, {1400, 80}},
	domain.CueError:   {{400, 150}},
	domain.CueCancel:  {{600, 80}, {400, 80}},
}

const toneGap = 50 * time.Millisecond

// FeedbackConfig toggles audible and desktop feedback.
type FeedbackConfig struct {
	Sounds        bool
	Notifications bool
	AppName       string
}

// BeepFeedback plays cues on its own goroutine so callers never wait on the
// sound device. Cues queued while the player is busy beyond the buffer are dropped.
type BeepFeedback struct {
	cfg    FeedbackConfig
	beep   func(freq float64, duration int) error
	notify func(title, message string) error
	queue  chan domain.Cue
	logger *slog.Logger
}

func NewBeepFeedback(ctx context.Context, cfg FeedbackConfig, logger *slog.Logger) *BeepFeedback {
	f := newBeepFeedback(cfg, logger)
	go f.run(ctx)
	return f
}

func newBeepFeedback(cfg FeedbackConfig, logger *slog.Logger) *BeepFeedback {
	if cfg.AppName == "" {
		cfg.AppName = "VoiceClick"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BeepFeedback{
		cfg:  cfg,
		beep: beeep.Beep,
		notify: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
		queue:  make(chan domain.Cue, 8),
		logger: logger.With("component", "feedback"),
	}
}

func (f *BeepFeedback) Play(cue domain.Cue) {
	if !f.cfg.Sounds && !(f.cfg.Notifications && cue == domain.CueError) {
		return
	}
	select {
	case f.queue <- cue:
	default:
		f.logger.Debug("feedback queue full, dropping cue", "cue", cue)
	}
}

// Notify shows a desktop notification when enabled.
func (f *BeepFeedback) Notify(message string) {
	if !f.cfg.Notifications {
		return
	}
	if err := f.notify(f.cfg.AppName, message); err != nil {
		f.logger.Debug("notification failed", "error", err)
	}
}

func (f *BeepFeedback) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cue := <-f.queue:
			f.render(ctx, cue)
		}
	}
}

func (f *BeepFeedback) render(ctx context.Context, cue domain.Cue) {
	if cue == domain.CueError {
		f.Notify("Dictation failed")
	}
	if !f.cfg.Sounds {
		return
	}
	for i, t := range cueTones[cue] {
		if i > 0 && !sleepContext(ctx, toneGap) {
			return
		}
		if err := f.beep(t.freq, t.duration); err != nil {
			f.logger.Debug("beep failed", "cue", cue, "error", err)
			return
		}
	}
}
