package usecase

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"voiceclick/internal/domain"
	"voiceclick/internal/ports"
)

// SessionControl is the part of SessionController driven by mouse controls.
type SessionControl interface {
	Start(ctx context.Context, event domain.ActivationEvent) error
	Stop(ctx context.Context) error
	Cancel() error
	Status() domain.Status
}

// FieldClassifier classifies whatever currently has focus.
type FieldClassifier interface {
	ClassifyFrom(ctx context.Context, src ports.FocusSource) domain.TextFieldInfo
}

// ClickControlsConfig tunes in-session mouse controls.
type ClickControlsConfig struct {
	EnableManualStop bool
	RequireTextField bool
	ShakeThreshold   int
	ShakeWindow      time.Duration
}

// ClickControls maps raw pointer events onto session commands: secondary press
// cancels a recording, other presses stop it, middle press starts one and a
// quick mouse shake stops it.
type ClickControls struct {
	ctx        context.Context
	sessions   SessionControl
	classifier FieldClassifier
	focus      ports.FocusSource
	cfg        ClickControlsConfig
	logger     *slog.Logger

	shakeMu sync.Mutex
	trail   []domain.PointerEvent
}

func NewClickControls(ctx context.Context, sessions SessionControl, classifier FieldClassifier, focus ports.FocusSource, cfg ClickControlsConfig, logger *slog.Logger) *ClickControls {
	if cfg.ShakeThreshold <= 0 {
		cfg.ShakeThreshold = 50
	}
	if cfg.ShakeWindow <= 0 {
		cfg.ShakeWindow = 100 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ClickControls{
		ctx:        ctx,
		sessions:   sessions,
		classifier: classifier,
		focus:      focus,
		cfg:        cfg,
		logger:     logger.With("component", "click-controls"),
	}
}

// Observe handles one pointer event. It runs on the pointer stream goroutine.
func (c *ClickControls) Observe(event domain.PointerEvent) {
	switch event.Kind {
	case domain.PointerPress:
		c.press(event)
	case domain.PointerMove:
		c.move(event)
	}
}

func (c *ClickControls) press(event domain.PointerEvent) {
	state := c.sessions.Status().State
	if state == domain.SessionStateRecording {
		c.resetShake()
		if event.Button == domain.PointerSecondary {
			c.report("cancel", c.sessions.Cancel())
			return
		}
		if c.cfg.EnableManualStop {
			c.report("stop", c.sessions.Stop(c.ctx))
		}
		return
	}

	if state != domain.SessionStateIdle || event.Button != domain.PointerMiddle {
		return
	}
	field := domain.TextFieldInfo{}
	if c.classifier != nil && c.focus != nil {
		field = c.classifier.ClassifyFrom(c.ctx, c.focus)
	}
	if c.cfg.RequireTextField && (!field.IsTextField || field.IsPasswordField) {
		c.logger.Debug("middle click ignored outside a text field")
		return
	}
	c.report("start", c.sessions.Start(c.ctx, domain.ActivationEvent{
		Field:  field,
		Source: domain.ActivationManual,
		At:     event.At,
	}))
}

// move records the pointer trail while recording and stops when the pointer
// travels further than the threshold within the shake window.
func (c *ClickControls) move(event domain.PointerEvent) {
	if c.sessions.Status().State != domain.SessionStateRecording {
		c.resetShake()
		return
	}

	c.shakeMu.Lock()
	c.trail = append(c.trail, event)
	cutoff := event.At.Add(-c.cfg.ShakeWindow)
	first := 0
	for first < len(c.trail)-1 && c.trail[first].At.Before(cutoff) {
		first++
	}
	c.trail = c.trail[first:]
	start := c.trail[0]
	shaken := math.Hypot(float64(event.X-start.X), float64(event.Y-start.Y)) > float64(c.cfg.ShakeThreshold)
	if shaken {
		c.trail = nil
	}
	c.shakeMu.Unlock()

	if shaken {
		c.logger.Info("mouse shake detected, stopping")
		c.report("stop", c.sessions.Stop(c.ctx))
	}
}

func (c *ClickControls) resetShake() {
	c.shakeMu.Lock()
	c.trail = nil
	c.shakeMu.Unlock()
}

func (c *ClickControls) report(action string, err error) {
	if err == nil || errors.Is(err, ErrNoActiveSession) || errors.Is(err, ErrSessionActive) {
		return
	}
	c.logger.Warn("click control failed", "action", action, "error", err)
}
