package watcher

import (
	"context"
	"time"

	"voiceclick/internal/domain"
	"voiceclick/internal/ports"
)

// FocusConfig tunes the focus polling loop.
type FocusConfig struct {
	Interval        time.Duration
	BoundsTolerance int
	Options
}

// FocusWatcher polls the foreground focus and fires when focus moves into a text field.
type FocusWatcher struct {
	*Base
	source     ports.FocusSource
	classifier Classifier
	interval   time.Duration
	tolerance  int

	// last is owned by the polling goroutine.
	last *focusIdentity
}

type focusIdentity struct {
	bounds  *domain.Rect
	class   string
	title   string
	control string
}

func NewFocusWatcher(source ports.FocusSource, classifier Classifier, cfg FocusConfig) *FocusWatcher {
	if cfg.Interval <= 0 {
		cfg.Interval = 50 * time.Millisecond
	}
	if cfg.BoundsTolerance <= 0 {
		cfg.BoundsTolerance = 5
	}
	return &FocusWatcher{
		Base:       newBase("focus", cfg.Options),
		source:     source,
		classifier: classifier,
		interval:   cfg.Interval,
		tolerance:  cfg.BoundsTolerance,
	}
}

// Start launches the polling goroutine.
func (w *FocusWatcher) Start(ctx context.Context) {
	w.start(ctx, w.run)
}

func (w *FocusWatcher) run(ctx context.Context) {
	w.last = nil
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

// poll handles one tick. Last-seen state is updated on every transition, whether
// or not a callback fires.
func (w *FocusWatcher) poll(ctx context.Context) bool {
	probe, info, ok := classify(ctx, w.source, w.classifier, w.logger)
	if !ok {
		return false
	}

	current := &focusIdentity{bounds: probe.Bounds, class: probe.WindowClass, title: probe.WindowTitle, control: probe.ControlType}
	if w.last != nil && w.sameControl(w.last, current) {
		return false
	}
	w.last = current

	if !w.allowTrigger() {
		return false
	}
	if !info.IsTextField {
		return false
	}
	return w.deliver(domain.ActivationEvent{Field: info, Source: domain.ActivationFocus})
}

// sameControl compares bounds only for control-level probes. Window-level probes
// (no control type) carry window geometry, which is identical across maximized
// windows, so they compare by class and title.
func (w *FocusWatcher) sameControl(a, b *focusIdentity) bool {
	if a.class != b.class || a.control != b.control {
		return false
	}
	if a.control != "" && a.bounds != nil && b.bounds != nil {
		return a.bounds.Within(*b.bounds, w.tolerance)
	}
	return a.title == b.title
}
