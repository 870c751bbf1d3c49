package watcher

import (
	"context"
	"time"

	"voiceclick/internal/domain"
	"voiceclick/internal/ports"
)

// ClickConfig tunes the click watcher.
type ClickConfig struct {
	SettleDelay time.Duration
	Options
}

// PointerObserver sees every raw pointer event before activation handling.
type PointerObserver func(domain.PointerEvent)

// ClickWatcher consumes the global pointer stream and fires when a primary press
// lands in a non-password text field.
type ClickWatcher struct {
	*Base
	pointer    ports.PointerSource
	focus      ports.FocusSource
	classifier Classifier
	settle     time.Duration
	sleep      func(ctx context.Context, d time.Duration) bool

	observers registry[PointerObserver]
}

func NewClickWatcher(pointer ports.PointerSource, focus ports.FocusSource, classifier Classifier, cfg ClickConfig) *ClickWatcher {
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 120 * time.Millisecond
	}
	return &ClickWatcher{
		Base:       newBase("click", cfg.Options),
		pointer:    pointer,
		focus:      focus,
		classifier: classifier,
		settle:     cfg.SettleDelay,
		sleep:      sleepContext,
	}
}

// Observe registers a raw pointer observer. Duplicate names are ignored.
func (w *ClickWatcher) Observe(name string, fn PointerObserver) {
	if fn == nil {
		return
	}
	w.observers.add(name, fn)
}

// Unobserve removes a raw pointer observer.
func (w *ClickWatcher) Unobserve(name string) {
	w.observers.remove(name)
}

// Start subscribes to the pointer stream on its own goroutine.
func (w *ClickWatcher) Start(ctx context.Context) {
	w.start(ctx, w.run)
}

func (w *ClickWatcher) run(ctx context.Context) {
	events, err := w.pointer.Pointer(ctx)
	if err != nil {
		w.logger.Error("pointer stream unavailable", "error", err)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			w.handle(ctx, event)
		}
	}
}

// handle processes one pointer event on the stream goroutine, including the
// settle delay.
func (w *ClickWatcher) handle(ctx context.Context, event domain.PointerEvent) bool {
	for _, entry := range w.observers.snapshot() {
		w.invoke(entry.name, func() { entry.item(event) })
	}

	if event.Kind != domain.PointerPress || event.Button != domain.PointerPrimary {
		return false
	}
	if !w.allowTrigger() {
		return false
	}
	if !w.sleep(ctx, w.settle) {
		return false
	}

	_, info, ok := classify(ctx, w.focus, w.classifier, w.logger)
	if !ok || !info.IsTextField || info.IsPasswordField {
		return false
	}
	return w.deliver(domain.ActivationEvent{Field: info, Source: domain.ActivationClick})
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
