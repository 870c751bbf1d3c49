package watcher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"voiceclick/internal/domain"
	"voiceclick/internal/ports"
)

// ErrStopTimeout is returned when a watcher loop does not exit within its bound.
var ErrStopTimeout = errors.New("watcher did not stop in time")

// Callback receives delivered activations.
type Callback func(domain.ActivationEvent)

// Classifier turns a probe into a classification.
type Classifier interface {
	Classify(probe domain.FocusProbe) domain.TextFieldInfo
}

// Options holds the settings shared by every watcher.
type Options struct {
	Debounce time.Duration
	Cooldown time.Duration
	Clock    func() time.Time
	Logger   *slog.Logger
}

// Base implements subscriber management, the debounce and cooldown gates and the
// run loop lifecycle shared by the focus and click watchers.
type Base struct {
	name     string
	logger   *slog.Logger
	now      func() time.Time
	debounce time.Duration
	cooldown time.Duration

	callbacks registry[Callback]

	gateMu        sync.Mutex
	lastTrigger   time.Time
	lastDelivered time.Time

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func newBase(name string, opts Options) *Base {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Base{
		name:     name,
		logger:   opts.Logger.With("watcher", name),
		now:      opts.Clock,
		debounce: opts.Debounce,
		cooldown: opts.Cooldown,
	}
}

// Register adds a named callback. Registering an existing name is a no-op.
func (b *Base) Register(name string, cb Callback) {
	if cb == nil {
		return
	}
	b.callbacks.add(name, cb)
}

// Unregister removes a named callback. Unknown names are ignored.
func (b *Base) Unregister(name string) {
	b.callbacks.remove(name)
}

// Subscribers returns the number of registered callbacks.
func (b *Base) Subscribers() int {
	return len(b.callbacks.snapshot())
}

// Running reports whether the watcher loop is active.
func (b *Base) Running() bool {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	return b.running
}

// allowTrigger applies the debounce gate to a raw trigger.
func (b *Base) allowTrigger() bool {
	b.gateMu.Lock()
	defer b.gateMu.Unlock()

	now := b.now()
	if !b.lastTrigger.IsZero() && now.Sub(b.lastTrigger) < b.debounce {
		return false
	}
	b.lastTrigger = now
	return true
}

// deliver applies the cooldown gate and dispatches event to a snapshot of the
// registered callbacks. It reports whether the event was delivered.
func (b *Base) deliver(event domain.ActivationEvent) bool {
	b.gateMu.Lock()
	now := b.now()
	if !b.lastDelivered.IsZero() && now.Sub(b.lastDelivered) < b.cooldown {
		b.gateMu.Unlock()
		return false
	}
	b.lastDelivered = now
	b.gateMu.Unlock()

	if event.At.IsZero() {
		event.At = now
	}
	for _, entry := range b.callbacks.snapshot() {
		b.invoke(entry.name, func() { entry.item(event) })
	}
	return true
}

func (b *Base) invoke(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("callback panicked", "callback", name, "panic", r)
		}
	}()
	fn()
}

// start launches run on its own goroutine. Starting a running watcher is a no-op.
func (b *Base) start(parent context.Context, run func(ctx context.Context)) {
	b.runMu.Lock()
	defer b.runMu.Unlock()

	if b.running {
		b.logger.Info("watcher already running")
		return
	}

	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	b.cancel = cancel
	b.done = done
	b.running = true

	go func() {
		defer close(done)
		run(ctx)
		b.exited(done)
	}()
	b.logger.Info("watcher started")
}

// exited clears the running state when a loop returns without Stop, so a later
// start can relaunch it.
func (b *Base) exited(done chan struct{}) {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	if b.done != done {
		return
	}
	b.cancel()
	b.running = false
	b.cancel = nil
	b.done = nil
	b.logger.Warn("watcher loop exited")
}

// Stop cancels the loop and waits up to timeout for it to exit. Stopping an idle
// watcher is a no-op.
func (b *Base) Stop(timeout time.Duration) error {
	b.runMu.Lock()
	if !b.running {
		b.runMu.Unlock()
		b.logger.Info("watcher not running")
		return nil
	}
	cancel, done := b.cancel, b.done
	b.running = false
	b.cancel = nil
	b.done = nil
	b.runMu.Unlock()

	cancel()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		b.logger.Info("watcher stopped")
		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}

// classify probes source and classifies the probe, falling back to a
// non-text-field answer when the probe fails.
func classify(ctx context.Context, source ports.FocusSource, classifier Classifier, logger *slog.Logger) (domain.FocusProbe, domain.TextFieldInfo, bool) {
	probe, err := source.ProbeFocus(ctx)
	if err != nil {
		logger.Debug("focus probe failed", "error", err)
		return domain.FocusProbe{}, domain.TextFieldInfo{}, false
	}
	return probe, classifier.Classify(probe), true
}

type named[T any] struct {
	name string
	item T
}

// registry is an ordered, lock-protected name->item set handed out as copies.
type registry[T any] struct {
	mu    sync.Mutex
	items []named[T]
}

func (r *registry[T]) add(name string, item T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range r.items {
		if entry.name == name {
			return false
		}
	}
	r.items = append(r.items, named[T]{name: name, item: item})
	return true
}

func (r *registry[T]) remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, entry := range r.items {
		if entry.name == name {
			r.items = append(r.items[:i:i], r.items[i+1:]...)
			return true
		}
	}
	return false
}

func (r *registry[T]) snapshot() []named[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]named[T], len(r.items))
	copy(out, r.items)
	return out
}
