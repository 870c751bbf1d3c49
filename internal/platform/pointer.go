package platform

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	hook "github.com/robotn/gohook"

	"voiceclick/internal/domain"
)

// libuiohook button numbering.
const (
	hookButtonLeft   = 1
	hookButtonRight  = 2
	hookButtonMiddle = 3
)

var ErrPointerClosed = errors.New("pointer source closed")

// maxQueued bounds the per-subscriber backlog behind the channel buffer.
const maxQueued = 1024

// HookPointerSource fans the single process-wide gohook stream out to any
// number of subscribers. The hook runs only while someone is subscribed.
type HookPointerSource struct {
	startHook func() chan hook.Event
	endHook   func()
	buffer    int
	logger    *slog.Logger

	mu     sync.Mutex
	subs   map[int]*subscriber
	nextID int
	done   chan struct{}
	closed bool
}

func NewHookPointerSource(logger *slog.Logger) *HookPointerSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &HookPointerSource{
		startHook: hook.Start,
		endHook:   hook.End,
		buffer:    64,
		logger:    logger.With("component", "pointer-hook"),
		subs:      make(map[int]*subscriber),
	}
}

// Pointer subscribes to pointer events until ctx ends. A slow subscriber never
// stalls the hook: its backlog is queued, with consecutive moves coalesced into
// the latest position so presses and releases are kept.
func (s *HookPointerSource) Pointer(ctx context.Context) (<-chan domain.PointerEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrPointerClosed
	}

	id := s.nextID
	s.nextID++
	sub := newSubscriber(s.buffer)
	s.subs[id] = sub
	go sub.forward()
	if s.done == nil {
		s.done = make(chan struct{})
		go s.pump(s.startHook(), s.done)
		s.logger.Debug("pointer hook started")
	}

	go func() {
		<-ctx.Done()
		s.unsubscribe(id)
	}()
	return sub.out, nil
}

// Close stops the hook and closes every subscription.
func (s *HookPointerSource) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.stopLocked()
	for id, sub := range s.subs {
		delete(s.subs, id)
		close(sub.quit)
	}
}

func (s *HookPointerSource) unsubscribe(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return
	}
	delete(s.subs, id)
	if len(s.subs) == 0 {
		s.stopLocked()
	}
	close(sub.quit)
}

func (s *HookPointerSource) stopLocked() {
	if s.done == nil {
		return
	}
	close(s.done)
	s.done = nil
	s.endHook()
	s.logger.Debug("pointer hook stopped")
}

func (s *HookPointerSource) pump(events chan hook.Event, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if pe, ok := translateHookEvent(ev); ok {
				s.broadcast(pe, done)
			}
		}
	}
}

func (s *HookPointerSource) broadcast(event domain.PointerEvent, done chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != done {
		return
	}
	for id, sub := range s.subs {
		if !sub.push(event) {
			s.logger.Warn("pointer subscriber backlog full, dropping event", "subscriber", id, "kind", event.Kind)
		}
	}
}

// subscriber forwards queued events to out on its own goroutine.
type subscriber struct {
	out  chan domain.PointerEvent
	wake chan struct{}
	quit chan struct{}

	mu    sync.Mutex
	queue []domain.PointerEvent
}

func newSubscriber(buffer int) *subscriber {
	return &subscriber{
		out:  make(chan domain.PointerEvent, buffer),
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
	}
}

// push queues event. A move replaces a move already waiting at the tail.
func (sub *subscriber) push(event domain.PointerEvent) bool {
	sub.mu.Lock()
	n := len(sub.queue)
	switch {
	case event.Kind == domain.PointerMove && n > 0 && sub.queue[n-1].Kind == domain.PointerMove:
		sub.queue[n-1] = event
	case n >= maxQueued:
		sub.mu.Unlock()
		return false
	default:
		sub.queue = append(sub.queue, event)
	}
	sub.mu.Unlock()

	select {
	case sub.wake <- struct{}{}:
	default:
	}
	return true
}

func (sub *subscriber) forward() {
	defer close(sub.out)
	for {
		sub.mu.Lock()
		if len(sub.queue) == 0 {
			sub.mu.Unlock()
			select {
			case <-sub.wake:
				continue
			case <-sub.quit:
				return
			}
		}
		event := sub.queue[0]
		sub.queue = sub.queue[1:]
		sub.mu.Unlock()

		select {
		case sub.out <- event:
		case <-sub.quit:
			return
		}
	}
}

// translateHookEvent maps gohook mouse events onto domain pointer events.
// gohook reports a press as MouseHold; MouseDown is the synthetic click after
// release and is ignored.
func translateHookEvent(ev hook.Event) (domain.PointerEvent, bool) {
	var kind domain.PointerKind
	switch ev.Kind {
	case hook.MouseHold:
		kind = domain.PointerPress
	case hook.MouseUp:
		kind = domain.PointerRelease
	case hook.MouseMove, hook.MouseDrag:
		kind = domain.PointerMove
	default:
		return domain.PointerEvent{}, false
	}

	at := ev.When
	if at.IsZero() {
		at = time.Now()
	}
	event := domain.PointerEvent{Kind: kind, X: int(ev.X), Y: int(ev.Y), At: at}
	if kind != domain.PointerMove {
		event.Button = hookButton(ev.Button)
	}
	return event, true
}

func hookButton(button uint16) domain.PointerButton {
	switch button {
	case hookButtonLeft:
		return domain.PointerPrimary
	case hookButtonRight:
		return domain.PointerSecondary
	case hookButtonMiddle:
		return domain.PointerMiddle
	default:
		return domain.PointerOther
	}
}
