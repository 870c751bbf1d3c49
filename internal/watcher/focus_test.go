package watcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"voiceclick/internal/domain"
)

func TestFocusWatcherFiresOnTransitionIntoTextField(t *testing.T) {
	t.Parallel()

	clock := newManualClock()
	field := domain.FocusProbe{ControlType: "edit", WindowTitle: "Notes", Bounds: &domain.Rect{Left: 0, Top: 0, Right: 100, Bottom: 20}}
	jittered := domain.FocusProbe{ControlType: "edit", WindowTitle: "Notes", Bounds: &domain.Rect{Left: 2, Top: 1, Right: 101, Bottom: 22}}
	other := domain.FocusProbe{ControlType: "edit", WindowTitle: "Chat", Bounds: &domain.Rect{Left: 300, Top: 300, Right: 500, Bottom: 340}}
	button := domain.FocusProbe{ControlType: "button", WindowTitle: "Dialog"}
	third := domain.FocusProbe{ControlType: "edit", WindowTitle: "Mail"}

	source := &scriptedSource{probes: []domain.FocusProbe{field, jittered, other, button, third}}
	w := NewFocusWatcher(source, editClassifier{}, FocusConfig{
		Options: Options{Debounce: 100 * time.Millisecond, Cooldown: 2 * time.Second, Clock: clock.Now},
	})

	var events []domain.ActivationEvent
	w.Register("collect", func(e domain.ActivationEvent) { events = append(events, e) })

	ctx := context.Background()
	if !w.poll(ctx) {
		t.Fatalf("expected first text field focus to fire")
	}

	clock.Advance(50 * time.Millisecond)
	if w.poll(ctx) {
		t.Fatalf("bounds within tolerance should be the same control")
	}

	clock.Advance(150 * time.Millisecond)
	if w.poll(ctx) {
		t.Fatalf("expected cooldown to suppress second text field")
	}
	if w.last == nil || w.last.title != "Chat" {
		t.Fatalf("expected last-seen to update even when suppressed")
	}

	clock.Advance(2 * time.Second)
	if w.poll(ctx) {
		t.Fatalf("non-text control must not fire")
	}

	clock.Advance(200 * time.Millisecond)
	if !w.poll(ctx) {
		t.Fatalf("expected text field after cooldown to fire")
	}

	if len(events) != 2 {
		t.Fatalf("expected 2 activations, got %d", len(events))
	}
	if events[0].Source != domain.ActivationFocus || events[1].Field.WindowTitle != "Mail" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestFocusWatcherSeparatesMaximizedWindows(t *testing.T) {
	t.Parallel()

	clock := newManualClock()
	screen := &domain.Rect{Left: 0, Top: 0, Right: 1920, Bottom: 1080}
	editor := domain.FocusProbe{WindowClass: "Gedit", WindowTitle: "notes.txt - gedit", Bounds: screen}
	browser := domain.FocusProbe{WindowClass: "firefox", WindowTitle: "Inbox - Mozilla Firefox", Bounds: screen}
	secondFile := domain.FocusProbe{WindowClass: "Gedit", WindowTitle: "todo.txt - gedit", Bounds: screen}

	source := &scriptedSource{probes: []domain.FocusProbe{editor, editor, browser, secondFile}}
	w := NewFocusWatcher(source, windowClassifier{}, FocusConfig{
		Options: Options{Debounce: 100 * time.Millisecond, Clock: clock.Now},
	})

	var titles []string
	w.Register("collect", func(e domain.ActivationEvent) { titles = append(titles, e.Field.WindowTitle) })

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		w.poll(ctx)
		clock.Advance(200 * time.Millisecond)
	}

	if len(titles) != 3 {
		t.Fatalf("expected one activation per window switch, got %v", titles)
	}
	if titles[1] != "Inbox - Mozilla Firefox" || titles[2] != "todo.txt - gedit" {
		t.Fatalf("unexpected activations: %v", titles)
	}
}

func TestFocusWatcherProbeFailureDoesNotFire(t *testing.T) {
	t.Parallel()

	source := &scriptedSource{err: errors.New("no display")}
	w := NewFocusWatcher(source, editClassifier{}, FocusConfig{})
	fired := false
	w.Register("collect", func(domain.ActivationEvent) { fired = true })

	if w.poll(context.Background()) || fired {
		t.Fatalf("probe failure must not fire")
	}
}

func TestFocusWatcherLoopStartsAndStops(t *testing.T) {
	t.Parallel()

	source := &scriptedSource{probes: []domain.FocusProbe{{ControlType: "edit", WindowTitle: "Notes"}}}
	w := NewFocusWatcher(source, editClassifier{}, FocusConfig{Interval: 5 * time.Millisecond})

	fired := make(chan struct{}, 1)
	w.Register("signal", func(domain.ActivationEvent) {
		select {
		case fired <- struct{}{}:
		default:
		}
	})

	w.Start(context.Background())
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected activation from polling loop")
	}
	if err := w.Stop(time.Second); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
}

type editClassifier struct{}

func (editClassifier) Classify(probe domain.FocusProbe) domain.TextFieldInfo {
	return domain.TextFieldInfo{
		IsTextField:     probe.ControlType == "edit",
		IsPasswordField: probe.Password,
		WindowTitle:     probe.WindowTitle,
		ControlType:     probe.ControlType,
		Bounds:          probe.Bounds,
	}
}

// windowClassifier treats every window-level probe as a text field.
type windowClassifier struct{}

func (windowClassifier) Classify(probe domain.FocusProbe) domain.TextFieldInfo {
	return domain.TextFieldInfo{IsTextField: probe.WindowClass != "", WindowTitle: probe.WindowTitle, Bounds: probe.Bounds}
}

// scriptedSource returns probes in order and then repeats the last one.
type scriptedSource struct {
	mu     sync.Mutex
	probes []domain.FocusProbe
	index  int
	err    error
}

func (s *scriptedSource) ProbeFocus(_ context.Context) (domain.FocusProbe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return domain.FocusProbe{}, s.err
	}
	if len(s.probes) == 0 {
		return domain.FocusProbe{}, errors.New("no probes")
	}
	probe := s.probes[s.index]
	if s.index < len(s.probes)-1 {
		s.index++
	}
	return probe, nil
}
