package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ErrShutdownTimeout is returned when background tasks outlive the join bound.
var ErrShutdownTimeout = errors.New("background tasks did not stop in time")

// Supervisor owns the background goroutines of the dictation runtime. Every
// task receives the supervisor context and is joined on Shutdown.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	wg      sync.WaitGroup
	mu      sync.Mutex
	running map[string]int
	closed  bool
}

func NewSupervisor(parent context.Context, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Supervisor{ctx: ctx, cancel: cancel, logger: logger, running: map[string]int{}}
}

// Context is cancelled when Shutdown begins.
func (s *Supervisor) Context() context.Context {
	return s.ctx
}

// Go runs fn on a tracked goroutine. It reports false after Shutdown.
func (s *Supervisor) Go(name string, fn func(ctx context.Context)) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.running[name]++
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("background task panicked", "task", name, "panic", r)
			}
			s.mu.Lock()
			s.running[name]--
			if s.running[name] <= 0 {
				delete(s.running, name)
			}
			s.mu.Unlock()
			s.wg.Done()
		}()
		fn(s.ctx)
	}()
	return true
}

// Running lists the names of tasks that have not returned.
func (s *Supervisor) Running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.running))
	for name := range s.running {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Shutdown cancels every task and waits up to timeout for them to return.
// Stragglers are logged and left behind.
func (s *Supervisor) Shutdown(timeout time.Duration) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		for _, name := range s.Running() {
			s.logger.Warn("shutdown timeout", "task", name, "timeout", timeout)
		}
		return ErrShutdownTimeout
	}
}
