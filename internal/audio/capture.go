package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"voiceclick/internal/ports"
)

var (
	// ErrDevice wraps failures to open or read the input device.
	ErrDevice = errors.New("audio device error")
	// ErrStopTimeout is returned when the device does not release in time.
	ErrStopTimeout = errors.New("audio device did not stop in time")
)

// Capture opens recordings on an input device.
type Capture struct {
	device      ports.AudioDevice
	cfg         ports.AudioConfig
	stopTimeout time.Duration
	logger      *slog.Logger
}

func NewCapture(device ports.AudioDevice, cfg ports.AudioConfig, logger *slog.Logger) *Capture {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.BlockSize < 256 {
		cfg.BlockSize = 4096
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Capture{device: device, cfg: cfg, stopTimeout: 2 * time.Second, logger: logger}
}

// SampleRate returns the configured capture rate.
func (c *Capture) SampleRate() int {
	return c.cfg.SampleRate
}

// Start opens the device and streams blocks into a new Recording. onBlock runs
// on the device goroutine with each block and its RMS and must not block.
// onError is invoked at most once if capture fails mid-stream.
func (c *Capture) Start(ctx context.Context, onBlock func(samples []float32, rms float64), onError func(error)) (ports.CaptureSession, error) {
	rec := &Recording{
		onBlock:     onBlock,
		onError:     onError,
		stopTimeout: c.stopTimeout,
		logger:      c.logger,
	}
	stream, err := c.device.Open(ctx, c.cfg, rec)
	if err != nil {
		if errors.Is(err, ErrDevice) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrDevice, err)
	}
	rec.stream = stream
	return rec, nil
}

// Recording is one open capture. Its queue is filled by the device callback and
// drained once at stop time.
type Recording struct {
	stream      ports.AudioStream
	onBlock     func(samples []float32, rms float64)
	onError     func(error)
	stopTimeout time.Duration
	logger      *slog.Logger

	closed    atomic.Bool
	errOnce   sync.Once
	stopOnce  sync.Once
	stopErr   error
	queueMu   sync.Mutex
	queue     [][]float32
	queuedLen int
}

// OnBlock implements ports.AudioSink.
func (r *Recording) OnBlock(samples []float32) {
	if r.closed.Load() || len(samples) == 0 {
		return
	}
	block := make([]float32, len(samples))
	copy(block, samples)

	r.queueMu.Lock()
	r.queue = append(r.queue, block)
	r.queuedLen += len(block)
	r.queueMu.Unlock()

	if r.onBlock != nil {
		r.onBlock(block, RMS(block))
	}
}

// OnError implements ports.AudioSink.
func (r *Recording) OnError(err error) {
	if err == nil || r.closed.Load() {
		return
	}
	r.errOnce.Do(func() {
		if r.onError != nil {
			r.onError(fmt.Errorf("%w: %v", ErrDevice, err))
		}
	})
}

// Stop halts the device, waiting at most the stop timeout. Device resources are
// released even when the wait times out.
func (r *Recording) Stop() error {
	r.stopOnce.Do(func() {
		r.closed.Store(true)
		if r.stream == nil {
			return
		}

		done := make(chan error, 1)
		go func() {
			done <- r.stream.Stop()
		}()

		timer := time.NewTimer(r.stopTimeout)
		defer timer.Stop()
		select {
		case err := <-done:
			r.stopErr = err
		case <-timer.C:
			r.logger.Warn("audio device stop timed out", "timeout", r.stopTimeout)
			r.stopErr = ErrStopTimeout
		}
	})
	return r.stopErr
}

// Drain removes and concatenates every queued block.
func (r *Recording) Drain() []float32 {
	r.queueMu.Lock()
	blocks := r.queue
	total := r.queuedLen
	r.queue = nil
	r.queuedLen = 0
	r.queueMu.Unlock()

	out := make([]float32, 0, total)
	for _, block := range blocks {
		out = append(out, block...)
	}
	return out
}

// Discard stops accepting blocks and drops everything queued.
func (r *Recording) Discard() {
	r.closed.Store(true)
	r.queueMu.Lock()
	r.queue = nil
	r.queuedLen = 0
	r.queueMu.Unlock()
}

// Queued returns the number of buffered samples.
func (r *Recording) Queued() int {
	r.queueMu.Lock()
	defer r.queueMu.Unlock()
	return r.queuedLen
}
