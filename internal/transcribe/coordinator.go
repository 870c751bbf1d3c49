package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"voiceclick/internal/ports"
)

var (
	// ErrEmptyResult means both decode passes produced no text.
	ErrEmptyResult = errors.New("no speech recognized")
	// ErrSuperseded marks a result from a session that was cancelled or replaced.
	ErrSuperseded = errors.New("transcription superseded")
	// ErrWaitTimeout is returned when workers outlive a bounded wait.
	ErrWaitTimeout = errors.New("transcription workers did not finish in time")
)

// Error is an engine failure during one decode pass.
type Error struct {
	Pass int
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transcription pass %d failed: %v", e.Pass, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Config holds the two decode profiles.
type Config struct {
	SampleRate int
	Language   string
	Primary    ports.DecodeParams
	Fallback   ports.DecodeParams
}

// DefaultConfig returns a VAD-filtered greedy first pass and an unfiltered,
// warmer, unconditioned fallback pass.
func DefaultConfig() Config {
	return Config{
		SampleRate: 16000,
		Primary: ports.DecodeParams{
			SpeechFilter:        true,
			Temperature:         0,
			BeamSize:            5,
			ConditionOnPrevious: true,
		},
		Fallback: ports.DecodeParams{
			SpeechFilter:        false,
			Temperature:         0.4,
			BeamSize:            5,
			ConditionOnPrevious: false,
		},
	}
}

// Result is the outcome of a job.
type Result struct {
	Text string
	Pass int
	Err  error
}

// Job is a pending transcription.
type Job struct {
	generation uint64
	done       chan struct{}
	result     Result
}

// Done is closed once the result is available.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Result blocks until the job finishes.
func (j *Job) Result() Result {
	<-j.done
	return j.result
}

func (j *Job) finish(result Result) {
	j.result = result
	close(j.done)
}

// Coordinator serializes access to a shared engine and runs the two-pass protocol.
type Coordinator struct {
	engine ports.TranscriptionEngine
	filter ports.SpeechFilter
	cfg    Config
	logger *slog.Logger

	engineMu   sync.Mutex
	generation atomic.Uint64
	workers    sync.WaitGroup
}

func NewCoordinator(engine ports.TranscriptionEngine, filter ports.SpeechFilter, cfg Config, logger *slog.Logger) *Coordinator {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if logger == nil {
		logger = slog.Default()
	}
	lang := strings.TrimSpace(cfg.Language)
	if strings.EqualFold(lang, "auto") {
		lang = ""
	}
	cfg.Primary.Language = lang
	cfg.Fallback.Language = lang
	return &Coordinator{engine: engine, filter: filter, cfg: cfg, logger: logger.With("engine", engine.Name())}
}

// Submit starts decoding samples on a worker goroutine. Any earlier job that has
// not yet delivered becomes stale. progress may be nil.
func (c *Coordinator) Submit(ctx context.Context, samples []float32, progress func(string)) *Job {
	job := &Job{generation: c.generation.Add(1), done: make(chan struct{})}
	if progress == nil {
		progress = func(string) {}
	}

	c.workers.Add(1)
	go func() {
		defer c.workers.Done()
		result := c.run(ctx, job.generation, samples, progress)
		if !c.current(job.generation) {
			result = Result{Err: ErrSuperseded}
		}
		job.finish(result)
	}()
	return job
}

// Invalidate makes every pending job stale. The engine call is not interrupted.
func (c *Coordinator) Invalidate() {
	c.generation.Add(1)
}

// Wait blocks until all workers have returned or timeout elapses.
func (c *Coordinator) Wait(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		c.workers.Wait()
		close(done)
	}()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrWaitTimeout
	}
}

func (c *Coordinator) current(generation uint64) bool {
	return c.generation.Load() == generation
}

func (c *Coordinator) run(ctx context.Context, generation uint64, samples []float32, progress func(string)) Result {
	c.engineMu.Lock()
	defer c.engineMu.Unlock()

	if !c.current(generation) {
		return Result{Err: ErrSuperseded}
	}

	progress("Transcribing...")
	text, err := c.decode(ctx, c.applyFilter(samples, c.cfg.Primary), c.cfg.Primary)
	if err != nil {
		return Result{Err: &Error{Pass: 1, Err: err}}
	}
	if text != "" {
		return Result{Text: text, Pass: 1}
	}

	if !c.current(generation) {
		return Result{Err: ErrSuperseded}
	}

	c.logger.Info("first pass empty, retrying without speech filter")
	progress("Retrying transcription...")
	text, err = c.decode(ctx, samples, c.cfg.Fallback)
	if err != nil {
		return Result{Err: &Error{Pass: 2, Err: err}}
	}
	if text == "" {
		return Result{Err: ErrEmptyResult, Pass: 2}
	}
	return Result{Text: text, Pass: 2}
}

func (c *Coordinator) applyFilter(samples []float32, params ports.DecodeParams) []float32 {
	if !params.SpeechFilter || c.filter == nil {
		return samples
	}
	filtered, err := c.filter.Filter(samples, c.cfg.SampleRate)
	if err != nil {
		c.logger.Warn("speech filter failed, decoding unfiltered audio", "error", err)
		return samples
	}
	return filtered
}

func (c *Coordinator) decode(ctx context.Context, samples []float32, params ports.DecodeParams) (string, error) {
	if len(samples) == 0 {
		return "", nil
	}
	text, err := c.engine.Transcribe(ctx, samples, c.cfg.SampleRate, params)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
