package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"voiceclick/internal/ports"
)

// FFmpegDevice captures the microphone through an ffmpeg child process emitting
// s16le PCM on stdout.
type FFmpegDevice struct {
	command string
}

func NewFFmpegDevice(command string) *FFmpegDevice {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFmpegDevice{command: command}
}

func (d *FFmpegDevice) Open(ctx context.Context, cfg ports.AudioConfig, sink ports.AudioSink) (ports.AudioStream, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.BlockSize < 256 {
		cfg.BlockSize = 4096
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}

	cmd := exec.CommandContext(ctx, d.command, ffmpegArgs(cfg)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create ffmpeg stdout pipe: %v", ErrDevice, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: failed to start ffmpeg: %v", ErrDevice, err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		if err != nil {
			return nil, fmt.Errorf("%w: ffmpeg exited before capture started: %v: %s", ErrDevice, err, trimOutput(stderr.String()))
		}
		return nil, fmt.Errorf("%w: ffmpeg exited before capture started", ErrDevice)
	case <-time.After(250 * time.Millisecond):
	}

	stream := &ffmpegStream{
		stdout:     stdout,
		stderr:     &stderr,
		process:    cmd.Process,
		waitErr:    waitErr,
		readerDone: make(chan struct{}),
	}
	go stream.pump(cfg.BlockSize, sink)
	return stream, nil
}

func ffmpegArgs(cfg ports.AudioConfig) []string {
	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", "1",
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	}
}

type ffmpegStream struct {
	stdout io.ReadCloser
	stderr *bytes.Buffer

	process    *os.Process
	waitErr    <-chan error
	readerDone chan struct{}

	stopping bool
	mu       sync.Mutex
	stopOnce sync.Once
	stopErr  error
}

// pump reads fixed-size blocks until stdout closes. A trailing partial block is
// still delivered.
func (s *ffmpegStream) pump(blockSize int, sink ports.AudioSink) {
	defer close(s.readerDone)

	raw := make([]byte, blockSize*2)
	for {
		n, err := io.ReadFull(s.stdout, raw)
		if n >= 2 {
			sink.OnBlock(decodeS16LE(raw[:n-n%2]))
		}
		if err != nil {
			if s.isStopping() {
				return
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, os.ErrClosed) {
				err = errors.New("capture stream ended unexpectedly")
			}
			sink.OnError(err)
			return
		}
	}
}

func (s *ffmpegStream) isStopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping
}

func (s *ffmpegStream) Stop() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopping = true
		s.mu.Unlock()

		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		case <-time.After(1200 * time.Millisecond):
			if s.process != nil {
				_ = s.process.Kill()
			}
			err, ok := <-s.waitErr
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		}

		if closeErr := s.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
			if s.stopErr == nil {
				s.stopErr = closeErr
			}
		}
		<-s.readerDone

		if s.stopErr != nil && s.stderr != nil && s.stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, trimOutput(s.stderr.String()))
		}
	})

	return s.stopErr
}

func decodeS16LE(raw []byte) []float32 {
	out := make([]float32, len(raw)/2)
	for i := range out {
		out[i] = int16ToFloat(int16(binary.LittleEndian.Uint16(raw[i*2:])))
	}
	return out
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func trimOutput(input string) string {
	if input == "" {
		return input
	}
	return string(bytes.TrimSpace([]byte(input)))
}
