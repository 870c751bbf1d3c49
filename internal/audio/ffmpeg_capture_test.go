package audio

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"voiceclick/internal/ports"
)

func TestFFmpegDeviceDeliversBlocksAndReportsEarlyEnd(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "capture.sh", "#!/usr/bin/env bash\nprintf '\\x00\\x40\\x00\\xc0'\nsleep 0.5\n")
	device := NewFFmpegDevice(script)
	sink := newRecordingSink()

	stream, err := device.Open(context.Background(), ports.AudioConfig{BlockSize: 256}, sink)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	select {
	case err := <-sink.errs:
		if !strings.Contains(err.Error(), "ended unexpectedly") {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("expected stream end to be reported")
	}

	blocks := sink.snapshot()
	if len(blocks) != 1 || len(blocks[0]) != 2 {
		t.Fatalf("unexpected blocks: %v", blocks)
	}
	if blocks[0][0] != 0.5 || blocks[0][1] != -0.5 {
		t.Fatalf("unexpected samples: %v", blocks[0])
	}

	if err := stream.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
}

func TestFFmpegDeviceStopIsQuiet(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "capture.sh", "#!/usr/bin/env bash\nexec sleep 5\n")
	device := NewFFmpegDevice(script)
	sink := newRecordingSink()

	stream, err := device.Open(context.Background(), ports.AudioConfig{}, sink)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := stream.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if err := stream.Stop(); err != nil {
		t.Fatalf("second stop failed: %v", err)
	}

	select {
	case err := <-sink.errs:
		t.Fatalf("stop must not report a device error: %v", err)
	default:
	}
}

func TestFFmpegDeviceEarlyExit(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "fail.sh", "#!/usr/bin/env bash\necho 'boom' 1>&2\nexit 1\n")
	device := NewFFmpegDevice(script)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := device.Open(ctx, ports.AudioConfig{}, newRecordingSink())
	if err == nil {
		t.Fatalf("expected early exit error")
	}
	if !strings.Contains(err.Error(), "exited before capture started") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFFmpegArgsForceMonoAtRate(t *testing.T) {
	t.Parallel()

	args := strings.Join(ffmpegArgs(ports.AudioConfig{SampleRate: 16000, InputFormat: "alsa", InputDevice: "hw:1"}), " ")
	for _, want := range []string{"-f alsa", "-i hw:1", "-ac 1", "-ar 16000", "-f s16le"} {
		if !strings.Contains(args, want) {
			t.Fatalf("expected %q in %q", want, args)
		}
	}
}

func TestNormalizeStopErrExitErrorIsIgnored(t *testing.T) {
	t.Parallel()

	err := exec.Command("bash", "-lc", "exit 1").Run()
	if err == nil {
		t.Fatalf("expected command to fail")
	}
	if got := normalizeStopErr(err); got != nil {
		t.Fatalf("expected nil for exit error, got %v", got)
	}
}

func TestTrimOutput(t *testing.T) {
	t.Parallel()

	if got := trimOutput("  hi\n"); got != "hi" {
		t.Fatalf("unexpected trim result: %q", got)
	}
}

func writeScript(t *testing.T, name string, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o700); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}

type recordingSink struct {
	mu     sync.Mutex
	blocks [][]float32
	errs   chan error
}

func newRecordingSink() *recordingSink {
	return &recordingSink{errs: make(chan error, 4)}
}

func (s *recordingSink) OnBlock(samples []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks = append(s.blocks, append([]float32(nil), samples...))
}

func (s *recordingSink) OnError(err error) {
	s.errs <- err
}

func (s *recordingSink) snapshot() [][]float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]float32, len(s.blocks))
	copy(out, s.blocks)
	return out
}
