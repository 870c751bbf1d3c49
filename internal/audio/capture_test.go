package audio

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"voiceclick/internal/ports"
)

func TestCaptureQueuesBlocksAndReportsRMS(t *testing.T) {
	t.Parallel()

	device := &fakeDevice{}
	capture := NewCapture(device, ports.AudioConfig{}, nil)

	var rmsValues []float64
	rec, err := capture.Start(context.Background(), func(_ []float32, rms float64) {
		rmsValues = append(rmsValues, rms)
	}, nil)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if device.cfg.SampleRate != 16000 || device.cfg.BlockSize != 4096 || device.cfg.Channels != 1 {
		t.Fatalf("unexpected device config: %+v", device.cfg)
	}

	input := []float32{0.5, -0.5}
	device.sink.OnBlock(input)
	input[0] = 0
	device.sink.OnBlock([]float32{0.25})

	if len(rmsValues) != 2 || math.Abs(rmsValues[0]-0.5) > 1e-9 {
		t.Fatalf("unexpected rms values: %v", rmsValues)
	}
	if rec.Queued() != 3 {
		t.Fatalf("expected 3 queued samples, got %d", rec.Queued())
	}

	if err := rec.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	device.sink.OnBlock([]float32{1})

	got := rec.Drain()
	want := []float32{0.5, -0.5, 0.25}
	if len(got) != len(want) {
		t.Fatalf("unexpected drain: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected drain: %v", got)
		}
	}
	if len(rec.Drain()) != 0 {
		t.Fatalf("expected empty queue after drain")
	}
}

func TestCaptureDiscardDropsQueue(t *testing.T) {
	t.Parallel()

	device := &fakeDevice{}
	rec, err := NewCapture(device, ports.AudioConfig{}, nil).Start(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	device.sink.OnBlock([]float32{0.1, 0.2})
	rec.Discard()
	device.sink.OnBlock([]float32{0.3})

	if rec.Queued() != 0 || len(rec.Drain()) != 0 {
		t.Fatalf("expected discarded queue to stay empty")
	}
}

func TestCaptureOpenFailureWrapsDeviceError(t *testing.T) {
	t.Parallel()

	_, err := NewCapture(&fakeDevice{openErr: errors.New("busy")}, ports.AudioConfig{}, nil).Start(context.Background(), nil, nil)
	if !errors.Is(err, ErrDevice) {
		t.Fatalf("expected ErrDevice, got %v", err)
	}
}

func TestCaptureDeviceErrorReportedOnce(t *testing.T) {
	t.Parallel()

	device := &fakeDevice{}
	var errs []error
	_, err := NewCapture(device, ports.AudioConfig{}, nil).Start(context.Background(), nil, func(err error) {
		errs = append(errs, err)
	})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	device.sink.OnError(errors.New("unplugged"))
	device.sink.OnError(errors.New("again"))

	if len(errs) != 1 || !errors.Is(errs[0], ErrDevice) {
		t.Fatalf("expected one wrapped device error, got %v", errs)
	}
}

func TestRecordingStopIsBounded(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	defer close(release)

	device := &fakeDevice{stream: &fakeStream{block: release}}
	capture := NewCapture(device, ports.AudioConfig{}, nil)
	capture.stopTimeout = 20 * time.Millisecond

	rec, err := capture.Start(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	started := time.Now()
	if err := rec.Stop(); !errors.Is(err, ErrStopTimeout) {
		t.Fatalf("expected ErrStopTimeout, got %v", err)
	}
	if time.Since(started) > time.Second {
		t.Fatalf("stop was not bounded")
	}
}

type fakeDevice struct {
	mu      sync.Mutex
	cfg     ports.AudioConfig
	sink    ports.AudioSink
	stream  *fakeStream
	openErr error
}

func (d *fakeDevice) Open(_ context.Context, cfg ports.AudioConfig, sink ports.AudioSink) (ports.AudioStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.openErr != nil {
		return nil, d.openErr
	}
	d.cfg = cfg
	d.sink = sink
	if d.stream == nil {
		d.stream = &fakeStream{}
	}
	return d.stream, nil
}

type fakeStream struct {
	block chan struct{}
	stops int
}

func (s *fakeStream) Stop() error {
	s.stops++
	if s.block != nil {
		<-s.block
	}
	return nil
}
