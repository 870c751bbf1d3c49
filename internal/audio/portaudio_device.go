package audio

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"

	"voiceclick/internal/ports"
)

// PortAudioDevice captures mono float32 blocks through a PortAudio callback stream.
type PortAudioDevice struct{}

func NewPortAudioDevice() *PortAudioDevice {
	return &PortAudioDevice{}
}

func (d *PortAudioDevice) Open(ctx context.Context, cfg ports.AudioConfig, sink ports.AudioSink) (ports.AudioStream, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.BlockSize < 256 {
		cfg.BlockSize = 4096
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: failed to initialize portaudio: %v", ErrDevice, err)
	}

	callback := func(in []float32) {
		sink.OnBlock(in)
	}

	stream, err := openPortAudioStream(cfg, callback)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("%w: %v", ErrDevice, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("%w: failed to start input stream: %v", ErrDevice, err)
	}

	s := &portaudioStream{stream: stream, done: make(chan struct{})}
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Stop()
		case <-s.done:
		}
	}()
	return s, nil
}

func openPortAudioStream(cfg ports.AudioConfig, callback func([]float32)) (*portaudio.Stream, error) {
	name := strings.TrimSpace(cfg.InputDevice)
	if name == "" || name == "default" {
		return portaudio.OpenDefaultStream(1, 0, float64(cfg.SampleRate), cfg.BlockSize, callback)
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	for _, device := range devices {
		if device.MaxInputChannels < 1 || !strings.Contains(strings.ToLower(device.Name), strings.ToLower(name)) {
			continue
		}
		params := portaudio.LowLatencyParameters(device, nil)
		params.Input.Channels = 1
		params.SampleRate = float64(cfg.SampleRate)
		params.FramesPerBuffer = cfg.BlockSize
		return portaudio.OpenStream(params, callback)
	}
	return nil, fmt.Errorf("input device %q not found", name)
}

type portaudioStream struct {
	stream   *portaudio.Stream
	done     chan struct{}
	stopOnce sync.Once
	stopErr  error
}

// Stop always closes the stream and terminates PortAudio, even if stopping fails.
func (s *portaudioStream) Stop() error {
	s.stopOnce.Do(func() {
		defer close(s.done)
		defer func() {
			if err := portaudio.Terminate(); err != nil && s.stopErr == nil {
				s.stopErr = err
			}
		}()
		defer func() {
			if err := s.stream.Close(); err != nil && s.stopErr == nil {
				s.stopErr = err
			}
		}()
		s.stopErr = s.stream.Stop()
	})
	return s.stopErr
}

// InputDevice describes a capture-capable device.
type InputDevice struct {
	Name              string
	HostAPI           string
	MaxInputChannels  int
	DefaultSampleRate float64
	Default           bool
}

// ListInputDevices enumerates PortAudio input devices.
func ListInputDevices() ([]InputDevice, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: failed to initialize portaudio: %v", ErrDevice, err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDevice, err)
	}
	defaultInput, _ := portaudio.DefaultInputDevice()

	out := make([]InputDevice, 0, len(devices))
	for _, device := range devices {
		if device.MaxInputChannels < 1 {
			continue
		}
		info := InputDevice{
			Name:              device.Name,
			MaxInputChannels:  device.MaxInputChannels,
			DefaultSampleRate: device.DefaultSampleRate,
			Default:           defaultInput != nil && defaultInput.Name == device.Name,
		}
		if device.HostApi != nil {
			info.HostAPI = device.HostApi.Name
		}
		out = append(out, info)
	}
	return out, nil
}
