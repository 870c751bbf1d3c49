package vad

import (
	"encoding/binary"
	"fmt"
	"slices"
	"sync"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"
)

var validRates = []int{8000, 16000, 32000, 48000}

// Config tunes the speech filter.
type Config struct {
	// Mode is the WebRTC aggressiveness, 0 (least) to 3 (most).
	Mode    int
	FrameMS int
	PadMS   int
}

// Filter keeps voiced frames, padded on both sides, and drops the rest.
type Filter struct {
	mu      sync.Mutex
	vad     *webrtcvad.VAD
	frameMS int
	padMS   int
}

func New(cfg Config) (*Filter, error) {
	if cfg.Mode < 0 {
		cfg.Mode = 0
	}
	if cfg.Mode > 3 {
		cfg.Mode = 3
	}
	if cfg.FrameMS != 10 && cfg.FrameMS != 20 && cfg.FrameMS != 30 {
		cfg.FrameMS = 30
	}
	if cfg.PadMS < 0 {
		cfg.PadMS = 0
	}

	v, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create WebRTC VAD: %w", err)
	}
	if err := v.SetMode(cfg.Mode); err != nil {
		return nil, fmt.Errorf("failed to set VAD mode: %w", err)
	}
	return &Filter{vad: v, frameMS: cfg.FrameMS, padMS: cfg.PadMS}, nil
}

// Filter returns the voiced portion of samples. Input with no speech yields an
// empty slice.
func (f *Filter) Filter(samples []float32, sampleRate int) ([]float32, error) {
	frameSize := sampleRate * f.frameMS / 1000
	if !slices.Contains(validRates, sampleRate) {
		return nil, fmt.Errorf("unsupported VAD rate %d, must be one of %v", sampleRate, validRates)
	}
	if len(samples) == 0 {
		return nil, nil
	}

	frames := (len(samples) + frameSize - 1) / frameSize
	voiced := make([]bool, frames)
	raw := make([]byte, frameSize*2)

	f.mu.Lock()
	for i := 0; i < frames; i++ {
		start := i * frameSize
		end := min(start+frameSize, len(samples))
		encodeFrame(raw, samples[start:end])
		active, err := f.vad.Process(sampleRate, raw)
		if err != nil {
			f.mu.Unlock()
			return nil, fmt.Errorf("VAD processing failed: %w", err)
		}
		voiced[i] = active
	}
	f.mu.Unlock()

	keep := padVoiced(voiced, f.padMS/f.frameMS)
	out := make([]float32, 0, len(samples))
	for i, ok := range keep {
		if !ok {
			continue
		}
		start := i * frameSize
		end := min(start+frameSize, len(samples))
		out = append(out, samples[start:end]...)
	}
	return out, nil
}

// encodeFrame writes samples as 16-bit little-endian PCM into raw, zero padding
// a short final frame.
func encodeFrame(raw []byte, samples []float32) {
	clear(raw)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(int16(s*32767)))
	}
}

// padVoiced extends every voiced frame by pad frames on each side.
func padVoiced(voiced []bool, pad int) []bool {
	keep := make([]bool, len(voiced))
	for i, v := range voiced {
		if !v {
			continue
		}
		for j := max(0, i-pad); j <= min(len(voiced)-1, i+pad); j++ {
			keep[j] = true
		}
	}
	return keep
}
