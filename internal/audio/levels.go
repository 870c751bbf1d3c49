package audio

import (
	"math"
	"time"
)

// RMS returns the root-mean-square amplitude of samples.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// VolumeLevel maps an RMS value onto the 0..100 UI meter using a 60 dB window.
func VolumeLevel(rms float64) int {
	db := 20 * math.Log10(rms+1e-10)
	level := (db + 60) * 2
	switch {
	case level < 0:
		return 0
	case level > 100:
		return 100
	default:
		return int(level)
	}
}

// Normalize scales samples in place so the peak magnitude is 1. Silent input is
// returned unchanged.
func Normalize(samples []float32) []float32 {
	var peak float32
	for _, s := range samples {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	if peak == 0 {
		return samples
	}
	for i := range samples {
		samples[i] /= peak
	}
	return samples
}

// Duration returns the playback length of n mono samples.
func Duration(n int, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(sampleRate)
}

func int16ToFloat(v int16) float32 {
	return float32(v) / 32768
}

func floatToInt16(v float32) int16 {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int16(v * 32767)
}

// PCM16LE encodes samples as 16-bit little-endian PCM.
func PCM16LE(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := uint16(floatToInt16(s))
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}
