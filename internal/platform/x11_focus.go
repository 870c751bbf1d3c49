package platform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"voiceclick/internal/domain"
)

var ErrNoActiveWindow = errors.New("no active window")

type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// X11FocusSource probes the active X11 window with xdotool and xprop. X11
// exposes no focused-control details, so ControlType stays empty and the
// window class stands in for classification.
type X11FocusSource struct {
	run      commandRunner
	procRoot string
}

func NewX11FocusSource() *X11FocusSource {
	return &X11FocusSource{run: runCommand, procRoot: "/proc"}
}

// Available reports whether the helper binaries are installed.
func (s *X11FocusSource) Available() error {
	for _, bin := range []string{"xdotool", "xprop"} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("%s not found: %w", bin, err)
		}
	}
	return nil
}

func (s *X11FocusSource) ProbeFocus(ctx context.Context) (domain.FocusProbe, error) {
	out, err := s.run(ctx, "xdotool", "getactivewindow")
	if err != nil {
		return domain.FocusProbe{}, err
	}
	window := strings.TrimSpace(string(out))
	if window == "" || window == "0" {
		return domain.FocusProbe{}, ErrNoActiveWindow
	}

	props, err := s.run(ctx, "xprop", "-id", window, "WM_CLASS", "_NET_WM_NAME", "_NET_WM_PID", "_NET_WM_STATE")
	if err != nil {
		return domain.FocusProbe{}, err
	}
	probe := parseXprop(string(props))

	if pid := xpropPID(string(props)); pid > 0 {
		if comm, err := os.ReadFile(filepath.Join(s.procRoot, strconv.Itoa(pid), "comm")); err == nil {
			probe.ApplicationName = strings.TrimSpace(string(comm))
		}
	}

	if geometry, err := s.run(ctx, "xdotool", "getwindowgeometry", "--shell", window); err == nil {
		probe.Bounds = parseGeometry(string(geometry))
	}
	return probe, nil
}

// parseXprop reads the WM_CLASS, _NET_WM_NAME and _NET_WM_STATE lines.
func parseXprop(output string) domain.FocusProbe {
	var probe domain.FocusProbe
	for _, line := range strings.Split(output, "\n") {
		name, value, ok := strings.Cut(line, " = ")
		if !ok {
			continue
		}
		switch {
		case strings.HasPrefix(name, "WM_CLASS"):
			parts := quotedValues(value)
			if len(parts) > 0 {
				probe.ApplicationName = parts[0]
			}
			if len(parts) > 1 {
				probe.WindowClass = parts[1]
			}
		case strings.HasPrefix(name, "_NET_WM_NAME"):
			if parts := quotedValues(value); len(parts) > 0 {
				probe.WindowTitle = parts[0]
			}
		case strings.HasPrefix(name, "_NET_WM_STATE"):
			probe.Fullscreen = strings.Contains(value, "_NET_WM_STATE_FULLSCREEN")
		}
	}
	return probe
}

func xpropPID(output string) int {
	for _, line := range strings.Split(output, "\n") {
		name, value, ok := strings.Cut(line, " = ")
		if ok && strings.HasPrefix(name, "_NET_WM_PID") {
			pid, err := strconv.Atoi(strings.TrimSpace(value))
			if err == nil {
				return pid
			}
		}
	}
	return 0
}

// quotedValues extracts the "..." items of an xprop string list.
func quotedValues(value string) []string {
	var out []string
	for {
		start := strings.IndexByte(value, '"')
		if start < 0 {
			return out
		}
		value = value[start+1:]
		end := strings.IndexByte(value, '"')
		if end < 0 {
			return out
		}
		out = append(out, value[:end])
		value = value[end+1:]
	}
}

func parseGeometry(output string) *domain.Rect {
	values := map[string]int{}
	for _, line := range strings.Split(output, "\n") {
		key, raw, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		if v, err := strconv.Atoi(raw); err == nil {
			values[key] = v
		}
	}
	width, hasW := values["WIDTH"]
	height, hasH := values["HEIGHT"]
	if !hasW || !hasH {
		return nil
	}
	return &domain.Rect{
		Left:   values["X"],
		Top:    values["Y"],
		Right:  values["X"] + width,
		Bottom: values["Y"] + height,
	}
}
