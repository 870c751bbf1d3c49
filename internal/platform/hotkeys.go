package platform

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"

	"golang.design/x/hotkey"
)

// HotkeyBinding pairs a combo such as "ctrl+shift+v" with its action.
type HotkeyBinding struct {
	Name   string
	Combo  string
	Action func()
}

// Hotkeys registers global shortcuts for the lifetime of a context.
type Hotkeys struct {
	bindings []HotkeyBinding
	logger   *slog.Logger
}

func NewHotkeys(bindings []HotkeyBinding, logger *slog.Logger) *Hotkeys {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hotkeys{bindings: bindings, logger: logger.With("component", "hotkeys")}
}

// Start registers every binding and unregisters them when ctx ends. Hotkeys
// are skipped on macOS, where registering off the main thread crashes.
func (h *Hotkeys) Start(ctx context.Context) error {
	if runtime.GOOS == "darwin" {
		h.logger.Info("global hotkeys disabled on macOS")
		return nil
	}
	for _, binding := range h.bindings {
		if strings.TrimSpace(binding.Combo) == "" || binding.Action == nil {
			continue
		}
		mods, key, err := parseCombo(binding.Combo)
		if err != nil {
			return fmt.Errorf("hotkey %s: %w", binding.Name, err)
		}
		hk := hotkey.New(mods, key)
		if err := hk.Register(); err != nil {
			return fmt.Errorf("failed to register hotkey %s (%s): %w", binding.Name, binding.Combo, err)
		}
		h.logger.Info("hotkey registered", "name", binding.Name, "combo", binding.Combo)
		go h.listen(ctx, hk, binding)
	}
	return nil
}

func (h *Hotkeys) listen(ctx context.Context, hk *hotkey.Hotkey, binding HotkeyBinding) {
	defer func() {
		if err := hk.Unregister(); err != nil {
			h.logger.Debug("hotkey unregister failed", "name", binding.Name, "error", err)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-hk.Keydown():
			if !ok {
				return
			}
			h.logger.Debug("hotkey pressed", "name", binding.Name)
			binding.Action()
		}
	}
}

var comboKeys = map[string]hotkey.Key{
	"a": hotkey.KeyA, "b": hotkey.KeyB, "c": hotkey.KeyC, "d": hotkey.KeyD,
	"e": hotkey.KeyE, "f": hotkey.KeyF, "g": hotkey.KeyG, "h": hotkey.KeyH,
	"i": hotkey.KeyI, "j": hotkey.KeyJ, "k": hotkey.KeyK, "l": hotkey.KeyL,
	"m": hotkey.KeyM, "n": hotkey.KeyN, "o": hotkey.KeyO, "p": hotkey.KeyP,
	"q": hotkey.KeyQ, "r": hotkey.KeyR, "s": hotkey.KeyS, "t": hotkey.KeyT,
	"u": hotkey.KeyU, "v": hotkey.KeyV, "w": hotkey.KeyW, "x": hotkey.KeyX,
	"y": hotkey.KeyY, "z": hotkey.KeyZ,
	"0": hotkey.Key0, "1": hotkey.Key1, "2": hotkey.Key2, "3": hotkey.Key3,
	"4": hotkey.Key4, "5": hotkey.Key5, "6": hotkey.Key6, "7": hotkey.Key7,
	"8": hotkey.Key8, "9": hotkey.Key9,
	"space": hotkey.KeySpace,
}

// parseCombo accepts ctrl and shift modifiers plus one letter, digit or space.
func parseCombo(combo string) ([]hotkey.Modifier, hotkey.Key, error) {
	var (
		mods []hotkey.Modifier
		key  hotkey.Key
		seen bool
	)
	for _, part := range strings.Split(strings.ToLower(combo), "+") {
		part = strings.TrimSpace(part)
		switch part {
		case "ctrl", "control":
			mods = append(mods, hotkey.ModCtrl)
		case "shift":
			mods = append(mods, hotkey.ModShift)
		default:
			k, ok := comboKeys[part]
			if !ok {
				return nil, 0, fmt.Errorf("unsupported key %q in %q", part, combo)
			}
			if seen {
				return nil, 0, fmt.Errorf("combo %q names more than one key", combo)
			}
			key, seen = k, true
		}
	}
	if !seen {
		return nil, 0, fmt.Errorf("combo %q has no key", combo)
	}
	return mods, key, nil
}
