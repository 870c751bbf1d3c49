package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/micmonay/keybd_event"
)

var ErrClipboardUnavailable = errors.New("clipboard did not accept the transcript")

// Clipboard is the system clipboard.
type Clipboard interface {
	ReadAll() (string, error)
	WriteAll(text string) error
}

type systemClipboard struct{}

func (systemClipboard) ReadAll() (string, error)   { return clipboard.ReadAll() }
func (systemClipboard) WriteAll(text string) error { return clipboard.WriteAll(text) }

// InserterConfig tunes PasteInserter.
type InserterConfig struct {
	Attempts         int
	RetryDelay       time.Duration
	RestoreClipboard bool
	RestoreDelay     time.Duration
}

// PasteInserter puts text on the clipboard and sends Ctrl+V to the focused
// window. When pasting fails the text stays on the clipboard for a manual paste.
type PasteInserter struct {
	clipboard Clipboard
	paste     func() error
	cfg       InserterConfig
	sleep     func(ctx context.Context, d time.Duration) bool
	logger    *slog.Logger
}

func NewPasteInserter(cfg InserterConfig, logger *slog.Logger) *PasteInserter {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 100 * time.Millisecond
	}
	if cfg.RestoreDelay <= 0 {
		cfg.RestoreDelay = 150 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	keys := &keyPaster{}
	return &PasteInserter{
		clipboard: systemClipboard{},
		paste:     keys.paste,
		cfg:       cfg,
		sleep:     sleepContext,
		logger:    logger.With("component", "inserter"),
	}
}

func (p *PasteInserter) InsertText(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	previous, readErr := p.clipboard.ReadAll()

	if err := p.writeVerified(ctx, text); err != nil {
		return err
	}
	if err := p.paste(); err != nil {
		return fmt.Errorf("send paste keystroke: %w", err)
	}

	if p.cfg.RestoreClipboard && readErr == nil && previous != text {
		if p.sleep(ctx, p.cfg.RestoreDelay) {
			if err := p.clipboard.WriteAll(previous); err != nil {
				p.logger.Debug("failed to restore clipboard", "error", err)
			}
		}
	}
	return nil
}

// writeVerified writes text and reads it back, retrying while another process
// holds the clipboard.
func (p *PasteInserter) writeVerified(ctx context.Context, text string) error {
	var lastErr error
	for attempt := 1; attempt <= p.cfg.Attempts; attempt++ {
		if attempt > 1 && !p.sleep(ctx, p.cfg.RetryDelay) {
			return ctx.Err()
		}
		if err := p.clipboard.WriteAll(text); err != nil {
			lastErr = err
			p.logger.Debug("clipboard write failed", "attempt", attempt, "error", err)
			continue
		}
		got, err := p.clipboard.ReadAll()
		if err == nil && got == text {
			return nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return fmt.Errorf("%w: %v", ErrClipboardUnavailable, lastErr)
	}
	return ErrClipboardUnavailable
}

// keyPaster creates its virtual keyboard on first use. On Linux the uinput
// device is ignored by the compositor for a moment after creation.
type keyPaster struct {
	once sync.Once
	kb   keybd_event.KeyBonding
	err  error
}

func (k *keyPaster) paste() error {
	k.once.Do(func() {
		k.kb, k.err = keybd_event.NewKeyBonding()
		if k.err == nil && runtime.GOOS == "linux" {
			time.Sleep(2 * time.Second)
		}
	})
	if k.err != nil {
		return k.err
	}
	k.kb.Clear()
	k.kb.HasCTRL(true)
	k.kb.SetKeys(keybd_event.VK_V)
	return k.kb.Launching()
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
