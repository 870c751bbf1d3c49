package detector

import (
	"context"
	"log/slog"

	"voiceclick/internal/domain"
	"voiceclick/internal/ports"
)

// FullscreenGuard reports whether the foreground window looks like an exclusive
// fullscreen game.
type FullscreenGuard struct {
	source ports.FocusSource
	games  GameVocabulary
	logger *slog.Logger
}

func NewFullscreenGuard(source ports.FocusSource, vocab Vocabulary, logger *slog.Logger) *FullscreenGuard {
	if logger == nil {
		logger = slog.Default()
	}
	return &FullscreenGuard{source: source, games: vocab.Games, logger: logger}
}

// IsFullscreenExclusive probes focus and applies IsGameWindow. Probe failures answer false.
func (g *FullscreenGuard) IsFullscreenExclusive(ctx context.Context) bool {
	probe, err := g.source.ProbeFocus(ctx)
	if err != nil {
		g.logger.Debug("fullscreen probe failed", "error", err)
		return false
	}
	return g.IsGameWindow(probe)
}

// IsGameWindow matches game engine window classes outright. Fullscreen windows match
// on game title keywords, or when the title names no known desktop application.
func (g *FullscreenGuard) IsGameWindow(probe domain.FocusProbe) bool {
	class := fold(probe.WindowClass)
	if class != "" {
		if _, ok := containsAny(class, g.games.Classes); ok {
			return true
		}
	}
	if !probe.Fullscreen {
		return false
	}

	title := fold(probe.WindowTitle)
	if _, ok := containsAny(title, g.games.TitleKeywords); ok {
		return true
	}
	_, desktop := containsAny(title, g.games.DesktopKeywords)
	return !desktop
}
