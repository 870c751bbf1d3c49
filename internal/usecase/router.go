package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/samber/lo"

	"voiceclick/internal/domain"
	"voiceclick/internal/ports"
)

// SessionStarter is the part of SessionController the router drives.
type SessionStarter interface {
	Start(ctx context.Context, event domain.ActivationEvent) error
	Status() domain.Status
}

// RouterConfig holds the auto-start policy.
type RouterConfig struct {
	AutoStartOnFocus      bool
	AutoStartOnClick      bool
	IgnorePasswordFields  bool
	IgnoreFullscreenGames bool
	// Whitelist, when non-empty, limits auto-start to matching applications.
	Whitelist []string
	Blacklist []string
}

// ActivationRouter turns watcher activations into session starts, applying the
// user's auto-start policy.
type ActivationRouter struct {
	ctx        context.Context
	sessions   SessionStarter
	fullscreen ports.FullscreenDetector
	cfg        RouterConfig
	logger     *slog.Logger
}

func NewActivationRouter(ctx context.Context, sessions SessionStarter, fullscreen ports.FullscreenDetector, cfg RouterConfig, logger *slog.Logger) *ActivationRouter {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Whitelist = normalizeApps(cfg.Whitelist)
	cfg.Blacklist = normalizeApps(cfg.Blacklist)
	return &ActivationRouter{
		ctx:        ctx,
		sessions:   sessions,
		fullscreen: fullscreen,
		cfg:        cfg,
		logger:     logger.With("component", "router"),
	}
}

// Handle is registered as a watcher callback.
func (r *ActivationRouter) Handle(event domain.ActivationEvent) {
	r.Route(r.ctx, event)
}

// Route starts a session for event unless policy suppresses it. It reports
// whether a session was started.
func (r *ActivationRouter) Route(ctx context.Context, event domain.ActivationEvent) bool {
	if reason := r.suppressed(ctx, event); reason != "" {
		r.logger.Debug("activation suppressed", "source", event.Source, "reason", reason, "app", event.Field.ApplicationName)
		return false
	}
	if err := r.sessions.Start(ctx, event); err != nil {
		if !errors.Is(err, ErrSessionActive) {
			r.logger.Warn("auto-start failed", "source", event.Source, "error", err)
		}
		return false
	}
	return true
}

func (r *ActivationRouter) suppressed(ctx context.Context, event domain.ActivationEvent) string {
	switch event.Source {
	case domain.ActivationFocus:
		if !r.cfg.AutoStartOnFocus {
			return "focus auto-start disabled"
		}
	case domain.ActivationClick:
		if !r.cfg.AutoStartOnClick {
			return "click auto-start disabled"
		}
	}
	if r.sessions.Status().Active {
		return "session active"
	}
	if r.cfg.IgnorePasswordFields && event.Field.IsPasswordField {
		return "password field"
	}
	app := strings.ToLower(event.Field.ApplicationName)
	if matchesApp(r.cfg.Blacklist, app) {
		return "application blacklisted"
	}
	if len(r.cfg.Whitelist) > 0 && !matchesApp(r.cfg.Whitelist, app) {
		return "application not whitelisted"
	}
	if r.cfg.IgnoreFullscreenGames && r.fullscreen != nil && r.fullscreen.IsFullscreenExclusive(ctx) {
		return "fullscreen application"
	}
	return ""
}

func normalizeApps(apps []string) []string {
	return lo.Uniq(lo.FilterMap(apps, func(app string, _ int) (string, bool) {
		app = strings.ToLower(strings.TrimSpace(app))
		return app, app != ""
	}))
}

func matchesApp(list []string, app string) bool {
	if app == "" {
		return false
	}
	return lo.ContainsBy(list, func(entry string) bool {
		return strings.Contains(app, entry)
	})
}
