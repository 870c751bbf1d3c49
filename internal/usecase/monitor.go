package usecase

import (
	"context"
	"time"

	"voiceclick/internal/audio"
	"voiceclick/internal/domain"
)

func (c *SessionController) onBlock(session *recordingSession, rms float64) {
	session.track(c.clock.Now(), rms, c.cfg.VolumeThreshold)
	c.events.OnVolumeChange(audio.VolumeLevel(rms))
}

func (c *SessionController) monitor(ctx context.Context, session *recordingSession) {
	ticker := time.NewTicker(c.cfg.MonitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.checkAutoStop(session) {
				return
			}
		}
	}
}

// checkAutoStop stops session when it has run too long or has been silent past
// the limit. It reports whether monitoring should end.
func (c *SessionController) checkAutoStop(session *recordingSession) bool {
	c.mu.Lock()
	active := c.current == session && c.state == domain.SessionStateRecording
	c.mu.Unlock()
	if !active {
		return true
	}

	now := c.clock.Now()
	if now.Sub(session.startedAt) >= c.cfg.MaxDuration {
		c.logger.Info("maximum recording time reached", "limit", c.cfg.MaxDuration)
		_ = c.stopSession(session, domain.SessionReasonMaxDuration)
		return true
	}
	if c.cfg.SilenceAutoStop && session.silentFor(now) > c.cfg.SilenceDuration {
		c.logger.Info("silence detected, stopping", "silence", c.cfg.SilenceDuration)
		_ = c.stopSession(session, domain.SessionReasonSilence)
		return true
	}
	return false
}
