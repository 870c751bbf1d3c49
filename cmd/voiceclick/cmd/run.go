package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"voiceclick/internal/bootstrap"
	"voiceclick/internal/config"
	"voiceclick/internal/domain"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run dictation headless until interrupted",
	RunE:  runHeadless,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runHeadless(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		printError("config", err)
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		printError("logging", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := bootstrap.BuildWithConfig(ctx, cfg, logSink{logger: logger}, bootstrap.Overrides{Logger: logger})
	if err != nil {
		printError("startup", err)
		return err
	}
	services.Start(ctx)
	logger.Info("voiceclick ready", "provider", cfg.Engine.Provider, "config", cfg.File)

	<-ctx.Done()
	logger.Info("shutting down")
	if err := services.Shutdown(config.Millis(cfg.Session.ShutdownTimeoutMS)); err != nil {
		logger.Warn("shutdown incomplete", "error", err)
	}
	return nil
}

// logSink reports session events to the log when no window is attached.
type logSink struct {
	logger *slog.Logger
}

func (s logSink) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	s.logger.Info("session", "state", state, "reason", reason)
}

func (s logSink) SessionError(code domain.ErrorCode, detail string) {
	s.logger.Error("session error", "code", code, "detail", detail)
}

func (s logSink) OnVolumeChange(int) {}

func (s logSink) OnStatusChange(message string) {
	s.logger.Debug("status", "message", message)
}

func (s logSink) OnTranscriptionProgress(message string) {
	s.logger.Debug("transcription progress", "message", message)
}

func (s logSink) OnTranscriptionComplete(text string) {
	s.logger.Info("transcription complete", "chars", len(text))
}

func (s logSink) OnTranscriptionFailed(reason string) {
	s.logger.Warn("transcription failed", "reason", reason)
}
