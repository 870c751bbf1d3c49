package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"voiceclick/internal/domain"
	"voiceclick/internal/ports"
)

type transcriptFinalizer struct {
	rules    ports.RulesEngine
	inserter ports.TextInserter
	focus    ports.FocusSource
	history  ports.HistoryStore
	events   ports.EventSink
	clock    ports.Clock
	logger   *slog.Logger
}

func newTranscriptFinalizer(deps Dependencies, logger *slog.Logger) transcriptFinalizer {
	return transcriptFinalizer{
		rules:    deps.Rules,
		inserter: deps.Inserter,
		focus:    deps.Focus,
		history:  deps.History,
		events:   deps.Events,
		clock:    deps.Clock,
		logger:   logger,
	}
}

// Transform applies the substitution rules. A rules failure is reported and the
// raw transcript is used instead.
func (f transcriptFinalizer) Transform(raw string) string {
	if f.rules == nil {
		return raw
	}
	transformed, err := f.rules.Apply(raw)
	if err != nil {
		f.logger.Warn("rules failed, using raw transcript", "error", err)
		f.events.SessionError(domain.ErrorCodeRules, err.Error())
		return raw
	}
	return transformed
}

// Deliver inserts text into the focused control and saves history. Every step
// is best effort.
func (f transcriptFinalizer) Deliver(ctx context.Context, session *recordingSession, raw, text string, duration time.Duration) (domain.StopResult, domain.SessionStateReason) {
	result := domain.StopResult{RawTranscript: raw, FinalTranscript: text}
	reason := domain.SessionReasonTextInserted

	result.FocusChanged = f.focusMoved(ctx, session.origin)
	if result.FocusChanged {
		f.events.OnTranscriptionProgress("Focus changed, inserting into the current field")
	}

	if err := f.inserter.InsertText(ctx, text); err != nil {
		f.logger.Warn("text insertion failed", "error", err)
		f.events.SessionError(domain.ErrorCodeInsert, "transcript ready but could not be inserted")
		reason = domain.SessionReasonInsertFailed
	} else {
		result.Inserted = true
	}

	if f.history != nil {
		record := domain.HistoryRecord{
			RawText:         raw,
			Text:            text,
			CreatedAt:       f.clock.Now(),
			DurationSeconds: duration.Seconds(),
			AverageVolume:   session.averageRMS(),
			WordCount:       len(strings.Fields(text)),
			Application:     session.origin.ApplicationName,
			WindowTitle:     session.origin.WindowTitle,
			Inserted:        result.Inserted,
		}
		if err := f.history.Add(ctx, record); err != nil {
			f.logger.Warn("failed to save history", "error", err)
			f.events.SessionError(domain.ErrorCodeHistory, err.Error())
		}
	}

	return result, reason
}

// focusMoved compares the current focus with the control recorded at start.
// Sessions without an origin, or a failed probe, count as unchanged.
func (f transcriptFinalizer) focusMoved(ctx context.Context, origin domain.TextFieldInfo) bool {
	if f.focus == nil || (origin.ApplicationName == "" && origin.WindowTitle == "") {
		return false
	}
	probe, err := f.focus.ProbeFocus(ctx)
	if err != nil {
		f.logger.Debug("focus validation probe failed", "error", err)
		return false
	}
	if probe.ApplicationName != origin.ApplicationName || probe.WindowTitle != origin.WindowTitle {
		f.logger.Info("focus moved since recording started",
			"from", origin.ApplicationName, "to", probe.ApplicationName)
		return true
	}
	return false
}
