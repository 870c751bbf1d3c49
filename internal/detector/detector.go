package detector

import (
	"context"
	"log/slog"

	"voiceclick/internal/domain"
	"voiceclick/internal/ports"
)

// Threshold is the minimum total score for a text field.
const Threshold = 60

// Detector classifies focus probes with an additive rule chain.
type Detector struct {
	rules  []Rule
	logger *slog.Logger
}

// New builds a detector over the default rule chain for vocab.
func New(vocab Vocabulary, logger *slog.Logger) *Detector {
	return NewWithRules(DefaultRules(vocab), logger)
}

// NewWithRules allows custom rule chains without detector changes.
func NewWithRules(rules []Rule, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{rules: rules, logger: logger}
}

// Classify scores probe. It never blocks and has no side effects.
func (d *Detector) Classify(probe domain.FocusProbe) domain.TextFieldInfo {
	info := domain.TextFieldInfo{
		IsPasswordField: probe.Password,
		ApplicationName: probe.ApplicationName,
		WindowTitle:     probe.WindowTitle,
		ControlType:     probe.ControlType,
		Bounds:          probe.Bounds,
	}

	signals := signalsOf(probe)
	for _, rule := range d.rules {
		c := rule.Evaluate(signals)
		if c.Veto {
			info.Score = 0
			info.Reasons = []string{"veto: " + c.Reason}
			return info
		}
		if c.Score == 0 {
			continue
		}
		info.Score += c.Score
		info.Reasons = append(info.Reasons, c.Reason)
	}

	info.IsTextField = info.Score >= Threshold
	return info
}

// ClassifyFrom probes src and classifies the result. A failed probe yields a
// non-text-field classification.
func (d *Detector) ClassifyFrom(ctx context.Context, src ports.FocusSource) domain.TextFieldInfo {
	probe, err := src.ProbeFocus(ctx)
	if err != nil {
		d.logger.Debug("focus probe failed", "error", err)
		return domain.TextFieldInfo{Reasons: []string{"probe failed"}}
	}
	return d.Classify(probe)
}

func signalsOf(probe domain.FocusProbe) Signals {
	return Signals{
		CursorID:     probe.CursorID,
		ControlType:  fold(probe.ControlType),
		WindowClass:  fold(probe.WindowClass),
		WindowTitle:  fold(probe.WindowTitle),
		Multiline:    probe.Multiline,
		Password:     probe.Password,
		CaretVisible: probe.CaretVisible,
		Fullscreen:   probe.Fullscreen,
	}
}
