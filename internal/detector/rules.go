package detector

import (
	"slices"
)

// Contribution is one rule's verdict on a probe.
type Contribution struct {
	Score  int
	Veto   bool
	Reason string
}

// Rule scores one aspect of a focus probe.
type Rule interface {
	Name() string
	Evaluate(s Signals) Contribution
}

// Signals is a probe with its text fields case-folded once.
type Signals struct {
	CursorID     int64
	ControlType  string
	WindowClass  string
	WindowTitle  string
	Multiline    bool
	Password     bool
	CaretVisible bool
	Fullscreen   bool
}

const (
	scoreCursor    = 50
	scoreControl   = 40
	scoreCaret     = 20
	scoreMultiline = 15
	scorePassword  = -100
)

// DefaultRules builds the standard rule chain. The chrome veto runs first.
func DefaultRules(vocab Vocabulary) []Rule {
	return []Rule{
		chromeVetoRule{chrome: vocab.Chrome},
		cursorRule{cursors: vocab.IBeamCursors},
		controlTypeRule{patterns: vocab.TextControls},
		windowClassRule{classes: vocab.TextClasses},
		appTierRule{tiers: vocab.AppTiers},
		caretRule{},
		multilineRule{},
		passwordRule{},
	}
}

type chromeVetoRule struct {
	chrome ChromeVocabulary
}

func (chromeVetoRule) Name() string { return "chrome" }

func (r chromeVetoRule) Evaluate(s Signals) Contribution {
	for _, class := range []string{s.ControlType, s.WindowClass} {
		if class == "" {
			continue
		}
		if slices.Contains(r.chrome.Classes, class) {
			return Contribution{Veto: true, Reason: "chrome class " + class}
		}
		if kw, ok := containsAny(class, r.chrome.ClassKeywords); ok {
			return Contribution{Veto: true, Reason: "chrome class keyword " + kw}
		}
	}
	if kw, ok := containsAny(s.WindowTitle, r.chrome.TitleKeywords); ok {
		return Contribution{Veto: true, Reason: "chrome title keyword " + kw}
	}
	return Contribution{}
}

type cursorRule struct {
	cursors []int64
}

func (cursorRule) Name() string { return "cursor" }

func (r cursorRule) Evaluate(s Signals) Contribution {
	if s.CursorID != 0 && slices.Contains(r.cursors, s.CursorID) {
		return Contribution{Score: scoreCursor, Reason: "ibeam cursor"}
	}
	return Contribution{}
}

type controlTypeRule struct {
	patterns []string
}

func (controlTypeRule) Name() string { return "control" }

func (r controlTypeRule) Evaluate(s Signals) Contribution {
	if s.ControlType == "" {
		return Contribution{}
	}
	if pattern, ok := containsAny(s.ControlType, r.patterns); ok {
		return Contribution{Score: scoreControl, Reason: "control " + pattern}
	}
	return Contribution{}
}

// windowClassRule covers window-level probes, which carry a window class but no
// focused control.
type windowClassRule struct {
	classes []string
}

func (windowClassRule) Name() string { return "class" }

func (r windowClassRule) Evaluate(s Signals) Contribution {
	if s.ControlType != "" || s.WindowClass == "" {
		return Contribution{}
	}
	if class, ok := containsAny(s.WindowClass, r.classes); ok {
		return Contribution{Score: scoreControl, Reason: "class " + class}
	}
	return Contribution{}
}

type appTierRule struct {
	tiers []AppTier
}

func (appTierRule) Name() string { return "app" }

func (r appTierRule) Evaluate(s Signals) Contribution {
	if s.WindowTitle == "" {
		return Contribution{}
	}
	for _, tier := range r.tiers {
		if kw, ok := containsAny(s.WindowTitle, tier.Keywords); ok {
			return Contribution{Score: tier.Score, Reason: "app " + kw}
		}
	}
	return Contribution{}
}

type caretRule struct{}

func (caretRule) Name() string { return "caret" }

func (caretRule) Evaluate(s Signals) Contribution {
	if s.CaretVisible {
		return Contribution{Score: scoreCaret, Reason: "caret"}
	}
	return Contribution{}
}

type multilineRule struct{}

func (multilineRule) Name() string { return "multiline" }

func (multilineRule) Evaluate(s Signals) Contribution {
	if s.Multiline {
		return Contribution{Score: scoreMultiline, Reason: "multiline"}
	}
	return Contribution{}
}

type passwordRule struct{}

func (passwordRule) Name() string { return "password" }

func (passwordRule) Evaluate(s Signals) Contribution {
	if s.Password {
		return Contribution{Score: scorePassword, Reason: "password"}
	}
	return Contribution{}
}
