package detector

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"voiceclick/internal/domain"
)

func TestClassifyCursorAndControlReachThreshold(t *testing.T) {
	t.Parallel()

	d := New(DefaultVocabulary(), nil)
	info := d.Classify(domain.FocusProbe{CursorID: 65541, ControlType: "Edit"})

	if info.Score != 90 {
		t.Fatalf("expected score 90, got %d (%v)", info.Score, info.Reasons)
	}
	if !info.IsTextField {
		t.Fatalf("expected text field")
	}
	if info.IsPasswordField {
		t.Fatalf("unexpected password flag")
	}
}

func TestClassifyPasswordPenaltyDropsBelowThreshold(t *testing.T) {
	t.Parallel()

	d := New(DefaultVocabulary(), nil)
	probe := domain.FocusProbe{
		CursorID:     65541,
		ControlType:  "Edit",
		CaretVisible: true,
		Password:     true,
	}
	info := d.Classify(probe)

	if info.Score != 10 {
		t.Fatalf("expected score 10, got %d", info.Score)
	}
	if info.IsTextField {
		t.Fatalf("password field must not classify as text field")
	}
	if !info.IsPasswordField {
		t.Fatalf("expected password flag from probe")
	}
}

func TestClassifyPasswordFlagIndependentOfScore(t *testing.T) {
	t.Parallel()

	d := New(DefaultVocabulary(), nil)
	probe := domain.FocusProbe{
		CursorID:     65541,
		ControlType:  "RichEdit20W",
		WindowTitle:  "notes.txt - Visual Studio Code",
		CaretVisible: true,
		Multiline:    true,
		Password:     true,
	}
	info := d.Classify(probe)

	// 50 + 40 + 35 + 20 + 15 - 100
	if info.Score != 60 {
		t.Fatalf("expected score 60, got %d", info.Score)
	}
	if !info.IsTextField || !info.IsPasswordField {
		t.Fatalf("expected text+password classification, got %+v", info)
	}
}

func TestClassifyChromeVetoShortCircuits(t *testing.T) {
	t.Parallel()

	d := New(DefaultVocabulary(), nil)
	cases := []domain.FocusProbe{
		{CursorID: 65541, ControlType: "Shell_TrayWnd", CaretVisible: true},
		{CursorID: 65541, ControlType: "Edit", WindowClass: "SystemTray_Main"},
		{CursorID: 65541, ControlType: "Edit", WindowTitle: "Taskbar"},
	}
	for _, probe := range cases {
		info := d.Classify(probe)
		if info.IsTextField || info.Score != 0 {
			t.Fatalf("expected veto for %+v, got %+v", probe, info)
		}
	}
}

func TestClassifyAppTierFirstMatchOnly(t *testing.T) {
	t.Parallel()

	d := New(DefaultVocabulary(), nil)
	info := d.Classify(domain.FocusProbe{WindowTitle: "Slack | general - Chrome"})
	if info.Score != 30 {
		t.Fatalf("expected single tier score 30, got %d", info.Score)
	}
}

func TestClassifyWindowLevelProbes(t *testing.T) {
	t.Parallel()

	d := New(DefaultVocabulary(), nil)
	cases := []struct {
		name  string
		probe domain.FocusProbe
		score int
		text  bool
	}{
		{
			name:  "vscode",
			probe: domain.FocusProbe{ApplicationName: "code", WindowClass: "Code", WindowTitle: "main.go - module - Visual Studio Code"},
			score: 75,
			text:  true,
		},
		{
			name:  "gedit",
			probe: domain.FocusProbe{ApplicationName: "gedit", WindowClass: "Gedit", WindowTitle: "notes.txt (~/Documents) - gedit"},
			score: 75,
			text:  true,
		},
		{
			name:  "firefox",
			probe: domain.FocusProbe{ApplicationName: "firefox", WindowClass: "firefox", WindowTitle: "Inbox - Mozilla Firefox"},
			score: 65,
			text:  true,
		},
		{
			name:  "class without title evidence",
			probe: domain.FocusProbe{WindowClass: "Gedit", WindowTitle: "Preferences"},
			score: 40,
			text:  false,
		},
		{
			name:  "control type wins over class",
			probe: domain.FocusProbe{ControlType: "Label", WindowClass: "Gedit", WindowTitle: "notes.txt - gedit"},
			score: 35,
			text:  false,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			info := d.Classify(tc.probe)
			if info.Score != tc.score || info.IsTextField != tc.text {
				t.Fatalf("expected score %d text %v, got %d %v (%v)", tc.score, tc.text, info.Score, info.IsTextField, info.Reasons)
			}
		})
	}
}

func TestClassifyFromProbeFailureIsConservative(t *testing.T) {
	t.Parallel()

	d := New(DefaultVocabulary(), nil)
	info := d.ClassifyFrom(context.Background(), fakeSource{err: errors.New("no display")})
	if info.IsTextField || info.IsPasswordField {
		t.Fatalf("expected conservative classification, got %+v", info)
	}
}

func TestCustomRuleChain(t *testing.T) {
	t.Parallel()

	d := NewWithRules([]Rule{fixedRule{score: 70}}, nil)
	if info := d.Classify(domain.FocusProbe{}); !info.IsTextField {
		t.Fatalf("expected custom rule to classify as text field")
	}
}

func TestLoadVocabularyOverridesSections(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "vocab.yaml")
	contents := "ibeam_cursors: [42]\ntext_controls: [\"  GtkEntry \"]\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	vocab, err := LoadVocabulary(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(vocab.IBeamCursors) != 1 || vocab.IBeamCursors[0] != 42 {
		t.Fatalf("unexpected cursors: %v", vocab.IBeamCursors)
	}
	if len(vocab.TextControls) != 1 || vocab.TextControls[0] != "gtkentry" {
		t.Fatalf("expected folded control pattern, got %v", vocab.TextControls)
	}
	if len(vocab.AppTiers) == 0 {
		t.Fatalf("expected default app tiers to survive override")
	}

	d := New(vocab, nil)
	if info := d.Classify(domain.FocusProbe{CursorID: 42, ControlType: "GtkEntry"}); !info.IsTextField {
		t.Fatalf("expected override vocabulary to apply, got %+v", info)
	}
}

func TestLoadVocabularyMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()

	vocab, err := LoadVocabulary(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vocab.IBeamCursors) != 4 {
		t.Fatalf("expected default cursors, got %v", vocab.IBeamCursors)
	}
}

func TestParseVocabularyRejectsNonPositiveTier(t *testing.T) {
	t.Parallel()

	_, err := ParseVocabulary([]byte("app_tiers:\n  - score: 0\n    keywords: [x]\n"))
	if err == nil {
		t.Fatalf("expected invalid tier error")
	}
}

type fakeSource struct {
	probe domain.FocusProbe
	err   error
}

func (f fakeSource) ProbeFocus(_ context.Context) (domain.FocusProbe, error) {
	return f.probe, f.err
}

type fixedRule struct {
	score int
}

func (fixedRule) Name() string { return "fixed" }

func (r fixedRule) Evaluate(_ Signals) Contribution {
	return Contribution{Score: r.score, Reason: "fixed"}
}
