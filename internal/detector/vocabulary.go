package detector

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

//go:embed default_vocabulary.yaml
var defaultVocabularyYAML []byte

// AppTier awards Score when a window title contains one of Keywords.
type AppTier struct {
	Score    int      `yaml:"score"`
	Keywords []string `yaml:"keywords"`
}

// ChromeVocabulary names system chrome that can never accept dictation.
type ChromeVocabulary struct {
	Classes       []string `yaml:"classes"`
	ClassKeywords []string `yaml:"class_keywords"`
	TitleKeywords []string `yaml:"title_keywords"`
}

// GameVocabulary drives fullscreen game suppression.
type GameVocabulary struct {
	Classes         []string `yaml:"classes"`
	TitleKeywords   []string `yaml:"title_keywords"`
	DesktopKeywords []string `yaml:"desktop_keywords"`
}

// Vocabulary is the platform-dependent data used by the detector rules.
// TextClasses are window classes of applications whose main window is a text
// surface; they only count when the probe has no control type.
type Vocabulary struct {
	IBeamCursors []int64          `yaml:"ibeam_cursors"`
	TextControls []string         `yaml:"text_controls"`
	TextClasses  []string         `yaml:"text_window_classes"`
	AppTiers     []AppTier        `yaml:"app_tiers"`
	Chrome       ChromeVocabulary `yaml:"chrome"`
	Games        GameVocabulary   `yaml:"games"`
}

// DefaultVocabulary returns the built-in vocabulary.
func DefaultVocabulary() Vocabulary {
	vocab, err := ParseVocabulary(defaultVocabularyYAML)
	if err != nil {
		panic(fmt.Sprintf("detector: embedded vocabulary is invalid: %v", err))
	}
	return vocab
}

// LoadVocabulary reads a YAML vocabulary file. Sections missing from the file keep
// their built-in values; a missing file yields the defaults.
func LoadVocabulary(path string) (Vocabulary, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultVocabulary(), nil
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultVocabulary(), nil
		}
		return Vocabulary{}, fmt.Errorf("failed to read vocabulary file %q: %w", path, err)
	}

	override, err := ParseVocabulary(contents)
	if err != nil {
		return Vocabulary{}, fmt.Errorf("failed to parse vocabulary file %q: %w", path, err)
	}
	return mergeVocabulary(DefaultVocabulary(), override), nil
}

// ParseVocabulary decodes and normalizes YAML vocabulary data.
func ParseVocabulary(data []byte) (Vocabulary, error) {
	var vocab Vocabulary
	if err := yaml.Unmarshal(data, &vocab); err != nil {
		return Vocabulary{}, err
	}
	for _, tier := range vocab.AppTiers {
		if tier.Score <= 0 {
			return Vocabulary{}, fmt.Errorf("app tier score must be positive, got %d", tier.Score)
		}
	}
	return vocab.normalized(), nil
}

func mergeVocabulary(base, override Vocabulary) Vocabulary {
	if len(override.IBeamCursors) > 0 {
		base.IBeamCursors = override.IBeamCursors
	}
	if len(override.TextControls) > 0 {
		base.TextControls = override.TextControls
	}
	if len(override.TextClasses) > 0 {
		base.TextClasses = override.TextClasses
	}
	if len(override.AppTiers) > 0 {
		base.AppTiers = override.AppTiers
	}
	if !override.Chrome.empty() {
		base.Chrome = override.Chrome
	}
	if len(override.Games.Classes)+len(override.Games.TitleKeywords)+len(override.Games.DesktopKeywords) > 0 {
		base.Games = override.Games
	}
	return base
}

func (c ChromeVocabulary) empty() bool {
	return len(c.Classes)+len(c.ClassKeywords)+len(c.TitleKeywords) == 0
}

func (v Vocabulary) normalized() Vocabulary {
	v.IBeamCursors = lo.Uniq(v.IBeamCursors)
	v.TextControls = normalizeTerms(v.TextControls)
	v.TextClasses = normalizeTerms(v.TextClasses)
	for i := range v.AppTiers {
		v.AppTiers[i].Keywords = normalizeTerms(v.AppTiers[i].Keywords)
	}
	v.Chrome.Classes = normalizeTerms(v.Chrome.Classes)
	v.Chrome.ClassKeywords = normalizeTerms(v.Chrome.ClassKeywords)
	v.Chrome.TitleKeywords = normalizeTerms(v.Chrome.TitleKeywords)
	v.Games.Classes = normalizeTerms(v.Games.Classes)
	v.Games.TitleKeywords = normalizeTerms(v.Games.TitleKeywords)
	v.Games.DesktopKeywords = normalizeTerms(v.Games.DesktopKeywords)
	return v
}

func normalizeTerms(terms []string) []string {
	return lo.Uniq(lo.FilterMap(terms, func(term string, _ int) (string, bool) {
		folded := fold(term)
		return folded, folded != ""
	}))
}

// fold returns the caseless form of s. Casers are stateful, so one is built per call.
func fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

func containsAny(haystack string, needles []string) (string, bool) {
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			return needle, true
		}
	}
	return "", false
}
