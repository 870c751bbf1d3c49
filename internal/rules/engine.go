package rules

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrNotConverged is returned when rules keep rewriting each other past the
// loop limit.
var ErrNotConverged = errors.New("substitution rules did not converge")

// spokenPunctuation is parsed with the user rule syntax and runs before user rules.
const spokenPunctuation = `
new paragraph => \n\n
new line => \n
question mark => ?
exclamation mark => !
exclamation point => !
full stop => .
period => .
comma => ,
colon => :
semicolon => ;
`

var (
	spaceBeforePunct = regexp.MustCompile(`[ \t]+([,.?!:;])`)
	spaceAroundBreak = regexp.MustCompile(`[ \t]*\n[ \t]*`)
	sentenceStart    = regexp.MustCompile(`([.?!]\s+|\n)(\p{Ll})`)
)

// Options tune the transcript post-processing pipeline.
type Options struct {
	LoopLimit         int
	SpokenPunctuation bool
	Capitalize        bool
}

// Rule is one compiled substitution.
type Rule struct {
	Line        int
	Source      string
	re          *regexp.Regexp
	replacement string
	firstOnly   bool
}

func (r Rule) apply(input string) (string, bool) {
	if !r.firstOnly {
		output := r.re.ReplaceAllString(input, r.replacement)
		return output, output != input
	}
	loc := r.re.FindStringSubmatchIndex(input)
	if loc == nil {
		return input, false
	}
	var expanded []byte
	expanded = r.re.ExpandString(expanded, r.replacement, input, loc)
	output := input[:loc[0]] + string(expanded) + input[loc[1]:]
	return output, output != input
}

// Engine rewrites transcripts with deterministic substitutions.
type Engine struct {
	rules []Rule
	opts  Options
}

// Load reads user rules from path. A blank path or missing file yields an
// engine with only the built-in steps.
func Load(path string, opts Options) (*Engine, error) {
	if strings.TrimSpace(path) == "" {
		return Parse("", opts)
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Parse("", opts)
		}
		return nil, fmt.Errorf("failed to read rules file %q: %w", path, err)
	}
	engine, err := Parse(string(contents), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rules file %q: %w", path, err)
	}
	return engine, nil
}

// Parse compiles rules from contents. Each non-comment line is either
// "spoken => written" or a sed-style "s/pattern/replacement/flags".
func Parse(contents string, opts Options) (*Engine, error) {
	if opts.LoopLimit <= 0 {
		opts.LoopLimit = 30
	}
	var compiled []Rule
	if opts.SpokenPunctuation {
		builtin, err := parseLines(spokenPunctuation)
		if err != nil {
			return nil, fmt.Errorf("built-in rules: %w", err)
		}
		compiled = append(compiled, builtin...)
	}
	user, err := parseLines(contents)
	if err != nil {
		return nil, err
	}
	return &Engine{rules: append(compiled, user...), opts: opts}, nil
}

// Len returns the number of compiled rules.
func (e *Engine) Len() int {
	return len(e.rules)
}

// Apply runs every rule until the text stops changing, then tidies spacing and
// capitalization.
func (e *Engine) Apply(text string) (string, error) {
	result := text
	converged := len(e.rules) == 0
	for i := 0; i < e.opts.LoopLimit && !converged; i++ {
		changed := false
		for _, rule := range e.rules {
			if next, ok := rule.apply(result); ok {
				result = next
				changed = true
			}
		}
		converged = !changed
	}
	if !converged {
		return result, ErrNotConverged
	}

	result = spaceBeforePunct.ReplaceAllString(result, "$1")
	result = spaceAroundBreak.ReplaceAllString(result, "\n")
	result = strings.TrimSpace(result)
	if e.opts.Capitalize {
		result = capitalize(result)
	}
	return result, nil
}

func parseLines(contents string) ([]Rule, error) {
	var out []Rule
	for index, raw := range strings.Split(contents, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var (
			rule Rule
			err  error
		)
		switch {
		case isSedRule(line):
			rule, err = parseSed(line)
		case strings.Contains(line, "=>"):
			rule, err = parseSpoken(line)
		default:
			err = errors.New("unsupported rule format")
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", index+1, err)
		}
		rule.Line = index + 1
		rule.Source = line
		out = append(out, rule)
	}
	return out, nil
}

var escapes = strings.NewReplacer(`\n`, "\n", `\t`, "\t", `$`, "$$")

// parseSpoken compiles a caseless phrase match. Word boundaries are added on
// the sides of the phrase that start or end with a letter or digit.
func parseSpoken(line string) (Rule, error) {
	from, to, _ := strings.Cut(line, "=>")
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)
	if from == "" {
		return Rule{}, errors.New("spoken phrase cannot be empty")
	}

	pattern := regexp.QuoteMeta(from)
	if first, _ := utf8.DecodeRuneInString(from); isWordRune(first) {
		pattern = `\b` + pattern
	}
	if last, _ := utf8.DecodeLastRuneInString(from); isWordRune(last) {
		pattern += `\b`
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return Rule{}, fmt.Errorf("invalid phrase: %w", err)
	}
	return Rule{re: re, replacement: escapes.Replace(to)}, nil
}

// parseSed compiles "s<d>pattern<d>replacement<d>flags". Matching is caseless
// by default; "g" replaces every match, "m" and "s" map to regexp flags.
func parseSed(line string) (Rule, error) {
	delim := line[1]
	pattern, rest, err := splitDelimited(line[2:], delim)
	if err != nil {
		return Rule{}, fmt.Errorf("invalid pattern: %w", err)
	}
	replacement, flags, err := splitDelimited(rest, delim)
	if err != nil {
		return Rule{}, fmt.Errorf("invalid replacement: %w", err)
	}

	prefix := "i"
	global := false
	for _, flag := range strings.TrimSpace(flags) {
		switch flag {
		case 'i':
		case 'g':
			global = true
		case 'm', 's':
			prefix += string(flag)
		default:
			return Rule{}, fmt.Errorf("unsupported flag %q", flag)
		}
	}

	re, err := regexp.Compile("(?" + prefix + ")" + pattern)
	if err != nil {
		return Rule{}, fmt.Errorf("invalid regex: %w", err)
	}
	return Rule{re: re, replacement: replacement, firstOnly: !global}, nil
}

// splitDelimited returns the text up to the first unescaped delim and the
// remainder after it. A backslash before delim is dropped, other escapes are kept.
func splitDelimited(s string, delim byte) (string, string, error) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '\\' && i+1 < len(s) && s[i+1] == delim:
			b.WriteByte(delim)
			i++
		case s[i] == delim:
			return b.String(), s[i+1:], nil
		default:
			b.WriteByte(s[i])
		}
	}
	return "", "", errors.New("unterminated expression")
}

func isSedRule(line string) bool {
	if len(line) < 2 || line[0] != 's' {
		return false
	}
	r := rune(line[1])
	return !isWordRune(r) && !unicode.IsSpace(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func capitalize(text string) string {
	if text == "" {
		return text
	}
	first, size := utf8.DecodeRuneInString(text)
	text = string(unicode.ToUpper(first)) + text[size:]
	return sentenceStart.ReplaceAllStringFunc(text, func(match string) string {
		last, size := utf8.DecodeLastRuneInString(match)
		return match[:len(match)-size] + string(unicode.ToUpper(last))
	})
}
