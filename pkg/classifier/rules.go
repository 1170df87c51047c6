package classifier

import (
	"regexp"
	"strings"
	"unicode"

	"mercator-hq/relay/pkg/types"
)

// Rule is a keyword/regex heuristic mapping request text to a task type.
type Rule struct {
	ID       string
	Task     types.TaskType
	Keywords []string
	Regex    *regexp.Regexp

	// Confidence is reported for a single hit. Each additional distinct hit
	// adds hitBonus, capped at maxConfidence.
	Confidence float64
}

const (
	hitBonus      = 0.05
	maxConfidence = 0.99

	tagConfidence    = 0.95
	scriptConfidence = 0.80

	// scriptThreshold is the share of non-ASCII letters above which text is
	// treated as multilingual.
	scriptThreshold = 0.30
)

// hits counts distinct keyword matches plus one for a regex match.
func (r *Rule) hits(t *text) int {
	n := 0
	for _, kw := range r.Keywords {
		if t.contains(kw) {
			n++
		}
	}
	if r.Regex != nil && r.Regex.MatchString(t.raw) {
		n++
	}
	return n
}

// score returns the rule's confidence for t, or 0 if it does not match.
func (r *Rule) score(t *text) float64 {
	n := r.hits(t)
	if n == 0 {
		return 0
	}
	c := r.Confidence + float64(n-1)*hitBonus
	if c > maxConfidence {
		c = maxConfidence
	}
	return c
}

// text is a request payload prepared for matching.
type text struct {
	raw    string
	lower  string
	tokens map[string]bool
}

func newText(s string) *text {
	lower := strings.ToLower(s)
	tokens := make(map[string]bool)
	for _, tok := range strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		tokens[tok] = true
	}
	return &text{
		raw:    s,
		lower:  strings.Join(strings.Fields(lower), " "),
		tokens: tokens,
	}
}

// contains matches single-word keywords against whole tokens and anything
// else as a substring, so "code" does not match "decode".
func (t *text) contains(keyword string) bool {
	kw := strings.ToLower(keyword)
	for _, r := range kw {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return strings.Contains(t.lower, kw)
		}
	}
	return t.tokens[kw]
}

// nonASCIIShare returns the share of letters outside the ASCII range.
func (t *text) nonASCIIShare() float64 {
	var letters, foreign int
	for _, r := range t.raw {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if r > unicode.MaxASCII {
			foreign++
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(foreign) / float64(letters)
}

// tagTable maps declared request tags to task types.
var tagTable = map[string]types.TaskType{
	"code":         types.TaskCoding,
	"coding":       types.TaskCoding,
	"programming":  types.TaskCoding,
	"debug":        types.TaskCoding,
	"math":         types.TaskReasoning,
	"analysis":     types.TaskReasoning,
	"reasoning":    types.TaskReasoning,
	"logic":        types.TaskReasoning,
	"fast":         types.TaskSpeed,
	"realtime":     types.TaskSpeed,
	"low-latency":  types.TaskSpeed,
	"speed":        types.TaskSpeed,
	"translate":    types.TaskMultilingual,
	"translation":  types.TaskMultilingual,
	"i18n":         types.TaskMultilingual,
	"multilingual": types.TaskMultilingual,
	"general":      types.TaskGeneral,
	"chat":         types.TaskGeneral,
}

// defaultRules returns the built-in rule table. Order matters for ties.
func defaultRules() []*Rule {
	return []*Rule{
		{
			ID:   "coding",
			Task: types.TaskCoding,
			Keywords: []string{
				"code", "function", "bug", "debug", "compile", "compiler",
				"stack trace", "refactor", "python", "golang", "javascript",
				"typescript", "sql", "regex", "exception", "syntax", "unit test",
			},
			Regex:      regexp.MustCompile("```|\\bfunc\\s+\\w+\\(|\\bdef\\s+\\w+\\(|\\bclass\\s+\\w+[:({]"),
			Confidence: 0.60,
		},
		{
			ID:   "reasoning",
			Task: types.TaskReasoning,
			Keywords: []string{
				"prove", "proof", "why", "explain", "analyze", "analysis",
				"derive", "calculate", "step by step", "logic", "compare",
				"math", "equation", "theorem", "probability",
			},
			Regex:      regexp.MustCompile(`\d+\s*[-+*/^]\s*\d+`),
			Confidence: 0.55,
		},
		{
			ID:   "multilingual",
			Task: types.TaskMultilingual,
			Keywords: []string{
				"translate", "translation", "in spanish", "in french",
				"in german", "in japanese", "in chinese", "localize",
			},
			Confidence: 0.65,
		},
		{
			ID:   "speed",
			Task: types.TaskSpeed,
			Keywords: []string{
				"quick", "quickly", "brief", "briefly", "tl;dr", "tldr",
				"one word", "asap", "short answer",
			},
			Confidence: 0.55,
		},
	}
}
