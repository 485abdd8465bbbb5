// Package guardrails screens chat questions before the reasoning loop runs.
//
// Checks:
//   - max_length: character and word limits
//   - content_filter: blocked word list
//   - regex_filter: blocked patterns
//   - prompt_injection: heuristic prompt injection detection
package guardrails

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/adaptation-atlas/atlas-assistant/internal/config"
)

// Check kinds.
const (
	KindMaxLength       = "max_length"
	KindContentFilter   = "content_filter"
	KindRegexFilter     = "regex_filter"
	KindPromptInjection = "prompt_injection"
)

// Result is the outcome of one check.
type Result struct {
	Kind    string `json:"kind"`
	Passed  bool   `json:"passed"`
	Message string `json:"message,omitempty"`
}

// Evaluation is the outcome of every check for one question.
type Evaluation struct {
	Passed  bool     `json:"passed"`
	Results []Result `json:"results"`
}

// Reason returns the message of the first failed check.
func (e *Evaluation) Reason() string {
	for _, r := range e.Results {
		if !r.Passed {
			return r.Message
		}
	}
	return ""
}

// Guard evaluates questions against the configured checks. It is immutable
// after New and safe for concurrent use.
type Guard struct {
	maxChars     int
	maxWords     int
	blockedWords []string
	patterns     []*regexp.Regexp
	sensitivity  string
}

// New compiles the configured checks. Invalid patterns are an error.
func New(cfg config.GuardrailConfig) (*Guard, error) {
	g := &Guard{
		maxChars:    cfg.MaxCharacters,
		maxWords:    cfg.MaxWords,
		sensitivity: cfg.PromptInjection,
	}
	for _, w := range cfg.BlockedWords {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			g.blockedWords = append(g.blockedWords, w)
		}
	}
	for _, p := range cfg.BlockPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("guardrail pattern %q: %w", p, err)
		}
		g.patterns = append(g.patterns, re)
	}
	if g.sensitivity == "" {
		g.sensitivity = "medium"
	}
	return g, nil
}

// Evaluate runs every check against text.
func (g *Guard) Evaluate(text string) *Evaluation {
	eval := &Evaluation{Passed: true, Results: make([]Result, 0, 4)}
	for _, r := range []Result{
		g.maxLength(text),
		g.contentFilter(text),
		g.regexFilter(text),
		g.promptInjection(text),
	} {
		eval.Results = append(eval.Results, r)
		if !r.Passed {
			eval.Passed = false
		}
	}
	return eval
}

// ── Max Length ───────────────────────────────────────────────

func (g *Guard) maxLength(text string) Result {
	if g.maxChars > 0 && utf8.RuneCountInString(text) > g.maxChars {
		return Result{Kind: KindMaxLength, Message: fmt.Sprintf("Question exceeds the limit of %d characters", g.maxChars)}
	}
	if g.maxWords > 0 && len(strings.Fields(text)) > g.maxWords {
		return Result{Kind: KindMaxLength, Message: fmt.Sprintf("Question exceeds the limit of %d words", g.maxWords)}
	}
	return Result{Kind: KindMaxLength, Passed: true}
}

// ── Content Filter ──────────────────────────────────────────

func (g *Guard) contentFilter(text string) Result {
	lower := strings.ToLower(text)
	for _, w := range g.blockedWords {
		if strings.Contains(lower, w) {
			return Result{Kind: KindContentFilter, Message: "Question contains blocked content"}
		}
	}
	return Result{Kind: KindContentFilter, Passed: true}
}

// ── Regex Filter ────────────────────────────────────────────

func (g *Guard) regexFilter(text string) Result {
	for _, re := range g.patterns {
		if re.MatchString(text) {
			return Result{Kind: KindRegexFilter, Message: "Question matched a blocked pattern"}
		}
	}
	return Result{Kind: KindRegexFilter, Passed: true}
}

// ── Prompt Injection Detection ──────────────────────────────

var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?|directions?)`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)`),
	regexp.MustCompile(`(?i)forget\s+(all\s+)?(previous|prior|above|your)\s+(instructions?|prompts?|rules?|context)`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an|my)\s+`),
	regexp.MustCompile(`(?i)new\s+instructions?:\s*`),
	regexp.MustCompile(`(?i)system\s*:\s*you\s+are`),
	regexp.MustCompile(`(?i)\bjailbreak\b`),
}

// Checked only at high sensitivity.
var highSensitivityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)reveal\s+(your|the)\s+(system\s+)?(prompt|instructions?)`),
	regexp.MustCompile(`(?i)what\s+(is|are)\s+your\s+(system\s+)?(prompt|instructions?|rules?)`),
	regexp.MustCompile(`(?i)repeat\s+(your|the)\s+(system\s+)?(prompt|instructions?)\s+verbatim`),
	regexp.MustCompile(`(?i)\b(drop|truncate|alter)\s+table\b`),
}

func (g *Guard) promptInjection(text string) Result {
	if g.sensitivity == "off" {
		return Result{Kind: KindPromptInjection, Passed: true}
	}
	for _, re := range injectionPatterns {
		if re.MatchString(text) {
			return Result{Kind: KindPromptInjection, Message: "Potential prompt injection detected"}
		}
	}
	if g.sensitivity == "high" {
		for _, re := range highSensitivityPatterns {
			if re.MatchString(text) {
				return Result{Kind: KindPromptInjection, Message: "Potential prompt injection detected (high sensitivity)"}
			}
		}
	}
	return Result{Kind: KindPromptInjection, Passed: true}
}
