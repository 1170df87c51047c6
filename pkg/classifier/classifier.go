// Package classifier maps an inbound request to a task category with a
// confidence score.
//
// Classification is pure and deterministic: the same input always yields
// the same result, and nothing is read from or written to the outside world.
// An ambiguous request is not an error; it is reported as a low-confidence
// "general" classification and routing proceeds normally.
//
// Evaluation order:
//  1. Declared task hint naming a known category (confidence 1.0)
//  2. Declared tags from the tag table (confidence 0.95)
//  3. Keyword and regex rules, configured rules first
//  4. Script heuristic for mostly non-ASCII text
//  5. Fallback to "general" when nothing clears the confidence floor
package classifier

import (
	"fmt"
	"regexp"
	"strings"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/types"
)

// Input is the part of a request the classifier looks at.
type Input struct {
	// Payload is the request text.
	Payload string

	// TaskHint is a category declared by the caller, if any.
	TaskHint string

	// Tags are declared intents such as "code" or "translate".
	Tags []string
}

// Result is a classification outcome.
type Result struct {
	TaskType   types.TaskType `json:"task_type"`
	Confidence float64        `json:"confidence"`

	// RuleID names what produced the result: "hint", "tag:<tag>",
	// "script", a rule id, or "fallback".
	RuleID string `json:"rule_id"`

	// Ambiguous is set when the result is the general fallback.
	Ambiguous bool `json:"ambiguous"`
}

// Classifier is a rule-table task classifier. It is safe for concurrent use.
type Classifier struct {
	rules             []*Rule
	floor             float64
	defaultConfidence float64
}

// New builds a classifier from configuration. Configured rules are evaluated
// before the built-in table.
func New(cfg config.ClassifierConfig) (*Classifier, error) {
	rules := make([]*Rule, 0, len(cfg.Rules)+4)
	for _, rc := range cfg.Rules {
		r := &Rule{
			ID:         rc.ID,
			Task:       types.TaskType(rc.Task),
			Keywords:   rc.Keywords,
			Confidence: rc.Confidence,
		}
		if rc.Pattern != "" {
			re, err := regexp.Compile(rc.Pattern)
			if err != nil {
				return nil, fmt.Errorf("classifier rule %q: %w", rc.ID, err)
			}
			r.Regex = re
		}
		rules = append(rules, r)
	}
	rules = append(rules, defaultRules()...)

	floor := cfg.ConfidenceFloor
	if floor == 0 {
		floor = config.DefaultConfidenceFloor
	}
	def := cfg.DefaultConfidence
	if def == 0 {
		def = config.DefaultFallbackConfidence
	}

	return &Classifier{rules: rules, floor: floor, defaultConfidence: def}, nil
}

// Classify returns the task type and confidence for in.
func (c *Classifier) Classify(in Input) Result {
	if hint := types.TaskType(strings.ToLower(strings.TrimSpace(in.TaskHint))); hint.Valid() {
		return Result{TaskType: hint, Confidence: 1.0, RuleID: "hint"}
	}

	for _, tag := range in.Tags {
		key := strings.ToLower(strings.TrimSpace(tag))
		if task, ok := tagTable[key]; ok {
			return Result{TaskType: task, Confidence: tagConfidence, RuleID: "tag:" + key}
		}
	}

	t := newText(in.Payload)

	best := Result{TaskType: types.TaskGeneral}
	for _, r := range c.rules {
		if score := r.score(t); score > best.Confidence {
			best = Result{TaskType: r.Task, Confidence: score, RuleID: r.ID}
		}
	}

	if t.nonASCIIShare() > scriptThreshold && scriptConfidence > best.Confidence {
		best = Result{TaskType: types.TaskMultilingual, Confidence: scriptConfidence, RuleID: "script"}
	}

	if best.Confidence >= c.floor {
		return best
	}

	conf := best.Confidence
	if conf < c.defaultConfidence {
		conf = c.defaultConfidence
	}
	return Result{TaskType: types.TaskGeneral, Confidence: conf, RuleID: "fallback", Ambiguous: true}
}
