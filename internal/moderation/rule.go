package moderation

// Action is what a matching rule does to a message.
type Action string

const (
	ActionBlock   Action = "block"
	ActionReplace Action = "replace"
	ActionFlag    Action = "flag"
)

// DefaultReplacement is substituted when a replace rule carries no replacement text.
const DefaultReplacement = "***"

// ParseAction maps a stored action name onto an Action.
func ParseAction(s string) (Action, bool) {
	switch Action(s) {
	case ActionBlock, ActionReplace, ActionFlag:
		return Action(s), true
	}
	return "", false
}

// Rule is one active moderation rule as served by a RuleSource.
type Rule struct {
	Pattern     string `json:"pattern" yaml:"pattern"`
	Action      Action `json:"action" yaml:"action"`
	Replacement string `json:"replacement,omitempty" yaml:"replacement,omitempty"`
}

// ReplacementText returns the rule's replacement, or DefaultReplacement when unset.
func (r Rule) ReplacementText() string {
	if r.Replacement == "" {
		return DefaultReplacement
	}
	return r.Replacement
}

// Result is the verdict for a single message.
type Result struct {
	OK      bool   `json:"ok"`
	Text    string `json:"text"`
	Blocked bool   `json:"blocked"`
	Flagged bool   `json:"flagged"`
}

// Outcome classifies a verdict for metrics and logs.
type Outcome string

const (
	OutcomeBlocked Outcome = "blocked"
	OutcomeFlagged Outcome = "flagged"
	OutcomeClean   Outcome = "clean"
	OutcomeBypass  Outcome = "bypass"
)

func (r Result) outcome() Outcome {
	switch {
	case r.Blocked:
		return OutcomeBlocked
	case r.Flagged:
		return OutcomeFlagged
	default:
		return OutcomeClean
	}
}
