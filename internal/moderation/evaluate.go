package moderation

import "time"

// Evaluate runs the full pipeline against an already fetched settings and
// rule snapshot. It is total: every input yields a verdict.
func Evaluate(settings Settings, rules []Rule, rawText string) Result {
	p := pipeline{observer: nopObserver{}}
	text := Normalize(rawText, settings.MaxLength)
	if !ShouldEvaluateRules(settings.Enabled, text) {
		return p.bypass(text)
	}
	return p.run(rules, text)
}

// Fallback is the verdict used when the store could not be read: default
// settings and whatever rules were last known, possibly none.
func Fallback(rules []Rule, rawText string) Result {
	return Evaluate(DefaultSettings(), rules, rawText)
}

type pipeline struct {
	cache    *CompileCache
	observer Observer
}

func (p pipeline) bypass(text string) Result {
	p.observer.Decision(OutcomeBypass, 0)
	return Result{OK: true, Text: text}
}

// run evaluates rules against already normalized text.
func (p pipeline) run(rules []Rule, text string) Result {
	if len(rules) == 0 {
		return p.bypass(text)
	}

	start := time.Now()
	res := p.fold(rules, text)
	p.observer.Decision(res.outcome(), time.Since(start))
	return res
}

// scan is the state carried between rules.
type scan struct {
	text    string
	flagged bool
}

// fold applies rules in order. A block ends the fold; replace and flag
// carry the updated state into the next rule.
func (p pipeline) fold(rules []Rule, text string) Result {
	state := scan{text: text}
	for _, rule := range rules {
		if rule.Pattern == "" {
			continue
		}
		m, cached := p.cache.Get(rule.Pattern)
		p.observer.PatternCompiled(m.Mode(), cached)
		if !m.Match(state.text) {
			continue
		}
		p.observer.RuleMatched(rule.Action, m.Mode())

		var blocked bool
		state, blocked = state.apply(rule, m)
		if blocked {
			return Result{OK: false, Text: "", Blocked: true, Flagged: state.flagged}
		}
	}
	return Result{OK: true, Text: state.text, Flagged: state.flagged}
}

// apply reports the next state and whether the rule terminated the scan.
func (s scan) apply(rule Rule, m Matcher) (scan, bool) {
	switch rule.Action {
	case ActionBlock:
		return s, true
	case ActionReplace:
		s.text = m.ReplaceAll(s.text, rule.ReplacementText())
	case ActionFlag:
		s.flagged = true
	}
	return s, false
}
