package moderation

import (
	"context"
	"fmt"
	"time"
)

// SettingsSource looks up the stored filter settings payload. found is false
// when the store holds no settings at all.
type SettingsSource interface {
	FilterSettings(ctx context.Context) (raw map[string]any, found bool, err error)
}

// RuleSource returns the active rules in evaluation order.
type RuleSource interface {
	ActiveRules(ctx context.Context) ([]Rule, error)
}

// Observer receives pipeline events. Implementations must be safe for
// concurrent use.
type Observer interface {
	PatternCompiled(mode MatchMode, cached bool)
	RuleMatched(action Action, mode MatchMode)
	Decision(outcome Outcome, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) PatternCompiled(MatchMode, bool) {}
func (nopObserver) RuleMatched(Action, MatchMode)   {}
func (nopObserver) Decision(Outcome, time.Duration) {}

// FetchError reports that a store read failed before a verdict was reached.
type FetchError struct {
	Source string // "settings" or "rules"
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("moderation: fetch %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Filter moderates chat messages against the settings and rules held in
// a configuration store.
type Filter struct {
	settings SettingsSource
	rules    RuleSource
	cache    *CompileCache
	observer Observer
}

// Option configures a Filter.
type Option func(*Filter)

// WithCompileCache reuses compiled patterns across calls.
func WithCompileCache(c *CompileCache) Option {
	return func(f *Filter) { f.cache = c }
}

// WithObserver reports pipeline events to o.
func WithObserver(o Observer) Option {
	return func(f *Filter) {
		if o != nil {
			f.observer = o
		}
	}
}

func NewFilter(settings SettingsSource, rules RuleSource, opts ...Option) *Filter {
	f := &Filter{
		settings: settings,
		rules:    rules,
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Apply moderates one raw message. The error is non-nil only when the
// settings or rules could not be read, in which case it is a *FetchError.
func (f *Filter) Apply(ctx context.Context, rawText string) (Result, error) {
	raw, found, err := f.settings.FilterSettings(ctx)
	if err != nil {
		return Result{}, &FetchError{Source: "settings", Err: err}
	}
	settings := DefaultSettings()
	if found {
		settings = ResolveSettings(raw)
	}

	p := pipeline{cache: f.cache, observer: f.observer}
	text := Normalize(rawText, settings.MaxLength)
	if !ShouldEvaluateRules(settings.Enabled, text) {
		return p.bypass(text), nil
	}

	rules, err := f.rules.ActiveRules(ctx)
	if err != nil {
		return Result{}, &FetchError{Source: "rules", Err: err}
	}
	return p.run(rules, text), nil
}
