package store

import (
	"context"

	"github.com/af-corp/chatfilter/internal/config"
	"github.com/af-corp/chatfilter/internal/moderation"
)

// FileSource serves settings and rules from a rules file. The accessor is
// re-read on every call so reloads take effect immediately.
type FileSource struct {
	rules func() *config.RulesConfig
}

func NewFileSource(rules func() *config.RulesConfig) *FileSource {
	return &FileSource{rules: rules}
}

func (s *FileSource) FilterSettings(ctx context.Context) (map[string]any, bool, error) {
	rc := s.rules()
	if rc == nil || rc.Settings == nil {
		return nil, false, nil
	}
	return rc.Settings, true, nil
}

func (s *FileSource) ActiveRules(ctx context.Context) ([]moderation.Rule, error) {
	rc := s.rules()
	if rc == nil {
		return nil, nil
	}
	return RulesFromConfig(rc), nil
}

// RulesFromConfig converts the active file entries to rules, in file order.
func RulesFromConfig(rc *config.RulesConfig) []moderation.Rule {
	rules := make([]moderation.Rule, 0, len(rc.Rules))
	for _, entry := range rc.Rules {
		if !entry.IsActive() {
			continue
		}
		if rule, ok := newRule(entry.Pattern, entry.Action, entry.Replacement); ok {
			rules = append(rules, rule)
		}
	}
	return rules
}

// MemorySource serves a fixed snapshot.
type MemorySource struct {
	Settings map[string]any
	Found    bool
	Rules    []moderation.Rule
}

func (s *MemorySource) FilterSettings(ctx context.Context) (map[string]any, bool, error) {
	return s.Settings, s.Found, nil
}

func (s *MemorySource) ActiveRules(ctx context.Context) ([]moderation.Rule, error) {
	return s.Rules, nil
}
