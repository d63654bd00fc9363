package store

import (
	"context"
	"sync"

	"github.com/af-corp/chatfilter/internal/moderation"
)

// stubSource is a Source whose answers and failures tests can change.
type stubSource struct {
	mu            sync.Mutex
	settings      map[string]any
	found         bool
	rules         []moderation.Rule
	err           error
	settingsCalls int
	ruleCalls     int
}

func (s *stubSource) FilterSettings(ctx context.Context) (map[string]any, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settingsCalls++
	if s.err != nil {
		return nil, false, s.err
	}
	return s.settings, s.found, nil
}

func (s *stubSource) ActiveRules(ctx context.Context) ([]moderation.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ruleCalls++
	if s.err != nil {
		return nil, s.err
	}
	return s.rules, nil
}

func (s *stubSource) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *stubSource) setRules(rules []moderation.Rule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = rules
}

func (s *stubSource) calls() (settings, rules int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settingsCalls, s.ruleCalls
}
