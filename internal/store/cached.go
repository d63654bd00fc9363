package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/af-corp/chatfilter/internal/moderation"
	"github.com/redis/go-redis/v9"
)

const (
	defaultCacheTTL = 30 * time.Second
	redisKeyPrefix  = "chatfilter:"
	rulesCacheKey   = redisKeyPrefix + "rules"
)

type cachedSettings struct {
	Found bool            `json:"found"`
	Value json.RawMessage `json:"value,omitempty"`
}

// CachedSource keeps a short-lived snapshot of settings and rules in Redis
// in front of another source. A nil Redis client makes it a passthrough.
type CachedSource struct {
	next        Source
	redis       *redis.Client
	ttl         time.Duration
	settingsKey string

	mu       sync.Mutex
	digest   string
	onChange []func()
}

func NewCachedSource(next Source, rdb *redis.Client, settingsKey string, ttl time.Duration) *CachedSource {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachedSource{
		next:        next,
		redis:       rdb,
		ttl:         ttl,
		settingsKey: redisKeyPrefix + "settings:" + settingsKey,
	}
}

// OnChange registers a callback that fires when the served rule set differs
// from the previous one.
func (s *CachedSource) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

func (s *CachedSource) FilterSettings(ctx context.Context) (map[string]any, bool, error) {
	if s.redis != nil {
		cached, err := s.redis.Get(ctx, s.settingsKey).Bytes()
		if err == nil {
			var entry cachedSettings
			if err := json.Unmarshal(cached, &entry); err == nil {
				if !entry.Found {
					return nil, false, nil
				}
				if raw, ok := decodeSettings(entry.Value); ok {
					return raw, true, nil
				}
			}
		}
	}

	raw, found, err := s.next.FilterSettings(ctx)
	if err != nil {
		return nil, false, err
	}

	if s.redis != nil {
		entry := cachedSettings{Found: found}
		if found {
			entry.Value, err = json.Marshal(raw)
		}
		if err == nil {
			if data, err := json.Marshal(entry); err == nil {
				s.redis.Set(ctx, s.settingsKey, data, s.ttl)
			}
		}
	}
	return raw, found, nil
}

func (s *CachedSource) ActiveRules(ctx context.Context) ([]moderation.Rule, error) {
	if s.redis != nil {
		cached, err := s.redis.Get(ctx, rulesCacheKey).Bytes()
		if err == nil {
			var rules []moderation.Rule
			if err := json.Unmarshal(cached, &rules); err == nil {
				s.track(rules)
				return rules, nil
			}
		}
	}

	rules, err := s.next.ActiveRules(ctx)
	if err != nil {
		return nil, err
	}

	if s.redis != nil {
		if data, err := json.Marshal(rules); err == nil {
			s.redis.Set(ctx, rulesCacheKey, data, s.ttl)
		}
	}
	s.track(rules)
	return rules, nil
}

// Invalidate drops the cached snapshot so the next read goes to the source.
func (s *CachedSource) Invalidate(ctx context.Context) error {
	if s.redis == nil {
		return nil
	}
	return s.redis.Del(ctx, s.settingsKey, rulesCacheKey).Err()
}

// track fires OnChange callbacks when the rule set digest moves.
func (s *CachedSource) track(rules []moderation.Rule) {
	digest := RulesDigest(rules)

	s.mu.Lock()
	previous := s.digest
	s.digest = digest
	callbacks := s.onChange
	s.mu.Unlock()

	if previous == "" || previous == digest {
		return
	}
	slog.Info("moderation rule set changed", "rules", len(rules))
	for _, fn := range callbacks {
		fn()
	}
}

// RulesDigest returns a stable fingerprint of an ordered rule list.
func RulesDigest(rules []moderation.Rule) string {
	h := sha256.New()
	for _, r := range rules {
		h.Write([]byte(r.Pattern))
		h.Write([]byte{0})
		h.Write([]byte(r.Action))
		h.Write([]byte{0})
		h.Write([]byte(r.Replacement))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
