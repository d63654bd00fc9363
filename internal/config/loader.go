package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:default} patterns in a string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		submatch := envVarPattern.FindStringSubmatch(match)
		if len(submatch) < 2 {
			return match
		}
		varName := submatch[1]
		defaultVal := ""
		if len(submatch) >= 3 {
			defaultVal = submatch[2]
		}
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return defaultVal
	})
}

// LoadFile reads a YAML file, expands env vars, and unmarshals into dest.
func LoadFile(path string, dest interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	expanded := expandEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(expanded), dest); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// LoadRules reads a rules file.
func LoadRules(path string) (*RulesConfig, error) {
	rules := &RulesConfig{}
	if err := LoadFile(path, rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// Validate rejects values the service cannot act on.
func (c *Config) Validate() error {
	switch c.Moderation.RuleSource {
	case RuleSourcePostgres, RuleSourceFile:
	default:
		return fmt.Errorf("moderation.rule_source: unknown source %q", c.Moderation.RuleSource)
	}
	switch c.Moderation.OnStoreError {
	case StoreErrorDefaults, StoreErrorReject:
	default:
		return fmt.Errorf("moderation.on_store_error: unknown policy %q", c.Moderation.OnStoreError)
	}
	if c.Moderation.SettingsKey == "" {
		return fmt.Errorf("moderation.settings_key must not be empty")
	}
	return nil
}

// Loader manages configuration loading and hot-reload via fsnotify.
type Loader struct {
	configDir string
	mu        sync.RWMutex
	cfg       *Config
	rules     *RulesConfig
	watchers  []func()
	logger    *slog.Logger
}

func NewLoader(configDir string, logger *slog.Logger) *Loader {
	return &Loader{
		configDir: configDir,
		logger:    logger,
	}
}

// RulesPath resolves the rules file relative to the config directory.
func (l *Loader) RulesPath(cfg *Config) string {
	if filepath.IsAbs(cfg.Moderation.RulesFile) {
		return cfg.Moderation.RulesFile
	}
	return filepath.Join(l.configDir, cfg.Moderation.RulesFile)
}

func (l *Loader) Load() error {
	cfg := DefaultConfig()
	if err := LoadFile(filepath.Join(l.configDir, "moderator.yaml"), cfg); err != nil {
		return fmt.Errorf("load moderator config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate moderator config: %w", err)
	}

	var rules *RulesConfig
	if cfg.Moderation.RuleSource == RuleSourceFile {
		var err error
		rules, err = LoadRules(l.RulesPath(cfg))
		if err != nil {
			return fmt.Errorf("load rules: %w", err)
		}
	}

	l.mu.Lock()
	l.cfg = cfg
	l.rules = rules
	l.mu.Unlock()

	l.logger.Info("configuration loaded", "dir", l.configDir, "rule_source", cfg.Moderation.RuleSource)
	return nil
}

func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// Rules returns the file-backed rules, or nil when rules come from Postgres.
func (l *Loader) Rules() *RulesConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.rules
}

// OnReload registers a callback that fires after config is reloaded. It is
// safe to call while Watch is running.
func (l *Loader) OnReload(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.watchers = append(l.watchers, fn)
}

// notify runs the reload callbacks registered so far, outside the lock so a
// callback may read the new config.
func (l *Loader) notify() {
	l.mu.RLock()
	callbacks := append([]func(){}, l.watchers...)
	l.mu.RUnlock()

	for _, fn := range callbacks {
		fn()
	}
}

// Watch starts watching the config directory, and the rules file's
// directory when it lives elsewhere, and reloads on modification.
func (l *Loader) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(l.configDir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch config dir %s: %w", l.configDir, err)
	}
	if cfg := l.Config(); cfg != nil && cfg.Moderation.RuleSource == RuleSourceFile {
		rulesDir := filepath.Dir(l.RulesPath(cfg))
		if filepath.Clean(rulesDir) != filepath.Clean(l.configDir) {
			if err := watcher.Add(rulesDir); err != nil {
				watcher.Close()
				return fmt.Errorf("watch rules dir %s: %w", rulesDir, err)
			}
		}
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					l.logger.Info("config file changed, reloading", "file", event.Name)
					if err := l.Load(); err != nil {
						l.logger.Error("failed to reload config", "error", err)
						continue
					}
					l.notify()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.Error("fsnotify error", "error", err)
			}
		}
	}()

	return nil
}
