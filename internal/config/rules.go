package config

// RulesConfig is the file-backed replacement for the settings and rule
// tables, read from rules.yaml.
type RulesConfig struct {
	Settings map[string]any `yaml:"settings"`
	Rules    []RuleEntry    `yaml:"rules"`
}

type RuleEntry struct {
	Pattern     string `yaml:"pattern"`
	Action      string `yaml:"action"`
	Replacement string `yaml:"replacement,omitempty"`
	Active      *bool  `yaml:"active,omitempty"`
}

// IsActive reports whether the rule is active. Rules are active unless
// explicitly disabled.
func (r RuleEntry) IsActive() bool {
	return r.Active == nil || *r.Active
}
