package disposition

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/af-corp/chatfilter/internal/config"
	"github.com/af-corp/chatfilter/internal/moderation"
	"github.com/open-policy-agent/opa/rego"
)

const query = "data.chatfilter.disposition.action"

//go:embed default.rego
var defaultPolicy string

// Action tells the caller what to do with a moderated message.
type Action string

const (
	Deliver Action = "deliver"
	Hold    Action = "hold"
	Reject  Action = "reject"
)

// Input is the data sent to OPA for evaluation.
type Input struct {
	Result   ResultInput `json:"result"`
	Degraded bool        `json:"degraded"`
	ChatID   string      `json:"chat_id,omitempty"`
	SenderID string      `json:"sender_id,omitempty"`
}

type ResultInput struct {
	OK      bool `json:"ok"`
	Blocked bool `json:"blocked"`
	Flagged bool `json:"flagged"`
	Length  int  `json:"length"`
}

// NewInput builds policy input from a verdict.
func NewInput(res moderation.Result) Input {
	return Input{Result: ResultInput{
		OK:      res.OK,
		Blocked: res.Blocked,
		Flagged: res.Flagged,
		Length:  len([]rune(res.Text)),
	}}
}

// Fallback maps a verdict without consulting any policy.
func Fallback(res ResultInput) Action {
	switch {
	case res.Blocked:
		return Reject
	case res.Flagged:
		return Hold
	default:
		return Deliver
	}
}

// Evaluator decides dispositions with OPA.
type Evaluator struct {
	mu       sync.RWMutex
	prepared *rego.PreparedEvalQuery
	cfg      func() config.PolicyConfig
}

// NewEvaluator creates a disposition evaluator. Call Load() to compile policies.
func NewEvaluator(cfg func() config.PolicyConfig) *Evaluator {
	return &Evaluator{cfg: cfg}
}

// Load compiles Rego modules from the bundle path, or the built-in policy
// when no bundle path is configured.
func (e *Evaluator) Load() error {
	cfg := e.cfg()
	if !cfg.Enabled {
		e.mu.Lock()
		e.prepared = nil
		e.mu.Unlock()
		slog.Info("disposition policy disabled, using built-in mapping")
		return nil
	}

	modules := map[string]string{"default.rego": defaultPolicy}
	if cfg.BundlePath != "" {
		loaded, err := LoadRegoFiles(cfg.BundlePath)
		if err != nil {
			return err
		}
		if len(loaded) == 0 {
			slog.Warn("no rego files found, using built-in policy", "path", cfg.BundlePath)
		} else {
			modules = loaded
		}
	}

	if err := e.LoadFromModules(modules); err != nil {
		return err
	}
	slog.Info("disposition policies loaded", "modules", len(modules))
	return nil
}

// LoadFromModules compiles policies from provided module sources.
func (e *Evaluator) LoadFromModules(modules map[string]string) error {
	opts := []func(*rego.Rego){rego.Query(query)}
	for name, src := range modules {
		opts = append(opts, rego.Module(name, src))
	}

	prepared, err := rego.New(opts...).PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("prepare rego: %w", err)
	}

	e.mu.Lock()
	e.prepared = &prepared
	e.mu.Unlock()
	return nil
}

// Evaluate runs the policy against the given input.
func (e *Evaluator) Evaluate(ctx context.Context, input Input) (Action, error) {
	e.mu.RLock()
	prepared := e.prepared
	e.mu.RUnlock()

	if prepared == nil {
		return Fallback(input.Result), nil
	}

	timeout := e.cfg().EvaluationTimeout
	if timeout == 0 {
		timeout = 50 * time.Millisecond
	}

	evalCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results, err := prepared.Eval(evalCtx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("evaluate disposition policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return "", fmt.Errorf("disposition policy produced no result")
	}

	value, _ := results[0].Expressions[0].Value.(string)
	switch action := Action(value); action {
	case Deliver, Hold, Reject:
		return action, nil
	default:
		return "", fmt.Errorf("disposition policy returned unknown action %q", value)
	}
}

// Decide evaluates the policy and falls back to the built-in mapping when
// the policy cannot produce an answer.
func (e *Evaluator) Decide(ctx context.Context, input Input) Action {
	action, err := e.Evaluate(ctx, input)
	if err != nil {
		slog.Error("disposition policy failed, using built-in mapping", "error", err)
		return Fallback(input.Result)
	}
	return action
}

// LoadRegoFiles reads the disposition policy bundle: every .rego file
// directly inside dir, keyed by file name.
func LoadRegoFiles(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read disposition bundle %s: %w", dir, err)
	}

	modules := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".rego" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read disposition policy %s: %w", entry.Name(), err)
		}
		modules[entry.Name()] = string(data)
	}
	return modules, nil
}
