package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/af-corp/chatfilter/internal/config"
	"github.com/af-corp/chatfilter/internal/disposition"
	"github.com/af-corp/chatfilter/internal/moderation"
	"github.com/af-corp/chatfilter/internal/telemetry"
)

// ErrStoreUnavailable is returned when the configuration store cannot be
// read and the service is configured to refuse messages in that case.
var ErrStoreUnavailable = errors.New("configuration store unavailable")

// Moderator produces a verdict for one raw message.
type Moderator interface {
	Apply(ctx context.Context, rawText string) (moderation.Result, error)
}

// Decider maps a verdict onto a disposition.
type Decider interface {
	Decide(ctx context.Context, input disposition.Input) disposition.Action
}

// RuleSnapshot exposes the last rule set read from the store.
type RuleSnapshot interface {
	LastRules() ([]moderation.Rule, bool)
}

// Request is one message submitted for moderation.
type Request struct {
	Text     string
	ChatID   string
	SenderID string
}

// Verdict is the moderation result plus what the caller should do with it.
type Verdict struct {
	moderation.Result
	Disposition disposition.Action `json:"disposition"`
	Degraded    bool               `json:"degraded"`
}

// Service applies the store error policy and disposition on top of the filter.
type Service struct {
	filter   Moderator
	decider  Decider
	cfg      func() config.ModerationConfig
	metrics  *telemetry.Metrics
	snapshot RuleSnapshot
}

func NewService(filter Moderator, decider Decider, cfg func() config.ModerationConfig, metrics *telemetry.Metrics) *Service {
	return &Service{
		filter:  filter,
		decider: decider,
		cfg:     cfg,
		metrics: metrics,
	}
}

// UseRuleSnapshot makes degraded verdicts apply the last known rules
// instead of none.
func (s *Service) UseRuleSnapshot(snap RuleSnapshot) {
	s.snapshot = snap
}

// Check moderates one message. The only error it returns wraps
// ErrStoreUnavailable.
func (s *Service) Check(ctx context.Context, req Request) (Verdict, error) {
	var v Verdict
	res, err := s.filter.Apply(ctx, req.Text)
	if err != nil {
		source := "store"
		var fetchErr *moderation.FetchError
		if errors.As(err, &fetchErr) {
			source = fetchErr.Source
		}
		if s.metrics != nil {
			s.metrics.RecordStoreError(source)
		}

		if s.cfg().OnStoreError == config.StoreErrorReject {
			slog.Error("moderation store unavailable, refusing message",
				"chat_id", req.ChatID,
				"error", err,
			)
			return Verdict{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}

		var rules []moderation.Rule
		if s.snapshot != nil {
			rules, _ = s.snapshot.LastRules()
		}
		slog.Warn("moderation store unavailable, using default settings",
			"chat_id", req.ChatID,
			"snapshot_rules", len(rules),
			"error", err,
		)
		res = moderation.Fallback(rules, req.Text)
		v.Degraded = true
	}
	v.Result = res

	input := disposition.NewInput(res)
	input.Degraded = v.Degraded
	input.ChatID = req.ChatID
	input.SenderID = req.SenderID
	if s.decider != nil {
		v.Disposition = s.decider.Decide(ctx, input)
	} else {
		v.Disposition = disposition.Fallback(input.Result)
	}
	if s.metrics != nil {
		s.metrics.RecordDisposition(string(v.Disposition))
	}
	return v, nil
}
