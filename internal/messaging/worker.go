package messaging

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/af-corp/chatfilter/internal/config"
	"github.com/af-corp/chatfilter/internal/gateway"
	"github.com/nats-io/nats.go"
)

const checkTimeout = 5 * time.Second

// CheckRequest is published to the check subject by a chat server.
type CheckRequest struct {
	SessionID string `json:"session_id"`
	ChatID    string `json:"chat_id"`
	SenderID  string `json:"sender_id,omitempty"`
	Text      string `json:"text"`
	Ts        int64  `json:"ts"`
}

// CheckResult is published back with the verdict.
type CheckResult struct {
	SessionID string `json:"session_id"`
	ChatID    string `json:"chat_id"`
	gateway.Verdict
	Error string `json:"error,omitempty"`
}

// Checker moderates one message.
type Checker interface {
	Check(ctx context.Context, req gateway.Request) (gateway.Verdict, error)
}

// Publisher sends raw payloads to a subject.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Worker consumes moderation requests and publishes verdicts.
type Worker struct {
	pub     Publisher
	checker Checker
	cfg     func() config.NATSConfig
}

func NewWorker(pub Publisher, checker Checker, cfg func() config.NATSConfig) *Worker {
	return &Worker{pub: pub, checker: checker, cfg: cfg}
}

// Start subscribes the worker to the check subject.
func (w *Worker) Start(client *Client) error {
	cfg := w.cfg()
	if err := client.QueueSubscribe(cfg.CheckSubject, cfg.QueueGroup, func(msg *nats.Msg) {
		w.Handle(msg.Reply, msg.Data)
	}); err != nil {
		return err
	}
	slog.Info("moderation worker subscribed", "subject", cfg.CheckSubject, "queue", cfg.QueueGroup)
	return nil
}

// Handle processes one request. The verdict goes to the session's result
// subject and, when set, to the reply subject.
func (w *Worker) Handle(reply string, data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()

	res, ok := w.Process(ctx, data)
	if !ok {
		return
	}

	payload, err := json.Marshal(res)
	if err != nil {
		slog.Error("failed to marshal moderation result", "error", err)
		return
	}

	if res.SessionID != "" {
		subject := w.cfg().ResultSubject + "." + res.SessionID
		if err := w.pub.Publish(subject, payload); err != nil {
			slog.Error("failed to publish moderation result", "subject", subject, "error", err)
		}
	}
	if reply != "" {
		if err := w.pub.Publish(reply, payload); err != nil {
			slog.Error("failed to reply with moderation result", "error", err)
		}
	}
}

// Process decodes a request and moderates it. ok is false when the payload
// could not be decoded and nothing should be published.
func (w *Worker) Process(ctx context.Context, data []byte) (CheckResult, bool) {
	var req CheckRequest
	if err := json.Unmarshal(data, &req); err != nil {
		slog.Warn("dropping malformed moderation request", "error", err)
		return CheckResult{}, false
	}

	res := CheckResult{SessionID: req.SessionID, ChatID: req.ChatID}
	verdict, err := w.checker.Check(ctx, gateway.Request{
		Text:     req.Text,
		ChatID:   req.ChatID,
		SenderID: req.SenderID,
	})
	if err != nil {
		res.Error = err.Error()
		return res, true
	}
	res.Verdict = verdict

	if verdict.Blocked || verdict.Flagged {
		slog.Info("message moderated",
			"session_id", req.SessionID,
			"chat_id", req.ChatID,
			"blocked", verdict.Blocked,
			"flagged", verdict.Flagged,
			"disposition", verdict.Disposition,
		)
	}
	return res, true
}
