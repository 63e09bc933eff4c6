package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/fieldscan/fieldscan/internal/errors"
	"github.com/fieldscan/fieldscan/internal/logger"
	"github.com/fieldscan/fieldscan/internal/pipeline"
)

// RunsSubtopic is appended to the base topic for run summaries.
const RunsSubtopic = "runs"

// RunMessage is the JSON payload published after each analysis run.
type RunMessage struct {
	RunID                string         `json:"run_id"`
	Node                 string         `json:"node,omitempty"`
	PhotosAnalyzed       int            `json:"photos_analyzed"`
	ObservationsProduced int            `json:"observations_produced"`
	Skipped              int            `json:"skipped"`
	SkippedByReason      map[string]int `json:"skipped_by_reason,omitempty"`
	Canceled             bool           `json:"canceled"`
	StartedAt            string         `json:"started_at"` // RFC3339
	FinishedAt           string         `json:"finished_at"`
	DurationMs           int64          `json:"duration_ms"`
}

// NewRunMessage builds the payload for a run summary.
func NewRunMessage(node string, s *pipeline.Summary) RunMessage {
	msg := RunMessage{
		RunID:                s.RunID,
		Node:                 node,
		PhotosAnalyzed:       s.PhotosAnalyzed,
		ObservationsProduced: s.ObservationsProduced,
		Skipped:              s.Skipped(),
		Canceled:             s.Canceled,
		StartedAt:            s.StartedAt.UTC().Format(time.RFC3339),
		FinishedAt:           s.FinishedAt.UTC().Format(time.RFC3339),
		DurationMs:           s.Duration().Milliseconds(),
	}
	if byReason := s.SkippedByReason(); len(byReason) > 0 {
		msg.SkippedByReason = make(map[string]int, len(byReason))
		for reason, n := range byReason {
			msg.SkippedByReason[string(reason)] = n
		}
	}
	return msg
}

// Notifier publishes run summaries. It connects lazily on the first publish.
type Notifier struct {
	client Client
	topic  string
	node   string
}

// NewNotifier returns a notifier publishing to <baseTopic>/runs.
func NewNotifier(client Client, baseTopic, node string) *Notifier {
	return &Notifier{
		client: client,
		topic:  RunsTopic(baseTopic),
		node:   node,
	}
}

// RunsTopic returns the run summary topic under baseTopic.
func RunsTopic(baseTopic string) string {
	baseTopic = strings.TrimSuffix(strings.TrimSpace(baseTopic), "/")
	if baseTopic == "" {
		return RunsSubtopic
	}
	return baseTopic + "/" + RunsSubtopic
}

// Topic returns the topic summaries are published to.
func (n *Notifier) Topic() string { return n.topic }

// NotifyRun implements pipeline.Notifier.
func (n *Notifier) NotifyRun(ctx context.Context, summary pipeline.Summary) error {
	if !n.client.IsConnected() {
		if err := n.client.Connect(ctx); err != nil {
			return err
		}
	}

	payload, err := json.Marshal(NewRunMessage(n.node, &summary))
	if err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("operation", "marshal_run_message").
			Build()
	}

	if err := n.client.Publish(ctx, n.topic, string(payload)); err != nil {
		return err
	}

	GetLogger().Info("published run summary",
		logger.String("topic", n.topic),
		logger.String("run_id", summary.RunID))
	return nil
}

// Close disconnects the underlying client.
func (n *Notifier) Close() {
	n.client.Disconnect()
}
