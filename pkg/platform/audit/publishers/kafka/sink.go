// Package kafka mirrors audit events onto a Kafka topic for SIEM ingestion.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	audit "keepsake/pkg/platform/audit"
	"keepsake/pkg/platform/circuit"
)

const DefaultTopic = "keepsake.audit"

// Producer is the subset of *kgo.Client used by the sink.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

type Sink struct {
	producer Producer
	topic    string
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

type Option func(*Sink)

func WithTopic(topic string) Option {
	return func(s *Sink) {
		if topic != "" {
			s.topic = topic
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sink) {
		s.logger = logger
	}
}

func New(producer Producer, opts ...Option) *Sink {
	s := &Sink{
		producer: producer,
		topic:    DefaultTopic,
		breaker:  circuit.New("audit-kafka", circuit.WithFailureThreshold(5), circuit.WithSuccessThreshold(1)),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type message struct {
	Category  string    `json:"category"`
	Timestamp time.Time `json:"timestamp"`
	VaultID   string    `json:"vault_id,omitempty"`
	Subject   string    `json:"subject,omitempty"`
	Action    string    `json:"action"`
	Reason    string    `json:"reason,omitempty"`
	ActorID   string    `json:"actor_id,omitempty"`
	IP        string    `json:"ip,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Severity  string    `json:"severity,omitempty"`
}

// Append publishes the event keyed by vault ID so one vault's history stays
// ordered within a partition.
func (s *Sink) Append(ctx context.Context, event audit.Event) error {
	msg := message{
		Category:  string(event.Category),
		Timestamp: event.Timestamp,
		Subject:   event.Subject,
		Action:    event.Action,
		Reason:    event.Reason,
		ActorID:   event.ActorID,
		IP:        event.IP,
		RequestID: event.RequestID,
		Severity:  string(event.Severity),
	}
	var key []byte
	if !event.VaultID.IsNil() {
		msg.VaultID = event.VaultID.String()
		key = []byte(msg.VaultID)
	}

	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal audit message: %w", err)
	}

	record := &kgo.Record{Topic: s.topic, Key: key, Value: value}
	if err := s.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		if _, change := s.breaker.RecordFailure(); change.Opened {
			s.logger.WarnContext(ctx, "audit kafka sink unhealthy", "topic", s.topic, "error", err)
		}
		return fmt.Errorf("produce audit event: %w", err)
	}
	if _, change := s.breaker.RecordSuccess(); change.Closed {
		s.logger.InfoContext(ctx, "audit kafka sink recovered", "topic", s.topic)
	}
	return nil
}

// Healthy reports whether recent produces succeeded.
func (s *Sink) Healthy() bool {
	return !s.breaker.IsOpen()
}
