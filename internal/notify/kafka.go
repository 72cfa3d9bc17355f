package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	dErrors "keepsake/pkg/domain-errors"
)

const DefaultTopic = "keepsake.notifications"

// Producer is the subset of *kgo.Client used for publishing.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Kind names the notification command for the external mailer.
type Kind string

const (
	KindWarning     Kind = "liveness_warning"
	KindInheritance Kind = "inheritance_notice"
	KindUnlock      Kind = "unlock_notice"
)

// command is the wire format on the notifications topic.
type command struct {
	Kind    Kind            `json:"kind"`
	SentAt  time.Time       `json:"sent_at"`
	Payload json.RawMessage `json:"payload"`
}

// KafkaNotifier publishes notification commands keyed by vault ID, so an
// external mailer sees each vault's messages in order.
type KafkaNotifier struct {
	producer Producer
	topic    string
	logger   *slog.Logger
	now      func() time.Time
}

type KafkaOption func(*KafkaNotifier)

func WithTopic(topic string) KafkaOption {
	return func(n *KafkaNotifier) {
		if topic != "" {
			n.topic = topic
		}
	}
}

func WithLogger(logger *slog.Logger) KafkaOption {
	return func(n *KafkaNotifier) { n.logger = logger }
}

func WithClock(now func() time.Time) KafkaOption {
	return func(n *KafkaNotifier) { n.now = now }
}

func NewKafkaNotifier(producer Producer, opts ...KafkaOption) *KafkaNotifier {
	n := &KafkaNotifier{
		producer: producer,
		topic:    DefaultTopic,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *KafkaNotifier) SendWarning(ctx context.Context, w Warning) error {
	return n.publish(ctx, KindWarning, w.VaultID.String(), w)
}

func (n *KafkaNotifier) SendInheritanceNotice(ctx context.Context, in InheritanceNotice) error {
	return n.publish(ctx, KindInheritance, in.VaultID.String(), in)
}

func (n *KafkaNotifier) SendUnlockNotice(ctx context.Context, u UnlockNotice) error {
	return n.publish(ctx, KindUnlock, u.VaultID.String(), u)
}

func (n *KafkaNotifier) publish(ctx context.Context, kind Kind, key string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode notification")
	}
	value, err := json.Marshal(command{Kind: kind, SentAt: n.now().UTC(), Payload: body})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode notification")
	}

	rec := &kgo.Record{Topic: n.topic, Key: []byte(key), Value: value}
	if err := n.producer.ProduceSync(ctx, rec).FirstErr(); err != nil {
		n.logger.WarnContext(ctx, "notification publish failed",
			"kind", string(kind),
			"topic", n.topic,
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeExternalService, "notification delivery unavailable")
	}
	return nil
}
