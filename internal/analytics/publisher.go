// Package analytics emits contact-form events to Kafka. Publishing is best
// effort everywhere: a broker outage is logged and counted, never surfaced
// to the submitter.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"contacthub/internal/platform/metrics"
)

// Publisher records analytics events.
type Publisher interface {
	ContactSubmitted(ctx context.Context, service string)
	Close()
}

// event is the wire shape on the analytics topic.
type event struct {
	Event      string    `json:"event"`
	Service    string    `json:"service,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Kafka publishes events with franz-go.
type Kafka struct {
	client  *kgo.Client
	topic   string
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewKafka connects to the given brokers and ensures the topic exists.
func NewKafka(ctx context.Context, brokers []string, topic string, logger *slog.Logger, m *metrics.Metrics) (*Kafka, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	// Topic creation is idempotent; an already-exists response is fine.
	admin := kadm.NewClient(client)
	if _, err := admin.CreateTopic(ctx, 1, 1, nil, topic); err != nil {
		logger.Warn("ensuring analytics topic", "topic", topic, "error", err)
	}

	return &Kafka{client: client, topic: topic, logger: logger, metrics: m}, nil
}

var _ Publisher = (*Kafka)(nil)

// ContactSubmitted fires the contact_form_submitted event tagged with the
// chosen service value. Delivery is asynchronous.
func (k *Kafka) ContactSubmitted(ctx context.Context, service string) {
	payload, err := json.Marshal(event{
		Event:      "contact_form_submitted",
		Service:    service,
		OccurredAt: time.Now(),
	})
	if err != nil {
		k.logger.Error("marshal analytics event", "error", err)
		return
	}

	k.client.Produce(ctx, &kgo.Record{Topic: k.topic, Value: payload}, func(_ *kgo.Record, err error) {
		if err != nil {
			k.logger.Error("publish analytics event", "error", err)
			if k.metrics != nil {
				k.metrics.AnalyticsPublishErrs.Inc()
			}
		}
	})
}

func (k *Kafka) Close() {
	k.client.Close()
}

// Nop is used when no brokers are configured.
type Nop struct{}

var _ Publisher = Nop{}

func (Nop) ContactSubmitted(context.Context, string) {}
func (Nop) Close()                                   {}
