package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer publishes audit events to a single Kafka topic. The message queue
// is how the rest of the platform observes auth-server activity, so delivery
// is synchronous but failures stay non-fatal for the caller.
type Producer struct {
	client *kgo.Client
	topic  string
}

// NewProducer connects to the brokers and ensures the topic exists. Topic
// creation is idempotent; an "already exists" response is not an error.
func NewProducer(ctx context.Context, brokers []string, topic string) (*Producer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	if err := ensureTopic(ctx, client, topic); err != nil {
		client.Close()
		return nil, err
	}

	return &Producer{client: client, topic: topic}, nil
}

func ensureTopic(ctx context.Context, client *kgo.Client, topic string) error {
	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopics(ctx, 1, 1, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %q: %w", topic, err)
	}
	for _, t := range resp.Sorted() {
		if t.Err != nil && !isTopicExists(t.Err) {
			return fmt.Errorf("create topic %q: %w", t.Topic, t.Err)
		}
	}
	return nil
}

func isTopicExists(err error) bool {
	var kerr *kadm.AuthError
	if errors.As(err, &kerr) {
		return false
	}
	return strings.Contains(err.Error(), "TOPIC_ALREADY_EXISTS")
}

// Publish sends one record keyed for per-entity ordering.
func (p *Producer) Publish(ctx context.Context, key, value []byte) error {
	rec := &kgo.Record{Topic: p.topic, Key: key, Value: value}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce to %q: %w", p.topic, err)
	}
	return nil
}

// Close flushes buffered records and tears the client down.
func (p *Producer) Close() {
	p.client.Close()
}
