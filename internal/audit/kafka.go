package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hzi-braunschweig/pia-system/pkg/domain"
)

// RecordPublisher is the slice of the Kafka producer the sink needs.
type RecordPublisher interface {
	Publish(ctx context.Context, key, value []byte) error
}

// KafkaSink forwards audit events to the platform message queue so other
// services (event history, notifications) can react to auth events. Events
// are keyed by user id for per-user ordering.
type KafkaSink struct {
	producer RecordPublisher
	next     Store
}

// NewKafkaSink wraps an inner store; every appended event is also produced to
// Kafka. List delegates to the inner store.
func NewKafkaSink(producer RecordPublisher, next Store) *KafkaSink {
	return &KafkaSink{producer: producer, next: next}
}

func (s *KafkaSink) Append(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	if err := s.producer.Publish(ctx, []byte(event.UserID.String()), payload); err != nil {
		return fmt.Errorf("publish audit event: %w", err)
	}
	return s.next.Append(ctx, event)
}

func (s *KafkaSink) ListByUser(ctx context.Context, userID domain.UserID) ([]Event, error) {
	return s.next.ListByUser(ctx, userID)
}
