package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hzi-braunschweig/pia-system/pkg/domain"
)

func TestPublisherSyncMode(t *testing.T) {
	store := NewMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	userID := domain.NewUserID()
	err := pub.Emit(context.Background(), Event{
		UserID: userID,
		Action: ActionSendVerifyEmail,
		Email:  "proband@example.com",
	})
	require.NoError(t, err)

	events, err := pub.List(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ActionSendVerifyEmail, events[0].Action)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestPublisherAsyncMode(t *testing.T) {
	store := NewMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(10))

	userID := domain.NewUserID()
	err := pub.Emit(context.Background(), Event{
		UserID: userID,
		Action: ActionVerifyEmail,
	})
	require.NoError(t, err)

	// Close drains the queue before returning.
	pub.Close()

	events, err := pub.List(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ActionVerifyEmail, events[0].Action)
}

type fakeProducer struct {
	keys   []string
	values [][]byte
}

func (f *fakeProducer) Publish(ctx context.Context, key, value []byte) error {
	f.keys = append(f.keys, string(key))
	f.values = append(f.values, value)
	return nil
}

func TestKafkaSinkPublishesAndForwards(t *testing.T) {
	producer := &fakeProducer{}
	inner := NewMemoryStore()
	sink := NewKafkaSink(producer, inner)

	userID := domain.NewUserID()
	event := Event{
		Timestamp: time.Now(),
		UserID:    userID,
		Action:    ActionRegistrationCompleted,
		Study:     "study-a",
	}
	require.NoError(t, sink.Append(context.Background(), event))

	require.Len(t, producer.values, 1)
	assert.Equal(t, userID.String(), producer.keys[0])

	var decoded Event
	require.NoError(t, json.Unmarshal(producer.values[0], &decoded))
	assert.Equal(t, ActionRegistrationCompleted, decoded.Action)
	assert.Equal(t, domain.StudyID("study-a"), decoded.Study)

	stored, err := sink.ListByUser(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
}
