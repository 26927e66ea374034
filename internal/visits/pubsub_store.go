package visits

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
)

// Publisher sends a message and waits for the server-assigned id.
type Publisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) (string, error)
	Stop()
}

// topicPublisher adapts a Pub/Sub publisher to Publisher.
type topicPublisher struct {
	publisher *pubsub.Publisher
}

func (p *topicPublisher) Publish(ctx context.Context, msg *pubsub.Message) (string, error) {
	return p.publisher.Publish(ctx, msg).Get(ctx)
}

func (p *topicPublisher) Stop() {
	p.publisher.Stop()
}

// PubSubStore publishes visits to a Pub/Sub topic for the worker to persist.
type PubSubStore struct {
	publisher Publisher
}

// NewPubSubStore creates a store publishing to the given topic.
func NewPubSubStore(client *pubsub.Client, topic string) *PubSubStore {
	return NewPubSubStoreWithPublisher(&topicPublisher{publisher: client.Publisher(topic)})
}

// NewPubSubStoreWithPublisher creates a store over an existing publisher.
func NewPubSubStoreWithPublisher(p Publisher) *PubSubStore {
	return &PubSubStore{publisher: p}
}

// Save publishes the visit and waits for the publish to be acknowledged.
func (s *PubSubStore) Save(ctx context.Context, v Visit) error {
	if v.SystemID == "" {
		return ErrMissingSystemID
	}

	data, err := EncodeMessage(v)
	if err != nil {
		return err
	}

	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"job_type":  JobTypeVisitRecorded,
			"visit_id":  uuid.NewString(),
			"system_id": v.SystemID,
		},
	}

	if _, err := s.publisher.Publish(ctx, msg); err != nil {
		return fmt.Errorf("publish visit: %w", err)
	}
	return nil
}

// Close flushes pending messages and stops the publisher.
func (s *PubSubStore) Close() {
	s.publisher.Stop()
}
