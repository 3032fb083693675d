package nats

import (
	"context"
	"fmt"
	"log"

	"medviewer-be/pkg/events"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// EventHandler is a function that processes an event.
type EventHandler func(ctx context.Context, event events.Event) error

// Subscriber handles listening for events from NATS.
type Subscriber struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	consume jetstream.ConsumeContext
}

func NewSubscriber(url string) (*Subscriber, error) {
	nc, js, err := connect(url)
	if err != nil {
		return nil, err
	}
	return &Subscriber{nc: nc, js: js}, nil
}

// Subscribe registers a durable consumer on the viewer stream, so events
// published while the service was down are still delivered.
func (s *Subscriber) Subscribe(subject string, durableName string, handler EventHandler) error {
	ctx := context.Background()

	consumer, err := s.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       durableName,
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		if err := Dispatch(msg.Data(), handler); err != nil {
			log.Printf("Handler failed for event %s: %v", msg.Subject(), err)
			msg.Nak()
			return
		}
		msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	s.consume = cc

	log.Printf("Subscribed to %s with durable %s", subject, durableName)
	return nil
}

// Dispatch decodes one message and runs handler on it.
func Dispatch(data []byte, handler EventHandler) error {
	event, err := decode(data)
	if err != nil {
		return fmt.Errorf("unmarshal event: %w", err)
	}
	return handler(context.Background(), event)
}

// Close stops consuming and closes the connection.
func (s *Subscriber) Close() {
	if s.consume != nil {
		s.consume.Stop()
	}
	if s.nc != nil {
		s.nc.Close()
	}
}
