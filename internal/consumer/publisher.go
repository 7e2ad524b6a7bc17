package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// Writer is the subset of *kafka.Writer the publisher uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewWriter returns a kafka-go writer for topic.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// Publisher enqueues team approval checks for a Consumer.
type Publisher struct {
	w Writer
}

func NewPublisher(w Writer) *Publisher {
	return &Publisher{w: w}
}

// Publish enqueues requests keyed by team id, so checks for one team stay
// ordered on one partition.
func (p *Publisher) Publish(ctx context.Context, reqs ...Request) error {
	msgs := make([]kafka.Message, 0, len(reqs))
	for _, r := range reqs {
		if r.TeamID == "" {
			return fmt.Errorf("publish: team id is required")
		}
		value, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("publish: %w", err)
		}
		msgs = append(msgs, kafka.Message{Key: []byte(r.TeamID), Value: value})
	}
	if err := p.w.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.w.Close()
}
