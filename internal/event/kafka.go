package event

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// KafkaPublisher writes events to a Kafka topic through an async writer.
// Write errors surface in the writer's error logger and are discarded, same
// contract as the webhook publisher.
type KafkaPublisher struct {
	writer  *kafka.Writer
	service string
}

func NewKafkaPublisher(brokers []string, topic, service string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        true,
			ErrorLogger: kafka.LoggerFunc(func(msg string, args ...any) {
				log.Warn().Msgf("event: kafka write failed: "+msg, args...)
			}),
		},
		service: service,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, eventType string, data any) {
	payload, err := json.Marshal(Envelope{Type: eventType, Service: p.service, Data: data})
	if err != nil {
		log.Warn().Err(err).Str("event_type", eventType).Msg("event: failed to encode event")
		return
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(eventType),
		Value: payload,
	})
	if err != nil {
		log.Warn().Err(err).Str("event_type", eventType).Msg("event: failed to enqueue event")
	}
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
