package publisher

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/davicafu/eventlab/internal/outbox/domain"
	sharedEvents "github.com/davicafu/eventlab/internal/shared/events"
)

// KafkaPublisher entrega mensajes del outbox a Kafka. La key de partición es
// el aggregate id, así todos los eventos de un agregado caen en la misma
// partición y conservan su orden relativo.
type KafkaPublisher struct {
	writer       *kafka.Writer
	registry     map[string]sharedEvents.EventMetadata // event_type → topic
	defaultTopic string                                // para tipos fuera del registro
	log          *zap.Logger
}

func NewKafkaPublisher(writer *kafka.Writer, registry map[string]sharedEvents.EventMetadata, defaultTopic string, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, registry: registry, defaultTopic: defaultTopic, log: log}
}

func (p *KafkaPublisher) Publish(ctx context.Context, msg domain.Message) error {
	return p.PublishBatch(ctx, []domain.Message{msg})
}

func (p *KafkaPublisher) PublishBatch(ctx context.Context, msgs []domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	kafkaMsgs := make([]kafka.Message, 0, len(msgs))
	for _, msg := range msgs {
		evt := sharedEvents.IntegrationEvent{
			ID:        msg.ID.String(),
			Type:      msg.EventType,
			Timestamp: msg.CreatedAt,
			Data:      msg.EventData,
			Metadata:  msg.Metadata,
		}
		value, err := json.Marshal(evt)
		if err != nil {
			return &domain.PublishError{Err: err}
		}

		km := kafka.Message{
			Key:   []byte(msg.AggregateID),
			Value: value,
		}
		if meta, ok := p.registry[msg.EventType]; ok {
			km.Topic = meta.Topic
		} else {
			km.Topic = p.defaultTopic
		}
		kafkaMsgs = append(kafkaMsgs, km)
	}

	if err := p.writer.WriteMessages(ctx, kafkaMsgs...); err != nil {
		p.log.Error("Error publishing to Kafka", zap.Error(err))
		return &domain.PublishError{Err: err}
	}

	p.log.Debug("Events published successfully", zap.Int("count", len(msgs)))
	return nil
}

// Verificación estática
var _ domain.Publisher = (*KafkaPublisher)(nil)
