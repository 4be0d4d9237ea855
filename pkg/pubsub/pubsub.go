package pubsub

import (
	"context"

	ckafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/sirupsen/logrus"
)

// Publisher is the fire-and-forget event emission used by use cases. A failed
// publish is logged, never propagated, so business writes are not rolled back
// by a broker outage.
type Publisher interface {
	Publish(ctx context.Context, topic string, key string, headers map[string]string, message []byte)
	Close()
}

type confluentKafkaPublisher struct {
	logger   *logrus.Logger
	producer *ckafka.Producer
}

func PublisherFromConfluentKafkaProducer(logger *logrus.Logger, producer *ckafka.Producer) Publisher {
	p := &confluentKafkaPublisher{
		logger:   logger,
		producer: producer,
	}

	go p.drainDeliveryReports()

	return p
}

func (p *confluentKafkaPublisher) drainDeliveryReports() {
	for e := range p.producer.Events() {
		if m, ok := e.(*ckafka.Message); ok && m.TopicPartition.Error != nil {
			p.logger.WithError(m.TopicPartition.Error).WithField("topic", *m.TopicPartition.Topic).Error("message delivery failed")
		}
	}
}

// Publish implements Publisher.
func (p *confluentKafkaPublisher) Publish(ctx context.Context, topic string, key string, headers map[string]string, message []byte) {
	kheaders := make([]ckafka.Header, 0, len(headers))
	for k, v := range headers {
		kheaders = append(kheaders, ckafka.Header{Key: k, Value: []byte(v)})
	}

	err := p.producer.Produce(&ckafka.Message{
		TopicPartition: ckafka.TopicPartition{Topic: &topic, Partition: ckafka.PartitionAny},
		Key:            []byte(key),
		Headers:        kheaders,
		Value:          message,
	}, nil)
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithField("topic", topic).Error("publish failed")
	}
}

// Close implements Publisher.
func (p *confluentKafkaPublisher) Close() {
	p.producer.Flush(5000)
	p.producer.Close()
}
