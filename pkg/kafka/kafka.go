package kafka

import (
	"log"

	ckafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/livecart/lc-checkout/config"
)

// NewProducer builds a confluent kafka producer from configuration.
func NewProducer() *ckafka.Producer {
	c := config.Get()

	producer, err := ckafka.NewProducer(&ckafka.ConfigMap{
		"bootstrap.servers": c.Kafka.BootstrapServers,
		"client.id":         c.Kafka.ClientID,
		"acks":              "all",
	})
	if err != nil {
		log.Fatalf("create kafka producer: %v", err)
	}

	return producer
}
