package kafka

import "time"

// Config holds the Kafka settings used by the outbox publisher.
type Config struct {
	Brokers           string        `envconfig:"KAFKA_BROKERS"`
	Topic             string        `envconfig:"KAFKA_TOPIC" default:"credlife.credential.events"`
	Partitions        int32         `envconfig:"KAFKA_TOPIC_PARTITIONS" default:"3"`
	ReplicationFactor int16         `envconfig:"KAFKA_TOPIC_REPLICATION" default:"1"`
	Acks              string        `envconfig:"KAFKA_ACKS" default:"all"`
	Retries           int           `envconfig:"KAFKA_RETRIES" default:"3"`
	DeliveryTimeout   time.Duration `envconfig:"KAFKA_DELIVERY_TIMEOUT" default:"30s"`
}

// Enabled reports whether brokers are configured.
func (c Config) Enabled() bool {
	return c.Brokers != ""
}

func (c Config) TopicConfig() TopicConfig {
	return TopicConfig{Name: c.Topic, Partitions: c.Partitions, ReplicationFactor: c.ReplicationFactor}
}
