package kafkacontrol

import (
	"time"

	"github.com/mohammed-shakir/offline-asset-cache/internal/core/config"
)

type Config struct {
	Brokers             []string
	Topic               string
	GroupID             string
	SessionTimeout      time.Duration
	Heartbeat           time.Duration
	RebalanceTimeout    time.Duration
	InitialOffsetOldest bool
	DedupeSize          int
}

// FromApp derives the consumer settings from the service config. Control
// messages are commands, so a fresh group starts at the newest offset rather
// than replaying old clears.
func FromApp(c config.Config) Config {
	return Config{
		Brokers:          c.Kafka.Brokers,
		Topic:            c.Kafka.ControlTopic,
		GroupID:          c.Kafka.GroupID,
		SessionTimeout:   30 * time.Second,
		Heartbeat:        3 * time.Second,
		RebalanceTimeout: 30 * time.Second,
		DedupeSize:       1024,
	}
}
