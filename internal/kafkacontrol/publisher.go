package kafkacontrol

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
)

// Publisher mirrors client broadcasts to a Kafka topic. It implements
// clients.Sink and never blocks the broadcaster: a full queue drops.
type Publisher struct {
	topic   string
	logger  *slog.Logger
	events  chan *sarama.ProducerMessage
	prod    sarama.AsyncProducer
	stopped chan struct{}
}

func NewPublisher(brokers []string, topic string, queueSize int, logger *slog.Logger) (*Publisher, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false

	prod, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafkacontrol: create async producer: %w", err)
	}
	return newPublisher(prod, topic, queueSize, logger), nil
}

func newPublisher(prod sarama.AsyncProducer, topic string, queueSize int, logger *slog.Logger) *Publisher {
	if queueSize <= 0 {
		queueSize = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{
		topic:   topic,
		logger:  logger,
		events:  make(chan *sarama.ProducerMessage, queueSize),
		prod:    prod,
		stopped: make(chan struct{}),
	}

	go func() {
		defer close(p.stopped)
		for msg := range p.events {
			p.prod.Input() <- msg
		}
	}()

	go func() {
		for err := range p.prod.Errors() {
			if err != nil {
				p.logger.Warn("kafka publish failed", "topic", p.topic, "err", err)
			}
		}
	}()
	return p
}

// Publish queues one broadcast keyed by its message type.
func (p *Publisher) Publish(typ string, payload []byte) {
	msg := &sarama.ProducerMessage{
		Topic:     p.topic,
		Key:       sarama.StringEncoder(typ),
		Value:     sarama.ByteEncoder(append([]byte(nil), payload...)),
		Timestamp: time.Now(),
	}
	select {
	case p.events <- msg:
	default:
		p.logger.Warn("kafka publish queue full; dropping", "type", typ)
	}
}

func (p *Publisher) Close() error {
	close(p.events)
	<-p.stopped
	if err := p.prod.Close(); err != nil {
		return fmt.Errorf("kafkacontrol: close producer: %w", err)
	}
	return nil
}
