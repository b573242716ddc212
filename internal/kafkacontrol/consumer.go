// Package kafkacontrol carries control messages over Kafka: a consumer that
// feeds CLEAR_CACHES / CACHE_MODEL / SKIP_WAITING into the controller, and a
// publisher that mirrors client broadcasts to a topic.
package kafkacontrol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"github.com/mohammed-shakir/offline-asset-cache/internal/controller"
	obs "github.com/mohammed-shakir/offline-asset-cache/internal/core/observability"
	mylog "github.com/mohammed-shakir/offline-asset-cache/internal/logger"
)

// Dispatcher is the part of the controller the consumer drives.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev controller.Event) controller.Action
}

type Consumer struct {
	cfg    Config
	logger *slog.Logger
	zlog   *zerolog.Logger
	target Dispatcher
	dedupe *offsetDedupe
}

// New builds a consumer. zl receives structured per-message error records; nil discards them.
func New(cfg Config, logger *slog.Logger, zl *zerolog.Logger, target Dispatcher) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	if zl == nil {
		nop := zerolog.Nop()
		zl = &nop
	}
	return &Consumer{
		cfg:    cfg,
		logger: logger,
		zlog:   zl,
		target: target,
		dedupe: newOffsetDedupe(cfg.DedupeSize),
	}
}

// Start consumes the control topic until ctx is done.
func (c *Consumer) Start(ctx context.Context) error {
	if c.target == nil {
		return errors.New("kafkacontrol: missing dispatcher")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	handler := &groupHandler{process: c.ProcessOne}
	c.logger.Info("kafka control consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("kafka control consumer shutting down")
			return nil
		default:
			if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				c.zlog.Error().Err(err).
					Strs("brokers", c.cfg.Brokers).
					Str("topic", c.cfg.Topic).
					Msg("kafka consumer error")
				select {
				case <-ctx.Done():
				case <-time.After(2 * time.Second):
				}
			}
		}
	}
}

// ProcessOne applies one control message. Undecodable or unknown messages are
// logged and skipped; redeliveries of an applied offset are ignored.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx = mylog.WithComponent(ctx, "kafka_control")

	m, err := controller.ParseMessage(msg.Value)
	if err != nil {
		obs.IncControlMessage("kafka", "rejected")
		mylog.FromContext(ctx, c.zlog).Warn().Err(err).
			Str("topic", msg.Topic).
			Int32("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("skipping control message")
		return nil
	}

	key := fmt.Sprintf("%s/%d", msg.Topic, msg.Partition)
	if !c.dedupe.shouldApply(key, msg.Offset) {
		obs.IncControlMessage(m.Type, "duplicate")
		c.logger.DebugContext(ctx, "duplicate control message", "type", m.Type, "offset", msg.Offset)
		return nil
	}

	start := time.Now()
	act := c.target.Dispatch(ctx, m)
	c.logger.InfoContext(ctx, "control message applied",
		"type", m.Type, "model", m.ModelID, "action", fmt.Sprintf("%T", act),
		"duration", time.Since(start).String())
	return nil
}
