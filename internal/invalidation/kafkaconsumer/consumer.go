package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	obs "github.com/mohammed-shakir/suburb-boundary-cache/internal/core/observability"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/invalidation"
	mylog "github.com/mohammed-shakir/suburb-boundary-cache/internal/logger"
)

// Cache is the part of the boundary store an event can change.
type Cache interface {
	Delete(ctx context.Context, regions ...string) error
	Clear(ctx context.Context) error
}

// Forgetter drops process-local copies of fetched boundaries.
type Forgetter interface {
	Forget(names ...string)
}

type Consumer struct {
	cfg    Config
	logger *slog.Logger
	cache  Cache
	forget Forgetter
	seen   *idDedupe
	ready  atomic.Bool
	zlog   *zerolog.Logger
}

func New(cfg Config, logger *slog.Logger, c Cache, f Forgetter) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		cfg:    cfg,
		logger: logger,
		cache:  c,
		forget: f,
		seen:   newIDDedupe(cfg.DedupeSize),
		zlog:   mylog.Discard(),
	}
}

// Ping reports whether the consumer currently holds a group session.
func (c *Consumer) Ping(context.Context) error {
	if !c.ready.Load() {
		return errors.New("kafka consumer not in a group session")
	}
	return nil
}

// consumes invalidation events from kafka and processing them
func (c *Consumer) Start(ctx context.Context) error {
	if c.cache == nil {
		return errors.New("kafkaconsumer: missing cache")
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

	base := mylog.WithComponent(context.Background(), "kafka_consumer")
	zl := mylog.Build(mylog.Config{
		Level:     "info",
		Service:   "mapserver",
		Component: "kafka_consumer",
	}, nil)
	c.zlog = mylog.FromContext(base, &zl)

	handler := &groupHandler{process: c.ProcessOne, ready: &c.ready}

	c.logger.Info("kafka invalidation consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("kafka invalidation consumer shutting down")
			return nil
		default:
			if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
				c.logger.Error("consumer error", "err", err)
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

// process a single invalidation event message
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		obs.ObserveInvalidation("decode", err)
		mylog.FromContext(ctx, c.zlog).Error().
			Str("kind", "decode").
			Str("topic", msg.Topic).
			Int32("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("kafka error")
		// a poison message is skipped rather than blocking the partition
		c.logger.Warn("dropping undecodable invalidation event", "offset", msg.Offset, "err", err)
		return nil
	}
	if err := ev.Validate(); err != nil {
		obs.ObserveInvalidation(ev.Op, err)
		c.logger.Warn("dropping invalid invalidation event", "id", ev.ID, "err", err)
		return nil
	}
	if c.seen.seen(ev.ID) {
		obs.ObserveInvalidationDuplicate(ev.Op)
		c.logger.Debug("duplicate invalidation event (skipping)", "id", ev.ID)
		return nil
	}

	var err error
	switch ev.Op {
	case invalidation.OpEvict:
		err = c.cache.Delete(ctx, ev.Regions...)
	case invalidation.OpClear:
		err = c.cache.Clear(ctx)
	}
	obs.ObserveInvalidation(ev.Op, err)
	if err != nil {
		mylog.FromContext(ctx, c.zlog).Error().
			Str("kind", "cache").
			Str("op", ev.Op).
			Str("id", ev.ID).
			Int32("partition", msg.Partition).
			Msg("kafka error")
		return fmt.Errorf("apply %s: %w", ev.Op, err)
	}

	if c.forget != nil {
		c.forget.Forget(ev.Regions...)
	}
	c.seen.mark(ev.ID)

	c.logger.Info("boundary cache invalidated",
		"id", ev.ID, "op", ev.Op, "regions", ev.Regions, "source", ev.Source)
	return nil
}
