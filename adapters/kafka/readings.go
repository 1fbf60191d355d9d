// Package kafka ingests smart-meter readings from a Kafka topic and feeds
// them into the registry. Provider authentication happens upstream; each
// message carries the provider address the reading is submitted under.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Shopify/sarama"
	"github.com/rs/zerolog"
)

// Reading is the wire form of one smart-meter reading message.
type Reading struct {
	ProviderAddress string `json:"provider_address"`
	MeterID         string `json:"meter_id"`
	Reading         int64  `json:"reading"`
	RecordedAt      int64  `json:"recorded_at"`
}

// Recorder is the registry operation a reading feeds into.
type Recorder interface {
	RecordMeterReading(ctx context.Context, callerAddr, meterID string, reading int64) error
}

// Config holds consumer settings.
type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Consumer reads meter readings from Kafka and records them.
type Consumer struct {
	group    sarama.ConsumerGroup
	topic    string
	recorder Recorder
	logger   zerolog.Logger
}

// NewConsumer creates a consumer group for the readings topic.
func NewConsumer(cfg Config, recorder Recorder, logger zerolog.Logger) (*Consumer, error) {
	sc := sarama.NewConfig()
	sc.Consumer.Return.Errors = true
	sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	sc.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	sc.Consumer.MaxWaitTime = 250 * time.Millisecond

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, sc)
	if err != nil {
		return nil, err
	}
	return &Consumer{
		group:    group,
		topic:    cfg.Topic,
		recorder: recorder,
		logger:   logger,
	}, nil
}

// Run consumes until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	go func() {
		for err := range c.group.Errors() {
			c.logger.Error().Err(err).Msg("kafka consumer error")
		}
	}()

	handler := &readingHandler{consumer: c, ctx: ctx}
	for {
		if err := c.group.Consume(ctx, []string{c.topic}, handler); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Close shuts the consumer group down.
func (c *Consumer) Close() error {
	return c.group.Close()
}

type readingHandler struct {
	consumer *Consumer
	ctx      context.Context
}

func (h *readingHandler) Setup(_ sarama.ConsumerGroupSession) error   { return nil }
func (h *readingHandler) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim records each reading individually. Malformed and rejected
// messages are logged and marked; the claim keeps flowing.
func (h *readingHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		if h.ctx.Err() != nil {
			return h.ctx.Err()
		}
		h.consumer.process(h.ctx, message.Value)
		session.MarkMessage(message, "")
	}
	return nil
}

// process decodes and records one message. Errors never propagate: a bad
// message must not stall the partition.
func (c *Consumer) process(ctx context.Context, value []byte) {
	var r Reading
	if err := json.Unmarshal(value, &r); err != nil {
		c.logger.Warn().Err(err).Msg("malformed reading message")
		return
	}
	if err := c.recorder.RecordMeterReading(ctx, r.ProviderAddress, r.MeterID, r.Reading); err != nil {
		c.logger.Warn().
			Err(err).
			Str("meter_id", r.MeterID).
			Msg("reading rejected")
	}
}
