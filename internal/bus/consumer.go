package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"ytreport/internal/config"
	"ytreport/internal/logging"
)

// Handler processes one StepMessage. Handlers classify their own internal
// failures and flip the task axis accordingly; a returned error here is
// logged only, never retried or dead-lettered, since the message is always
// acknowledged (at-least-once with offset-commit after handler return).
type Handler func(ctx context.Context, msg StepMessage) error

// Reader is the subset of *kafka.Reader this package depends on, so tests
// can substitute a fake.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer runs a bounded worker pool over a single topic's message stream,
// dispatching every message to one Handler and committing its offset once
// the handler returns, regardless of outcome. Separate Consumers per topic
// let CPU-light (overview) and CPU-heavy (analysis) worker pools scale
// independently.
type Consumer struct {
	reader      Reader
	handler     Handler
	concurrency int
	logger      *logrus.Entry
}

// NewConsumer constructs a Consumer reading topic with the given consumer
// group, dispatching each message to handler with the given worker
// concurrency.
func NewConsumer(cfg config.KafkaConfig, brokers []string, topic Topic, concurrency int, handler Handler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        cfg.GroupID,
		Topic:          string(topic),
		MinBytes:       1,
		MaxBytes:       10e6,
		StartOffset:    kafka.LastOffset,
		CommitInterval: time.Duration(cfg.AutoCommitSecs) * time.Second,
	})
	if concurrency < 1 {
		concurrency = 1
	}
	return &Consumer{reader: r, handler: handler, concurrency: concurrency, logger: logging.Log.WithField("topic", string(topic))}
}

// NewConsumerWithReader constructs a Consumer around an explicit Reader,
// used by tests to inject a fake.
func NewConsumerWithReader(r Reader, concurrency int, handler Handler) *Consumer {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Consumer{reader: r, handler: handler, concurrency: concurrency, logger: logging.Log.WithField("topic", "test")}
}

// Run fetches messages in a single loop and dispatches them across a
// bounded worker pool, committing each message's offset after its handler
// returns (success or failure alike — dead-letter handling is out of
// scope). Run blocks until ctx is cancelled or the reader returns a
// non-recoverable error.
func (c *Consumer) Run(ctx context.Context) error {
	sem := make(chan struct{}, c.concurrency)
	var wg sync.WaitGroup

	for {
		kmsg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			wg.Wait()
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(kmsg kafka.Message) {
			defer wg.Done()
			defer func() { <-sem }()
			c.process(ctx, kmsg)
		}(kmsg)
	}
}

func (c *Consumer) process(ctx context.Context, kmsg kafka.Message) {
	defer func() {
		if err := c.reader.CommitMessages(context.Background(), kmsg); err != nil {
			c.logger.WithError(err).WithField("offset", kmsg.Offset).Error("commit message offset failed")
		}
	}()

	var msg StepMessage
	if err := json.Unmarshal(kmsg.Value, &msg); err != nil {
		c.logger.WithError(err).Error("step message invariant violation: invalid JSON")
		return
	}
	if IsV2(Topic(kmsg.Topic)) {
		msg.SkipVectorSave = true
	}
	if err := msg.Validate(); err != nil {
		c.logger.WithError(err).Error("step message invariant violation")
		return
	}

	hctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()
	if err := c.handler(hctx, msg); err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{"report_id": msg.ReportID, "step": msg.Step}).Error("step handler returned error")
	}
}

// Close releases the underlying reader's connections.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
