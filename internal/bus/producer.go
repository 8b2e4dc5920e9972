package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"ytreport/internal/config"
	"ytreport/internal/errs"
	"ytreport/internal/retry"
)

// Writer is the subset of *kafka.Writer this package depends on, so tests
// can substitute a fake.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes StepMessages with bounded exponential-backoff retry.
// One Producer serves every topic; kafka-go routes by the Topic field on
// each kafka.Message rather than requiring a writer per topic.
type Producer struct {
	writer      Writer
	maxAttempts int
}

// NewProducer constructs a Producer. brokers is a list of "host:port"
// addresses.
func NewProducer(cfg config.KafkaConfig, brokers []string) *Producer {
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.Hash{},
	}
	return &Producer{writer: w, maxAttempts: cfg.PublishRetries}
}

// NewProducerWithWriter constructs a Producer around an explicit Writer,
// used by tests to inject a fake.
func NewProducerWithWriter(w Writer, maxAttempts int) *Producer {
	return &Producer{writer: w, maxAttempts: maxAttempts}
}

// Publish writes msg to topic, retrying transient failures up to the
// configured publish-retry budget with exponential backoff. The report id
// is used as the partition key so per-report ordering holds within a topic.
func (p *Producer) Publish(ctx context.Context, topic Topic, msg StepMessage) error {
	if err := msg.Validate(); err != nil {
		return errs.New(errs.KindInvariantViolation, err)
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal step message: %w", err)
	}

	kmsg := kafka.Message{
		Topic: string(topic),
		Key:   []byte(strconv.FormatInt(msg.ReportID, 10)),
		Value: payload,
	}

	schedule := retry.Exponential()
	return retry.Do(ctx, p.maxAttempts, schedule, errs.Classify, func(ctx context.Context) error {
		if err := p.writer.WriteMessages(ctx, kmsg); err != nil {
			return errs.New(errs.KindTransientExternal, err)
		}
		return nil
	})
}

// PublishReportCreated publishes the three step messages C10 enqueues when
// a report is created, routing to the v2 topic family and forcing
// skip_vector_save when v2 is true. timestamp is supplied by the caller
// since this package may not call time.Now() directly in request paths
// under test.
func (p *Producer) PublishReportCreated(ctx context.Context, taskID, reportID int64, googleAccessToken string, v2 bool, timestamp time.Time) error {
	for _, step := range []Step{StepOverview, StepAnalysis, StepIdea} {
		defaultTopic, v2Topic := TopicsForStep(step)
		topic := defaultTopic
		if v2 {
			topic = v2Topic
		}
		msg := StepMessage{
			TaskID:            taskID,
			ReportID:          reportID,
			Step:              step,
			GoogleAccessToken: googleAccessToken,
			SkipVectorSave:    v2,
			Timestamp:         timestamp,
		}
		if err := p.Publish(ctx, topic, msg); err != nil {
			return fmt.Errorf("publish %s step message: %w", step, err)
		}
	}
	return nil
}

// Close releases the underlying writer's connections.
func (p *Producer) Close() error {
	return p.writer.Close()
}
