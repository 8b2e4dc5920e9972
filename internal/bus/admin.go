package bus

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/segmentio/kafka-go"
)

// CheckBrokers dials each broker in turn until one answers or timeout
// elapses, so a worker or the control plane fails fast at startup rather
// than silently retrying forever once a Consumer/Producer starts polling.
func CheckBrokers(ctx context.Context, brokers []string, timeout time.Duration) error {
	if len(brokers) == 0 {
		return fmt.Errorf("no brokers provided")
	}

	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		for _, b := range brokers {
			conn, err := kafka.DialContext(ctx, "tcp", b)
			if err == nil {
				_ = conn.Close()
				return nil
			}
			lastErr = err
		}
		select {
		case <-time.After(200 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("failed to reach any broker within %s: last error: %v", timeout, lastErr)
}

// EnsureTopics creates each of topics (callers pass AllTopics()) if it does
// not already exist, so a freshly provisioned Kafka cluster does not need a manual
// topic-creation step before the first report is published.
func EnsureTopics(ctx context.Context, brokers []string, topics []Topic) error {
	if len(brokers) == 0 {
		return fmt.Errorf("no brokers provided")
	}

	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("dial broker %s: %w", brokers[0], err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("get controller: %w", err)
	}
	controllerAddr := net.JoinHostPort(controller.Host, fmt.Sprint(controller.Port))

	ctrlConn, err := kafka.DialContext(ctx, "tcp", controllerAddr)
	if err != nil {
		return fmt.Errorf("dial controller %s: %w", controllerAddr, err)
	}
	defer ctrlConn.Close()

	for _, topic := range topics {
		parts, err := ctrlConn.ReadPartitions(string(topic))
		if err != nil {
			log.Printf("read partitions for topic=%s error: %v", topic, err)
		}
		if len(parts) > 0 {
			continue
		}
		cfg := kafka.TopicConfig{Topic: string(topic), NumPartitions: 1, ReplicationFactor: 1}
		if err := ctrlConn.CreateTopics(cfg); err != nil {
			return fmt.Errorf("create topic %s: %w", topic, err)
		}
		log.Printf("created topic: %s", topic)
	}
	return nil
}
