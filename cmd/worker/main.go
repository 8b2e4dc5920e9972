// Command worker runs one Consumer against a single topic, selected via
// -topic, so the overview/analysis/idea pools scale independently per
// spec's §5 concurrency model.
package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"ytreport/internal/bootstrap"
	"ytreport/internal/bus"
	"ytreport/internal/config"
	"ytreport/internal/logging"
	"ytreport/internal/steps"
	"ytreport/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		logging.Log.Fatalf("worker: %v", err)
	}
}

func run() error {
	var (
		topicFlag   = flag.String("topic", "", "topic to consume: overview|analysis|idea (append -v2 for the v2 family)")
		concurrency = flag.Int("concurrency", 4, "number of goroutines processing messages concurrently")
	)
	flag.Parse()

	topic, err := resolveTopic(*topicFlag)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTel)
	if err != nil {
		logging.Log.Warnf("otel init failed, continuing without tracing: %v", err)
		shutdownTracing = func(context.Context) error { return nil }
	}
	defer shutdownTracing(context.Background())

	res, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer res.Close()

	ctxAdmin, cancelAdmin := context.WithTimeout(ctx, 5*time.Second)
	defer cancelAdmin()
	if err := bus.CheckBrokers(ctxAdmin, res.Brokers, 5*time.Second); err != nil {
		return err
	}
	if err := bus.EnsureTopics(ctxAdmin, res.Brokers, bus.AllTopics()); err != nil {
		return err
	}

	registry := steps.NewRegistry(res.Deps)
	step := stepForTopic(topic)
	handler, ok := registry.For(step)
	if !ok {
		return errUnregisteredStep(step)
	}

	consumer := bus.NewConsumer(cfg.Kafka, res.Brokers, topic, *concurrency, handler)
	logging.Log.Infof("worker consuming topic %s with %d workers", topic, *concurrency)
	return consumer.Run(ctx)
}

func stepForTopic(topic bus.Topic) bus.Step {
	switch topic {
	case bus.TopicOverview, bus.TopicOverviewV2:
		return bus.StepOverview
	case bus.TopicAnalysis, bus.TopicAnalysisV2:
		return bus.StepAnalysis
	default:
		return bus.StepIdea
	}
}

func resolveTopic(flagVal string) (bus.Topic, error) {
	switch flagVal {
	case "overview":
		return bus.TopicOverview, nil
	case "overview-v2":
		return bus.TopicOverviewV2, nil
	case "analysis":
		return bus.TopicAnalysis, nil
	case "analysis-v2":
		return bus.TopicAnalysisV2, nil
	case "idea":
		return bus.TopicIdea, nil
	case "idea-v2":
		return bus.TopicIdeaV2, nil
	default:
		return "", errUnknownTopic(flagVal)
	}
}

type errUnknownTopic string

func (e errUnknownTopic) Error() string {
	return "unknown -topic value " + string(e) + " (want one of overview|overview-v2|analysis|analysis-v2|idea|idea-v2)"
}

type errUnregisteredStep bus.Step

func (e errUnregisteredStep) Error() string {
	return "no handler registered for step " + string(e)
}
