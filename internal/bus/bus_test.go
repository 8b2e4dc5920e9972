package bus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

func TestStepMessage_ValidateRejectsMissingIDs(t *testing.T) {
	msg := StepMessage{Step: StepOverview}
	require.Error(t, msg.Validate())
}

func TestStepMessage_ValidateRejectsUnknownStep(t *testing.T) {
	msg := StepMessage{TaskID: 1, ReportID: 2, Step: Step("bogus")}
	require.Error(t, msg.Validate())
}

func TestStepMessage_ValidateAcceptsWellFormed(t *testing.T) {
	msg := StepMessage{TaskID: 1, ReportID: 2, Step: StepAnalysis, Timestamp: time.Now()}
	require.NoError(t, msg.Validate())
}

func TestTopicsForStep_MapsEachStepToDefaultAndV2(t *testing.T) {
	def, v2 := TopicsForStep(StepIdea)
	require.Equal(t, TopicIdea, def)
	require.Equal(t, TopicIdeaV2, v2)
}

func TestIsV2_DistinguishesFamilies(t *testing.T) {
	require.True(t, IsV2(TopicAnalysisV2))
	require.False(t, IsV2(TopicAnalysis))
}

type fakeWriter struct {
	failures int
	calls    int
	lastMsgs []kafka.Message
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.calls++
	f.lastMsgs = msgs
	if f.calls <= f.failures {
		return context.DeadlineExceeded
	}
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestProducer_PublishRetriesTransientFailureThenSucceeds(t *testing.T) {
	w := &fakeWriter{failures: 2}
	p := NewProducerWithWriter(w, 5)
	err := p.Publish(context.Background(), TopicOverview, StepMessage{
		TaskID: 1, ReportID: 2, Step: StepOverview, Timestamp: time.Now(),
	})
	require.NoError(t, err)
	require.Equal(t, 3, w.calls)
}

func TestProducer_PublishRejectsInvalidMessageWithoutCallingWriter(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, 5)
	err := p.Publish(context.Background(), TopicOverview, StepMessage{})
	require.Error(t, err)
	require.Equal(t, 0, w.calls)
}

func TestProducer_PublishReportCreatedPublishesThreeSteps(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, 5)
	err := p.PublishReportCreated(context.Background(), 1, 2, "token", false, time.Now())
	require.NoError(t, err)
	require.Equal(t, 3, w.calls)
}

type fakeReader struct {
	messages  []kafka.Message
	idx       int
	committed []kafka.Message
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if f.idx >= len(f.messages) {
		return kafka.Message{}, context.Canceled
	}
	m := f.messages[f.idx]
	f.idx++
	return m, nil
}

func (f *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.committed = append(f.committed, msgs...)
	return nil
}

func (f *fakeReader) Close() error { return nil }

func TestConsumer_CommitsOffsetEvenWhenHandlerErrors(t *testing.T) {
	msg := StepMessage{TaskID: 1, ReportID: 2, Step: StepAnalysis, Timestamp: time.Now()}
	payload, _ := json.Marshal(msg)
	r := &fakeReader{messages: []kafka.Message{{Topic: string(TopicAnalysis), Value: payload}}}

	var handled bool
	c := NewConsumerWithReader(r, 2, func(ctx context.Context, m StepMessage) error {
		handled = true
		return context.DeadlineExceeded
	})
	err := c.Run(context.Background())
	require.NoError(t, err)
	require.True(t, handled)
	require.Len(t, r.committed, 1)
}

func TestConsumer_V2TopicForcesSkipVectorSave(t *testing.T) {
	msg := StepMessage{TaskID: 1, ReportID: 2, Step: StepOverview, Timestamp: time.Now()}
	payload, _ := json.Marshal(msg)
	r := &fakeReader{messages: []kafka.Message{{Topic: string(TopicOverviewV2), Value: payload}}}

	var gotSkip bool
	c := NewConsumerWithReader(r, 1, func(ctx context.Context, m StepMessage) error {
		gotSkip = m.SkipVectorSave
		return nil
	})
	require.NoError(t, c.Run(context.Background()))
	require.True(t, gotSkip)
}

func TestConsumer_InvalidJSONIsDroppedWithoutCallingHandler(t *testing.T) {
	r := &fakeReader{messages: []kafka.Message{{Topic: string(TopicIdea), Value: []byte("{not json")}}}}
	var called bool
	c := NewConsumerWithReader(r, 1, func(ctx context.Context, m StepMessage) error {
		called = true
		return nil
	})
	require.NoError(t, c.Run(context.Background()))
	require.False(t, called)
	require.Len(t, r.committed, 1)
}
