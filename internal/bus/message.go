// Package bus implements the message bus (C8): a kafka-go publisher with
// bounded publish retries, and a per-topic consumer that runs a registered
// handler and commits the offset regardless of handler outcome.
package bus

import (
	"fmt"
	"time"
)

// Step identifies which of the three independently schedulable analyses a
// message carries.
type Step string

const (
	StepOverview Step = "overview"
	StepAnalysis Step = "analysis"
	StepIdea     Step = "idea"
)

// StepMessage is the wire schema for every topic this package serves:
// {task_id, report_id, step, google_access_token?, skip_vector_save?, timestamp}.
type StepMessage struct {
	TaskID            int64     `json:"task_id"`
	ReportID          int64     `json:"report_id"`
	Step              Step      `json:"step"`
	GoogleAccessToken string    `json:"google_access_token,omitempty"`
	SkipVectorSave    bool      `json:"skip_vector_save,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

// Validate enforces the invariant-violation boundary: a message missing its
// required identifiers or carrying an unrecognized step is not retried, it
// is a structural defect the consumer must reject outright.
func (m StepMessage) Validate() error {
	if m.TaskID == 0 || m.ReportID == 0 {
		return fmt.Errorf("step message missing task_id/report_id")
	}
	switch m.Step {
	case StepOverview, StepAnalysis, StepIdea:
	default:
		return fmt.Errorf("step message has unrecognized step %q", m.Step)
	}
	return nil
}

// Topic names the two topic families described by the pipeline: a default
// family that performs vector-store writes, and a "-v2" family that must
// skip them. Both carry the same StepMessage schema.
type Topic string

const (
	TopicOverview Topic = "overview-topic"
	TopicAnalysis Topic = "analysis-topic"
	TopicIdea     Topic = "idea-topic"

	TopicOverviewV2 Topic = "overview-topic-v2"
	TopicAnalysisV2 Topic = "analysis-topic-v2"
	TopicIdeaV2     Topic = "idea-topic-v2"
)

// TopicsForStep returns the default and v2 topic names carrying messages for
// a given step, in (default, v2) order.
func TopicsForStep(step Step) (Topic, Topic) {
	switch step {
	case StepOverview:
		return TopicOverview, TopicOverviewV2
	case StepAnalysis:
		return TopicAnalysis, TopicAnalysisV2
	case StepIdea:
		return TopicIdea, TopicIdeaV2
	default:
		return "", ""
	}
}

// AllTopics lists every topic a worker fleet may subscribe to, default
// families first then their v2 counterparts.
func AllTopics() []Topic {
	return []Topic{
		TopicOverview, TopicAnalysis, TopicIdea,
		TopicOverviewV2, TopicAnalysisV2, TopicIdeaV2,
	}
}

// IsV2 reports whether topic belongs to the "-v2" family, which implies
// skip_vector_save semantics even when the in-message flag is unset.
func IsV2(topic Topic) bool {
	switch topic {
	case TopicOverviewV2, TopicAnalysisV2, TopicIdeaV2:
		return true
	default:
		return false
	}
}
