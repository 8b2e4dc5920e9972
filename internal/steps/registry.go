package steps

import "ytreport/internal/bus"

// Registry maps each step to the bus.Handler that processes it. It is built
// once at worker startup from a single Deps value; each worker binary
// looks up only the handler matching the topic it consumes.
type Registry map[bus.Step]bus.Handler

// NewRegistry builds the full step-to-handler mapping.
func NewRegistry(deps Deps) Registry {
	overview := NewOverviewHandler(deps)
	analysis := NewAnalysisHandler(deps)
	idea := NewIdeaHandler(deps)
	return Registry{
		bus.StepOverview: overview.Handle,
		bus.StepAnalysis: analysis.Handle,
		bus.StepIdea:     idea.Handle,
	}
}

// For returns the handler registered for step, and whether one exists.
func (r Registry) For(step bus.Step) (bus.Handler, bool) {
	h, ok := r[step]
	return h, ok
}
