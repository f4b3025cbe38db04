package skills

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Step trace statuses
const (
	StatusDone    = "done"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// StepTrace records one chain step's execution
type StepTrace struct {
	Name      string `json:"name"`
	Version   string `json:"version,omitempty"`
	MaxSteps  int    `json:"max_steps,omitempty"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

// Chain runs registered skills in a fixed order
type Chain struct {
	registry *Registry
	logger   *logrus.Logger
}

// NewChain creates a chain over the given registry
func NewChain(registry *Registry, logger *logrus.Logger) *Chain {
	if logger == nil {
		logger = logrus.New()
	}
	return &Chain{registry: registry, logger: logger}
}

// Run executes the named steps in order against the workspace. A failing step
// is recorded and the chain continues; names with no registered skill are
// traced as skipped. With no names given the full chain order runs.
func (c *Chain) Run(ctx context.Context, ws *Workspace, names ...string) []StepTrace {
	if len(names) == 0 {
		names = ChainOrder
	}

	traces := make([]StepTrace, 0, len(names))
	for _, name := range names {
		skill, err := c.registry.Get(name)
		if err != nil {
			traces = append(traces, StepTrace{Name: name, Status: StatusSkipped})
			continue
		}

		start := time.Now()
		trace := StepTrace{
			Name:     name,
			Version:  skill.Version(),
			MaxSteps: skill.MaxSteps(),
			Status:   StatusDone,
		}

		if err := skill.Execute(ctx, ws); err != nil {
			trace.Status = StatusError
			trace.Error = err.Error()
			ws.Errors = append(ws.Errors, fmt.Sprintf("%s: %v", name, err))
			c.logger.WithField("skill", name).WithError(err).Warn("skill failed")
		}
		trace.ElapsedMs = time.Since(start).Milliseconds()
		traces = append(traces, trace)
	}
	return traces
}
