// Package pipeline composes the sync stages into the two orchestration
// strategies: a sequential chain for the near-real-time path and an
// independent fan-out group for periodic full reconciliation. Stages share
// no data; they coordinate through the persistent store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adflowio/bridge/logger"
	"github.com/adflowio/bridge/telemetry"
)

// Stage is one pipeline step. Run returns the processed count; errors are
// surfaced for scheduler-level retry, never swallowed.
type Stage struct {
	Name string
	Run  func(ctx context.Context) (int, error)
}

type Pipeline struct {
	stages []Stage
}

func New(stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages}
}

// RunChain executes the stages strictly sequentially. A stage failure halts
// the remaining chain. The returned run id exists for external
// observability only; the pipeline holds no other state.
func (p *Pipeline) RunChain(ctx context.Context) (string, error) {
	runID := uuid.NewString()
	logger.Info("pipeline chain started", "runID", runID, "stages", len(p.stages))

	for _, stage := range p.stages {
		if _, err := p.runStage(ctx, runID, stage); err != nil {
			telemetry.PipelineRuns.WithLabelValues("chain", "error").Inc()
			return runID, fmt.Errorf("stage %s: %w", stage.Name, err)
		}
	}

	telemetry.PipelineRuns.WithLabelValues("chain", "success").Inc()
	logger.Info("pipeline chain completed", "runID", runID)
	return runID, nil
}

// RunGroup dispatches all stages independently; one stage's failure does
// not prevent the others from running. Failures are aggregated into the
// returned error.
func (p *Pipeline) RunGroup(ctx context.Context) (string, error) {
	runID := uuid.NewString()
	logger.Info("pipeline group started", "runID", runID, "stages", len(p.stages))

	errs := make([]error, len(p.stages))
	var wg sync.WaitGroup

	for i, stage := range p.stages {
		wg.Add(1)
		go func(i int, stage Stage) {
			defer wg.Done()
			if _, err := p.runStage(ctx, runID, stage); err != nil {
				errs[i] = fmt.Errorf("stage %s: %w", stage.Name, err)
			}
		}(i, stage)
	}

	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		telemetry.PipelineRuns.WithLabelValues("group", "error").Inc()
		return runID, err
	}

	telemetry.PipelineRuns.WithLabelValues("group", "success").Inc()
	logger.Info("pipeline group completed", "runID", runID)
	return runID, nil
}

func (p *Pipeline) runStage(ctx context.Context, runID string, stage Stage) (int, error) {
	start := time.Now()
	count, err := stage.Run(ctx)
	telemetry.StageDuration.WithLabelValues(stage.Name).Observe(time.Since(start).Seconds())

	if err != nil {
		logger.Error("stage failed", "runID", runID, "stage", stage.Name, "error", err)
		return count, err
	}

	logger.Info("stage completed", "runID", runID, "stage", stage.Name, "processed", count)
	return count, nil
}
