package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/runoshun/crew-agent/internal/domain"
)

// Error backoff shape. Intervals come from the loop configuration.
const (
	backoffMultiplier    = 2
	backoffRandomization = 0.2
)

// RunAgentOutput summarizes a finished agent run.
type RunAgentOutput struct {
	Cycles    int // Tasks claimed and driven through a cycle
	Completed int // Tasks reported completed
	Failed    int // Tasks reported failed
	Errors    int // Iterations that ended in an error
}

// RunAgent is the use case for the agent's main loop.
// Fields are ordered to minimize memory padding.
type RunAgent struct {
	claim   *ClaimTask
	planner *RunPlanner
	backend domain.Backend
	logger  domain.Logger
	wait    func(ctx context.Context, d time.Duration) bool
	loop    domain.LoopConfig
}

// NewRunAgent creates a new RunAgent use case.
func NewRunAgent(
	claim *ClaimTask,
	planner *RunPlanner,
	backend domain.Backend,
	logger domain.Logger,
	loop domain.LoopConfig,
) *RunAgent {
	return &RunAgent{
		claim:   claim,
		planner: planner,
		backend: backend,
		logger:  logger,
		loop:    loop,
		wait:    sleepContext,
	}
}

// Execute claims and processes tasks until ctx is cancelled.
// Cancellation is a normal exit: it returns the summary and a nil error.
//
// After a processed task the next claim is attempted immediately, after an
// empty claim the loop waits the idle interval, and after an error it waits
// the next exponential backoff interval. Any error-free iteration resets the backoff.
func (uc *RunAgent) Execute(ctx context.Context) (*RunAgentOutput, error) {
	out := &RunAgentOutput{}
	bo := uc.newBackOff()
	uc.logger.Info("", "loop", "starting task loop")

	for ctx.Err() == nil {
		var wait time.Duration
		idle, err := uc.iterate(ctx, out)
		switch {
		case err != nil:
			out.Errors++
			wait = bo.NextBackOff()
			uc.logger.Error("", "loop", fmt.Sprintf("%v; retrying in %s", err, wait.Round(time.Millisecond)))
		case idle:
			bo.Reset()
			wait = uc.loop.IdleInterval
		default:
			bo.Reset()
		}

		if wait > 0 && !uc.wait(ctx, wait) {
			break
		}
	}

	uc.logger.Info("", "loop", fmt.Sprintf("task loop stopped after %d cycles", out.Cycles))
	return out, nil
}

// iterate performs one claim and, if a task was claimed, one planner cycle.
// idle reports that there was nothing to claim.
func (uc *RunAgent) iterate(ctx context.Context, out *RunAgentOutput) (idle bool, err error) {
	claimed, err := uc.claim.Execute(ctx)
	if err != nil {
		return false, err
	}
	if claimed.Task == nil {
		return true, nil
	}

	task := claimed.Task
	out.Cycles++
	res, err := uc.planner.Execute(ctx, RunPlannerInput{Task: task})
	if err != nil {
		uc.reportFailed(ctx, task)
		out.Failed++
		return false, err
	}
	if res.FinalStatus == domain.StatusCompleted {
		out.Completed++
	} else {
		out.Failed++
	}
	return false, nil
}

// reportFailed marks task failed on a best-effort basis.
func (uc *RunAgent) reportFailed(ctx context.Context, task *domain.Task) {
	_, err := uc.backend.UpdateTask(context.WithoutCancel(ctx), task.ID, domain.TaskUpdate{Status: domain.StatusFailed})
	if err != nil {
		uc.logger.Error(task.ID, "loop", fmt.Sprintf("report task failed: %v", err))
		return
	}
	uc.logger.Warn(task.ID, "loop", "task reported failed after cycle error")
}

func (uc *RunAgent) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = uc.loop.ErrorInterval
	b.MaxInterval = uc.loop.MaxErrorInterval
	b.Multiplier = backoffMultiplier
	b.RandomizationFactor = backoffRandomization
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// sleepContext waits for d or until ctx is done. It reports whether the full wait elapsed.
func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
