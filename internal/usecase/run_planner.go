package usecase

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/runoshun/crew-agent/internal/domain"
)

// PlannerState is the position of a task within one planning cycle.
type PlannerState string

// Planner cycle states, in the order a successful cycle visits them.
const (
	StateClaimed                PlannerState = "claimed"
	StateHistoryBuilt           PlannerState = "history_built"
	StateInitialPlanningCreated PlannerState = "initial_planning_created"
	StatePlannerInvoked         PlannerState = "planner_invoked"
	StateItemsExecuted          PlannerState = "items_executed"
	StateReported               PlannerState = "reported"
)

// Item titles and content written by the planner cycle.
const (
	InitialPlanningTitle   = "Initial Task Analysis"
	PlannerResponseTitle   = "Planner Response"
	PlannerResponseContent = "Agent analysis and planning"
)

// RunPlannerInput contains the claimed task.
type RunPlannerInput struct {
	Task *domain.Task
}

// RunPlannerOutput contains the result of one planning cycle.
// Fields are ordered to minimize memory padding.
type RunPlannerOutput struct {
	Err          error             // Why the task failed (nil on success)
	CreatedItems []domain.TaskItem // Items persisted during the cycle
	FinalStatus  domain.Status     // Status reported to the backend
	State        PlannerState      // Last state reached
}

// RunPlanner is the use case for driving a claimed task to a terminal status.
type RunPlanner struct {
	backend  domain.Backend
	planner  domain.Planner
	executor *ExecuteItem
	clock    domain.Clock
	logger   domain.Logger
}

// NewRunPlanner creates a new RunPlanner use case.
func NewRunPlanner(
	backend domain.Backend,
	planner domain.Planner,
	executor *ExecuteItem,
	clock domain.Clock,
	logger domain.Logger,
) *RunPlanner {
	return &RunPlanner{
		backend:  backend,
		planner:  planner,
		executor: executor,
		clock:    clock,
		logger:   logger,
	}
}

// Execute runs one planning cycle and reports the task completed or failed.
// The cycle ignores cancellation of ctx: a started cycle always finishes.
// A task failure is returned in the output; the returned error is set only
// when the final status could not be reported.
func (uc *RunPlanner) Execute(ctx context.Context, in RunPlannerInput) (out *RunPlannerOutput, err error) {
	if in.Task == nil {
		return nil, domain.ErrTaskNotFound
	}
	task := in.Task

	ctx, span := tracer.Start(context.WithoutCancel(ctx), "RunPlanner")
	span.SetAttributes(attribute.String("task.id", task.ID))
	defer func() { endSpan(span, err) }()

	out = &RunPlannerOutput{State: StateClaimed}
	uc.logger.Info(task.ID, "planner", fmt.Sprintf("starting planner cycle for %q", task.Title))

	cycleErr := uc.cycle(ctx, task, out)
	now := uc.clock.Now()
	update := domain.TaskUpdate{Status: domain.StatusCompleted, CompletedAt: &now}
	if cycleErr != nil {
		out.Err = cycleErr
		update.Status = domain.StatusFailed
		uc.logger.Error(task.ID, "planner", fmt.Sprintf("task failed in state %s: %v", out.State, cycleErr))
		span.RecordError(cycleErr)
	}

	if _, err := uc.backend.UpdateTask(ctx, task.ID, update); err != nil {
		return out, fmt.Errorf("report task %s %s: %w", task.ID, update.Status, err)
	}
	out.FinalStatus = update.Status
	uc.advance(task, out, StateReported)
	uc.logger.Info(task.ID, "planner", fmt.Sprintf("task reported %s", update.Status))
	return out, nil
}

// cycle builds history, plans and executes items.
// A panic anywhere in the cycle is converted into domain.ErrPlannerPanic.
func (uc *RunPlanner) cycle(ctx context.Context, task *domain.Task, out *RunPlannerOutput) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", domain.ErrPlannerPanic, r)
		}
	}()

	items, err := uc.backend.ListItems(ctx, task.ID)
	if err != nil {
		return fmt.Errorf("list items: %w", err)
	}
	history := domain.BuildChatHistory(items)
	uc.logger.Debug(task.ID, "planner", fmt.Sprintf("found %d items, %d history messages", len(items), len(history)))
	uc.advance(task, out, StateHistoryBuilt)

	pending := domain.SortItems(items)

	if len(items) == 0 {
		draft := InitialPlanningDraft(task)
		created, err := uc.backend.CreateItem(ctx, task.ID, draft)
		if err != nil {
			return fmt.Errorf("create initial planning item: %w", err)
		}
		out.CreatedItems = append(out.CreatedItems, *created)
		pending = append(pending, *created)
		history = append(history, domain.UserMessage(draft.Content))
		uc.advance(task, out, StateInitialPlanningCreated)
	}

	if len(history) > 0 {
		reply, err := uc.planner.Plan(ctx, domain.PlanRequest{Task: task, History: history})
		if err != nil {
			return fmt.Errorf("planner: %w", err)
		}
		created, err := uc.backend.CreateItem(ctx, task.ID, domain.NewItemDraft{
			Payload:      domain.Planning{},
			Title:        PlannerResponseTitle,
			Content:      PlannerResponseContent,
			ChatResponse: reply,
		})
		if err != nil {
			return fmt.Errorf("create planner response item: %w", err)
		}
		out.CreatedItems = append(out.CreatedItems, *created)
		pending = append(pending, *created)
		uc.advance(task, out, StatePlannerInvoked)
	}

	for _, item := range pending {
		if _, err := uc.executor.Execute(ctx, ExecuteItemInput{Item: item}); err != nil {
			return fmt.Errorf("execute item %s: %w", item.ID, err)
		}
	}
	uc.advance(task, out, StateItemsExecuted)
	return nil
}

func (uc *RunPlanner) advance(task *domain.Task, out *RunPlannerOutput, state PlannerState) {
	out.State = state
	uc.logger.Debug(task.ID, "planner", fmt.Sprintf("state: %s", state))
}

// InitialPlanningDraft returns the planning item created for a task with no items.
func InitialPlanningDraft(task *domain.Task) domain.NewItemDraft {
	return domain.NewItemDraft{
		Payload: domain.Planning{},
		Title:   InitialPlanningTitle,
		Content: fmt.Sprintf("Task: %s\nDescription: %s\n\nPlease analyze this task and create a plan for execution.",
			task.Title, task.Description),
	}
}
