package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runoshun/crew-agent/internal/domain"
	"github.com/runoshun/crew-agent/internal/infra/auth"
	"github.com/runoshun/crew-agent/internal/infra/backend"
	"github.com/runoshun/crew-agent/internal/infra/planner"
	"github.com/runoshun/crew-agent/internal/testutil"
)

var testLoop = domain.LoopConfig{
	IdleInterval:     30 * time.Second,
	ErrorInterval:    time.Second,
	MaxErrorInterval: 4 * time.Second,
}

func newTestAgent(b domain.Backend, ws string, loop domain.LoopConfig) *RunAgent {
	logger := domain.NopLogger{}
	claim := NewClaimTask(b, logger, "p1", "c1")
	items := NewExecuteItem(testutil.NewMockCommandExecutor(), logger, ws, nil)
	cycle := NewRunPlanner(b, &testutil.MockPlanner{Response: "ok"}, items, &testutil.MockClock{NowTime: testNow}, logger)
	return NewRunAgent(claim, cycle, b, logger, loop)
}

// waitRecorder replaces RunAgent.wait. It records requested durations and
// calls onWait with the wait count; returning false stops the loop.
type waitRecorder struct {
	onWait func(n int) bool
	waits  []time.Duration
}

func (r *waitRecorder) wait(_ context.Context, d time.Duration) bool {
	r.waits = append(r.waits, d)
	return r.onWait(len(r.waits))
}

func TestRunAgent_ProcessesTasksThenIdles(t *testing.T) {
	mb := testutil.NewMockBackend(pendingTask("t1"), pendingTask("t2"))
	uc := newTestAgent(mb, t.TempDir(), testLoop)
	rec := &waitRecorder{onWait: func(int) bool { return false }}
	uc.wait = rec.wait

	out, err := uc.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, out.Cycles)
	assert.Equal(t, 2, out.Completed)
	assert.Equal(t, 0, out.Errors)
	assert.Equal(t, []time.Duration{testLoop.IdleInterval}, rec.waits, "no wait between tasks, idle wait once the queue is empty")
	assert.Equal(t, domain.StatusCompleted, mb.Task("t1").Status)
	assert.Equal(t, domain.StatusCompleted, mb.Task("t2").Status)
}

func TestRunAgent_ErrorBackoff(t *testing.T) {
	mb := testutil.NewMockBackend()
	mb.ListTasksErr = fmt.Errorf("%w: refused", domain.ErrBackendUnavailable)
	uc := newTestAgent(mb, t.TempDir(), testLoop)

	rec := &waitRecorder{}
	rec.onWait = func(n int) bool {
		switch n {
		case 4:
			mb.ListTasksErr = nil // backend recovers: next iteration idles
		case 5:
			mb.ListTasksErr = domain.ErrBackendUnavailable
		case 6:
			return false
		}
		return true
	}
	uc.wait = rec.wait

	out, err := uc.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, out.Errors)
	require.Len(t, rec.waits, 6)

	within := func(d, center time.Duration) {
		t.Helper()
		lo := time.Duration(float64(center) * (1 - backoffRandomization))
		hi := time.Duration(float64(center) * (1 + backoffRandomization))
		assert.GreaterOrEqual(t, d, lo)
		assert.LessOrEqual(t, d, hi)
	}
	within(rec.waits[0], time.Second)
	within(rec.waits[1], 2*time.Second)
	within(rec.waits[2], 4*time.Second)
	within(rec.waits[3], 4*time.Second) // capped at MaxErrorInterval
	assert.Equal(t, testLoop.IdleInterval, rec.waits[4])
	within(rec.waits[5], time.Second) // reset after a healthy iteration
}

func TestRunAgent_StatusReportFailureReportsFailedAndBacksOff(t *testing.T) {
	mb := testutil.NewMockBackend(pendingTask("t1"))
	mb.UpdateTaskErr = domain.ErrBackendUnavailable
	uc := newTestAgent(mb, t.TempDir(), testLoop)
	rec := &waitRecorder{onWait: func(int) bool { return false }}
	uc.wait = rec.wait

	out, err := uc.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, out.Errors)
	assert.Equal(t, 1, out.Failed)
	require.Len(t, rec.waits, 1)
	assert.Less(t, rec.waits[0], testLoop.IdleInterval)

	var statuses []domain.Status
	for _, u := range mb.Updates() {
		statuses = append(statuses, u.Update.Status)
	}
	assert.Equal(t, []domain.Status{domain.StatusRunning, domain.StatusCompleted, domain.StatusFailed}, statuses)
}

func TestRunAgent_CancelDuringIdleWait(t *testing.T) {
	mb := testutil.NewMockBackend()
	uc := newTestAgent(mb, t.TempDir(), domain.LoopConfig{
		IdleInterval:     time.Hour,
		ErrorInterval:    time.Hour,
		MaxErrorInterval: time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan *RunAgentOutput, 1)
	go func() {
		out, err := uc.Execute(ctx)
		assert.NoError(t, err)
		done <- out
	}()

	require.Eventually(t, func() bool { return mb.Calls() >= 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case out := <-done:
		assert.Equal(t, 0, out.Cycles)
	case <-time.After(2 * time.Second):
		t.Fatal("agent did not stop after cancellation")
	}
}

func TestRunAgent_CancelledBeforeStart(t *testing.T) {
	mb := testutil.NewMockBackend(pendingTask("t1"))
	uc := newTestAgent(mb, t.TempDir(), testLoop)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := uc.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, out.Cycles)
	assert.Equal(t, 0, mb.Calls())
}

func TestRunAgent_EndToEnd_AddReadme(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	fake.AddTask(domain.Task{ID: "t1", ProjectID: "p1", Title: "Add README", Description: "Write the project README", Status: domain.StatusPending})
	fake.AddItem("t1", map[string]any{
		"type":        "file_creation",
		"title":       "Create README",
		"filePath":    "README.md",
		"fileContent": `# Project\n\nHello from the agent.`,
	})
	fake.AddItem("t1", map[string]any{"type": "planning", "content": "Add a README to the repository"})

	ws := t.TempDir()
	client := backend.NewClient(fake.URL(), auth.StaticTokenSource("agent-token"))
	logger := &testutil.RecordingLogger{}
	items := NewExecuteItem(testutil.NewMockCommandExecutor(), logger, ws, pythonRule)
	cycle := NewRunPlanner(client, planner.NewPlaceholder(), items, domain.RealClock{}, logger)
	uc := NewRunAgent(NewClaimTask(client, logger, "p1", "c1"), cycle, client, logger, domain.LoopConfig{
		IdleInterval:     10 * time.Millisecond,
		ErrorInterval:    10 * time.Millisecond,
		MaxErrorInterval: 20 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := uc.Execute(ctx)
		assert.NoError(t, err)
	}()

	require.Eventually(t, func() bool {
		task := fake.Task("t1")
		return task != nil && task.Status.IsTerminal()
	}, 5*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	task := fake.Task("t1")
	assert.Equal(t, domain.StatusCompleted, task.Status)
	assert.Equal(t, "c1", task.ContainerID)
	assert.NotNil(t, task.CompletedAt)

	content, err := os.ReadFile(filepath.Join(ws, "README.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Project\n\nHello from the agent.", string(content))

	stored := fake.Items("t1")
	require.Len(t, stored, 3, "two seeded items plus the planner response")
	assert.Equal(t, PlannerResponseTitle, stored[2]["title"])
	assert.Contains(t, stored[2]["chatResponse"], "Add README")

	for _, tok := range fake.Tokens() {
		assert.Equal(t, "agent-token", tok)
	}
}
