package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/runoshun/crew-agent/internal/domain"
)

// FakeBackend is an httptest server speaking the backend REST API.
// Task updates with an expected status are applied atomically, so concurrent
// claimers observe the same mutual exclusion a real backend provides.
// Fields are ordered to minimize memory padding.
type FakeBackend struct {
	base             time.Time
	server           *httptest.Server
	items            map[string][]map[string]any
	containers       map[string][]domain.ContainerUpdate
	tasks            []*domain.Task
	repos            []domain.Repository
	tokens           []string
	mu               sync.Mutex
	seq              int
	FailStatus       int  // When non-zero every request answers with this status
	UpdateStatus     int  // When non-zero task updates answer with this status
	EmptyTaskUpdates bool // Answer successful task updates with an empty body
}

// NewFakeBackend starts a FakeBackend that is closed when the test ends.
func NewFakeBackend(t testing.TB) *FakeBackend {
	t.Helper()

	f := &FakeBackend{
		base:       time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		items:      make(map[string][]map[string]any),
		containers: make(map[string][]domain.ContainerUpdate),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/projects/{projectID}/repositories", f.listRepositories)
	mux.HandleFunc("GET /api/projects/{projectID}/tasks", f.listTasks)
	mux.HandleFunc("GET /api/tasks/{taskID}/items", f.listItems)
	mux.HandleFunc("POST /api/tasks/{taskID}/items", f.createItem)
	mux.HandleFunc("PUT /api/tasks/{taskID}", f.updateTask)
	mux.HandleFunc("PUT /api/containers/{containerID}", f.updateContainer)

	f.server = httptest.NewServer(f.record(mux))
	t.Cleanup(f.server.Close)
	return f
}

// URL returns the base URL of the server.
func (f *FakeBackend) URL() string {
	return f.server.URL
}

// AddTask stores a task. Tasks are listed in insertion order.
func (f *FakeBackend) AddTask(task domain.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, &task)
}

// AddRepository stores a project repository.
func (f *FakeBackend) AddRepository(repo domain.Repository) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.repos = append(f.repos, repo)
}

// AddItem stores a raw item record for a task. Missing id and createdAt are filled in.
func (f *FakeBackend) AddItem(taskID string, raw map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.storeItem(taskID, raw)
}

// Task returns a copy of the stored task, or nil.
func (f *FakeBackend) Task(id string) *domain.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tasks {
		if t.ID == id {
			c := *t
			return &c
		}
	}
	return nil
}

// Items returns the raw item records of a task.
func (f *FakeBackend) Items(taskID string) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.items[taskID]...)
}

// ContainerUpdates returns the status reports received for a container.
func (f *FakeBackend) ContainerUpdates(containerID string) []domain.ContainerUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ContainerUpdate(nil), f.containers[containerID]...)
}

// Tokens returns the bearer tokens seen so far, one per request.
func (f *FakeBackend) Tokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tokens...)
}

func (f *FakeBackend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.tokens = append(f.tokens, strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		status := f.FailStatus
		f.mu.Unlock()

		if status != 0 {
			http.Error(w, http.StatusText(status), status)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *FakeBackend) listRepositories(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	writeJSON(w, http.StatusOK, append([]domain.Repository{}, f.repos...))
}

func (f *FakeBackend) listTasks(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("projectID")

	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Task, 0, len(f.tasks))
	for _, t := range f.tasks {
		if t.ProjectID == "" || t.ProjectID == projectID {
			out = append(out, *t)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (f *FakeBackend) listItems(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	writeJSON(w, http.StatusOK, append([]map[string]any{}, f.items[r.PathValue("taskID")]...))
}

func (f *FakeBackend) createItem(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	delete(raw, "id")
	delete(raw, "createdAt")

	f.mu.Lock()
	defer f.mu.Unlock()
	writeJSON(w, http.StatusCreated, f.storeItem(r.PathValue("taskID"), raw))
}

func (f *FakeBackend) updateTask(w http.ResponseWriter, r *http.Request) {
	var update domain.TaskUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.UpdateStatus != 0 {
		http.Error(w, http.StatusText(f.UpdateStatus), f.UpdateStatus)
		return
	}

	var task *domain.Task
	for _, t := range f.tasks {
		if t.ID == r.PathValue("taskID") {
			task = t
			break
		}
	}
	if task == nil {
		http.Error(w, "task not found", http.StatusNotFound)
		return
	}
	if update.ExpectedStatus != "" && task.Status != update.ExpectedStatus {
		http.Error(w, fmt.Sprintf("task is %s", task.Status), http.StatusConflict)
		return
	}
	if update.Status != "" && update.Status != task.Status && !task.Status.CanTransitionTo(update.Status) {
		http.Error(w, fmt.Sprintf("%v: %s to %s", domain.ErrInvalidTransition, task.Status, update.Status), http.StatusConflict)
		return
	}

	if update.Status != "" {
		task.Status = update.Status
	}
	if update.ContainerID != "" {
		task.ContainerID = update.ContainerID
	}
	if update.CompletedAt != nil {
		completed := *update.CompletedAt
		task.CompletedAt = &completed
	}

	if f.EmptyTaskUpdates {
		w.WriteHeader(http.StatusOK)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (f *FakeBackend) updateContainer(w http.ResponseWriter, r *http.Request) {
	var update domain.ContainerUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	id := r.PathValue("containerID")
	f.containers[id] = append(f.containers[id], update)
	w.WriteHeader(http.StatusNoContent)
}

// storeItem must be called with f.mu held.
func (f *FakeBackend) storeItem(taskID string, raw map[string]any) map[string]any {
	f.seq++
	item := make(map[string]any, len(raw)+3)
	for k, v := range raw {
		item[k] = v
	}
	if _, ok := item["id"]; !ok {
		item["id"] = fmt.Sprintf("item-%d", f.seq)
	}
	if _, ok := item["createdAt"]; !ok {
		item["createdAt"] = f.base.Add(time.Duration(f.seq) * time.Minute).Format(time.RFC3339)
	}
	item["taskId"] = taskID
	f.items[taskID] = append(f.items[taskID], item)
	return item
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
