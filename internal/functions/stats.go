package functions

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/tasksuite/tasks/internal/httputil"
	"github.com/tasksuite/tasks/internal/model"
)

const TaskCompletionName = "get-task-completion"

// TaskLister lists every task with service-role access.
type TaskLister interface {
	ListTasks(ctx context.Context) ([]model.Task, error)
}

// Summarize counts tasks and computes the completion percentage rounded half
// up. An empty list is 0%.
func Summarize(tasks []model.Task) model.StatsSummary {
	total := len(tasks)
	completed := model.CountCompleted(tasks)

	percentage := 0
	if total > 0 {
		percentage = (200*completed + total) / (2 * total)
	}
	return model.StatsSummary{
		TotalTasks:           total,
		CompletedTasks:       completed,
		PendingTasks:         total - completed,
		CompletionPercentage: percentage,
	}
}

// TaskCompletion computes completion statistics over the whole task
// collection.
type TaskCompletion struct {
	tasks TaskLister
	// MinPercent rejects summaries below this percentage with a 500.
	MinPercent int
}

func NewTaskCompletion(tasks TaskLister, minPercent int) *TaskCompletion {
	return &TaskCompletion{tasks: tasks, MinPercent: minPercent}
}

func (f *TaskCompletion) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	summary, err := f.compute(r.Context())
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}

func (f *TaskCompletion) compute(ctx context.Context) (*model.StatsSummary, error) {
	tasks, err := f.tasks.ListTasks(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list tasks")
	}

	summary := Summarize(tasks)
	log.Infof("Total tasks: %d, Completed tasks: %d, Completion percentage: %d",
		summary.TotalTasks, summary.CompletedTasks, summary.CompletionPercentage)

	if summary.CompletionPercentage < f.MinPercent {
		return nil, errors.Errorf("Completion percentage is less than %d%%", f.MinPercent)
	}

	dump, err := json.Marshal(tasks)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode tasks")
	}
	log.Infof("Tasks: %s", dump)
	return &summary, nil
}
