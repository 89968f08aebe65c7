package model

import "time"

// Task is a to-do item owned by the entity store.
type Task struct {
	ID          string    `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	Completed   bool      `json:"completed" db:"completed"`
	CreatedDate time.Time `json:"created_date" db:"created_date"`
	UpdatedDate time.Time `json:"updated_date" db:"updated_date"`
}

// TaskPatch carries the fields of a partial update. Nil fields are left alone.
type TaskPatch struct {
	Title     *string `json:"title,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
}

// StatsSummary is derived from the task list on every request.
type StatsSummary struct {
	TotalTasks           int `json:"totalTasks"`
	CompletedTasks       int `json:"completedTasks"`
	PendingTasks         int `json:"pendingTasks"`
	CompletionPercentage int `json:"completionPercentage"`
}

// CountCompleted returns how many tasks are marked completed.
func CountCompleted(tasks []Task) int {
	n := 0
	for _, t := range tasks {
		if t.Completed {
			n++
		}
	}
	return n
}
