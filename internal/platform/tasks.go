package platform

import (
	"context"
	"net/http"
	"net/url"

	"github.com/tasksuite/tasks/internal/model"
)

const tasksPath = "/api/entities/Task"

// Tasks is the Task entity collection.
type Tasks struct {
	c *Client
}

func (t *Tasks) List(ctx context.Context) ([]model.Task, error) {
	var tasks []model.Task
	if err := t.c.do(ctx, http.MethodGet, tasksPath, nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (t *Tasks) Create(ctx context.Context, title string, completed bool) (*model.Task, error) {
	var task model.Task
	body := map[string]any{"title": title, "completed": completed}
	if err := t.c.do(ctx, http.MethodPost, tasksPath, body, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (t *Tasks) Update(ctx context.Context, id string, patch model.TaskPatch) (*model.Task, error) {
	var task model.Task
	if err := t.c.do(ctx, http.MethodPut, tasksPath+"/"+url.PathEscape(id), patch, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (t *Tasks) Delete(ctx context.Context, id string) error {
	return t.c.do(ctx, http.MethodDelete, tasksPath+"/"+url.PathEscape(id), nil, nil)
}
