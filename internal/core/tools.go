package core

import (
	"context"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/pkg/errors"

	"github.com/tasksuite/tasks/internal/model"
)

// TaskRepository is the slice of the entity store the task tools act on.
type TaskRepository interface {
	ListTasks(ctx context.Context) ([]model.Task, error)
	CreateTask(ctx context.Context, title string, completed bool) (*model.Task, error)
	UpdateTask(ctx context.Context, id string, patch model.TaskPatch) (*model.Task, error)
	DeleteTask(ctx context.Context, id string) error
}

// Tool is a function the agent may call. Results must only hold values
// that convert to protobuf Struct fields (strings, numbers, bools, []any,
// map[string]any).
type Tool struct {
	Declaration *genai.FunctionDeclaration
	Call        func(ctx context.Context, args map[string]any) (map[string]any, error)
}

func taskResult(t *model.Task) map[string]any {
	return map[string]any{
		"id":        t.ID,
		"title":     t.Title,
		"completed": t.Completed,
	}
}

func stringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key].(string)
	return strings.TrimSpace(v), ok
}

func requiredString(args map[string]any, key string) (string, error) {
	v, ok := stringArg(args, key)
	if !ok || v == "" {
		return "", errors.Errorf("%s is required", key)
	}
	return v, nil
}

func boolArg(args map[string]any, key string) (bool, bool) {
	v, ok := args[key].(bool)
	return v, ok
}

// TaskTools lets the agent read and mutate the task list.
func TaskTools(repo TaskRepository) []Tool {
	return []Tool{
		{
			Declaration: &genai.FunctionDeclaration{
				Name:        "list_tasks",
				Description: "List every task with its id, title and completion state.",
			},
			Call: func(ctx context.Context, _ map[string]any) (map[string]any, error) {
				tasks, err := repo.ListTasks(ctx)
				if err != nil {
					return nil, err
				}
				items := make([]any, 0, len(tasks))
				for i := range tasks {
					items = append(items, taskResult(&tasks[i]))
				}
				return map[string]any{"tasks": items}, nil
			},
		},
		{
			Declaration: &genai.FunctionDeclaration{
				Name:        "create_task",
				Description: "Create a new task.",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"title":     {Type: genai.TypeString, Description: "What needs to be done."},
						"completed": {Type: genai.TypeBoolean, Description: "Whether the task starts completed. Defaults to false."},
					},
					Required: []string{"title"},
				},
			},
			Call: func(ctx context.Context, args map[string]any) (map[string]any, error) {
				title, err := requiredString(args, "title")
				if err != nil {
					return nil, err
				}
				completed, _ := boolArg(args, "completed")
				task, err := repo.CreateTask(ctx, title, completed)
				if err != nil {
					return nil, err
				}
				return taskResult(task), nil
			},
		},
		{
			Declaration: &genai.FunctionDeclaration{
				Name:        "update_task",
				Description: "Rename a task or mark it completed or not completed.",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"id":        {Type: genai.TypeString, Description: "Id of the task, from list_tasks."},
						"title":     {Type: genai.TypeString, Description: "New title."},
						"completed": {Type: genai.TypeBoolean, Description: "New completion state."},
					},
					Required: []string{"id"},
				},
			},
			Call: func(ctx context.Context, args map[string]any) (map[string]any, error) {
				id, err := requiredString(args, "id")
				if err != nil {
					return nil, err
				}
				var patch model.TaskPatch
				if title, ok := stringArg(args, "title"); ok && title != "" {
					patch.Title = &title
				}
				if completed, ok := boolArg(args, "completed"); ok {
					patch.Completed = &completed
				}
				task, err := repo.UpdateTask(ctx, id, patch)
				if err != nil {
					return nil, err
				}
				return taskResult(task), nil
			},
		},
		{
			Declaration: &genai.FunctionDeclaration{
				Name:        "delete_task",
				Description: "Delete a task permanently.",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"id": {Type: genai.TypeString, Description: "Id of the task, from list_tasks."},
					},
					Required: []string{"id"},
				},
			},
			Call: func(ctx context.Context, args map[string]any) (map[string]any, error) {
				id, err := requiredString(args, "id")
				if err != nil {
					return nil, err
				}
				if err := repo.DeleteTask(ctx, id); err != nil {
					return nil, err
				}
				return map[string]any{"deleted": id}, nil
			},
		},
	}
}
