package core

import (
	"context"

	"github.com/google/generative-ai-go/genai"
	"github.com/pkg/errors"
)

const TaskManagerAgent = "task_manager"

const taskManagerInstructions = "You are a friendly task assistant. You help the user create, update, complete " +
	"and delete tasks in their to-do list using the available tools. Always call list_tasks before " +
	"referring to an existing task so you use its real id. Confirm what you changed in one or two short " +
	"sentences. If a request is not about tasks, answer briefly and steer back to the task list."

// Agent is a named assistant: its instructions and the tools it may use.
type Agent struct {
	Name         string
	Instructions string
	Tools        []Tool
}

func NewTaskManagerAgent(repo TaskRepository) Agent {
	return Agent{
		Name:         TaskManagerAgent,
		Instructions: taskManagerInstructions,
		Tools:        TaskTools(repo),
	}
}

func (a Agent) declarations() []*genai.Tool {
	if len(a.Tools) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(a.Tools))
	for _, t := range a.Tools {
		decls = append(decls, t.Declaration)
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func (a Agent) call(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	for _, t := range a.Tools {
		if t.Declaration.Name == name {
			return t.Call(ctx, args)
		}
	}
	return nil, errors.Errorf("unknown tool %q", name)
}
