// Package tasklist holds the state and operations of the task list screen.
// Every mutation is followed by a full refetch; the list is never patched
// locally.
package tasklist

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/tasksuite/tasks/internal/functions"
	"github.com/tasksuite/tasks/internal/model"
)

const notifyTimeout = 30 * time.Second

type TaskService interface {
	List(ctx context.Context) ([]model.Task, error)
	Create(ctx context.Context, title string, completed bool) (*model.Task, error)
	Update(ctx context.Context, id string, patch model.TaskPatch) (*model.Task, error)
	Delete(ctx context.Context, id string) error
}

type AuthService interface {
	Me(ctx context.Context) (*model.User, error)
	LoginURL(provider, returnURL string) string
	LogoutURL(returnURL string) string
}

type FunctionInvoker interface {
	Invoke(ctx context.Context, name string, payload any) (json.RawMessage, error)
}

// State is a copy of what the screen shows.
type State struct {
	Tasks       []model.Task
	Input       string
	Loading     bool
	User        *model.User
	AuthLoading bool
}

func (s State) CompletedCount() int { return model.CountCompleted(s.Tasks) }
func (s State) TotalCount() int     { return len(s.Tasks) }

// Header is "N of M completed", or "" when there are no tasks.
func (s State) Header() string {
	if s.TotalCount() == 0 {
		return ""
	}
	return fmt.Sprintf("%d of %d completed", s.CompletedCount(), s.TotalCount())
}

// ShowClearCompleted reports whether "Clear completed" is offered.
func (s State) ShowClearCompleted() bool {
	return s.CompletedCount() > 0
}

func (s State) CanSubmit() bool {
	return strings.TrimSpace(s.Input) != ""
}

type Controller struct {
	tasks     TaskService
	auth      AuthService
	functions FunctionInvoker

	mu    sync.Mutex
	state State
	// Refreshes are numbered so a slow fetch cannot overwrite a newer one.
	refreshSeq uint64
	appliedSeq uint64

	notifications sync.WaitGroup
}

func New(tasks TaskService, auth AuthService, fns FunctionInvoker) *Controller {
	return &Controller{
		tasks:     tasks,
		auth:      auth,
		functions: fns,
		state:     State{Loading: true, AuthLoading: true},
	}
}

func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state
	s.Tasks = append([]model.Task(nil), c.state.Tasks...)
	return s
}

// Load resolves the current user and fetches the tasks. A failed user
// lookup means "not logged in" and is not an error.
func (c *Controller) Load(ctx context.Context) error {
	user, err := c.auth.Me(ctx)
	if err != nil {
		log.Debugf("Not logged in: %v", err)
		user = nil
	}
	c.mu.Lock()
	c.state.User = user
	c.state.AuthLoading = false
	c.mu.Unlock()

	return c.Refresh(ctx)
}

// Refresh replaces the list with a fresh copy from the store. A result older
// than the one already shown is dropped.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	c.refreshSeq++
	seq := c.refreshSeq
	c.state.Loading = true
	c.mu.Unlock()

	tasks, err := c.tasks.List(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq == c.refreshSeq {
		c.state.Loading = false
	}
	if err != nil {
		return errors.Wrap(err, "failed to load tasks")
	}
	if seq < c.appliedSeq {
		log.Debugf("Dropping stale task list (refresh %d, showing %d)", seq, c.appliedSeq)
		return nil
	}
	c.appliedSeq = seq
	c.state.Tasks = tasks
	return nil
}

func (c *Controller) SetInput(text string) {
	c.mu.Lock()
	c.state.Input = text
	c.mu.Unlock()
}

// Submit creates a task from the input. Blank input is ignored.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	title := strings.TrimSpace(c.state.Input)
	c.mu.Unlock()
	if title == "" {
		return nil
	}

	if _, err := c.tasks.Create(ctx, title, false); err != nil {
		return errors.Wrap(err, "failed to create task")
	}
	c.SetInput("")
	return c.Refresh(ctx)
}

// Toggle sets a task's completion. Completing a task also sends the
// notification in the background; its outcome never affects the list.
func (c *Controller) Toggle(ctx context.Context, id string, completed bool) error {
	_, updateErr := c.tasks.Update(ctx, id, model.TaskPatch{Completed: &completed})
	if updateErr == nil && completed {
		if title, ok := c.title(id); ok {
			c.notifyCompleted(title)
		} else {
			log.Debugf("Task %s is not listed, skipping completion notification", id)
		}
	}
	if err := c.Refresh(ctx); err != nil && updateErr == nil {
		return err
	}
	return errors.Wrap(updateErr, "failed to update task")
}

func (c *Controller) title(id string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.state.Tasks {
		if t.ID == id {
			return t.Title, true
		}
	}
	return "", false
}

func (c *Controller) notifyCompleted(title string) {
	c.notifications.Add(1)
	go func() {
		defer c.notifications.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		payload := functions.NotifyRequest{TaskTitle: title}
		if _, err := c.functions.Invoke(ctx, functions.NotifyTaskCompletedName, payload); err != nil {
			log.Warnf("Task completion notification failed: %v", err)
		}
	}()
}

// WaitNotifications blocks until background notifications have settled.
func (c *Controller) WaitNotifications() {
	c.notifications.Wait()
}

func (c *Controller) Delete(ctx context.Context, id string) error {
	if err := c.tasks.Delete(ctx, id); err != nil {
		return errors.Wrap(err, "failed to delete task")
	}
	return c.Refresh(ctx)
}

// ClearCompleted deletes every completed task concurrently and refetches
// once all deletions have settled. Individual failures are only logged.
func (c *Controller) ClearCompleted(ctx context.Context) error {
	c.mu.Lock()
	var ids []string
	for _, t := range c.state.Tasks {
		if t.Completed {
			ids = append(ids, t.ID)
		}
	}
	c.mu.Unlock()

	var g errgroup.Group
	for _, id := range ids {
		g.Go(func() error {
			if err := c.tasks.Delete(ctx, id); err != nil {
				log.Warnf("Failed to delete completed task %s: %v", id, err)
			}
			return nil
		})
	}
	g.Wait()

	return c.Refresh(ctx)
}

// LoginURL is the redirect that starts a login returning to returnURL.
func (c *Controller) LoginURL(returnURL string) string {
	return c.auth.LoginURL("", returnURL)
}

func (c *Controller) LogoutURL(returnURL string) string {
	return c.auth.LogoutURL(returnURL)
}
