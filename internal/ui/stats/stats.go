// Package stats is the task statistics card.
package stats

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/tasksuite/tasks/internal/functions"
	"github.com/tasksuite/tasks/internal/model"
)

type FunctionInvoker interface {
	Invoke(ctx context.Context, name string, payload any) (json.RawMessage, error)
}

type Card struct {
	functions FunctionInvoker

	mu      sync.Mutex
	stats   *model.StatsSummary
	loading bool
}

func New(fns FunctionInvoker) *Card {
	return &Card{functions: fns}
}

// Stats returns the last fetched summary, or nil before the first success.
func (c *Card) Stats() *model.StatsSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stats == nil {
		return nil
	}
	s := *c.stats
	return &s
}

func (c *Card) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// Fetch asks the statistics function for a new summary. It does nothing
// while a fetch is running. A failure keeps the previous summary and is
// only logged.
func (c *Card) Fetch(ctx context.Context) {
	c.mu.Lock()
	if c.loading {
		c.mu.Unlock()
		return
	}
	c.loading = true
	c.mu.Unlock()

	summary, err := c.fetch(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = false
	if err != nil {
		log.Errorf("Error fetching stats: %v", err)
		return
	}
	c.stats = summary
}

func (c *Card) fetch(ctx context.Context) (*model.StatsSummary, error) {
	raw, err := c.functions.Invoke(ctx, functions.TaskCompletionName, nil)
	if err != nil {
		return nil, err
	}
	return decodeSummary(raw)
}

// decodeSummary accepts the summary itself or wrapped as {"data": ...}.
func decodeSummary(raw json.RawMessage) (*model.StatsSummary, error) {
	var wrapped struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil {
		if d := bytes.TrimSpace(wrapped.Data); len(d) > 0 && !bytes.Equal(d, []byte("null")) {
			raw = wrapped.Data
		}
	}

	var summary model.StatsSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return nil, errors.Wrap(err, "failed to decode statistics")
	}
	return &summary, nil
}
