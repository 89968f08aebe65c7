package stats

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tasksuite/tasks/internal/functions"
	"github.com/tasksuite/tasks/internal/model"
)

type invokerFunc func(ctx context.Context, name string, payload any) (json.RawMessage, error)

func (f invokerFunc) Invoke(ctx context.Context, name string, payload any) (json.RawMessage, error) {
	return f(ctx, name, payload)
}

func respond(body string, err error) invokerFunc {
	return func(_ context.Context, name string, _ any) (json.RawMessage, error) {
		if name != functions.TaskCompletionName {
			return nil, errors.Errorf("unexpected function %s", name)
		}
		if err != nil {
			return nil, err
		}
		return json.RawMessage(body), nil
	}
}

func TestFetchDirectAndWrapped(t *testing.T) {
	want := model.StatsSummary{TotalTasks: 3, CompletedTasks: 2, PendingTasks: 1, CompletionPercentage: 67}
	for name, body := range map[string]string{
		"direct":  `{"totalTasks":3,"completedTasks":2,"pendingTasks":1,"completionPercentage":67}`,
		"wrapped": `{"data":{"totalTasks":3,"completedTasks":2,"pendingTasks":1,"completionPercentage":67}}`,
	} {
		t.Run(name, func(t *testing.T) {
			card := New(respond(body, nil))
			card.Fetch(context.Background())
			require.NotNil(t, card.Stats())
			assert.Equal(t, want, *card.Stats())
			assert.False(t, card.Loading())
		})
	}
}

func TestFetchFailureKeepsPrevious(t *testing.T) {
	body := `{"totalTasks":2,"completedTasks":2,"pendingTasks":0,"completionPercentage":100}`
	var fail bool
	card := New(invokerFunc(func(ctx context.Context, name string, payload any) (json.RawMessage, error) {
		if fail {
			return nil, errors.New("Completion percentage is less than 50%")
		}
		return json.RawMessage(body), nil
	}))

	card.Fetch(context.Background())
	require.NotNil(t, card.Stats())

	fail = true
	card.Fetch(context.Background())
	require.NotNil(t, card.Stats())
	assert.Equal(t, 100, card.Stats().CompletionPercentage)
}

func TestFetchFailureBeforeFirstSuccess(t *testing.T) {
	card := New(respond("", errors.New("boom")))
	card.Fetch(context.Background())
	assert.Nil(t, card.Stats())
	assert.False(t, card.Loading())
}

func TestFetchIsNotReentrant(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	calls := 0
	card := New(invokerFunc(func(ctx context.Context, name string, payload any) (json.RawMessage, error) {
		calls++
		close(started)
		<-release
		return json.RawMessage(`{"totalTasks":0,"completedTasks":0,"pendingTasks":0,"completionPercentage":0}`), nil
	}))

	done := make(chan struct{})
	go func() {
		card.Fetch(context.Background())
		close(done)
	}()
	<-started
	assert.True(t, card.Loading())

	card.Fetch(context.Background())
	close(release)
	<-done
	assert.Equal(t, 1, calls)
}
