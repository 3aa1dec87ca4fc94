package task_test

import (
	"errors"
	"testing"

	"github.com/cenkalti/backoff"
	"github.com/golang/mock/gomock"
	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowline/flowline/task"
	"github.com/flowline/flowline/task/store"
)

func init() {
	task.PersistBackOff = func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 3)
	}
}

func cfg(kv ...string) task.Config {
	c := task.Config{}
	for i := 0; i+1 < len(kv); i += 2 {
		c = c.Set(kv[i], kv[i+1])
	}
	return c
}

func drain(q *task.Queue) []int {
	ids := []int{}
	for {
		id, _, ok := q.Next()
		if !ok {
			return ids
		}
		ids = append(ids, id)
	}
}

func TestSeedByRemainingRuns(t *testing.T) {
	s := store.NewMemoryStore(
		task.Row{ID: 1, Config: cfg("a", "1"), RequiredRuns: 1},
		task.Row{ID: 2, Config: cfg("a", "2"), RequiredRuns: 3, RunCount: 3},
		task.Row{ID: 3, Config: cfg("a", "3"), RequiredRuns: 2},
		task.Row{ID: 4, Config: cfg("a", "4"), RequiredRuns: 1, RunCount: 5},
		task.Row{ID: 5, Config: cfg("a", "5")},
	)
	q, err := task.NewQueue(s, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, q.Len())
	assert.Equal(t, []int{1, 3, 3, 5}, drain(q))
}

func TestNextReturnsConfigCopy(t *testing.T) {
	s := store.NewMemoryStore(task.Row{ID: 0, Config: cfg("model", "cnn", "seed", "1"), RequiredRuns: 2})
	q, err := task.NewQueue(s, nil)
	require.NoError(t, err)

	id, c, ok := q.Next()
	require.True(t, ok)
	assert.Equal(t, 0, id)
	assert.Equal(t, "model=cnn seed=1", c.String())
	c[0].Value = "vgg"

	_, c2, ok := q.Next()
	require.True(t, ok)
	assert.Equal(t, "cnn", c2[0].Value)

	_, _, ok = q.Next()
	assert.False(t, ok)
}

func TestTwoCompletionsFinishTask(t *testing.T) {
	s := store.NewMemoryStore(task.Row{ID: 3, Config: cfg("x", "y"), RequiredRuns: 2})
	q, err := task.NewQueue(s, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3}, q.Pending())

	for i := 0; i < 2; i++ {
		id, _, ok := q.Next()
		require.True(t, ok)
		require.NoError(t, q.MarkRunComplete(id))
	}
	assert.Equal(t, 2, s.RunCount(3))
	assert.Equal(t, 0, q.Len())

	tk, ok := q.Task(3)
	require.True(t, ok)
	assert.Equal(t, task.Completed, tk.Status)
	assert.Equal(t, 2, tk.RunCount)
	assert.Equal(t, 0, tk.Queued)
}

func TestPutBackKeepsLoadKey(t *testing.T) {
	rule := task.Rule{Field: "method", Order: []string{"GST", "GOAT"}}
	s := store.NewMemoryStore(
		task.Row{ID: 0, Config: cfg("method", "GOAT")},
		task.Row{ID: 1, Config: cfg("method", "GST")},
		task.Row{ID: 2, Config: cfg("method", "GOAT")},
	)
	q, err := task.NewQueue(s, task.ByFields(rule))
	require.NoError(t, err)

	id, _, _ := q.Next()
	assert.Equal(t, 1, id)
	require.NoError(t, q.PutBack(id))
	require.NoError(t, q.PutBack(id))
	assert.Equal(t, []int{1, 1, 0, 2}, q.Pending())

	tk, _ := q.Task(1)
	assert.Equal(t, 2, tk.Retries)
	assert.Equal(t, 2, tk.Queued)
	assert.Equal(t, task.Pending, tk.Status)

	err = q.PutBack(42)
	assert.Equal(t, task.ErrUnknownTask, pkgerrors.Cause(err))
}

func TestLoadFailure(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	storeMock := task.NewMockStore(mockCtrl)
	storeMock.EXPECT().LoadAll().Return(nil, errors.New("disk on fire"))

	q, err := task.NewQueue(storeMock, nil)
	assert.Nil(t, q)
	assert.Equal(t, task.ErrConfigLoad, pkgerrors.Cause(err))
}

func TestDuplicateIDsRejected(t *testing.T) {
	s := store.NewMemoryStore(task.Row{ID: 1}, task.Row{ID: 1})
	_, err := task.NewQueue(s, nil)
	assert.Equal(t, task.ErrConfigLoad, pkgerrors.Cause(err))
}

func TestMarkRunCompleteRetries(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	storeMock := task.NewMockStore(mockCtrl)
	storeMock.EXPECT().LoadAll().Return([]task.Row{{ID: 9, RequiredRuns: 1}}, nil)
	gomock.InOrder(
		storeMock.EXPECT().IncrementRunCount(9).Return(errors.New("locked")),
		storeMock.EXPECT().IncrementRunCount(9).Return(nil),
	)

	q, err := task.NewQueue(storeMock, nil)
	require.NoError(t, err)
	id, _, _ := q.Next()
	require.NoError(t, q.MarkRunComplete(id))

	tk, _ := q.Task(9)
	assert.Equal(t, 1, tk.RunCount)
	assert.Equal(t, task.Completed, tk.Status)
}

func TestMarkRunCompleteGivesUp(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	storeMock := task.NewMockStore(mockCtrl)
	storeMock.EXPECT().LoadAll().Return([]task.Row{{ID: 9, RequiredRuns: 1}}, nil)
	storeMock.EXPECT().IncrementRunCount(9).Return(errors.New("locked")).Times(4)

	q, err := task.NewQueue(storeMock, nil)
	require.NoError(t, err)
	id, _, _ := q.Next()
	assert.Error(t, q.MarkRunComplete(id))

	// The run is kept as unsaved, the task isn't queued again.
	tk, _ := q.Task(9)
	assert.Equal(t, 0, tk.RunCount)
	assert.Equal(t, 1, tk.Unsaved)
	assert.Equal(t, 0, tk.Queued)
	assert.Equal(t, task.Completed, tk.Status)
	assert.Equal(t, 1, q.Unsaved())

	assert.Equal(t, task.ErrUnknownTask, pkgerrors.Cause(q.MarkRunComplete(10)))
}

func TestSaveUnsaved(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	storeMock := task.NewMockStore(mockCtrl)
	storeMock.EXPECT().LoadAll().Return([]task.Row{{ID: 9, RequiredRuns: 3}}, nil)
	// Four tries for each MarkRunComplete, then one for the first SaveUnsaved.
	storeMock.EXPECT().IncrementRunCount(9).Return(errors.New("locked")).Times(9)

	q, err := task.NewQueue(storeMock, nil)
	require.NoError(t, err)
	assert.Error(t, q.MarkRunComplete(9))
	assert.Error(t, q.MarkRunComplete(9))
	tk, _ := q.Task(9)
	assert.Equal(t, task.Pending, tk.Status, "one run still missing")

	assert.Equal(t, 2, q.SaveUnsaved(), "stops at the first failure")

	gomock.InOrder(
		storeMock.EXPECT().IncrementRunCount(9).Return(nil),
		storeMock.EXPECT().IncrementRunCount(9).Return(errors.New("locked")),
		storeMock.EXPECT().IncrementRunCount(9).Return(nil),
	)
	assert.Equal(t, 1, q.SaveUnsaved())
	assert.Equal(t, 0, q.SaveUnsaved())
	tk, _ = q.Task(9)
	assert.Equal(t, 2, tk.RunCount)
	assert.Equal(t, 0, tk.Unsaved)
	assert.Equal(t, 0, q.Unsaved())
	assert.Equal(t, 0, q.SaveUnsaved(), "nothing left to persist")
}

func TestTasksListing(t *testing.T) {
	s := store.NewMemoryStore(
		task.Row{ID: 5, Config: cfg("k", "v"), RequiredRuns: 1, RunCount: 1},
		task.Row{ID: 2, Config: cfg("k", "w"), RequiredRuns: 0},
	)
	q, err := task.NewQueue(s, nil)
	require.NoError(t, err)

	tasks := q.Tasks()
	require.Len(t, tasks, 2)
	assert.Equal(t, 5, tasks[0].ID)
	assert.Equal(t, task.Completed, tasks[0].Status)
	assert.Equal(t, 2, tasks[1].ID)
	assert.Equal(t, 1, tasks[1].RequiredRuns)
	assert.Equal(t, 1, tasks[1].Queued)
}
