package redpanda

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostpulse/hostpulse/internal/domain"
)

type scriptedExecutor struct {
	mu       sync.Mutex
	failures int
	calls    int
	tasks    []domain.PurgeTask
}

func (e *scriptedExecutor) Execute(_ domain.Context, task domain.PurgeTask) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	e.tasks = append(e.tasks, task)
	if e.calls <= e.failures {
		return assert.AnError
	}
	return nil
}

func (e *scriptedExecutor) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func encodeTask(t *testing.T, task domain.PurgeTask) []byte {
	t.Helper()
	body, err := json.Marshal(purgePayload{TaskID: task.ID, Customers: task.Customers})
	require.NoError(t, err)
	return body
}

func TestDecodeTask(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		value   []byte
		want    domain.PurgeTask
		wantErr bool
	}{
		{
			name:  "valid task",
			value: []byte(`{"task_id":"abc-123","customer_ids":[7,9]}`),
			want:  domain.PurgeTask{ID: "abc-123", Customers: []domain.CustomerID{7, 9}},
		},
		{
			name:    "garbage frame",
			value:   []byte("not json"),
			wantErr: true,
		},
		{
			name:    "missing task id",
			value:   []byte(`{"customer_ids":[7]}`),
			wantErr: true,
		},
		{
			name:    "no customers",
			value:   []byte(`{"task_id":"abc-123","customer_ids":[]}`),
			wantErr: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := decodeTask(tc.value)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestProcessRecordExecutes(t *testing.T) {
	t.Parallel()

	exec := &scriptedExecutor{}
	c := &Consumer{executor: exec, retryInterval: time.Millisecond}

	task := domain.PurgeTask{ID: "task-1", Customers: []domain.CustomerID{42}}
	ok := c.processRecord(context.Background(), encodeTask(t, task))

	require.True(t, ok)
	require.Equal(t, 1, exec.callCount())
	assert.Equal(t, task, exec.tasks[0])
}

func TestProcessRecordRetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	exec := &scriptedExecutor{failures: 2}
	c := &Consumer{executor: exec, retryInterval: time.Millisecond}

	task := domain.PurgeTask{ID: "task-2", Customers: []domain.CustomerID{7}}
	ok := c.processRecord(context.Background(), encodeTask(t, task))

	require.True(t, ok)
	assert.Equal(t, 3, exec.callCount())
}

func TestProcessRecordGivesUpWhenContextEnds(t *testing.T) {
	t.Parallel()

	exec := &scriptedExecutor{failures: 1 << 20}
	c := &Consumer{executor: exec, retryInterval: 5 * time.Millisecond}

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()

	task := domain.PurgeTask{ID: "task-3", Customers: []domain.CustomerID{7}}
	ok := c.processRecord(ctx, encodeTask(t, task))

	assert.False(t, ok, "an unfinished task must not be marked consumed")
	assert.GreaterOrEqual(t, exec.callCount(), 1)
}

func TestProcessRecordDropsGarbage(t *testing.T) {
	t.Parallel()

	exec := &scriptedExecutor{}
	c := &Consumer{executor: exec, retryInterval: time.Millisecond}

	ok := c.processRecord(context.Background(), []byte("{broken"))

	assert.True(t, ok, "undecodable frames are dropped, not replayed")
	assert.Zero(t, exec.callCount())
}
