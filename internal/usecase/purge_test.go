package usecase_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostpulse/hostpulse/internal/domain"
	"github.com/hostpulse/hostpulse/internal/usecase"
)

type stubAggregationStore struct {
	deleted []domain.CustomerID
	removed int64
	err     error
}

func (s *stubAggregationStore) EligibleRaw(ctx domain.Context, before domain.ZoranTime) ([]domain.Sample, error) {
	return nil, nil
}

func (s *stubAggregationStore) EligibleAggregated(ctx domain.Context, before domain.ZoranTime) ([]domain.AggregatedSample, error) {
	return nil, nil
}

func (s *stubAggregationStore) CommitWindows(ctx domain.Context, before domain.ZoranTime, fromAggregated bool, rows []domain.AggregatedSample) (int, error) {
	return 0, nil
}

func (s *stubAggregationStore) ExpungeBefore(ctx domain.Context, before domain.ZoranTime) (int64, int64, error) {
	return 0, 0, nil
}

func (s *stubAggregationStore) DeleteByCustomers(ctx domain.Context, customers []domain.CustomerID) (int64, error) {
	s.deleted = append(s.deleted, customers...)
	return s.removed, s.err
}

type stubPurgeQueue struct {
	task domain.PurgeTask
	id   string
	err  error
}

func (q *stubPurgeQueue) EnqueuePurge(ctx domain.Context, task domain.PurgeTask) (string, error) {
	q.task = task
	return q.id, q.err
}

type stubNotifier struct {
	destination string
	body        []byte
	calls       int
}

func (n *stubNotifier) Notify(destination string, body []byte) {
	n.destination = destination
	n.body = body
	n.calls++
}

func TestPurge_Request_Enqueues(t *testing.T) {
	t.Parallel()
	queue := &stubPurgeQueue{id: "task-77"}
	svc := usecase.NewPurgeService(&stubAggregationStore{}, queue, nil, "")

	id, err := svc.Request(context.Background(), []domain.CustomerID{42, 43})
	require.NoError(t, err)
	assert.Equal(t, "task-77", id)
	assert.Equal(t, []domain.CustomerID{42, 43}, queue.task.Customers)
}

func TestPurge_Request_Rejected(t *testing.T) {
	t.Parallel()
	cases := map[string][]domain.CustomerID{
		"empty set": nil,
		"zero id":   {42, 0},
	}
	for name, customers := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			svc := usecase.NewPurgeService(&stubAggregationStore{}, &stubPurgeQueue{}, nil, "")
			_, err := svc.Request(context.Background(), customers)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInvalidArgument)
		})
	}
}

func TestPurge_Request_QueueFailure(t *testing.T) {
	t.Parallel()
	svc := usecase.NewPurgeService(&stubAggregationStore{}, &stubPurgeQueue{err: assert.AnError}, nil, "")

	_, err := svc.Request(context.Background(), []domain.CustomerID{42})
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestPurge_Execute_DeletesAndNotifies(t *testing.T) {
	t.Parallel()
	store := &stubAggregationStore{removed: 14}
	notifier := &stubNotifier{}
	svc := usecase.NewPurgeService(store, &stubPurgeQueue{}, notifier, "https://backend.example/hooks/purge")

	err := svc.Execute(context.Background(), domain.PurgeTask{ID: "task-77", Customers: []domain.CustomerID{42, 43}})
	require.NoError(t, err)
	assert.Equal(t, []domain.CustomerID{42, 43}, store.deleted)

	require.Equal(t, 1, notifier.calls)
	assert.Equal(t, "https://backend.example/hooks/purge", notifier.destination)
	var payload struct {
		Event       string              `json:"event"`
		TaskID      string              `json:"task_id"`
		CustomerIDs []domain.CustomerID `json:"customer_ids"`
		RowsRemoved int64               `json:"rows_removed"`
	}
	require.NoError(t, json.Unmarshal(notifier.body, &payload))
	assert.Equal(t, "latency_purged", payload.Event)
	assert.Equal(t, "task-77", payload.TaskID)
	assert.Equal(t, []domain.CustomerID{42, 43}, payload.CustomerIDs)
	assert.Equal(t, int64(14), payload.RowsRemoved)
}

func TestPurge_Execute_NoNotifierConfigured(t *testing.T) {
	t.Parallel()
	store := &stubAggregationStore{removed: 3}
	svc := usecase.NewPurgeService(store, &stubPurgeQueue{}, nil, "")

	err := svc.Execute(context.Background(), domain.PurgeTask{ID: "task-1", Customers: []domain.CustomerID{7}})
	require.NoError(t, err)
	assert.Equal(t, []domain.CustomerID{7}, store.deleted)
}

func TestPurge_Execute_StoreFailure(t *testing.T) {
	t.Parallel()
	notifier := &stubNotifier{}
	svc := usecase.NewPurgeService(&stubAggregationStore{err: assert.AnError}, &stubPurgeQueue{}, notifier, "https://backend.example/hooks/purge")

	err := svc.Execute(context.Background(), domain.PurgeTask{ID: "task-2", Customers: []domain.CustomerID{7}})
	require.Error(t, err)
	assert.Zero(t, notifier.calls, "failed purge must not notify")
}
