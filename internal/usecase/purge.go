package usecase

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hostpulse/hostpulse/internal/adapter/observability"
	"github.com/hostpulse/hostpulse/internal/domain"
)

// PurgeService queues account-data purges on the API side and executes them
// on the worker side.
type PurgeService struct {
	Store     domain.AggregationStore
	Queue     domain.PurgeQueue
	Notifier  domain.Notifier
	NotifyURL string
}

// NewPurgeService constructs a PurgeService. Notifier and NotifyURL may be
// empty when completion notifications are not wanted.
func NewPurgeService(store domain.AggregationStore, queue domain.PurgeQueue, notifier domain.Notifier, notifyURL string) PurgeService {
	return PurgeService{Store: store, Queue: queue, Notifier: notifier, NotifyURL: notifyURL}
}

// Request validates the customer set and enqueues a purge task, returning
// the task id.
func (s PurgeService) Request(ctx domain.Context, customers []domain.CustomerID) (string, error) {
	if len(customers) == 0 {
		return "", fmt.Errorf("%w: no customer ids", domain.ErrInvalidArgument)
	}
	for _, c := range customers {
		if !c.Valid() {
			return "", fmt.Errorf("%w: customer id zero", domain.ErrInvalidArgument)
		}
	}
	id, err := s.Queue.EnqueuePurge(ctx, domain.PurgeTask{Customers: customers})
	if err != nil {
		observability.PurgeTasksTotal.WithLabelValues("enqueue_failed").Inc()
		return "", fmt.Errorf("op=purge.request: %w", err)
	}
	observability.PurgeTasksTotal.WithLabelValues("enqueued").Inc()
	slog.Info("purge queued", slog.String("task_id", id), slog.Int("customers", len(customers)))
	return id, nil
}

// Execute removes every latency row owned by the task's customers and, when
// configured, notifies the website backend. Re-running a task is harmless:
// the second pass matches nothing.
func (s PurgeService) Execute(ctx domain.Context, task domain.PurgeTask) error {
	removed, err := s.Store.DeleteByCustomers(ctx, task.Customers)
	if err != nil {
		observability.PurgeTasksTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("op=purge.execute: %w", err)
	}
	observability.PurgeTasksTotal.WithLabelValues("completed").Inc()
	slog.Info("purge completed",
		slog.String("task_id", task.ID),
		slog.Int("customers", len(task.Customers)),
		slog.Int64("rows_removed", removed))
	if s.Notifier != nil && s.NotifyURL != "" {
		body, err := json.Marshal(purgeNotification{
			Event:       "latency_purged",
			TaskID:      task.ID,
			CustomerIDs: task.Customers,
			RowsRemoved: removed,
		})
		if err == nil {
			s.Notifier.Notify(s.NotifyURL, body)
		}
	}
	return nil
}

type purgeNotification struct {
	Event       string              `json:"event"`
	TaskID      string              `json:"task_id"`
	CustomerIDs []domain.CustomerID `json:"customer_ids"`
	RowsRemoved int64               `json:"rows_removed"`
}
