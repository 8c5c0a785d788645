package redpanda

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/hostpulse/hostpulse/internal/domain"
)

const (
	defaultRetryInterval = 30 * time.Second
	fetchErrorPause      = 2 * time.Second
)

// Executor runs one purge task to completion.
type Executor interface {
	Execute(ctx domain.Context, task domain.PurgeTask) error
}

// Consumer reads purge tasks from the topic and hands them to the
// executor. A record's offset is marked only after its task succeeds, so
// a worker that dies mid-task replays it on restart. Replays are harmless
// because execution is idempotent.
type Consumer struct {
	client        *kgo.Client
	executor      Executor
	groupID       string
	retryInterval time.Duration
}

// NewConsumer joins groupID on the purge topic.
func NewConsumer(brokers []string, groupID string, executor Executor) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=queue.consumer: no seed brokers")
	}
	if groupID == "" {
		return nil, fmt.Errorf("op=queue.consumer: missing group id")
	}
	if executor == nil {
		return nil, fmt.Errorf("op=queue.consumer: missing executor")
	}

	tracer := kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider()))
	kotelService := kotel.NewKotel(kotel.WithTracer(tracer))

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(TopicPurge),
		kgo.WithHooks(kotelService.Hooks()...),
		kgo.DialTimeout(10*time.Second),
		kgo.SessionTimeout(30*time.Second),
		kgo.HeartbeatInterval(3*time.Second),
		kgo.AutoCommitMarks(),
		kgo.AutoCommitInterval(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("op=queue.consumer: %w", err)
	}

	if err := ensureTopic(context.Background(), client, TopicPurge, 1, 1); err != nil {
		slog.Warn("purge topic bootstrap failed, assuming it exists",
			slog.String("topic", TopicPurge),
			slog.Any("error", err))
	}
	return &Consumer{
		client:        client,
		executor:      executor,
		groupID:       groupID,
		retryInterval: defaultRetryInterval,
	}, nil
}

// Run polls for purge tasks until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	slog.Info("purge consumer started",
		slog.String("group_id", c.groupID),
		slog.String("topic", TopicPurge))

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			abort := false
			for _, fe := range errs {
				if errors.Is(fe.Err, context.Canceled) || errors.Is(fe.Err, context.DeadlineExceeded) {
					abort = true
					continue
				}
				slog.Error("purge fetch failed",
					slog.String("topic", fe.Topic),
					slog.Int("partition", int(fe.Partition)),
					slog.Any("error", fe.Err))
			}
			if abort {
				return ctx.Err()
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(fetchErrorPause):
			}
			continue
		}
		fetches.EachRecord(func(record *kgo.Record) {
			if c.processRecord(ctx, record.Value) {
				c.client.MarkCommitRecords(record)
			}
		})
	}
}

// processRecord runs one task body, reporting whether the record may be
// marked consumed. A frame that cannot decode will never decode, so it is
// dropped; a task whose execution keeps failing is retried until ctx ends
// and replayed after restart.
func (c *Consumer) processRecord(ctx context.Context, value []byte) bool {
	task, err := decodeTask(value)
	if err != nil {
		slog.Error("purge task dropped", slog.Any("error", err))
		return true
	}

	bo := backoff.WithContext(backoff.NewConstantBackOff(c.retryInterval), ctx)
	err = backoff.Retry(func() error {
		if execErr := c.executor.Execute(ctx, task); execErr != nil {
			slog.Warn("purge task failed, retrying",
				slog.String("task_id", task.ID),
				slog.Duration("retry_in", c.retryInterval),
				slog.Any("error", execErr))
			return execErr
		}
		return nil
	}, bo)
	if err != nil {
		slog.Error("purge task abandoned until restart",
			slog.String("task_id", task.ID),
			slog.Any("error", err))
		return false
	}

	slog.Info("purge task executed", slog.String("task_id", task.ID))
	return true
}

func decodeTask(value []byte) (domain.PurgeTask, error) {
	var payload purgePayload
	if err := json.Unmarshal(value, &payload); err != nil {
		return domain.PurgeTask{}, fmt.Errorf("op=queue.decode_task: %w", err)
	}
	if payload.TaskID == "" {
		return domain.PurgeTask{}, fmt.Errorf("op=queue.decode_task: missing task id")
	}
	if len(payload.Customers) == 0 {
		return domain.PurgeTask{}, fmt.Errorf("op=queue.decode_task: no customers in task %s", payload.TaskID)
	}
	return domain.PurgeTask{ID: payload.TaskID, Customers: payload.Customers}, nil
}

// Close leaves the consumer group cleanly.
func (c *Consumer) Close() {
	if c.client != nil {
		c.client.Close()
	}
}
