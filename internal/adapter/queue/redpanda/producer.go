// Package redpanda carries purge tasks from the API process to the
// background worker over a Kafka topic. Tasks are keyed by id and their
// execution is idempotent, so at-least-once delivery is all the pipeline
// needs; nothing here requires transactions.
package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/hostpulse/hostpulse/internal/domain"
)

// TopicPurge is the topic purge tasks travel on.
const TopicPurge = "latency.purge"

// purgePayload is the wire form of a purge task.
type purgePayload struct {
	TaskID    string              `json:"task_id"`
	Customers []domain.CustomerID `json:"customer_ids"`
}

// Producer publishes purge tasks. It implements domain.PurgeQueue.
type Producer struct {
	client *kgo.Client
}

// NewProducer dials the brokers and makes sure the purge topic exists.
// Topic bootstrap failures are logged rather than fatal so the API can
// come up while the broker is still electing a controller.
func NewProducer(brokers []string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=queue.producer: no seed brokers")
	}

	tracer := kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider()))
	kotelService := kotel.NewKotel(kotel.WithTracer(tracer))

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.WithHooks(kotelService.Hooks()...),
		kgo.RequestRetries(10),
	)
	if err != nil {
		return nil, fmt.Errorf("op=queue.producer: %w", err)
	}

	if err := ensureTopic(context.Background(), client, TopicPurge, 1, 1); err != nil {
		slog.Warn("purge topic bootstrap failed, assuming it exists",
			slog.String("topic", TopicPurge),
			slog.Any("error", err))
	}
	return &Producer{client: client}, nil
}

// EnqueuePurge implements domain.PurgeQueue. The task id is minted here
// when the caller did not supply one, so the API can hand it back for
// correlating the completion notification.
func (p *Producer) EnqueuePurge(ctx domain.Context, task domain.PurgeTask) (string, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	body, err := json.Marshal(purgePayload{TaskID: task.ID, Customers: task.Customers})
	if err != nil {
		return "", fmt.Errorf("op=queue.enqueue_purge: %w", err)
	}

	record := &kgo.Record{
		Topic: TopicPurge,
		Key:   []byte(task.ID),
		Value: body,
		Headers: []kgo.RecordHeader{
			{Key: "task_id", Value: []byte(task.ID)},
		},
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return "", fmt.Errorf("op=queue.enqueue_purge: %w", err)
	}

	slog.Info("purge task published",
		slog.String("task_id", task.ID),
		slog.Int("customers", len(task.Customers)))
	return task.ID, nil
}

// Ping checks broker reachability; the readiness probe uses it.
func (p *Producer) Ping(ctx domain.Context) error {
	return p.client.Ping(ctx)
}

// Close flushes buffered records and releases the client.
func (p *Producer) Close() {
	if p.client != nil {
		p.client.Close()
	}
}
