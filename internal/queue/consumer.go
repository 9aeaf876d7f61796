package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/facelog/internal/pipeline"
	"github.com/your-org/facelog/pkg/dto"
)

// IngestConsumerName is the durable consumer shared by every process that
// ingests queued batches.
const IngestConsumerName = "facelog-ingest"

type MessageHandler func(ctx context.Context, data []byte) error

type Consumer struct {
	js jetstream.JetStream
}

func NewConsumer(nc *nats.Conn) (*Consumer, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}
	return &Consumer{js: js}, nil
}

// ConsumeBatches starts consuming queued batches from the DETECTIONS stream.
// workerCount determines how many goroutines process messages concurrently.
// A handler error naks the message for redelivery.
func (c *Consumer) ConsumeBatches(ctx context.Context, consumerName string, handler MessageHandler, workerCount int) error {
	if workerCount < 1 {
		workerCount = 1
	}
	stream, err := c.js.Stream(ctx, DetectionsStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", DetectionsStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       60 * time.Second,
		MaxDeliver:    3,
		FilterSubject: DetectionsSubjectBase + ".>",
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	msgCh := make(chan jetstream.Msg, workerCount*2)

	go func() {
		defer close(msgCh)
		for {
			if ctx.Err() != nil {
				return
			}

			batch, err := cons.Fetch(workerCount, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("fetch batches error", "error", err)
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				select {
				case msgCh <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	for i := 0; i < workerCount; i++ {
		go func(workerID int) {
			for msg := range msgCh {
				if err := handler(ctx, msg.Data()); err != nil {
					slog.Error("process batch error", "worker", workerID, "error", err, "subject", msg.Subject())
					_ = msg.Nak()
				} else {
					_ = msg.Ack()
				}
			}
		}(i)
	}

	slog.Info("batch consumer started", "consumer", consumerName, "workers", workerCount)
	return nil
}

// Ingester is satisfied by *pipeline.Pipeline.
type Ingester interface {
	Ingest(ctx context.Context, batch dto.CameraLogBatch) (*pipeline.Result, error)
}

// IngestHandler runs queued batches through the pipeline. Batches that can
// never succeed are logged and acknowledged; only persistence and publish
// failures are retried.
func IngestHandler(ing Ingester) MessageHandler {
	return func(ctx context.Context, data []byte) error {
		var batch dto.CameraLogBatch
		if err := json.Unmarshal(data, &batch); err != nil {
			slog.Error("drop undecodable queued batch", "error", err)
			return nil
		}

		_, err := ing.Ingest(ctx, batch)
		if err == nil {
			return nil
		}

		var pe *pipeline.Error
		if errors.As(err, &pe) && (pe.Kind.Rejected() || pe.Kind == pipeline.KindDimensionMismatch) {
			slog.Warn("drop queued batch", "kind", pe.Kind.String(), "reason", pe.Reason)
			return nil
		}
		return err
	}
}
