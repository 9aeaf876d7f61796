package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/facelog/internal/pipeline"
	"github.com/your-org/facelog/pkg/dto"
)

const malformedBody = "not have json object or logs values in json"

type Ingester interface {
	Validate(batch dto.CameraLogBatch) ([]pipeline.Item, error)
	Ingest(ctx context.Context, batch dto.CameraLogBatch) (*pipeline.Result, error)
}

type BatchQueue interface {
	PublishBatch(ctx context.Context, batchID string, batch dto.CameraLogBatch) error
}

type IngestHandler struct {
	pipeline Ingester
	queue    BatchQueue
}

// NewIngestHandler: queue may be nil when NATS is not configured.
func NewIngestHandler(p Ingester, q BatchQueue) *IngestHandler {
	return &IngestHandler{pipeline: p, queue: q}
}

// Create ingests a batch synchronously.
func (h *IngestHandler) Create(c *gin.Context) {
	var batch dto.CameraLogBatch
	if err := c.ShouldBindJSON(&batch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": malformedBody})
		return
	}

	res, err := h.pipeline.Ingest(c.Request.Context(), batch)
	if err != nil {
		writePipelineError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.IngestResponse{
		DistanceAll:     res.DistanceAll,
		DistanceEachAll: res.DistanceEachAll,
		LiveData:        dto.NewLiveData(res.LiveData),
	})
}

// Enqueue validates a batch and hands it to the queue. The Idempotency-Key
// header, when present, becomes the batch id.
func (h *IngestHandler) Enqueue(c *gin.Context) {
	if h.queue == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "queued ingestion is disabled"})
		return
	}

	var batch dto.CameraLogBatch
	if err := c.ShouldBindJSON(&batch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": malformedBody})
		return
	}
	if _, err := h.pipeline.Validate(batch); err != nil {
		writePipelineError(c, err)
		return
	}

	batchID := c.GetHeader("Idempotency-Key")
	if batchID == "" {
		batchID = uuid.NewString()
	}
	if err := h.queue.PublishBatch(c.Request.Context(), batchID, batch); err != nil {
		slog.Error("enqueue batch", "batch_id", batchID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue batch"})
		return
	}

	c.JSON(http.StatusAccepted, dto.EnqueueResponse{BatchID: batchID})
}

func writePipelineError(c *gin.Context, err error) {
	var pe *pipeline.Error
	if !errors.As(err, &pe) {
		slog.Error("ingest batch", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if pe.Kind.HTTPStatus() >= http.StatusInternalServerError {
		slog.Error("ingest batch", "kind", pe.Kind.String(), "error", pe)
	} else {
		slog.Warn("reject batch", "kind", pe.Kind.String(), "reason", pe.Reason)
	}
	c.JSON(pe.Kind.HTTPStatus(), gin.H{"error": pe.Reason})
}
