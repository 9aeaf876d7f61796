package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/your-org/facelog/internal/models"
	"github.com/your-org/facelog/internal/observability"
	"github.com/your-org/facelog/internal/registry"
	"github.com/your-org/facelog/internal/vector"
	"github.com/your-org/facelog/pkg/dto"
)

// LiveChannel is where resolved batches are published.
const LiveChannel = "live"

// Accepted time_detect layouts, tried in order.
var timeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05"}

type Resolver interface {
	CheckDimension(emb vector.Embedding) error
	Resolve(ctx context.Context, emb vector.Embedding, image []byte, threshold float64) (registry.Resolution, error)
}

type DetectionLog interface {
	InsertDetection(ctx context.Context, e *models.DetectionLogEntry) error
}

type Publisher interface {
	Publish(ctx context.Context, channel string, payload any) error
}

// NoopPublisher drops every payload.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, any) error { return nil }

// Item is one validated, decoded detection.
type Item struct {
	CameraID   string
	TimeDetect time.Time
	Image      []byte
	Embedding  vector.Embedding
}

// Result summarizes a completed batch. DistanceAll holds the best distance
// per item (the threshold when nothing matched) and DistanceEachAll the
// distances to every identity known when that item was resolved.
type Result struct {
	DistanceAll     []float64
	DistanceEachAll [][]float64
	LiveData        models.ResolvedBatch
}

type Pipeline struct {
	registry  Resolver
	log       DetectionLog
	publisher Publisher
	codec     vector.Codec
	threshold float64
}

func New(reg Resolver, log DetectionLog, pub Publisher, codec vector.Codec, threshold float64) *Pipeline {
	if pub == nil {
		pub = NoopPublisher{}
	}
	return &Pipeline{
		registry:  reg,
		log:       log,
		publisher: pub,
		codec:     codec,
		threshold: threshold,
	}
}

// Validate checks every record and decodes every vector, so a malformed
// batch is refused before anything is written.
func (p *Pipeline) Validate(batch dto.CameraLogBatch) ([]Item, error) {
	if len(batch.Logs) == 0 {
		return nil, &Error{Kind: KindMalformedBatch, Reason: "not have json object or logs values in json"}
	}

	items := make([]Item, len(batch.Logs))
	for i, rec := range batch.Logs {
		if missing := missingFields(rec); len(missing) > 0 {
			return nil, &Error{
				Kind:   KindMalformedBatch,
				Reason: fmt.Sprintf("logs[%d]: missing %s", i, strings.Join(missing, ", ")),
			}
		}

		at, err := parseTimeDetect(rec.TimeDetect)
		if err != nil {
			return nil, &Error{
				Kind:   KindMalformedBatch,
				Reason: fmt.Sprintf("logs[%d]: time_detect %q is not a valid time", i, rec.TimeDetect),
			}
		}

		emb, err := p.codec.Decode(rec.FaceVector)
		if err != nil {
			return nil, &Error{
				Kind:   KindMalformedVector,
				Reason: fmt.Sprintf("logs[%d]: %s", i, err.Error()),
				Err:    err,
			}
		}

		items[i] = Item{
			CameraID:   rec.CameraID,
			TimeDetect: at,
			Image:      []byte(rec.FaceImage),
			Embedding:  emb,
		}
	}
	return items, nil
}

func missingFields(rec dto.CameraLog) []string {
	var missing []string
	if rec.CameraID == "" {
		missing = append(missing, "camera_id")
	}
	if rec.TimeDetect == "" {
		missing = append(missing, "time_detect")
	}
	if rec.FaceImage == "" {
		missing = append(missing, "face_image")
	}
	if rec.FaceVector == "" {
		missing = append(missing, "face_vector")
	}
	return missing
}

func dimensionError(err error) *Error {
	var dme *vector.DimensionMismatchError
	if errors.As(err, &dme) {
		return &Error{Kind: KindDimensionMismatch, Reason: dme.Error(), Err: err}
	}
	return &Error{Kind: KindDimensionMismatch, Reason: err.Error(), Err: err}
}

func parseTimeDetect(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

// Ingest resolves, logs and publishes one batch. Items are processed in
// order, so a face seen twice in one batch maps to one identity. There is
// no rollback of identities: every item is resolved before any entry is
// logged, so a dimension mismatch logs nothing, while a store failure part
// way through the log writes leaves the earlier entries in place.
//
// The work is detached from ctx cancellation; a client hanging up does not
// abort a half-written batch.
func (p *Pipeline) Ingest(ctx context.Context, batch dto.CameraLogBatch) (*Result, error) {
	items, err := p.Validate(batch)
	if err != nil {
		observability.BatchesTotal.WithLabelValues(observability.OutcomeRejected).Inc()
		return nil, err
	}
	return p.IngestItems(ctx, items)
}

// IngestItems runs an already validated batch.
func (p *Pipeline) IngestItems(ctx context.Context, items []Item) (*Result, error) {
	ctx = context.WithoutCancel(ctx)

	res, err := p.process(ctx, items)
	if err != nil {
		observability.BatchesTotal.WithLabelValues(observability.OutcomeFailed).Inc()
		return nil, err
	}
	observability.BatchesTotal.WithLabelValues(observability.OutcomeOK).Inc()
	return res, nil
}

func (p *Pipeline) process(ctx context.Context, items []Item) (*Result, error) {
	res := &Result{
		DistanceAll:     make([]float64, 0, len(items)),
		DistanceEachAll: make([][]float64, 0, len(items)),
		LiveData: models.ResolvedBatch{
			IdentityIDs: make([]int64, 0, len(items)),
			Images:      make([][]byte, 0, len(items)),
		},
	}

	// Refuse the batch before creating any identity if an item cannot be
	// compared with the registry as it stands.
	for _, it := range items {
		if err := p.registry.CheckDimension(it.Embedding); err != nil {
			return nil, dimensionError(err)
		}
	}

	// Every item is resolved before the first log entry is written, so a
	// mismatch against an identity created earlier in this batch, or one
	// pulled in by a conflict reload, still leaves the log untouched.
	resolved := make([]registry.Resolution, len(items))
	created := 0
	for i, it := range items {
		r, err := p.registry.Resolve(ctx, it.Embedding, it.Image, p.threshold)
		if err != nil {
			if errors.Is(err, vector.ErrDimensionMismatch) {
				return nil, dimensionError(err)
			}
			return nil, &Error{
				Kind:   KindPersistence,
				Reason: fmt.Sprintf("unsuccessful insert of face identity for logs[%d]", i),
				Err:    err,
			}
		}
		if r.Created {
			created++
		}
		observability.MatchDistance.Observe(r.Match.Distance)
		resolved[i] = r
	}

	for i, it := range items {
		r := resolved[i]
		entry := &models.DetectionLogEntry{
			CameraID:   it.CameraID,
			IdentityID: r.IdentityID,
			TimeDetect: it.TimeDetect,
			Image:      it.Image,
		}
		if err := p.log.InsertDetection(ctx, entry); err != nil {
			return nil, &Error{
				Kind:   KindPersistence,
				Reason: "unsuccessful INSERT logs from device to database",
				Err:    err,
			}
		}
		observability.DetectionsLogged.WithLabelValues(it.CameraID).Inc()

		res.DistanceAll = append(res.DistanceAll, r.Match.Distance)
		res.DistanceEachAll = append(res.DistanceEachAll, r.Match.Distances)
		res.LiveData.IdentityIDs = append(res.LiveData.IdentityIDs, r.IdentityID)
		res.LiveData.Images = append(res.LiveData.Images, it.Image)
	}

	last := items[len(items)-1]
	res.LiveData.CameraID = last.CameraID
	res.LiveData.TimeDetect = last.TimeDetect

	if err := p.publisher.Publish(ctx, LiveChannel, dto.NewLiveData(res.LiveData)); err != nil {
		return nil, &Error{Kind: KindPublish, Reason: "live broadcast failed", Err: err}
	}

	slog.Info("batch ingested",
		"camera_id", last.CameraID,
		"items", len(items),
		"identities_created", created,
	)
	return res, nil
}
