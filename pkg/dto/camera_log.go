package dto

import (
	"time"

	"github.com/your-org/facelog/internal/models"
)

// CameraLog is one detection reported by a camera. FaceVector is the text
// form "[v1,...,vn]"; FaceImage is opaque and echoed back unchanged.
type CameraLog struct {
	CameraID   string `json:"camera_id"`
	TimeDetect string `json:"time_detect"`
	FaceImage  string `json:"face_image"`
	FaceVector string `json:"face_vector"`
}

type CameraLogBatch struct {
	Logs []CameraLog `json:"logs"`
}

// LiveData is the payload pushed to every live subscriber for one batch.
type LiveData struct {
	CameraID   string   `json:"camera_id"`
	FaceID     []int64  `json:"face_id"`
	TimeDetect string   `json:"time_detect"`
	FaceImage  []string `json:"face_image"`
}

func NewLiveData(b models.ResolvedBatch) LiveData {
	images := make([]string, len(b.Images))
	for i, img := range b.Images {
		images[i] = string(img)
	}
	ids := b.IdentityIDs
	if ids == nil {
		ids = []int64{}
	}
	return LiveData{
		CameraID:   b.CameraID,
		FaceID:     ids,
		TimeDetect: b.TimeDetect.UTC().Format(time.RFC3339),
		FaceImage:  images,
	}
}

type IngestResponse struct {
	DistanceAll     []float64   `json:"distance_all"`
	DistanceEachAll [][]float64 `json:"distance_each_all"`
	LiveData        LiveData    `json:"live_data"`
}

type EnqueueResponse struct {
	BatchID string `json:"batch_id"`
}
