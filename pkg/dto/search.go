package dto

import (
	"time"

	"github.com/your-org/facelog/internal/models"
)

// SearchResponse lists the sightings of one person in ascending time order.
// TimeDetect holds unix seconds.
type SearchResponse struct {
	TimeDetect []int64  `json:"time_detect"`
	FaceImage  []string `json:"face_image"`
}

func NewSearchResponse(sightings []models.Sighting) SearchResponse {
	resp := SearchResponse{
		TimeDetect: make([]int64, len(sightings)),
		FaceImage:  make([]string, len(sightings)),
	}
	for i, s := range sightings {
		resp.TimeDetect[i] = s.TimeDetect.Unix()
		resp.FaceImage[i] = string(s.Image)
	}
	return resp
}

// WSSearchRequest is sent by a client on the search channel.
type WSSearchRequest struct {
	Event   string `json:"event"`
	Keyword string `json:"keyword"`
}

// WSSearchReply answers a WSSearchRequest. Event is "search_result" or "error".
type WSSearchReply struct {
	Event      string   `json:"event"`
	TimeDetect []int64  `json:"time_detect,omitempty"`
	FaceImage  []string `json:"face_image,omitempty"`
	Error      string   `json:"error,omitempty"`
}

type TimelinePoint struct {
	Minute int64 `json:"minute"` // unix milliseconds of the bucket start
	People int   `json:"people"`
}

type TimelineResponse struct {
	CameraID string          `json:"camera_id"`
	Points   []TimelinePoint `json:"points"`
}

func NewTimelineResponse(cameraID string, buckets []models.MinuteBucket) TimelineResponse {
	resp := TimelineResponse{CameraID: cameraID, Points: make([]TimelinePoint, len(buckets))}
	for i, b := range buckets {
		resp.Points[i] = TimelinePoint{Minute: b.Minute.UnixMilli(), People: b.People}
	}
	return resp
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
