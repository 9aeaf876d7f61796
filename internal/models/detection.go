package models

import "time"

type DetectionLogEntry struct {
	ID         int64     `json:"id" db:"id"`
	CameraID   string    `json:"camera_id" db:"camera_id"`
	IdentityID int64     `json:"identity_id" db:"identity_id"`
	TimeDetect time.Time `json:"time_detect" db:"time_detect"`
	Image      []byte    `json:"-" db:"face_image"`
}

// ResolvedBatch is what live viewers receive for one ingested batch.
// IdentityIDs and Images are aligned with the batch order.
type ResolvedBatch struct {
	CameraID    string
	IdentityIDs []int64
	TimeDetect  time.Time
	Images      [][]byte
}

type Sighting struct {
	TimeDetect time.Time `json:"time_detect" db:"time_detect"`
	Image      []byte    `json:"-" db:"face_image"`
}

type MinuteBucket struct {
	Minute time.Time `json:"minute" db:"minute"`
	People int       `json:"people" db:"people"`
}
