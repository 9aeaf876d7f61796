package models

import (
	"time"

	"github.com/your-org/facelog/internal/vector"
)

type Identity struct {
	ID        int64            `json:"id" db:"id"`
	Embedding vector.Embedding `json:"-" db:"face_vector"`
	ImageKey  string           `json:"image_key" db:"image_key"` // MinIO key of the representative image
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
}

// IdentityAliases holds the external keys a person can be searched by.
// Stored apart from the identity row, which is never updated.
type IdentityAliases struct {
	IdentityID           int64     `json:"identity_id" db:"identity_id"`
	IdentificationNumber string    `json:"identification_number,omitempty" db:"identification_number"`
	StudentIDNumber      string    `json:"student_id_number,omitempty" db:"student_id_number"`
	UpdatedAt            time.Time `json:"updated_at" db:"updated_at"`
}

// IdentityWithAliases is a listing row.
type IdentityWithAliases struct {
	Identity
	Aliases *IdentityAliases `json:"aliases,omitempty"`
}

// SimilarIdentity is one result of a vector-index neighbor lookup.
type SimilarIdentity struct {
	ID       int64   `json:"id"`
	Distance float64 `json:"distance"`
}
