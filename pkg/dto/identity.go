package dto

import (
	"strconv"

	"github.com/your-org/facelog/internal/models"
)

type IdentityResponse struct {
	ID                   int64  `json:"id"`
	ImageURL             string `json:"image_url"`
	IdentificationNumber string `json:"identification_number,omitempty"`
	StudentIDNumber      string `json:"student_id_number,omitempty"`
	CreatedAt            string `json:"created_at"`
}

type IdentityListResponse struct {
	Identities []IdentityResponse `json:"identities"`
	Total      int                `json:"total"`
}

func NewIdentityResponse(i models.IdentityWithAliases) IdentityResponse {
	resp := IdentityResponse{
		ID:        i.ID,
		CreatedAt: formatTime(i.CreatedAt),
	}
	if i.ImageKey != "" {
		resp.ImageURL = "/v1/identities/" + strconv.FormatInt(i.ID, 10) + "/image"
	}
	if i.Aliases != nil {
		resp.IdentificationNumber = i.Aliases.IdentificationNumber
		resp.StudentIDNumber = i.Aliases.StudentIDNumber
	}
	return resp
}

type SetAliasesRequest struct {
	IdentificationNumber string `json:"identification_number"`
	StudentIDNumber      string `json:"student_id_number"`
}

type SimilarIdentitiesResponse struct {
	IdentityID int64                    `json:"identity_id"`
	Similar    []models.SimilarIdentity `json:"similar"`
}
