package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facelog/internal/models"
	"github.com/your-org/facelog/internal/storage"
	"github.com/your-org/facelog/pkg/dto"
)

type IdentityStore interface {
	ListIdentitiesWithAliases(ctx context.Context, limit, offset int) ([]models.IdentityWithAliases, int, error)
	GetIdentity(ctx context.Context, id int64) (*models.IdentityWithAliases, error)
	SetAliases(ctx context.Context, a *models.IdentityAliases) error
	SimilarIdentities(ctx context.Context, id int64, limit int) ([]models.SimilarIdentity, error)
}

type ImageReader interface {
	GetImage(ctx context.Context, key string) ([]byte, error)
}

type IdentityHandler struct {
	db     IdentityStore
	images ImageReader
}

func NewIdentityHandler(db IdentityStore, images ImageReader) *IdentityHandler {
	return &IdentityHandler{db: db, images: images}
}

func (h *IdentityHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}

	rows, total, err := h.db.ListIdentitiesWithAliases(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := dto.IdentityListResponse{Identities: make([]dto.IdentityResponse, 0, len(rows)), Total: total}
	for _, row := range rows {
		resp.Identities = append(resp.Identities, dto.NewIdentityResponse(row))
	}
	c.JSON(http.StatusOK, resp)
}

// Image returns the representative image stored when the identity was created.
func (h *IdentityHandler) Image(c *gin.Context) {
	id, ok := parseIdentityID(c)
	if !ok {
		return
	}

	ident, err := h.db.GetIdentity(c.Request.Context(), id)
	if err != nil {
		writeLookupError(c, err, "identity not found")
		return
	}
	if ident.ImageKey == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "identity has no image"})
		return
	}

	data, err := h.images.GetImage(c.Request.Context(), ident.ImageKey)
	if err != nil {
		writeLookupError(c, err, "image not found")
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", data)
}

func (h *IdentityHandler) SetAliases(c *gin.Context) {
	id, ok := parseIdentityID(c)
	if !ok {
		return
	}

	var req dto.SetAliasesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.IdentificationNumber == "" && req.StudentIDNumber == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "identification_number or student_id_number is required"})
		return
	}

	aliases := &models.IdentityAliases{
		IdentityID:           id,
		IdentificationNumber: req.IdentificationNumber,
		StudentIDNumber:      req.StudentIDNumber,
	}
	if err := h.db.SetAliases(c.Request.Context(), aliases); err != nil {
		writeLookupError(c, err, "identity not found")
		return
	}
	c.JSON(http.StatusOK, aliases)
}

// Similar lists the nearest other identities by the database vector index.
func (h *IdentityHandler) Similar(c *gin.Context) {
	id, ok := parseIdentityID(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "5"))

	if _, err := h.db.GetIdentity(c.Request.Context(), id); err != nil {
		writeLookupError(c, err, "identity not found")
		return
	}

	similar, err := h.db.SimilarIdentities(c.Request.Context(), id, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.SimilarIdentitiesResponse{IdentityID: id, Similar: similar})
}

func parseIdentityID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity id"})
		return 0, false
	}
	return id, true
}

func writeLookupError(c *gin.Context, err error, notFound string) {
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": notFound})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
