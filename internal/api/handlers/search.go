package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facelog/internal/api/ws"
	"github.com/your-org/facelog/internal/models"
	"github.com/your-org/facelog/internal/query"
	"github.com/your-org/facelog/pkg/dto"
)

// SearchChannel is the hub room of search connections.
const SearchChannel = "search"

type Searcher interface {
	Search(ctx context.Context, key string) (dto.SearchResponse, error)
	Timeline(ctx context.Context, cameraID string) ([]models.MinuteBucket, error)
}

type SearchHandler struct {
	svc Searcher
	hub *ws.Hub
}

func NewSearchHandler(svc Searcher, hub *ws.Hub) *SearchHandler {
	return &SearchHandler{svc: svc, hub: hub}
}

func (h *SearchHandler) Search(c *gin.Context) {
	res, err := h.svc.Search(c.Request.Context(), c.Query("keyword"))
	if err != nil {
		if errors.Is(err, query.ErrEmptyKey) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *SearchHandler) Timeline(c *gin.Context) {
	cameraID := c.Param("id")
	buckets, err := h.svc.Timeline(c.Request.Context(), cameraID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.NewTimelineResponse(cameraID, buckets))
}

// WS serves the search channel: each {"event":"search","keyword":...}
// message is answered on the same connection.
func (h *SearchHandler) WS(c *gin.Context) {
	h.hub.Serve(c, SearchChannel, h.onMessage)
}

func (h *SearchHandler) onMessage(ctx context.Context, msg []byte) []byte {
	var req dto.WSSearchRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		return encodeReply(dto.WSSearchReply{Event: "error", Error: "invalid message"})
	}
	if req.Event != "search" {
		return encodeReply(dto.WSSearchReply{Event: "error", Error: "unknown event " + req.Event})
	}

	res, err := h.svc.Search(ctx, req.Keyword)
	if err != nil {
		if !errors.Is(err, query.ErrEmptyKey) {
			slog.Error("ws search", "keyword", req.Keyword, "error", err)
		}
		return encodeReply(dto.WSSearchReply{Event: "error", Error: err.Error()})
	}
	return encodeReply(dto.WSSearchReply{
		Event:      "search_result",
		TimeDetect: res.TimeDetect,
		FaceImage:  res.FaceImage,
	})
}

func encodeReply(r dto.WSSearchReply) []byte {
	data, err := json.Marshal(r)
	if err != nil {
		slog.Error("marshal ws reply", "error", err)
		return nil
	}
	return data
}
