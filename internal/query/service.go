package query

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/your-org/facelog/internal/models"
	"github.com/your-org/facelog/pkg/dto"
)

var ErrEmptyKey = errors.New("keyword is required")

type Store interface {
	QueryByIdentityKey(ctx context.Context, key string) ([]models.Sighting, error)
	AggregateByMinute(ctx context.Context, cameraID string) ([]models.MinuteBucket, error)
}

// Service answers read-only questions about the detection log.
type Service struct {
	store     Store
	timelines *cache.Cache
}

// New caches per-camera timelines for timelineTTL.
func New(store Store, timelineTTL time.Duration) *Service {
	return &Service{
		store:     store,
		timelines: cache.New(timelineTTL, 2*timelineTTL),
	}
}

// Search returns every sighting of the person known by key, which may be an
// identity id, an identification number or a student id number. An unknown
// key yields an empty result.
func (s *Service) Search(ctx context.Context, key string) (dto.SearchResponse, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return dto.SearchResponse{}, ErrEmptyKey
	}
	sightings, err := s.store.QueryByIdentityKey(ctx, key)
	if err != nil {
		return dto.SearchResponse{}, err
	}
	return dto.NewSearchResponse(sightings), nil
}

// Timeline returns distinct people per minute for one camera.
func (s *Service) Timeline(ctx context.Context, cameraID string) ([]models.MinuteBucket, error) {
	if v, ok := s.timelines.Get(cameraID); ok {
		return v.([]models.MinuteBucket), nil
	}

	buckets, err := s.store.AggregateByMinute(ctx, cameraID)
	if err != nil {
		return nil, err
	}
	s.timelines.SetDefault(cameraID, buckets)
	return buckets, nil
}
