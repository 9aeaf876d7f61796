// Package mock provides in-memory implementations of the storage interfaces for testing.
package mock

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/your-org/facelog/internal/models"
	"github.com/your-org/facelog/internal/storage"
	"github.com/your-org/facelog/internal/vector"
)

// MockStore mirrors PostgresStore, including its foreign key and primary key
// behavior.
type MockStore struct {
	mu         sync.RWMutex
	identities map[int64]models.Identity
	aliases    map[int64]models.IdentityAliases
	detections []models.DetectionLogEntry

	// Error injection
	ListError            error
	InsertIdentityError  error
	InsertDetectionError error
	QueryError           error
	AggregateError       error
	PingError            error

	// Calls of AggregateByMinute, for cache tests.
	AggregateCalls int
}

func NewMockStore() *MockStore {
	return &MockStore{
		identities: make(map[int64]models.Identity),
		aliases:    make(map[int64]models.IdentityAliases),
	}
}

// AddIdentity inserts an identity behind the registry's back, the way
// another replica would.
func (m *MockStore) AddIdentity(id models.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identities[id.ID] = id
}

func (m *MockStore) Detections() []models.DetectionLogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.DetectionLogEntry, len(m.detections))
	copy(out, m.detections)
	return out
}

func (m *MockStore) IdentityCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.identities)
}

func (m *MockStore) Ping(ctx context.Context) error {
	return m.PingError
}

func (m *MockStore) InsertIdentity(ctx context.Context, id *models.Identity) error {
	if m.InsertIdentityError != nil {
		return m.InsertIdentityError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.identities[id.ID]; ok {
		return fmt.Errorf("insert identity %d: %w", id.ID, storage.ErrIdentityConflict)
	}
	if id.CreatedAt.IsZero() {
		id.CreatedAt = time.Now().UTC()
	}
	stored := *id
	stored.Embedding = append(vector.Embedding(nil), id.Embedding...)
	m.identities[id.ID] = stored
	return nil
}

func (m *MockStore) ListIdentities(ctx context.Context) ([]models.Identity, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Identity, 0, len(m.identities))
	for _, id := range m.identities {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockStore) GetIdentity(ctx context.Context, id int64) (*models.IdentityWithAliases, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ident, ok := m.identities[id]
	if !ok {
		return nil, fmt.Errorf("get identity %d: %w", id, storage.ErrNotFound)
	}
	out := &models.IdentityWithAliases{Identity: ident}
	if a, ok := m.aliases[id]; ok {
		out.Aliases = &a
	}
	return out, nil
}

func (m *MockStore) ListIdentitiesWithAliases(ctx context.Context, limit, offset int) ([]models.IdentityWithAliases, int, error) {
	all, err := m.ListIdentities(ctx)
	if err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = 50
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.IdentityWithAliases
	for i := offset; i < len(all) && len(out) < limit; i++ {
		row := models.IdentityWithAliases{Identity: all[i]}
		if a, ok := m.aliases[all[i].ID]; ok {
			row.Aliases = &a
		}
		out = append(out, row)
	}
	return out, len(all), nil
}

func (m *MockStore) SetAliases(ctx context.Context, a *models.IdentityAliases) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.identities[a.IdentityID]; !ok {
		return fmt.Errorf("set aliases for %d: %w", a.IdentityID, storage.ErrNotFound)
	}
	a.UpdatedAt = time.Now().UTC()
	m.aliases[a.IdentityID] = *a
	return nil
}

func (m *MockStore) SimilarIdentities(ctx context.Context, id int64, limit int) ([]models.SimilarIdentity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	target, ok := m.identities[id]
	if !ok {
		return []models.SimilarIdentity{}, nil
	}
	out := []models.SimilarIdentity{}
	for _, other := range m.identities {
		if other.ID == id || len(other.Embedding) != len(target.Embedding) {
			continue
		}
		out = append(out, models.SimilarIdentity{ID: other.ID, Distance: vector.Euclidean(target.Embedding, other.Embedding)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockStore) InsertDetection(ctx context.Context, e *models.DetectionLogEntry) error {
	if m.InsertDetectionError != nil {
		return m.InsertDetectionError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.identities[e.IdentityID]; !ok {
		return fmt.Errorf("insert detection for identity %d: %w", e.IdentityID, storage.ErrNotFound)
	}
	e.ID = int64(len(m.detections) + 1)
	m.detections = append(m.detections, *e)
	return nil
}

func (m *MockStore) QueryByIdentityKey(ctx context.Context, key string) ([]models.Sighting, error) {
	if m.QueryError != nil {
		return nil, m.QueryError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := make(map[int64]bool)
	if id, err := strconv.ParseInt(key, 10, 64); err == nil {
		if _, ok := m.identities[id]; ok {
			matches[id] = true
		}
	}
	for id, a := range m.aliases {
		if (a.IdentificationNumber != "" && a.IdentificationNumber == key) ||
			(a.StudentIDNumber != "" && a.StudentIDNumber == key) {
			matches[id] = true
		}
	}

	var entries []models.DetectionLogEntry
	for _, d := range m.detections {
		if matches[d.IdentityID] {
			entries = append(entries, d)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].TimeDetect.Before(entries[j].TimeDetect) })

	out := make([]models.Sighting, len(entries))
	for i, d := range entries {
		out[i] = models.Sighting{TimeDetect: d.TimeDetect, Image: d.Image}
	}
	return out, nil
}

func (m *MockStore) AggregateByMinute(ctx context.Context, cameraID string) ([]models.MinuteBucket, error) {
	m.mu.Lock()
	m.AggregateCalls++
	m.mu.Unlock()
	if m.AggregateError != nil {
		return nil, m.AggregateError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	people := make(map[time.Time]map[int64]struct{})
	for _, d := range m.detections {
		if d.CameraID != cameraID {
			continue
		}
		minute := d.TimeDetect.UTC().Truncate(time.Minute)
		if people[minute] == nil {
			people[minute] = make(map[int64]struct{})
		}
		people[minute][d.IdentityID] = struct{}{}
	}

	out := make([]models.MinuteBucket, 0, len(people))
	for minute, ids := range people {
		out = append(out, models.MinuteBucket{Minute: minute, People: len(ids)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Minute.Before(out[j].Minute) })
	return out, nil
}

// MockImages is an in-memory object store.
type MockImages struct {
	mu      sync.RWMutex
	objects map[string][]byte

	PutError  error
	PingError error
}

func NewMockImages() *MockImages {
	return &MockImages{objects: make(map[string][]byte)}
}

func (m *MockImages) PutImage(ctx context.Context, key string, data []byte) error {
	if m.PutError != nil {
		return m.PutError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	return nil
}

func (m *MockImages) GetImage(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("get object %s: %w", key, storage.ErrNotFound)
	}
	return data, nil
}

func (m *MockImages) Ping(ctx context.Context) error {
	return m.PingError
}
