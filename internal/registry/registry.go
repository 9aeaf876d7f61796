package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/your-org/facelog/internal/models"
	"github.com/your-org/facelog/internal/observability"
	"github.com/your-org/facelog/internal/storage"
	"github.com/your-org/facelog/internal/vector"
)

// maxAttempts bounds how often Resolve reloads after another replica took
// the id it was about to assign.
const maxAttempts = 3

type IdentityStore interface {
	ListIdentities(ctx context.Context) ([]models.Identity, error)
	InsertIdentity(ctx context.Context, id *models.Identity) error
}

type ImageStore interface {
	PutImage(ctx context.Context, key string, data []byte) error
}

// Resolution is the outcome of resolving one detection.
type Resolution struct {
	Match      vector.MatchResult
	IdentityID int64
	Created    bool
}

// Registry is the in-memory, insertion-ordered set of known identities,
// backed by the database. All mutations go through one mutex so that
// "match, then append on miss" is atomic within the process.
type Registry struct {
	store  IdentityStore
	images ImageStore

	mu         sync.Mutex
	identities []models.Identity
	candidates []vector.Candidate
}

// New returns an empty registry. images may be nil, in which case
// representative images are not kept.
func New(store IdentityStore, images ImageStore) *Registry {
	return &Registry{store: store, images: images}
}

// Load replaces the cache with the contents of the store.
func (r *Registry) Load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadLocked(ctx)
}

func (r *Registry) loadLocked(ctx context.Context) error {
	ids, err := r.store.ListIdentities(ctx)
	if err != nil {
		return fmt.Errorf("load identities: %w", err)
	}
	if n := len(ids); n > 0 && ids[n-1].ID != int64(n) {
		slog.Warn("identity ids have gaps, new ids continue after the highest",
			"count", n, "max_id", ids[n-1].ID)
	}

	r.identities = ids
	r.candidates = make([]vector.Candidate, len(ids))
	for i, id := range ids {
		r.candidates[i] = vector.Candidate{ID: id.ID, Embedding: id.Embedding}
	}
	observability.RegistrySize.Set(float64(len(ids)))
	return nil
}

// Snapshot returns a copy of the identities in insertion order.
func (r *Registry) Snapshot() []models.Identity {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.Identity, len(r.identities))
	copy(out, r.identities)
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.identities)
}

// CheckDimension fails with *vector.DimensionMismatchError when emb cannot be
// compared with every known identity.
func (r *Registry) CheckDimension(emb vector.Embedding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return vector.CheckDimensions(emb, r.candidates)
}

// nextID is len+1 whenever ids are contiguous. Imported data may have gaps,
// so it continues from the highest id instead.
func (r *Registry) nextID() int64 {
	if n := len(r.identities); n > 0 {
		return r.identities[n-1].ID + 1
	}
	return 1
}

// Append registers a new identity with the next id.
func (r *Registry) Append(ctx context.Context, emb vector.Embedding, image []byte) (models.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.appendLocked(ctx, emb, image)
}

func (r *Registry) appendLocked(ctx context.Context, emb vector.Embedding, image []byte) (models.Identity, error) {
	id := models.Identity{
		ID:        r.nextID(),
		Embedding: emb,
		CreatedAt: time.Now().UTC(),
	}

	if r.images != nil && len(image) > 0 {
		id.ImageKey = storage.NewIdentityImageKey(id.ID)
		if err := r.images.PutImage(ctx, id.ImageKey, image); err != nil {
			return models.Identity{}, fmt.Errorf("store identity image: %w", err)
		}
	}

	if err := r.store.InsertIdentity(ctx, &id); err != nil {
		return models.Identity{}, err
	}

	r.identities = append(r.identities, id)
	r.candidates = append(r.candidates, vector.Candidate{ID: id.ID, Embedding: emb})
	observability.RegistrySize.Set(float64(len(r.identities)))
	observability.IdentitiesCreated.Inc()
	return id, nil
}

// Resolve finds the identity closest to emb below threshold, or appends a
// new one when none is close enough. Concurrent calls are serialized, so two
// detections of an unseen face never create two identities in one process.
func (r *Registry) Resolve(ctx context.Context, emb vector.Embedding, image []byte, threshold float64) (Resolution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for attempt := 1; ; attempt++ {
		res, err := r.resolveLocked(ctx, emb, image, threshold)
		if err == nil || !errors.Is(err, storage.ErrIdentityConflict) || attempt == maxAttempts {
			return res, err
		}

		slog.Warn("identity id taken by another writer, reloading registry",
			"attempt", attempt, "size", len(r.identities))
		if err := r.loadLocked(ctx); err != nil {
			return Resolution{}, err
		}
	}
}

func (r *Registry) resolveLocked(ctx context.Context, emb vector.Embedding, image []byte, threshold float64) (Resolution, error) {
	match, err := vector.Match(emb, r.candidates, threshold)
	if err != nil {
		return Resolution{}, err
	}
	if match.Matched {
		return Resolution{Match: match, IdentityID: match.IdentityID}, nil
	}

	id, err := r.appendLocked(ctx, emb, image)
	if err != nil {
		return Resolution{Match: match}, err
	}
	return Resolution{Match: match, IdentityID: id.ID, Created: true}, nil
}
