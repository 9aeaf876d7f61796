//go:build integration

package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/your-org/facelog/internal/models"
	"github.com/your-org/facelog/internal/vector"
)

func setupTestStore(t *testing.T) *PostgresStore {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "facelog",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil || container == nil {
		t.Skipf("Docker not available, skipping integration test: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://test:test@%s:%s/facelog?sslmode=disable", host, port.Port())
	store, err := NewPostgresStoreFromDSN(ctx, dsn, 5)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	require.NoError(t, store.Migrate(ctx))
	// Migrate must be idempotent.
	require.NoError(t, store.Migrate(ctx))
	return store
}

func TestPostgresStore(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	id1 := &models.Identity{ID: 1, Embedding: vector.Embedding{0.1, 0.2, 0.3}, ImageKey: IdentityImageKey(1)}
	id2 := &models.Identity{ID: 2, Embedding: vector.Embedding{0.9, 0.8, 0.7}, ImageKey: IdentityImageKey(2)}
	require.NoError(t, store.InsertIdentity(ctx, id1))
	require.NoError(t, store.InsertIdentity(ctx, id2))

	t.Run("duplicate id conflicts", func(t *testing.T) {
		err := store.InsertIdentity(ctx, &models.Identity{ID: 2, Embedding: vector.Embedding{1, 1, 1}})
		assert.True(t, errors.Is(err, ErrIdentityConflict))
	})

	t.Run("list identities round trips embeddings", func(t *testing.T) {
		ids, err := store.ListIdentities(ctx)
		require.NoError(t, err)
		require.Len(t, ids, 2)
		assert.Equal(t, int64(1), ids[0].ID)
		assert.Equal(t, vector.Embedding{0.1, 0.2, 0.3}, ids[0].Embedding)
		assert.Equal(t, "identities/2", ids[1].ImageKey)
	})

	require.NoError(t, store.SetAliases(ctx, &models.IdentityAliases{
		IdentityID:           1,
		IdentificationNumber: "1100700000001",
		StudentIDNumber:      "6010500001",
	}))

	for i, at := range []time.Time{base.Add(2 * time.Minute), base, base.Add(30 * time.Second)} {
		require.NoError(t, store.InsertDetection(ctx, &models.DetectionLogEntry{
			CameraID:   "CCTV01",
			IdentityID: 1,
			TimeDetect: at,
			Image:      []byte(fmt.Sprintf("img-%d", i)),
		}))
	}
	require.NoError(t, store.InsertDetection(ctx, &models.DetectionLogEntry{
		CameraID: "CCTV01", IdentityID: 2, TimeDetect: base.Add(10 * time.Second), Image: []byte("other"),
	}))

	t.Run("search by every key is ascending", func(t *testing.T) {
		for _, key := range []string{"1", "1100700000001", "6010500001"} {
			got, err := store.QueryByIdentityKey(ctx, key)
			require.NoError(t, err)
			require.Len(t, got, 3, key)
			assert.Equal(t, base.Unix(), got[0].TimeDetect.Unix())
			assert.Equal(t, []byte("img-1"), got[0].Image)
			assert.Equal(t, base.Add(2*time.Minute).Unix(), got[2].TimeDetect.Unix())
		}
	})

	t.Run("unknown key is empty", func(t *testing.T) {
		got, err := store.QueryByIdentityKey(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("minute buckets count distinct identities", func(t *testing.T) {
		got, err := store.AggregateByMinute(ctx, "CCTV01")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, base.Unix(), got[0].Minute.Unix())
		assert.Equal(t, 2, got[0].People)
		assert.Equal(t, 1, got[1].People)
	})

	t.Run("detection for unknown identity is rejected", func(t *testing.T) {
		err := store.InsertDetection(ctx, &models.DetectionLogEntry{
			CameraID: "CCTV01", IdentityID: 99, TimeDetect: base, Image: []byte("x"),
		})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("get identity with aliases", func(t *testing.T) {
		got, err := store.GetIdentity(ctx, 1)
		require.NoError(t, err)
		require.NotNil(t, got.Aliases)
		assert.Equal(t, "6010500001", got.Aliases.StudentIDNumber)

		_, err = store.GetIdentity(ctx, 42)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("similar identities", func(t *testing.T) {
		got, err := store.SimilarIdentities(ctx, 1, 5)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, int64(2), got[0].ID)
		assert.Greater(t, got[0].Distance, 0.0)
	})

	t.Run("paged listing", func(t *testing.T) {
		page, total, err := store.ListIdentitiesWithAliases(ctx, 1, 1)
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		require.Len(t, page, 1)
		assert.Equal(t, int64(2), page[0].ID)
		assert.Nil(t, page[0].Aliases)
	})
}
