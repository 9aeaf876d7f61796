package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facelog/internal/models"
	"github.com/your-org/facelog/internal/storage/mock"
	"github.com/your-org/facelog/internal/vector"
)

func seed(t *testing.T) *mock.MockStore {
	t.Helper()
	ctx := context.Background()
	store := mock.NewMockStore()
	require.NoError(t, store.InsertIdentity(ctx, &models.Identity{ID: 1, Embedding: vector.Embedding{1}}))
	require.NoError(t, store.InsertIdentity(ctx, &models.Identity{ID: 2, Embedding: vector.Embedding{2}}))
	require.NoError(t, store.SetAliases(ctx, &models.IdentityAliases{IdentityID: 1, StudentIDNumber: "6010500001"}))

	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	for _, e := range []models.DetectionLogEntry{
		{CameraID: "CCTV01", IdentityID: 1, TimeDetect: base.Add(90 * time.Second), Image: []byte("late")},
		{CameraID: "CCTV01", IdentityID: 1, TimeDetect: base, Image: []byte("early")},
		{CameraID: "CCTV01", IdentityID: 2, TimeDetect: base.Add(5 * time.Second), Image: []byte("other")},
	} {
		e := e
		require.NoError(t, store.InsertDetection(ctx, &e))
	}
	return store
}

func TestService_SearchByAliasIsAscending(t *testing.T) {
	svc := New(seed(t), time.Minute)

	for _, key := range []string{"1", "6010500001", " 6010500001 "} {
		res, err := svc.Search(context.Background(), key)
		require.NoError(t, err)
		assert.Equal(t, []string{"early", "late"}, res.FaceImage, key)
		assert.Equal(t, int64(1709283600), res.TimeDetect[0])
		assert.Less(t, res.TimeDetect[0], res.TimeDetect[1])
	}
}

func TestService_SearchUnknownKeyIsEmpty(t *testing.T) {
	svc := New(seed(t), time.Minute)

	res, err := svc.Search(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, res.TimeDetect)
	assert.NotNil(t, res.TimeDetect)
}

func TestService_SearchErrors(t *testing.T) {
	store := seed(t)
	svc := New(store, time.Minute)

	_, err := svc.Search(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrEmptyKey)

	store.QueryError = errors.New("timeout")
	_, err = svc.Search(context.Background(), "1")
	assert.ErrorContains(t, err, "timeout")
}

func TestService_TimelineIsCached(t *testing.T) {
	store := seed(t)
	svc := New(store, time.Minute)
	ctx := context.Background()

	first, err := svc.Timeline(ctx, "CCTV01")
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, 2, first[0].People)
	assert.Equal(t, 1, first[1].People)

	second, err := svc.Timeline(ctx, "CCTV01")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, store.AggregateCalls)

	_, err = svc.Timeline(ctx, "CCTV02")
	require.NoError(t, err)
	assert.Equal(t, 2, store.AggregateCalls)
}

func TestService_TimelineErrorIsNotCached(t *testing.T) {
	store := seed(t)
	store.AggregateError = errors.New("boom")
	svc := New(store, time.Minute)

	_, err := svc.Timeline(context.Background(), "CCTV01")
	require.Error(t, err)

	store.AggregateError = nil
	got, err := svc.Timeline(context.Background(), "CCTV01")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
