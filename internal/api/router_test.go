package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facelog/internal/api/ws"
	"github.com/your-org/facelog/internal/pipeline"
	"github.com/your-org/facelog/internal/query"
	"github.com/your-org/facelog/internal/registry"
	"github.com/your-org/facelog/internal/storage/mock"
	"github.com/your-org/facelog/internal/vector"
	"github.com/your-org/facelog/pkg/dto"
)

const testAPIKey = "test-key"

type fakeQueue struct {
	ids     []string
	batches []dto.CameraLogBatch
	err     error
}

func (q *fakeQueue) PublishBatch(_ context.Context, id string, b dto.CameraLogBatch) error {
	if q.err != nil {
		return q.err
	}
	q.ids = append(q.ids, id)
	q.batches = append(q.batches, b)
	return nil
}

type testEnv struct {
	router *gin.Engine
	store  *mock.MockStore
	images *mock.MockImages
	reg    *registry.Registry
	hub    *ws.Hub
}

func newTestEnv(t *testing.T, q *fakeQueue) *testEnv {
	t.Helper()
	store := mock.NewMockStore()
	images := mock.NewMockImages()
	reg := registry.New(store, images)
	hub := ws.NewHub(8)
	t.Cleanup(hub.Close)

	cfg := RouterConfig{
		APIKey:   testAPIKey,
		Store:    store,
		Images:   images,
		Pipeline: pipeline.New(reg, store, hub, vector.TextCodec{}, 1.062),
		Search:   query.New(store, time.Minute),
		Hub:      hub,
	}
	if q != nil {
		cfg.Queue = q
	}
	return &testEnv{router: NewRouter(cfg), store: store, images: images, reg: reg, hub: hub}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", testAPIKey)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func assertJSONError(t *testing.T, w *httptest.ResponseRecorder, status int, contains string) {
	t.Helper()
	assert.Equal(t, status, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body["error"], contains)
}

func batch(vectors ...string) dto.CameraLogBatch {
	b := dto.CameraLogBatch{}
	for _, v := range vectors {
		b.Logs = append(b.Logs, dto.CameraLog{
			CameraID:   "CCTV01",
			TimeDetect: "2024-03-01 09:00:00",
			FaceImage:  "img",
			FaceVector: v,
		})
	}
	return b
}

func TestCameraLogs_Created(t *testing.T) {
	env := newTestEnv(t, nil)
	live, err := env.hub.Subscribe(pipeline.LiveChannel)
	require.NoError(t, err)

	w := env.do(t, http.MethodPost, "/v1/camera_logs", batch("[0.1,0.2,0.3]"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp dto.IngestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []float64{1.062}, resp.DistanceAll)
	assert.Equal(t, []int64{1}, resp.LiveData.FaceID)
	assert.Equal(t, "CCTV01", resp.LiveData.CameraID)

	select {
	case msg := <-live.Messages():
		var ld dto.LiveData
		require.NoError(t, json.Unmarshal(msg, &ld))
		assert.Equal(t, []int64{1}, ld.FaceID)
		assert.Equal(t, []string{"img"}, ld.FaceImage)
	default:
		t.Fatal("live subscriber received nothing")
	}

	ident, err := env.store.GetIdentity(context.Background(), 1)
	require.NoError(t, err)
	img, err := env.images.GetImage(context.Background(), ident.ImageKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("img"), img)
}

func TestCameraLogs_Errors(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.reg.Append(context.Background(), vector.Embedding{0.1, 0.2, 0.3}, nil)
	require.NoError(t, err)

	assertJSONError(t, env.do(t, http.MethodPost, "/v1/camera_logs", "{not json"),
		http.StatusBadRequest, "logs")
	assertJSONError(t, env.do(t, http.MethodPost, "/v1/camera_logs", batch()),
		http.StatusBadRequest, "logs")
	assertJSONError(t, env.do(t, http.MethodPost, "/v1/camera_logs", batch("[0.1,x]")),
		http.StatusBadRequest, "malformed face vector")
	assertJSONError(t, env.do(t, http.MethodPost, "/v1/camera_logs", batch("[0.1,0.2]")),
		http.StatusUnauthorized, "FaceID : 1")

	env.store.InsertDetectionError = errors.New("disk full")
	w := env.do(t, http.MethodPost, "/v1/camera_logs", batch("[0.1,0.2,0.3]"))
	assertJSONError(t, w, http.StatusInternalServerError, "unsuccessful")
	assert.NotContains(t, w.Body.String(), "disk full")

	assert.Empty(t, env.store.Detections())
}

func TestCameraLogs_RequiresAPIKey(t *testing.T) {
	env := newTestEnv(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/camera_logs", strings.NewReader(`{"logs":[]}`))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCameraLogsQueue(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		env := newTestEnv(t, nil)
		assertJSONError(t, env.do(t, http.MethodPost, "/v1/camera_logs/queue", batch("[1,2]")),
			http.StatusServiceUnavailable, "disabled")
	})

	t.Run("accepted", func(t *testing.T) {
		q := &fakeQueue{}
		env := newTestEnv(t, q)

		w := env.do(t, http.MethodPost, "/v1/camera_logs/queue", batch("[1,2]"))
		require.Equal(t, http.StatusAccepted, w.Code)

		var resp dto.EnqueueResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.BatchID)
		assert.Equal(t, []string{resp.BatchID}, q.ids)
		assert.Zero(t, env.store.IdentityCount())
	})

	t.Run("idempotency key", func(t *testing.T) {
		q := &fakeQueue{}
		env := newTestEnv(t, q)

		data, _ := json.Marshal(batch("[1,2]"))
		req := httptest.NewRequest(http.MethodPost, "/v1/camera_logs/queue", bytes.NewReader(data))
		req.Header.Set("X-API-Key", testAPIKey)
		req.Header.Set("Idempotency-Key", "cam-1-0001")
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.Equal(t, []string{"cam-1-0001"}, q.ids)
	})

	t.Run("invalid batch never reaches the queue", func(t *testing.T) {
		q := &fakeQueue{}
		env := newTestEnv(t, q)
		assertJSONError(t, env.do(t, http.MethodPost, "/v1/camera_logs/queue", batch("[a]")),
			http.StatusBadRequest, "malformed")
		assert.Empty(t, q.ids)
	})

	t.Run("publish failure", func(t *testing.T) {
		env := newTestEnv(t, &fakeQueue{err: errors.New("nats down")})
		assertJSONError(t, env.do(t, http.MethodPost, "/v1/camera_logs/queue", batch("[1,2]")),
			http.StatusInternalServerError, "enqueue")
	})
}

func TestSearchAndTimeline(t *testing.T) {
	env := newTestEnv(t, nil)
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/v1/camera_logs", batch("[1,2]")).Code)
	require.Equal(t, http.StatusOK,
		env.do(t, http.MethodPut, "/v1/identities/1/aliases", dto.SetAliasesRequest{StudentIDNumber: "6010500001"}).Code)

	w := env.do(t, http.MethodGet, "/v1/search?keyword=6010500001", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var res dto.SearchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, []string{"img"}, res.FaceImage)
	assert.Equal(t, []int64{1709283600}, res.TimeDetect)

	w = env.do(t, http.MethodGet, "/v1/search?keyword=unknown", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"time_detect":[],"face_image":[]}`, w.Body.String())

	assertJSONError(t, env.do(t, http.MethodGet, "/v1/search", nil), http.StatusBadRequest, "keyword")

	w = env.do(t, http.MethodGet, "/v1/cameras/CCTV01/timeline", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var tl dto.TimelineResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tl))
	require.Len(t, tl.Points, 1)
	assert.Equal(t, int64(1709283600000), tl.Points[0].Minute)
	assert.Equal(t, 1, tl.Points[0].People)
}

func TestIdentities(t *testing.T) {
	env := newTestEnv(t, nil)
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/v1/camera_logs", batch("[0,0]", "[5,5]")).Code)

	w := env.do(t, http.MethodGet, "/v1/identities", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list dto.IdentityListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 2, list.Total)
	assert.Equal(t, "/v1/identities/1/image", list.Identities[0].ImageURL)

	w = env.do(t, http.MethodGet, "/v1/identities/2/image", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "img", w.Body.String())

	w = env.do(t, http.MethodGet, "/v1/identities/1/similar", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sim dto.SimilarIdentitiesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sim))
	require.Len(t, sim.Similar, 1)
	assert.Equal(t, int64(2), sim.Similar[0].ID)

	assertJSONError(t, env.do(t, http.MethodGet, "/v1/identities/9/image", nil), http.StatusNotFound, "not found")
	assertJSONError(t, env.do(t, http.MethodGet, "/v1/identities/abc/image", nil), http.StatusBadRequest, "invalid")
	assertJSONError(t, env.do(t, http.MethodGet, "/v1/identities/9/similar", nil), http.StatusNotFound, "not found")
	assertJSONError(t, env.do(t, http.MethodPut, "/v1/identities/9/aliases",
		dto.SetAliasesRequest{IdentificationNumber: "x"}), http.StatusNotFound, "not found")
	assertJSONError(t, env.do(t, http.MethodPut, "/v1/identities/1/aliases",
		dto.SetAliasesRequest{}), http.StatusBadRequest, "required")
}

func TestSystemEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"nats":"disabled"`)

	env.store.PingError = errors.New("no route to host")
	w = env.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = env.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "facelog_registry_size")
}

func TestRequestMetricsUseRouteTemplate(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodGet, "/v1/identities/31337/image", nil)
	env.do(t, http.MethodGet, "/no/such/route", nil)

	w := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `path="/v1/identities/:id/image"`)
	assert.Contains(t, body, `path="unmatched"`)
	assert.NotContains(t, body, "31337")
	assert.NotContains(t, body, "/no/such/route")
}

func TestWSSearch(t *testing.T) {
	env := newTestEnv(t, nil)
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/v1/camera_logs", batch("[1,2]")).Code)

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws/search?api_key=" + testAPIKey
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	exchange := func(req string) dto.WSSearchReply {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(req)))
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		var reply dto.WSSearchReply
		require.NoError(t, json.Unmarshal(msg, &reply))
		return reply
	}

	reply := exchange(`{"event":"search","keyword":"1"}`)
	assert.Equal(t, "search_result", reply.Event)
	assert.Equal(t, []string{"img"}, reply.FaceImage)

	reply = exchange(`{"event":"vote"}`)
	assert.Equal(t, "error", reply.Event)

	reply = exchange(`{"event":"search","keyword":""}`)
	assert.Equal(t, "error", reply.Event)
	assert.Equal(t, query.ErrEmptyKey.Error(), reply.Error)
}

func TestListIdentitiesEmpty(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(t, http.MethodGet, "/v1/identities", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"identities":[],"total":0}`, w.Body.String())
}
