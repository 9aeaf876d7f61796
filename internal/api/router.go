package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/facelog/internal/api/handlers"
	"github.com/your-org/facelog/internal/api/ws"
	"github.com/your-org/facelog/internal/auth"
	"github.com/your-org/facelog/internal/pipeline"
)

type Store interface {
	handlers.Pinger
	handlers.IdentityStore
}

type ImageStore interface {
	handlers.Pinger
	handlers.ImageReader
}

type RouterConfig struct {
	APIKey   string
	Store    Store
	Images   ImageStore
	Pipeline handlers.Ingester
	Search   handlers.Searcher
	Hub      *ws.Hub
	// Queue and NATS are nil when NATS is not configured.
	Queue handlers.BatchQueue
	NATS  handlers.NATSPinger
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLog())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.Store, cfg.Images, cfg.NATS)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.RequireKey(cfg.APIKey))

	// Ingestion
	ingestH := handlers.NewIngestHandler(cfg.Pipeline, cfg.Queue)
	v1.POST("/camera_logs", ingestH.Create)
	v1.POST("/camera_logs/queue", ingestH.Enqueue)

	// Queries
	searchH := handlers.NewSearchHandler(cfg.Search, cfg.Hub)
	v1.GET("/search", searchH.Search)
	v1.GET("/cameras/:id/timeline", searchH.Timeline)

	// Identities
	identityH := handlers.NewIdentityHandler(cfg.Store, cfg.Images)
	v1.GET("/identities", identityH.List)
	v1.GET("/identities/:id/image", identityH.Image)
	v1.PUT("/identities/:id/aliases", identityH.SetAliases)
	v1.GET("/identities/:id/similar", identityH.Similar)

	// WebSocket
	v1.GET("/ws/live", func(c *gin.Context) { cfg.Hub.Serve(c, pipeline.LiveChannel, nil) })
	v1.GET("/ws/search", searchH.WS)

	return r
}
