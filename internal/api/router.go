// Package api exposes the query surface next to the ingestion pipeline:
// fleet state read from the snapshot cache, health checks, Prometheus
// metrics and the websocket endpoint subscribers connect to.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fleetpulse/internal/hub"
)

// Cache is the read side of the snapshot cache.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	Keys(ctx context.Context, pattern string) ([]string, error)
	Ping(ctx context.Context) error
}

// Store is the health-check view of the time-series store.
type Store interface {
	Ping(ctx context.Context) error
}

type handler struct {
	store    Store
	cache    Cache
	hub      *hub.Hub
	upgrader websocket.Upgrader
}

// NewRouter builds the HTTP routes.
func NewRouter(store Store, cache Cache, h *hub.Hub, registry *prometheus.Registry) http.Handler {
	api := &handler{
		store: store,
		cache: cache,
		hub:   h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The dashboard is served from a different origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", api.root)
	r.Get("/health", api.health)
	r.Get("/ws", api.serveWS)
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/robots", api.listRobots)
		r.Get("/robots/{robotID}/latest", api.robotLatest)
		r.Get("/fleet/status", api.fleetStatus)
	})

	return r
}
