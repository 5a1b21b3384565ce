// Package api exposes the engine over HTTP with chi: enqueue and
// withdraw messages, inspect scheduler stats and manage the dead letter
// queue.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/xraph/postmaster/engine"
)

// maxPayloadBytes bounds a single enqueue request body.
const maxPayloadBytes = 10 << 20

// API wires all HTTP handlers together for the postmaster engine.
type API struct {
	eng    *engine.Engine
	logger *slog.Logger
}

// New creates an API from an Engine. A nil logger uses slog.Default().
func New(eng *engine.Engine, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{eng: eng, logger: logger}
}

// Handler returns the fully assembled http.Handler with all routes.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.RealIP, chimw.Recoverer)
	a.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers all postmaster routes into r.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Get("/health", a.health)

	r.Route("/v1", func(r chi.Router) {
		a.registerMessageRoutes(r)
		a.registerDLQRoutes(r)
		r.Get("/stats", a.stats)
	})
}

func (a *API) registerMessageRoutes(r chi.Router) {
	r.Post("/messages", a.enqueue)
	r.Delete("/messages/{messageId}", a.withdraw)
}

func (a *API) registerDLQRoutes(r chi.Router) {
	r.Get("/dlq", a.listDLQ)
	r.Get("/dlq/count", a.dlqCount)
	r.Post("/dlq/purge", a.purgeDLQ)
	r.Get("/dlq/{entryId}", a.getDLQ)
	r.Post("/dlq/{entryId}/replay", a.replayDLQ)
}
