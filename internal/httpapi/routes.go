package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/whitecards/server/internal/deck"
	"github.com/whitecards/server/internal/registry"
	"github.com/whitecards/server/internal/ws"
)

func SetupRoutes(reg *registry.Registry, catalog *deck.Catalog, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Get("/ws", ws.Handler(reg, log))
	r.Get("/decks", Decks(catalog))
	r.Get("/healthz", Healthz)
	return r
}
