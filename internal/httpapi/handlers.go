package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/whitecards/server/internal/deck"
)

// Decks lists the deck ids available in the catalog, for the
// create-game screen.
func Decks(catalog *deck.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			Decks []string `json:"decks"`
		}{Decks: catalog.Decks()})
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
