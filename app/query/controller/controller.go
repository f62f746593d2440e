package controller

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/canopy-network/canopyx-points/app/query/types"
	"github.com/canopy-network/canopyx-points/pkg/ledger"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type Controller struct {
	App *types.App
}

// NewController returns a new controller.
func NewController(app *types.App) *Controller {
	return &Controller{
		App: app,
	}
}

// NewRouter returns a new router with all the routes defined in this file.
func (c *Controller) NewRouter() (*mux.Router, error) {
	r := mux.NewRouter()

	r.Handle("/health", http.HandlerFunc(c.HandleHealth)).Methods(http.MethodGet)

	r.HandleFunc("/accounts/{id}", c.HandleAccount).Methods(http.MethodGet)
	r.HandleFunc("/accounts/{id}/snapshots", c.HandleSnapshots).Methods(http.MethodGet)
	r.HandleFunc("/accounts/{id}/average", c.HandleAverage).Methods(http.MethodGet)
	r.HandleFunc("/accounts/{id}/cumulative", c.HandleCumulative).Methods(http.MethodGet)

	r.HandleFunc("/ws", c.HandleWebSocket).Methods(http.MethodGet)

	return r, nil
}

// WithCORS is a middleware that adds CORS headers to the response.
func WithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", http.MethodGet+", "+http.MethodOptions)

		// Fast-path the preflight
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// writeLedgerError maps ledger errors to a status. Unexpected errors are
// logged and hidden from the client.
func (c *Controller) writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ledger.ErrQueryRange), errors.Is(err, ledger.ErrInvalidAccountID):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		c.App.Logger.Error("Ledger query failed",
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
	}
}
