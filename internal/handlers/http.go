// internal/handlers/http.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/jason-s-yu/arena/internal/engine"
	"github.com/jason-s-yu/arena/internal/middleware"
	"github.com/jason-s-yu/arena/internal/monitor"
	"github.com/sirupsen/logrus"
)

// HealthPayload is returned by GET /.
type HealthPayload struct {
	Status      string `json:"status"`
	Players     int    `json:"players"`
	Lobbies     int    `json:"lobbies"`
	Tournaments int    `json:"tournaments"`
	Rooms       int    `json:"rooms"`
}

// HealthHandler reports liveness with a few engine counts.
func HealthHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(HealthPayload{
			Status:      "ok",
			Players:     eng.Registry().Count(),
			Lobbies:     eng.Lobbies().Count(),
			Tournaments: eng.Tournaments().Count(),
			Rooms:       eng.Rooms().Count(),
		})
	}
}

// NewRouter mounts every route behind the request logger. metrics may be nil.
func NewRouter(logger *logrus.Logger, eng *engine.Engine, verifier TokenVerifier, metrics *monitor.Metrics) http.Handler {
	mux := http.NewServeMux()
	logged := middleware.LogMiddleware(logger)

	mux.Handle("/", logged(HealthHandler(eng)))
	mux.Handle("/ws", logged(WSHandler(logger, eng, verifier)))
	if metrics != nil {
		mux.Handle("/metrics", metrics.Handler())
	}
	return mux
}
