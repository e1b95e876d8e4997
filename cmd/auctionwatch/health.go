package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/auction-sync/internal/catalog"
	"github.com/rickgao/auction-sync/internal/connection"
	"github.com/rickgao/auction-sync/internal/journal"
	"github.com/rickgao/auction-sync/internal/observe"
	"github.com/rickgao/auction-sync/internal/poller"
)

type healthDeps struct {
	conn    *connection.Manager
	hub     *observe.Hub
	poller  *poller.Poller
	journal *journal.Writer  // nil when the journal is disabled
	catalog *catalog.Catalog // nil unless -all
	pool    *pgxpool.Pool    // nil when the journal is disabled
	watched *watchSet
}

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(deps healthDeps, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string                 `json:"status"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]interface{}),
		}

		connStats := deps.conn.Stats()
		health.Components["connection"] = connStats
		health.Components["observe"] = deps.hub.Stats()
		health.Components["poller"] = deps.poller.Stats()

		// A closed socket is retrying; an exhausted one needs a manual reconnect.
		switch connStats.State {
		case connection.StateClosed:
			health.Status = "degraded"
		case connection.StateExhausted:
			health.Status = "unhealthy"
		}

		if deps.journal != nil {
			health.Components["journal"] = deps.journal.Stats()
		}
		if deps.catalog != nil {
			health.Components["catalog"] = deps.catalog.Stats()
		}

		if deps.pool != nil {
			if err := deps.pool.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["database"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["database"] = "connected"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("GET /debug/auctions", func(w http.ResponseWriter, r *http.Request) {
		type entry struct {
			ID         string           `json:"observation"`
			Connection connection.State `json:"connection"`
			Subscribed bool             `json:"subscribed"`
			Error      string           `json:"error,omitempty"`
			Snapshot   interface{}      `json:"snapshot"`
		}

		observations := deps.watched.snapshot()
		out := make([]entry, 0, len(observations))
		for _, obs := range observations {
			e := entry{
				ID:         obs.ID(),
				Connection: obs.ConnectionStatus(),
				Subscribed: obs.IsSubscribed(),
				Snapshot:   obs.Snapshot(),
			}
			if err := obs.Err(); err != nil {
				e.Error = err.Error()
			}
			out = append(out, e)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"count":    len(out),
			"auctions": out,
		})
	})

	mux.HandleFunc("POST /reconnect", func(w http.ResponseWriter, r *http.Request) {
		logger.Info("manual reconnect requested", "state", deps.conn.State())
		deps.conn.Reconnect()
		w.WriteHeader(http.StatusAccepted)
	})

	return mux
}
